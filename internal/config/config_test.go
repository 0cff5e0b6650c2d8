package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.General.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.General.Concurrency)
	}
	if cfg.Provider.Backend != "auto" {
		t.Errorf("Provider.Backend = %q, want auto", cfg.Provider.Backend)
	}
	if cfg.Provider.Timeout != 5*time.Minute {
		t.Errorf("Provider.Timeout = %v, want 5m", cfg.Provider.Timeout)
	}
	if cfg.Rebuild.SpecDir != "specs" {
		t.Errorf("Rebuild.SpecDir = %q, want specs", cfg.Rebuild.SpecDir)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[general]
project_root = "/test/project"
concurrency = 8
ignore_patterns = ["generated", "*.pb.go"]

[provider]
backend = "opencode"
model = "big-model"
max_retries = 5

[notifications]
desktop = true
slack_webhook = "https://hooks.example.com/x"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.ProjectRoot != "/test/project" {
		t.Errorf("ProjectRoot = %q, want /test/project", cfg.General.ProjectRoot)
	}
	if cfg.General.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.General.Concurrency)
	}
	if len(cfg.General.IgnorePatterns) != 2 {
		t.Errorf("IgnorePatterns = %v, want 2 entries", cfg.General.IgnorePatterns)
	}
	if cfg.Provider.Backend != "opencode" || cfg.Provider.MaxRetries != 5 {
		t.Errorf("Provider = %+v", cfg.Provider)
	}
	if !cfg.Notifications.Desktop {
		t.Error("Notifications.Desktop = false, want true")
	}
	// Unset fields keep their defaults.
	if cfg.General.LogRetention != 20 {
		t.Errorf("LogRetention = %d, want default 20", cfg.General.LogRetention)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want default 4", cfg.General.Concurrency)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFindLocalConfig(t *testing.T) {
	// Create a temp directory structure
	root := t.TempDir()
	subdir := filepath.Join(root, "sub", "dir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}

	// Create local config in root
	localConfig := filepath.Join(root, LocalConfigName)
	if err := os.WriteFile(localConfig, []byte("[general]\nproject_root = \"/local\""), 0644); err != nil {
		t.Fatal(err)
	}

	// Save current dir and change to subdir
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(subdir); err != nil {
		t.Fatal(err)
	}

	// Should find config in parent
	found := FindLocalConfig()
	if found != localConfig {
		t.Errorf("FindLocalConfig() = %q, want %q", found, localConfig)
	}
}

func TestFindLocalConfig_NotFound(t *testing.T) {
	// Create a temp directory without any config
	root := t.TempDir()

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}

	found := FindLocalConfig()
	if found != "" {
		t.Errorf("FindLocalConfig() = %q, want empty string", found)
	}
}

func TestLoadWithLocalFallback_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	explicitPath := filepath.Join(dir, "explicit.toml")

	content := `[general]
project_root = "/explicit"
`
	if err := os.WriteFile(explicitPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithLocalFallback(explicitPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.ProjectRoot != "/explicit" {
		t.Errorf("ProjectRoot = %q, want /explicit", cfg.General.ProjectRoot)
	}
}

func TestLoadWithLocalFallback_LocalConfig(t *testing.T) {
	root := t.TempDir()
	localConfig := filepath.Join(root, LocalConfigName)

	content := `[general]
project_root = "/from-local"
`
	if err := os.WriteFile(localConfig, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithLocalFallback("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.ProjectRoot != "/from-local" {
		t.Errorf("ProjectRoot = %q, want /from-local", cfg.General.ProjectRoot)
	}
}
