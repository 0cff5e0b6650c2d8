package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// LocalConfigName is the per-project config file searched for upward from
// the working directory.
const LocalConfigName = ".scribe.toml"

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Provider      ProviderConfig      `toml:"provider"`
	Rebuild       RebuildConfig       `toml:"rebuild"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	ProjectRoot    string   `toml:"project_root"`
	OutputDir      string   `toml:"output_dir"`
	LogsDir        string   `toml:"logs_dir"`
	DatabasePath   string   `toml:"database_path"`
	Concurrency    int      `toml:"concurrency"`
	LogRetention   int      `toml:"log_retention"`
	IgnorePatterns []string `toml:"ignore_patterns"`
	Extensions     []string `toml:"extensions"`
}

// ProviderConfig holds AI provider settings
type ProviderConfig struct {
	Backend    string        `toml:"backend"`
	Model      string        `toml:"model"`
	Timeout    time.Duration `toml:"timeout"`
	MaxRetries int           `toml:"max_retries"`
}

// RebuildConfig holds reconstruction settings
type RebuildConfig struct {
	SpecDir       string `toml:"spec_dir"`
	OutputDir     string `toml:"output_dir"`
	ContextBudget int    `toml:"context_budget"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			ProjectRoot:  ".",
			OutputDir:    "docs/codebase",
			LogsDir:      filepath.Join(home, ".scribe", "logs"),
			DatabasePath: filepath.Join(home, ".scribe", "scribe.db"),
			Concurrency:  4,
			LogRetention: 20,
		},
		Provider: ProviderConfig{
			Backend:    "auto",
			Timeout:    5 * time.Minute,
			MaxRetries: 3,
		},
		Rebuild: RebuildConfig{
			SpecDir:   "specs",
			OutputDir: "rebuilt",
		},
		Notifications: NotificationsConfig{
			Desktop: false,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.ProjectRoot = ExpandPath(cfg.General.ProjectRoot)
	cfg.General.OutputDir = ExpandPath(cfg.General.OutputDir)
	cfg.General.LogsDir = ExpandPath(cfg.General.LogsDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.Rebuild.SpecDir = ExpandPath(cfg.Rebuild.SpecDir)
	cfg.Rebuild.OutputDir = ExpandPath(cfg.Rebuild.OutputDir)

	return cfg, nil
}

// LoadWithLocalFallback loads the explicit path when given, otherwise a
// .scribe.toml found upward from the working directory, otherwise the
// user config.
func LoadWithLocalFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// FindLocalConfig walks from the working directory toward the root
// looking for a .scribe.toml. Returns "" when none exists.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "scribe", "config.toml")
}

// SchedulePath returns the schedule file next to the main config
func SchedulePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "scribe", "schedule.toml")
}
