package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Prompt is one system/user prompt pair ready to hand to a provider.
type Prompt struct {
	System string
	User   string
}

// TemplateMeta holds frontmatter metadata for a prompt template.
type TemplateMeta struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	System      string `yaml:"system"`
}

// Loader manages prompt templates with override support.
type Loader struct {
	overrideDirs []string // checked in priority order; first match wins
	cache        map[string]*template.Template
	metaCache    map[string]*TemplateMeta
	mu           sync.RWMutex
}

// NewLoader creates a loader with the given override directories.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*template.Template),
		metaCache:    make(map[string]*TemplateMeta),
	}
}

// DefaultLoader creates a loader with the standard override paths:
// 1. Project-local: .scribe/prompts/
// 2. User config: ~/.config/scribe/prompts/
func DefaultLoader(projectRoot string) *Loader {
	home, _ := os.UserHomeDir()
	dirs := []string{}

	if projectRoot != "" {
		dirs = append(dirs, filepath.Join(projectRoot, ".scribe", "prompts"))
	}
	dirs = append(dirs, filepath.Join(home, ".config", "scribe", "prompts"))

	return NewLoader(dirs...)
}

// loadContent loads raw content from override dirs or the embedded FS.
func (l *Loader) loadContent(path string) ([]byte, error) {
	for _, dir := range l.overrideDirs {
		fullPath := filepath.Join(dir, filepath.Base(path))
		if data, err := os.ReadFile(fullPath); err == nil {
			return data, nil
		}
	}
	return fs.ReadFile(embeddedFS, path)
}

// parseFrontmatter splits content into frontmatter and template body.
func parseFrontmatter(content []byte) (*TemplateMeta, string, error) {
	str := string(content)

	if !strings.HasPrefix(str, "---\n") {
		return &TemplateMeta{}, str, nil
	}

	end := strings.Index(str[4:], "\n---\n")
	if end == -1 {
		return &TemplateMeta{}, str, nil
	}

	header := str[4 : 4+end]
	body := str[4+end+5:]

	var meta TemplateMeta
	if err := yaml.Unmarshal([]byte(header), &meta); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}

	return &meta, body, nil
}

// loadTemplate loads and compiles a template by path under templates/.
func (l *Loader) loadTemplate(path string) (*template.Template, *TemplateMeta, error) {
	l.mu.RLock()
	if tmpl, ok := l.cache[path]; ok {
		meta := l.metaCache[path]
		l.mu.RUnlock()
		return tmpl, meta, nil
	}
	l.mu.RUnlock()

	content, err := l.loadContent(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}

	meta, body, err := parseFrontmatter(content)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	tmpl, err := template.New(path).Parse(body)
	if err != nil {
		return nil, nil, fmt.Errorf("compile template %s: %w", path, err)
	}

	l.mu.Lock()
	l.cache[path] = tmpl
	l.metaCache[path] = meta
	l.mu.Unlock()

	return tmpl, meta, nil
}

// execute renders a template into a Prompt; the system half comes from the
// template's frontmatter.
func (l *Loader) execute(path string, data interface{}) (Prompt, error) {
	tmpl, meta, err := l.loadTemplate(path)
	if err != nil {
		return Prompt{}, err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Prompt{}, fmt.Errorf("execute %s: %w", path, err)
	}

	return Prompt{System: meta.System, User: strings.TrimSpace(buf.String())}, nil
}

// ClearCache clears the template cache (useful for tests).
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]*template.Template)
	l.metaCache = make(map[string]*TemplateMeta)
	l.mu.Unlock()
}

// FileData holds template variables for per-file summary prompts.
type FileData struct {
	Path     string
	Language string
	Content  string
}

// DirData holds template variables for directory aggregation prompts.
type DirData struct {
	Path            string
	FileSummaries   string
	SubdirSummaries string
}

// RootData holds template variables for root synthesis prompts.
type RootData struct {
	Document     string
	Tree         string
	DirSummaries string
}

// RebuildData holds template variables for reconstruction prompts.
type RebuildData struct {
	UnitName     string
	Spec         string
	BuiltContext string
}

// BuildFilePrompt renders the per-file summary prompt.
func (l *Loader) BuildFilePrompt(data FileData) (Prompt, error) {
	return l.execute("templates/file.md", data)
}

// BuildDirPrompt renders the directory aggregation prompt.
func (l *Loader) BuildDirPrompt(data DirData) (Prompt, error) {
	return l.execute("templates/directory.md", data)
}

// BuildRootPrompt renders the root synthesis prompt.
func (l *Loader) BuildRootPrompt(data RootData) (Prompt, error) {
	return l.execute("templates/root.md", data)
}

// BuildRebuildPrompt renders the reconstruction prompt for one unit.
func (l *Loader) BuildRebuildPrompt(data RebuildData) (Prompt, error) {
	return l.execute("templates/rebuild.md", data)
}
