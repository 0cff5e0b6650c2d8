// Package runner drives the documentation pipeline: per-file summaries in
// parallel, then directory aggregation, then root synthesis.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/scribeforge/scribe/internal/backend"
	"github.com/scribeforge/scribe/internal/consistency"
	"github.com/scribeforge/scribe/internal/discovery"
	"github.com/scribeforge/scribe/internal/pool"
	"github.com/scribeforge/scribe/internal/prompts"
)

// Mode selects how existing documentation is treated.
type Mode string

const (
	// ModeGenerate documents every discovered file, overwriting existing output.
	ModeGenerate Mode = "generate"
	// ModeUpdate re-documents only files whose content changed since the
	// last run, judged by the fingerprint embedded in the output.
	ModeUpdate Mode = "update"
)

// fingerprintPrefix marks the first line of every generated summary so
// update runs can tell whether the source changed.
const fingerprintPrefix = "<!-- scribe:source "

// AICaller is the slice of the provider client the runner needs.
type AICaller interface {
	Call(ctx context.Context, req backend.Request) (*backend.Response, error)
}

// Options configures one pipeline run.
type Options struct {
	ProjectRoot string
	OutputDir   string
	Mode        Mode
	Concurrency int
	FailFast    bool
	DryRun      bool
	Model       string

	IgnorePatterns []string
	Extensions     []string

	Logger *slog.Logger
}

// TaskStatus is the outcome of one per-file task.
type TaskStatus string

const (
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
	TaskSkipped TaskStatus = "skipped"
)

// TaskOutcome records what happened to one source file.
type TaskOutcome struct {
	Path     string
	Status   TaskStatus
	Err      error
	Duration time.Duration
}

// Outcome summarizes a whole run.
type Outcome struct {
	Processed int
	Failed    int
	Skipped   int
	Tasks     []TaskOutcome

	ConsistencyIssues []consistency.Issue
}

// Runner executes the documentation pipeline against one project tree.
type Runner struct {
	caller AICaller
	loader *prompts.Loader
	opts   Options
	logger *slog.Logger
}

// New creates a Runner.
func New(caller AICaller, loader *prompts.Loader, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Runner{caller: caller, loader: loader, opts: opts, logger: logger}
}

// fileResult is the value carried through the worker pool for one file.
type fileResult struct {
	rel     string
	content string
	summary string
	skipped bool
	elapsed time.Duration
}

// Run executes the pipeline. Per-file failures are collected, not fatal:
// aggregation still runs over whatever succeeded.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	files, err := discovery.Discover(discovery.Options{
		Root:           r.opts.ProjectRoot,
		IgnorePatterns: r.opts.IgnorePatterns,
		Extensions:     r.opts.Extensions,
	})
	if err != nil {
		return nil, fmt.Errorf("discovering sources: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no documentable files under %s", r.opts.ProjectRoot)
	}

	// Discovery hands back root-joined paths; everything downstream works
	// with paths relative to the project root.
	rels := make([]string, 0, len(files))
	for _, path := range files {
		rel, relErr := filepath.Rel(r.opts.ProjectRoot, path)
		if relErr != nil {
			return nil, fmt.Errorf("resolving %s against %s: %w", path, r.opts.ProjectRoot, relErr)
		}
		rels = append(rels, rel)
	}
	files = rels

	r.logger.Info("discovered sources", "count", len(files), "root", r.opts.ProjectRoot)

	if r.opts.DryRun {
		return r.dryRun(files), nil
	}

	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	outcome := &Outcome{}
	results := r.runFilePhase(ctx, files, outcome)

	r.checkConsistency(results, outcome)

	r.runDirPhase(ctx, files, outcome)
	r.runRootPhase(ctx, files, outcome)

	return outcome, nil
}

// failFastTripped reports whether fail-fast mode has seen a failure, in
// which case no further tasks are dispatched.
func (r *Runner) failFastTripped(outcome *Outcome) bool {
	return r.opts.FailFast && outcome.Failed > 0
}

func (r *Runner) dryRun(files []string) *Outcome {
	outcome := &Outcome{}
	for _, rel := range files {
		status := TaskDone
		if r.opts.Mode == ModeUpdate {
			content, err := os.ReadFile(filepath.Join(r.opts.ProjectRoot, rel))
			if err == nil && r.existingFingerprint(rel) == fingerprint(content) {
				status = TaskSkipped
			}
		}
		if status == TaskSkipped {
			outcome.Skipped++
			r.logger.Info("would skip", "file", rel)
		} else {
			outcome.Processed++
			r.logger.Info("would document", "file", rel, "output", r.outputPathFor(rel))
		}
		outcome.Tasks = append(outcome.Tasks, TaskOutcome{Path: rel, Status: status})
	}
	return outcome
}

func (r *Runner) runFilePhase(ctx context.Context, files []string, outcome *Outcome) []fileResult {
	tasks := make([]pool.Task[fileResult], len(files))
	for i, rel := range files {
		rel := rel
		tasks[i] = pool.Task[fileResult]{
			ID:  rel,
			Run: func(ctx context.Context) (fileResult, error) { return r.documentFile(ctx, rel) },
		}
	}

	poolResults := pool.Run(ctx, tasks, pool.Options{
		Concurrency: r.opts.Concurrency,
		FailFast:    r.opts.FailFast,
	}, func(res pool.Result[fileResult]) {
		switch {
		case res.Err != nil:
			r.logger.Error("file failed", "file", res.ID, "error", res.Err)
		case res.Value.skipped:
			r.logger.Debug("file unchanged", "file", res.ID)
		default:
			r.logger.Info("file documented", "file", res.ID, "duration", res.Value.elapsed)
		}
	})

	var kept []fileResult
	for _, res := range poolResults {
		out := TaskOutcome{Path: res.ID, Duration: res.Value.elapsed}
		switch {
		case res.Err != nil:
			out.Status = TaskFailed
			out.Err = res.Err
			outcome.Failed++
		case res.Value.skipped:
			out.Status = TaskSkipped
			outcome.Skipped++
		default:
			out.Status = TaskDone
			outcome.Processed++
			kept = append(kept, res.Value)
		}
		outcome.Tasks = append(outcome.Tasks, out)
	}
	return kept
}

func (r *Runner) documentFile(ctx context.Context, rel string) (fileResult, error) {
	start := time.Now()

	content, err := os.ReadFile(filepath.Join(r.opts.ProjectRoot, rel))
	if err != nil {
		return fileResult{}, fmt.Errorf("reading %s: %w", rel, err)
	}

	fp := fingerprint(content)
	if r.opts.Mode == ModeUpdate && r.existingFingerprint(rel) == fp {
		return fileResult{rel: rel, skipped: true}, nil
	}

	prompt, err := r.loader.BuildFilePrompt(prompts.FileData{
		Path:     rel,
		Language: languageFor(rel),
		Content:  string(content),
	})
	if err != nil {
		return fileResult{}, err
	}

	resp, err := r.caller.Call(ctx, backend.Request{
		SystemPrompt: prompt.System,
		UserPrompt:   prompt.User,
		Model:        r.opts.Model,
		WorkingDir:   r.opts.ProjectRoot,
	})
	if err != nil {
		return fileResult{}, err
	}

	if err := r.writeSummary(rel, fp, resp.Content); err != nil {
		return fileResult{}, err
	}

	return fileResult{
		rel:     rel,
		content: string(content),
		summary: resp.Content,
		elapsed: time.Since(start),
	}, nil
}

func (r *Runner) writeSummary(rel, fp, summary string) error {
	outPath := r.outputPathFor(rel)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	body := fingerprintPrefix + fp + " -->\n\n" + strings.TrimSpace(summary) + "\n"
	return os.WriteFile(outPath, []byte(body), 0o644)
}

func (r *Runner) outputPathFor(rel string) string {
	return filepath.Join(r.opts.OutputDir, rel+".md")
}

// existingFingerprint returns the fingerprint recorded in a previous
// summary for rel, or "" when there is none.
func (r *Runner) existingFingerprint(rel string) string {
	data, err := os.ReadFile(r.outputPathFor(rel))
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(data), "\n")
	if !strings.HasPrefix(line, fingerprintPrefix) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(line, fingerprintPrefix), " -->")
}

func fingerprint(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

func (r *Runner) checkConsistency(results []fileResult, outcome *Outcome) {
	var inputs []consistency.Input
	for _, res := range results {
		inputs = append(inputs, consistency.Input{
			Path:    res.rel,
			Content: res.content,
			Summary: res.summary,
		})
	}
	if len(inputs) == 0 {
		return
	}

	report := consistency.Check(inputs)
	outcome.ConsistencyIssues = report.Issues
	for dir, issues := range report.ByDir() {
		r.logger.Warn("summary drift", "dir", dir, "issues", len(issues))
	}
	if report.Truncated {
		r.logger.Warn("summary drift report truncated", "cap", consistency.MaxIssues)
	}
}

// runDirPhase writes a _dir.md overview for every directory that holds
// summaries, deepest first so parents can fold in child overviews. A
// failed directory is recorded in the outcome and its parents aggregate
// without it.
func (r *Runner) runDirPhase(ctx context.Context, files []string, outcome *Outcome) {
	dirs := collectDirs(files)

	for _, dir := range dirs {
		if r.failFastTripped(outcome) {
			return
		}
		if err := r.documentDir(ctx, dir, dirs); err != nil {
			r.logger.Error("directory failed", "dir", displayDir(dir), "error", err)
			outcome.Failed++
			outcome.Tasks = append(outcome.Tasks, TaskOutcome{
				Path:   filepath.Join(dir, "_dir.md"),
				Status: TaskFailed,
				Err:    err,
			})
		}
	}
}

func (r *Runner) documentDir(ctx context.Context, dir string, dirs []string) error {
	fileSummaries, err := r.readDirSummaries(dir)
	if err != nil {
		return err
	}
	subdirSummaries := r.readChildOverviews(dir, dirs)
	if fileSummaries == "" && subdirSummaries == "" {
		return nil
	}

	prompt, err := r.loader.BuildDirPrompt(prompts.DirData{
		Path:            displayDir(dir),
		FileSummaries:   fileSummaries,
		SubdirSummaries: subdirSummaries,
	})
	if err != nil {
		return err
	}

	resp, err := r.caller.Call(ctx, backend.Request{
		SystemPrompt: prompt.System,
		UserPrompt:   prompt.User,
		Model:        r.opts.Model,
		WorkingDir:   r.opts.ProjectRoot,
	})
	if err != nil {
		return err
	}

	outPath := filepath.Join(r.opts.OutputDir, dir, "_dir.md")
	if err := os.WriteFile(outPath, []byte(strings.TrimSpace(resp.Content)+"\n"), 0o644); err != nil {
		return err
	}
	r.logger.Info("directory documented", "dir", displayDir(dir))
	return nil
}

// collectDirs returns every ancestor directory of the given files,
// sorted deepest first.
func collectDirs(files []string) []string {
	seen := make(map[string]bool)
	for _, rel := range files {
		dir := filepath.Dir(rel)
		for {
			if seen[dir] {
				break
			}
			seen[dir] = true
			if dir == "." {
				break
			}
			dir = filepath.Dir(dir)
		}
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := depth(dirs[i]), depth(dirs[j])
		if di != dj {
			return di > dj
		}
		return dirs[i] < dirs[j]
	})
	return dirs
}

func depth(dir string) int {
	if dir == "." {
		return 0
	}
	return strings.Count(dir, string(filepath.Separator)) + 1
}

func displayDir(dir string) string {
	if dir == "." {
		return "(root)"
	}
	return dir
}

// readDirSummaries concatenates the per-file summaries directly inside dir.
func (r *Runner) readDirSummaries(dir string) (string, error) {
	entries, err := os.ReadDir(filepath.Join(r.opts.OutputDir, dir))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	var b strings.Builder
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == "_dir.md" || !strings.HasSuffix(name, ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.opts.OutputDir, dir, name))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", strings.TrimSuffix(name, ".md"), strings.TrimSpace(stripFingerprint(string(data))))
	}
	return strings.TrimSpace(b.String()), nil
}

// readChildOverviews gathers _dir.md files of immediate subdirectories.
func (r *Runner) readChildOverviews(dir string, dirs []string) string {
	var b strings.Builder
	for _, other := range dirs {
		if filepath.Dir(other) != dir || other == dir {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.opts.OutputDir, other, "_dir.md"))
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "### %s/\n\n%s\n\n", other, strings.TrimSpace(string(data)))
	}
	return strings.TrimSpace(b.String())
}

func stripFingerprint(content string) string {
	line, rest, found := strings.Cut(content, "\n")
	if found && strings.HasPrefix(line, fingerprintPrefix) {
		return rest
	}
	return content
}

// runRootPhase writes ARCHITECTURE.md and OVERVIEW.md from the top-level
// directory overviews. Each document is its own task; one failing does
// not stop the other.
func (r *Runner) runRootPhase(ctx context.Context, files []string, outcome *Outcome) {
	tree := renderTree(files)
	dirSummaries := r.topLevelOverviews(files)

	for _, doc := range []string{"ARCHITECTURE.md", "OVERVIEW.md"} {
		if r.failFastTripped(outcome) {
			return
		}
		if err := r.documentRoot(ctx, doc, tree, dirSummaries); err != nil {
			r.logger.Error("root document failed", "doc", doc, "error", err)
			outcome.Failed++
			outcome.Tasks = append(outcome.Tasks, TaskOutcome{Path: doc, Status: TaskFailed, Err: err})
		}
	}
}

func (r *Runner) documentRoot(ctx context.Context, doc, tree, dirSummaries string) error {
	prompt, err := r.loader.BuildRootPrompt(prompts.RootData{
		Document:     doc,
		Tree:         tree,
		DirSummaries: dirSummaries,
	})
	if err != nil {
		return err
	}

	resp, err := r.caller.Call(ctx, backend.Request{
		SystemPrompt: prompt.System,
		UserPrompt:   prompt.User,
		Model:        r.opts.Model,
		WorkingDir:   r.opts.ProjectRoot,
	})
	if err != nil {
		return err
	}

	outPath := filepath.Join(r.opts.OutputDir, doc)
	if err := os.WriteFile(outPath, []byte(strings.TrimSpace(resp.Content)+"\n"), 0o644); err != nil {
		return err
	}
	r.logger.Info("root document written", "doc", doc)
	return nil
}

func (r *Runner) topLevelOverviews(files []string) string {
	seen := make(map[string]bool)
	var tops []string
	for _, rel := range files {
		top := rel
		if idx := strings.IndexRune(rel, filepath.Separator); idx >= 0 {
			top = rel[:idx]
		} else {
			top = "."
		}
		if !seen[top] {
			seen[top] = true
			tops = append(tops, top)
		}
	}
	sort.Strings(tops)

	var b strings.Builder
	for _, top := range tops {
		data, err := os.ReadFile(filepath.Join(r.opts.OutputDir, top, "_dir.md"))
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", displayDir(top), strings.TrimSpace(string(data)))
	}
	return strings.TrimSpace(b.String())
}

// renderTree renders relative paths as an indented tree.
func renderTree(files []string) string {
	var b strings.Builder
	var prevParts []string
	for _, rel := range files {
		parts := strings.Split(rel, string(filepath.Separator))
		common := 0
		for common < len(parts)-1 && common < len(prevParts)-1 && parts[common] == prevParts[common] {
			common++
		}
		for i := common; i < len(parts); i++ {
			fmt.Fprintf(&b, "%s%s\n", strings.Repeat("  ", i), parts[i])
		}
		prevParts = parts
	}
	return strings.TrimRight(b.String(), "\n")
}

var languages = map[string]string{
	".go":    "Go",
	".py":    "Python",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".rs":    "Rust",
	".java":  "Java",
	".kt":    "Kotlin",
	".rb":    "Ruby",
	".c":     "C",
	".h":     "C",
	".cpp":   "C++",
	".cs":    "C#",
	".php":   "PHP",
	".swift": "Swift",
	".sh":    "Shell",
	".sql":   "SQL",
	".proto": "Protocol Buffers",
	".yaml":  "YAML",
	".yml":   "YAML",
	".toml":  "TOML",
	".md":    "Markdown",
}

func languageFor(rel string) string {
	if lang, ok := languages[filepath.Ext(rel)]; ok {
		return lang
	}
	return "plain text"
}
