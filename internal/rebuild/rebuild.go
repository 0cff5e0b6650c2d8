// Package rebuild reconstructs a codebase from its specification units,
// ordered by dependency stage and checkpointed so interrupted runs resume.
package rebuild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/scribeforge/scribe/internal/backend"
	"github.com/scribeforge/scribe/internal/checkpoint"
	"github.com/scribeforge/scribe/internal/parser"
	"github.com/scribeforge/scribe/internal/pool"
	"github.com/scribeforge/scribe/internal/prompts"
)

// DefaultContextBudget bounds the built-context portion of a rebuild
// prompt, in bytes.
const DefaultContextBudget = 128 * 1024

// sessionNamespace seeds deterministic per-unit session IDs so a resumed
// run presents the same session to the provider.
var sessionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://scribeforge.dev/rebuild"))

// AICaller is the slice of the provider client the orchestrator needs.
type AICaller interface {
	Call(ctx context.Context, req backend.Request) (*backend.Response, error)
}

// Options configures one rebuild run.
type Options struct {
	SpecDir       string
	OutputDir     string
	ContextBudget int
	Concurrency   int
	FailFast      bool
	Force         bool
	DryRun        bool
	Model         string

	Logger *slog.Logger
}

// UnitOutcome records what happened to one specification unit.
type UnitOutcome struct {
	Name         string
	Status       string // done, failed, skipped
	FilesWritten []string
	Err          error
}

// Outcome summarizes a rebuild run.
type Outcome struct {
	Resumed   bool
	Completed int
	Failed    int
	Skipped   int
	Units     []UnitOutcome
}

// Orchestrator drives a spec-to-code rebuild.
type Orchestrator struct {
	caller AICaller
	loader *prompts.Loader
	opts   Options
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(caller AICaller, loader *prompts.Loader, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = DefaultContextBudget
	}
	return &Orchestrator{caller: caller, loader: loader, opts: opts, logger: logger}
}

// Run executes the rebuild. Units within a stage run in parallel; stages
// run in order, each seeing the files written by earlier stages.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	units, tracked, err := parser.ParseDir(o.opts.SpecDir)
	if err != nil {
		return nil, fmt.Errorf("parsing specs: %w", err)
	}

	if o.opts.Force {
		if err := o.wipeOutput(); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(o.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.Name
	}

	mgr, resumed, err := checkpoint.Load(o.opts.OutputDir, tracked, names, o.logger)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	defer mgr.Close()

	outcome := &Outcome{Resumed: resumed}
	pending := make(map[string]bool)
	for _, name := range mgr.Pending(names) {
		pending[name] = true
	}

	if resumed {
		o.logger.Info("resuming rebuild", "pending", len(pending), "total", len(units))
	} else {
		o.logger.Info("starting rebuild", "units", len(units))
	}

	if o.opts.DryRun {
		return o.dryRun(units, pending, outcome), nil
	}

	stageFailed := false
	for _, stage := range parser.GroupByOrder(units) {
		var todo []parser.Unit
		for _, u := range stage {
			if pending[u.Name] {
				todo = append(todo, u)
			} else {
				outcome.Skipped++
				outcome.Units = append(outcome.Units, UnitOutcome{Name: u.Name, Status: "skipped"})
			}
		}
		if len(todo) == 0 {
			continue
		}
		if stageFailed && o.opts.FailFast {
			for _, u := range todo {
				outcome.Units = append(outcome.Units, UnitOutcome{Name: u.Name, Status: "skipped", Err: pool.ErrSkipped})
				outcome.Skipped++
			}
			continue
		}

		builtContext, err := o.builtContext(ctx, mgr)
		if err != nil {
			return outcome, err
		}

		if o.runStage(ctx, todo, builtContext, mgr, outcome) {
			stageFailed = true
		}
	}

	mgr.Flush()
	return outcome, nil
}

func (o *Orchestrator) dryRun(units []parser.Unit, pending map[string]bool, outcome *Outcome) *Outcome {
	for _, stage := range parser.GroupByOrder(units) {
		for _, u := range stage {
			if pending[u.Name] {
				o.logger.Info("would rebuild", "unit", u.Name, "stage", u.Order)
				outcome.Completed++
				outcome.Units = append(outcome.Units, UnitOutcome{Name: u.Name, Status: "done"})
			} else {
				o.logger.Info("already built", "unit", u.Name)
				outcome.Skipped++
				outcome.Units = append(outcome.Units, UnitOutcome{Name: u.Name, Status: "skipped"})
			}
		}
	}
	return outcome
}

// runStage rebuilds one stage's units in parallel. Returns true if any
// unit failed.
func (o *Orchestrator) runStage(ctx context.Context, units []parser.Unit, builtContext string, mgr *checkpoint.Manager, outcome *Outcome) bool {
	tasks := make([]pool.Task[[]string], len(units))
	for i, unit := range units {
		unit := unit
		tasks[i] = pool.Task[[]string]{
			ID: unit.Name,
			Run: func(ctx context.Context) ([]string, error) {
				return o.rebuildUnit(ctx, unit, builtContext)
			},
		}
	}

	results := pool.Run(ctx, tasks, pool.Options{
		Concurrency: o.opts.Concurrency,
		FailFast:    o.opts.FailFast,
	}, func(res pool.Result[[]string]) {
		switch {
		case errors.Is(res.Err, pool.ErrSkipped):
			o.logger.Warn("unit not attempted", "unit", res.ID)
		case res.Err != nil:
			mgr.MarkFailed(res.ID, res.Err.Error())
			o.logger.Error("unit failed", "unit", res.ID, "error", res.Err)
		default:
			mgr.MarkDone(res.ID, res.Value)
			o.logger.Info("unit rebuilt", "unit", res.ID, "files", len(res.Value))
		}
	})

	failed := false
	for _, res := range results {
		switch {
		case res.Err == nil:
			outcome.Completed++
			outcome.Units = append(outcome.Units, UnitOutcome{Name: res.ID, Status: "done", FilesWritten: res.Value})
		case errors.Is(res.Err, pool.ErrSkipped):
			outcome.Skipped++
			outcome.Units = append(outcome.Units, UnitOutcome{Name: res.ID, Status: "skipped", Err: res.Err})
		default:
			failed = true
			outcome.Failed++
			outcome.Units = append(outcome.Units, UnitOutcome{Name: res.ID, Status: "failed", Err: res.Err})
		}
	}
	return failed
}

func (o *Orchestrator) rebuildUnit(ctx context.Context, unit parser.Unit, builtContext string) ([]string, error) {
	prompt, err := o.loader.BuildRebuildPrompt(prompts.RebuildData{
		UnitName:     unit.Name,
		Spec:         unit.Spec,
		BuiltContext: builtContext,
	})
	if err != nil {
		return nil, err
	}

	resp, err := o.caller.Call(ctx, backend.Request{
		SystemPrompt: prompt.System,
		UserPrompt:   prompt.User,
		Model:        o.opts.Model,
		SessionID:    sessionIDFor(unit.Name),
		WorkingDir:   o.opts.OutputDir,
	})
	if err != nil {
		return nil, err
	}

	files, err := ParseFileBlocks(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", unit.Name, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("unit %s: response contained no file blocks", unit.Name)
	}

	written := make([]string, 0, len(files))
	for _, file := range files {
		path := filepath.Join(o.opts.OutputDir, file.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(file.Content), 0o644); err != nil {
			return nil, err
		}
		written = append(written, file.Path)
	}
	sort.Strings(written)
	return written, nil
}

func sessionIDFor(unitName string) string {
	return uuid.NewSHA1(sessionNamespace, []byte(unitName)).String()
}

// contextSection is one previously built file rendered into the prompt.
type contextSection struct {
	path    string
	content string
}

// contextExcludedExts are skipped when building the context: the context
// exists to carry declarations from earlier units forward, not prose or
// configuration.
var contextExcludedExts = map[string]bool{
	".md":       true,
	".markdown": true,
	".rst":      true,
	".txt":      true,
	".json":     true,
	".yaml":     true,
	".yml":      true,
	".toml":     true,
	".ini":      true,
}

func contextExcluded(rel string) bool {
	return contextExcludedExts[strings.ToLower(filepath.Ext(rel))]
}

// builtContext reads back the source files completed units wrote, oldest
// completions first, and folds them into one labeled context string under
// the budget. Ordering matters: truncation trims from the front, so it
// must shrink the oldest work before the most recent.
func (o *Orchestrator) builtContext(ctx context.Context, mgr *checkpoint.Manager) (string, error) {
	type doneUnit struct {
		at    time.Time
		files []string
	}
	var done []doneUnit
	for _, state := range mgr.Snapshot().Modules {
		if state.Status != checkpoint.StatusDone {
			continue
		}
		u := doneUnit{files: state.FilesWritten}
		if state.CompletedAt != nil {
			u.at = *state.CompletedAt
		}
		done = append(done, u)
	}
	sort.Slice(done, func(i, j int) bool { return done[i].at.Before(done[j].at) })

	var paths []string
	for _, u := range done {
		files := append([]string(nil), u.files...)
		sort.Strings(files)
		for _, rel := range files {
			if !contextExcluded(rel) {
				paths = append(paths, rel)
			}
		}
	}

	sections := make([]contextSection, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, rel := range paths {
		i, rel := i, rel
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(o.opts.OutputDir, rel))
			if err != nil {
				// A missing file means the tree drifted; drop it from
				// context rather than aborting the run.
				o.logger.Warn("built file unreadable", "file", rel, "error", err)
				return nil
			}
			sections[i] = contextSection{path: rel, content: string(data)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	kept := sections[:0]
	for _, s := range sections {
		if s.path != "" {
			kept = append(kept, s)
		}
	}
	return renderContext(kept, o.opts.ContextBudget), nil
}

// renderContext joins sections, trimming the oldest ones to headers plus
// their opening lines when the total would exceed the budget.
func renderContext(sections []contextSection, budget int) string {
	total := 0
	for _, s := range sections {
		total += len(s.content)
	}

	truncateBefore := 0
	if total > budget {
		// Keep the newer half verbatim; older files shrink to a preview.
		truncateBefore = len(sections) / 2
	}

	var b strings.Builder
	for i, s := range sections {
		content := s.content
		if i < truncateBefore {
			content = preview(content, 20) + "\n… (truncated)"
		}
		fmt.Fprintf(&b, "### %s\n\n```\n%s\n```\n\n", s.path, strings.TrimRight(content, "\n"))
	}
	return strings.TrimSpace(b.String())
}

func preview(content string, lines int) string {
	all := strings.Split(content, "\n")
	if len(all) <= lines {
		return strings.Join(all, "\n")
	}
	return strings.Join(all[:lines], "\n")
}

// wipeOutput removes generated files and the checkpoint so the rebuild
// starts clean.
func (o *Orchestrator) wipeOutput() error {
	if err := checkpoint.Remove(o.opts.OutputDir); err != nil {
		return fmt.Errorf("removing checkpoint: %w", err)
	}
	entries, err := os.ReadDir(o.opts.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(o.opts.OutputDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
