package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/scribeforge/scribe/internal/backend"
	"github.com/scribeforge/scribe/internal/config"
	"github.com/scribeforge/scribe/internal/notify"
	"github.com/scribeforge/scribe/internal/prompts"
	"github.com/scribeforge/scribe/internal/rebuild"
	"github.com/scribeforge/scribe/internal/runner"
	"github.com/scribeforge/scribe/internal/runstore"
	"github.com/scribeforge/scribe/internal/schedule"
	"github.com/scribeforge/scribe/internal/telemetry"
	"github.com/scribeforge/scribe/internal/watcher"
)

var (
	outputFlag      string
	concurrencyFlag int
	failFastFlag    bool
	dryRunFlag      bool
	forceFlag       bool
	watchFlag       bool
	backendFlag     string
	modelFlag       string
	specDirFlag     string
	statusLimit     int
	logsLimit       int
	scheduleList    bool
	scheduleFile    string
)

func init() {
	generateCmd := &cobra.Command{
		Use:   "generate [PATH]",
		Short: "Document a codebase from scratch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocCommand(cmd.Context(), runner.ModeGenerate, args, modelFlag)
		},
	}
	addPipelineFlags(generateCmd)
	rootCmd.AddCommand(generateCmd)

	updateCmd := &cobra.Command{
		Use:   "update [PATH]",
		Short: "Re-document only files that changed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if watchFlag {
				return runWatch(cmd.Context(), args)
			}
			return runDocCommand(cmd.Context(), runner.ModeUpdate, args, modelFlag)
		},
	}
	addPipelineFlags(updateCmd)
	updateCmd.Flags().BoolVar(&watchFlag, "watch", false, "keep running and update on file changes")
	rootCmd.AddCommand(updateCmd)

	rebuildCmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Reconstruct a codebase from its specification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(cmd.Context(), modelFlag)
		},
	}
	rebuildCmd.Flags().StringVar(&specDirFlag, "spec-dir", "", "directory of specification documents")
	rebuildCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "output directory")
	rebuildCmd.Flags().IntVar(&concurrencyFlag, "concurrency", 0, "parallel units per stage")
	rebuildCmd.Flags().BoolVar(&failFastFlag, "fail-fast", false, "stop scheduling new units after a failure")
	rebuildCmd.Flags().BoolVar(&forceFlag, "force", false, "discard the checkpoint and start over")
	rebuildCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "show the plan without calling the provider")
	rebuildCmd.Flags().StringVar(&backendFlag, "backend", "", "AI backend (claude, opencode, gemini, auto)")
	rebuildCmd.Flags().StringVar(&modelFlag, "model", "", "model override")
	rootCmd.AddCommand(rebuildCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of runs to show")
	rootCmd.AddCommand(statusCmd)

	logsCmd := &cobra.Command{
		Use:   "logs [RUN_ID]",
		Short: "Show run logs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(args)
		},
	}
	logsCmd.Flags().IntVar(&logsLimit, "limit", 5, "number of run logs to list")
	rootCmd.AddCommand(logsCmd)

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run documentation jobs on a cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd.Context())
		},
	}
	scheduleCmd.Flags().BoolVar(&scheduleList, "list", false, "list configured jobs and exit")
	scheduleCmd.Flags().StringVar(&scheduleFile, "file", "", "schedule file path")
	rootCmd.AddCommand(scheduleCmd)
}

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "output directory")
	cmd.Flags().IntVar(&concurrencyFlag, "concurrency", 0, "parallel file workers")
	cmd.Flags().BoolVar(&failFastFlag, "fail-fast", false, "stop scheduling new files after a failure")
	cmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "show the plan without calling the provider")
	cmd.Flags().StringVar(&backendFlag, "backend", "", "AI backend (claude, opencode, gemini, auto)")
	cmd.Flags().StringVar(&modelFlag, "model", "", "model override")
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithLocalFallback(configPath)
}

// buildClient selects a backend and wires the provider client.
func buildClient(cfg *config.Config, recorder *telemetry.Recorder) (*backend.Client, error) {
	name := backendFlag
	if name == "" {
		name = cfg.Provider.Backend
	}
	b, err := backend.DefaultRegistry().Select(name)
	if err != nil {
		return nil, err
	}
	return backend.NewClient(b, backend.ClientOptions{
		Timeout:    cfg.Provider.Timeout,
		MaxRetries: cfg.Provider.MaxRetries,
		Recorder:   recorder,
	}), nil
}

// resolveModel prefers an explicit override (flag or job setting) over
// the configured default.
func resolveModel(cfg *config.Config, override string) string {
	if override != "" {
		return override
	}
	return cfg.Provider.Model
}

func resolveConcurrency(cfg *config.Config) int {
	if concurrencyFlag > 0 {
		return concurrencyFlag
	}
	return cfg.General.Concurrency
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runDocCommand(parent context.Context, mode runner.Mode, args []string, model string) error {
	ctx, cancel := signalContext(parent)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	root := cfg.General.ProjectRoot
	if len(args) > 0 {
		root = args[0]
	}
	outputDir := cfg.General.OutputDir
	if outputFlag != "" {
		outputDir = outputFlag
	}

	recorder := telemetry.NewRecorder()
	client, err := buildClient(cfg, recorder)
	if err != nil {
		return err
	}
	slog.Info("using backend", "backend", client.Backend().Name())

	r := runner.New(client, prompts.DefaultLoader(root), runner.Options{
		ProjectRoot:    root,
		OutputDir:      outputDir,
		Mode:           mode,
		Concurrency:    resolveConcurrency(cfg),
		FailFast:       failFastFlag,
		DryRun:         dryRunFlag,
		Model:          resolveModel(cfg, model),
		IgnorePatterns: cfg.General.IgnorePatterns,
		Extensions:     cfg.General.Extensions,
	})

	outcome, err := r.Run(ctx)
	if err != nil {
		return err
	}

	if dryRunFlag {
		fmt.Println(renderDryRun(string(mode), outcome.Processed, outcome.Skipped))
		return nil
	}

	runLog := recorder.Finalize()
	finishRun(cfg, string(mode), client.Backend().Name(), resolveModel(cfg, model), runLog, outcome.Processed, outcome.Failed, outcome.Skipped, taskResults(outcome))

	fmt.Println(renderSummary(string(mode), outcome.Processed, outcome.Failed, outcome.Skipped, runLog.Summary))

	if outcome.Failed > 0 {
		return exitPartial(fmt.Errorf("%d file(s) failed", outcome.Failed))
	}
	return nil
}

func taskResults(outcome *runner.Outcome) []*runstore.TaskResult {
	results := make([]*runstore.TaskResult, 0, len(outcome.Tasks))
	for _, task := range outcome.Tasks {
		res := &runstore.TaskResult{
			Task:       task.Path,
			Status:     string(task.Status),
			DurationMS: task.Duration.Milliseconds(),
		}
		if task.Err != nil {
			res.Error = task.Err.Error()
		}
		results = append(results, res)
	}
	return results
}

// finishRun persists the run log and history row and sends notifications.
// All of it is best-effort; a full disk must not fail the run itself.
func finishRun(cfg *config.Config, command, backendName, model string, runLog *telemetry.RunLog, processed, failed, skipped int, results []*runstore.TaskResult) {
	if path, err := telemetry.WriteRunLog(cfg.General.LogsDir, runLog, cfg.General.LogRetention); err != nil {
		slog.Warn("could not write run log", "error", err)
	} else {
		slog.Info("run log written", "path", path)
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		slog.Warn("could not open run history", "error", err)
	} else {
		defer store.Close()
		run := &runstore.Run{
			ID:         runLog.RunID,
			Command:    command,
			Backend:    backendName,
			Model:      model,
			Status:     runstore.StatusComplete,
			StartedAt:  runLog.StartTime,
			FinishedAt: runLog.EndTime,
			Processed:  processed,
			Failed:     failed,
			Skipped:    skipped,
			TokensIn:   int64(runLog.Summary.TokensIn),
			TokensOut:  int64(runLog.Summary.TokensOut),
			CostUSD:    runLog.Summary.CostUSD,
		}
		if failed > 0 {
			run.Status = runstore.StatusFailed
		}
		if err := store.SaveRun(run); err != nil {
			slog.Warn("could not save run", "error", err)
		} else if err := store.FinishRun(run); err != nil {
			slog.Warn("could not finish run", "error", err)
		}
		for _, res := range results {
			res.RunID = runLog.RunID
			if err := store.SaveTaskResult(res); err != nil {
				slog.Warn("could not save task result", "error", err)
				break
			}
		}
	}

	notifier := notify.NewMultiNotifier(
		notify.NewDesktopNotifier(cfg.Notifications.Desktop),
		notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
	)
	if err := notifier.Send(notify.FromRunSummary(notify.RunSummary{
		Command:   command,
		RunID:     runLog.RunID,
		Processed: processed,
		Failed:    failed,
		Skipped:   skipped,
		CostUSD:   runLog.Summary.CostUSD,
	})); err != nil {
		slog.Warn("notification failed", "error", err)
	}
}

func runWatch(parent context.Context, args []string) error {
	ctx, cancel := signalContext(parent)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	root := cfg.General.ProjectRoot
	if len(args) > 0 {
		root = args[0]
	}
	outputDir := cfg.General.OutputDir
	if outputFlag != "" {
		outputDir = outputFlag
	}

	// One full pass before settling into watch mode.
	if err := runDocCommand(ctx, runner.ModeUpdate, args, modelFlag); err != nil {
		slog.Warn("initial update pass had failures", "error", err)
	}

	runs := make(chan []string, 1)
	w, err := watcher.New(root, outputDir, func(changed []string) {
		select {
		case runs <- changed:
		default: // A pass is already queued; it will pick up these files too.
		}
	})
	if err != nil {
		return err
	}
	defer w.Stop()
	w.Start(ctx)

	fmt.Printf("Watching %s for changes (Ctrl-C to stop)\n", root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case changed := <-runs:
			slog.Info("changes detected", "files", len(changed))
			if err := runDocCommand(ctx, runner.ModeUpdate, args, modelFlag); err != nil {
				slog.Warn("update pass had failures", "error", err)
			}
		}
	}
}

func runRebuild(parent context.Context, model string) error {
	ctx, cancel := signalContext(parent)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	specDir := cfg.Rebuild.SpecDir
	if specDirFlag != "" {
		specDir = specDirFlag
	}
	outputDir := cfg.Rebuild.OutputDir
	if outputFlag != "" {
		outputDir = outputFlag
	}

	recorder := telemetry.NewRecorder()
	client, err := buildClient(cfg, recorder)
	if err != nil {
		return err
	}
	slog.Info("using backend", "backend", client.Backend().Name())

	o := rebuild.New(client, prompts.DefaultLoader(""), rebuild.Options{
		SpecDir:       specDir,
		OutputDir:     outputDir,
		ContextBudget: cfg.Rebuild.ContextBudget,
		Concurrency:   resolveConcurrency(cfg),
		FailFast:      failFastFlag,
		Force:         forceFlag,
		DryRun:        dryRunFlag,
		Model:         resolveModel(cfg, model),
	})

	outcome, err := o.Run(ctx)
	if err != nil {
		return err
	}

	if dryRunFlag {
		fmt.Println(renderDryRun("rebuild", outcome.Completed, outcome.Skipped))
		return nil
	}

	results := make([]*runstore.TaskResult, 0, len(outcome.Units))
	for _, unit := range outcome.Units {
		res := &runstore.TaskResult{Task: unit.Name, Status: unit.Status}
		if unit.Err != nil {
			res.Error = unit.Err.Error()
		}
		results = append(results, res)
	}

	runLog := recorder.Finalize()
	finishRun(cfg, "rebuild", client.Backend().Name(), resolveModel(cfg, model), runLog, outcome.Completed, outcome.Failed, outcome.Skipped, results)

	fmt.Println(renderSummary("rebuild", outcome.Completed, outcome.Failed, outcome.Skipped, runLog.Summary))

	if outcome.Failed > 0 {
		return exitPartial(fmt.Errorf("%d unit(s) failed", outcome.Failed))
	}
	return nil
}

func runStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRecentRuns(statusLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tCOMMAND\tSTATUS\tPROCESSED\tFAILED\tSKIPPED\tCOST")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t$%.4f\n",
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Command,
			renderStatus(run.Status),
			run.Processed,
			run.Failed,
			run.Skipped,
			run.CostUSD,
		)
	}
	return w.Flush()
}

func runLogs(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logs, err := telemetry.ReadRunLogs(cfg.General.LogsDir, logsLimit)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		fmt.Println("No run logs found")
		return nil
	}

	if len(args) == 1 {
		for _, l := range logs {
			if l.RunID == args[0] {
				return printRunLogDetail(l)
			}
		}
		return fmt.Errorf("run %s not found in the last %d logs", args[0], logsLimit)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tCALLS\tFAILURES\tTOKENS IN/OUT\tCOST")
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d/%d\t$%.4f\n",
			l.RunID,
			l.StartTime.Local().Format("2006-01-02 15:04"),
			l.Summary.Calls,
			l.Summary.Failures,
			l.Summary.TokensIn,
			l.Summary.TokensOut,
			l.Summary.CostUSD,
		)
	}
	return w.Flush()
}

func printRunLogDetail(l *telemetry.RunLog) error {
	fmt.Printf("Run %s (%s, %s)\n\n", l.RunID, l.StartTime.Local().Format(time.RFC822), l.EndTime.Sub(l.StartTime).Round(time.Second))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tBACKEND\tMODEL\tTOKENS IN/OUT\tLATENCY\tERROR")
	for _, e := range l.Entries {
		errMsg := e.Error
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			e.Timestamp.Local().Format("15:04:05"),
			e.Backend,
			e.Model,
			e.TokensIn,
			e.TokensOut,
			e.Latency.Round(time.Millisecond),
			errMsg,
		)
	}
	return w.Flush()
}

func runSchedule(parent context.Context) error {
	_, err := loadConfig()
	if err != nil {
		return err
	}

	path := scheduleFile
	if path == "" {
		path = config.SchedulePath()
	}
	schedCfg, err := schedule.LoadScheduleConfig(path)
	if err != nil {
		return err
	}
	if len(schedCfg.Jobs) == 0 {
		return fmt.Errorf("no jobs configured in %s", path)
	}

	sched, err := schedule.NewScheduler(schedCfg.Jobs, slog.Default())
	if err != nil {
		return err
	}

	if scheduleList {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "JOB\tCOMMAND\tCRON\tNEXT RUN")
		for _, job := range sched.Jobs() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", job.Name, job.Command, job.Cron, sched.NextRun(job.Name).Local().Format(time.RFC822))
		}
		return w.Flush()
	}

	ctx, cancel := signalContext(parent)
	defer cancel()

	fmt.Printf("Scheduler running with %d job(s) (Ctrl-C to stop)\n", len(schedCfg.Jobs))
	return sched.Run(ctx, func(jobCtx context.Context, job schedule.JobConfig) error {
		switch job.Command {
		case schedule.CommandGenerate:
			return runDocCommand(jobCtx, runner.ModeGenerate, nil, job.Model)
		case schedule.CommandRebuild:
			return runRebuild(jobCtx, job.Model)
		default:
			return runDocCommand(jobCtx, runner.ModeUpdate, nil, job.Model)
		}
	})
}
