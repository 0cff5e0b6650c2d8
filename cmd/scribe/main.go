package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debugFlag  bool
	traceFlag  bool

	rootCmd = &cobra.Command{
		Use:   "scribe",
		Short: "Scribe - AI codebase documentation and reconstruction",
		Long: `Scribe documents a codebase with an AI coding CLI and can rebuild one
from its specification. It summarizes every source file in parallel,
folds the summaries into directory overviews and project-level documents,
updates only what changed on later runs, and resumes interrupted
reconstruction runs from a checkpoint.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}
)

// exitError carries a process exit code through cobra's error path.
// Partial failures exit 1; configuration and fatal errors exit 2.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitPartial(err error) error { return &exitError{code: 1, err: err} }

func setupLogging() {
	level := slog.LevelWarn
	if debugFlag {
		level = slog.LevelInfo
	}
	if traceFlag {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&traceFlag, "trace", false, "enable trace logging (implies --debug)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(2)
	}
}
