package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ContentPipeline/internal/app"
	"ContentPipeline/internal/config"
	"ContentPipeline/internal/logging"
)

const closeTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

// reportedError marks an error that has already been logged.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }

func (e reportedError) Unwrap() error { return e.err }

type options struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "contentpipeline",
		Short:         "Turn scanned articles into monetized multi-channel content",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $CONTENT_PIPELINE_CONFIG)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Process every configured source once",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, opts, func(ctx context.Context, a *app.Application, logger *slog.Logger) error {
					report, err := a.Run(ctx)
					if err != nil {
						// Interrupted runs still report what completed.
						logger.Warn("run interrupted", "run_id", report.RunID, "error", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "run %s: recorded=%d failed=%d skipped=%d cancelled=%d revenue=%.2f\n",
						report.RunID, report.Recorded(), report.Failed(), report.Skipped, report.Cancelled, report.TotalRevenue())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Load the configuration and build every component",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, opts, func(context.Context, *app.Application, *slog.Logger) error {
					fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "schedule",
			Short: "Run on the configured cron expression until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, opts, func(ctx context.Context, a *app.Application, _ *slog.Logger) error {
					return a.Schedule(ctx)
				})
			},
		},
	)

	return root
}

// withApp loads config, builds the application, runs fn and drains feedback afterwards.
func withApp(cmd *cobra.Command, opts *options, fn func(context.Context, *app.Application, *slog.Logger) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		logging.NewWithWriter(cmd.ErrOrStderr(), "info", "text").Error("load configuration", "error", err)
		return reportedError{err}
	}
	level := cfg.Logging.Level
	if opts.debug {
		level = "debug"
	}
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), level, cfg.Logging.Format)

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return reportedError{err}
	}

	runErr := fn(ctx, a, logger)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("command failed", "error", runErr)
		return reportedError{runErr}
	}
	return nil
}
