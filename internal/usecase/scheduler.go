package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// Runner executes one pipeline pass.
type Runner interface {
	Run(ctx context.Context) (domain.RunReport, error)
}

// Scheduler wires the cron driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline Runner
	logger   *slog.Logger
}

// NewScheduler returns a helper to start and stop recurring runs.
func NewScheduler(driver ports.Scheduler, pipeline Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger.With("component", "schedule")}
}

// Start registers the pipeline with the driver. Each trigger runs with ctx, so
// cancelling ctx stops new articles in the current run and ends the schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if ctx.Err() != nil {
			return
		}
		report, err := s.pipeline.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("scheduled run failed", "trigger", trigger, "error", err)
			return
		}
		s.logger.Info("scheduled run done", "trigger", trigger, "run_id", report.RunID, "recorded", report.Recorded())
	}

	return s.driver.Start(ctx, job)
}

// Stop tears down the driver, which waits for a run in progress until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
