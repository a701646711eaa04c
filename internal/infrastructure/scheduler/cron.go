package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ContentPipeline/internal/ports"
)

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Standard 5-field expressions plus descriptors such as @daily and @every 1h.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule reports whether expr is a valid schedule.
func ParseSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return nil
}

// CronScheduler runs a job on a cron expression. Overlapping triggers are skipped
// while the previous run is still in progress.
type CronScheduler struct {
	spec     string
	location *time.Location
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
	// stopped is done once the last started cron has no running jobs.
	stopped context.Context
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler validates spec and binds it to loc. A nil loc means UTC.
func NewCronScheduler(spec string, loc *time.Location, logger *slog.Logger) (*CronScheduler, error) {
	if err := ParseSchedule(spec); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CronScheduler{
		spec:     spec,
		location: loc,
		logger:   logger.With("component", "scheduler"),
	}, nil
}

// Start registers job and begins ticking. The scheduler stops on its own when ctx is done.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return ErrAlreadyStarted
	}

	log := cronLogger{c.logger}
	cr := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(c.location),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	if _, err := cr.AddFunc(c.spec, func() {
		job(time.Now().In(c.location))
	}); err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}

	cr.Start()
	c.cron = cr
	c.stopped = nil
	c.logger.Info("scheduler started", "cron", c.spec, "timezone", c.location.String(), "next", cr.Entries()[0].Next)

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.WithoutCancel(ctx))
	}()

	return nil
}

// Stop halts the scheduler and waits for a running job until ctx expires. Every caller,
// including the one triggered by the Start context, waits on the same running job.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.cron != nil {
		c.stopped = c.cron.Stop()
		c.cron = nil
	}
	stopped := c.stopped
	c.mu.Unlock()

	if stopped == nil {
		return nil
	}

	select {
	case <-stopped.Done():
		c.logger.Debug("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running job: %w", ctx.Err())
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
