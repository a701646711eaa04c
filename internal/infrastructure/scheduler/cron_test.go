package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{"0 6 * * *", "*/15 * * * 1-5", "@daily", "@every 1h"} {
		if err := ParseSchedule(expr); err != nil {
			t.Fatalf("ParseSchedule(%q): %v", expr, err)
		}
	}
	for _, expr := range []string{"", "61 * * * *", "0 0 6 * * *", "daily"} {
		if err := ParseSchedule(expr); err == nil {
			t.Fatalf("ParseSchedule(%q) accepted invalid expression", expr)
		}
	}
}

func TestNewCronSchedulerRejectsInvalidSpec(t *testing.T) {
	t.Parallel()

	if _, err := NewCronScheduler("nope", nil, nil); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestCronSchedulerRunsJob(t *testing.T) {
	t.Parallel()

	s, err := NewCronScheduler("@every 1s", time.UTC, nil)
	if err != nil {
		t.Fatalf("NewCronScheduler: %v", err)
	}

	var runs atomic.Int32
	fired := make(chan time.Time, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx, func(at time.Time) {
		runs.Add(1)
		select {
		case fired <- at:
		default:
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx, func(time.Time) {}); err != ErrAlreadyStarted {
		t.Fatalf("second Start err = %v, want ErrAlreadyStarted", err)
	}

	select {
	case at := <-fired:
		if at.Location() != time.UTC {
			t.Fatalf("trigger location = %v, want UTC", at.Location())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job never fired")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if runs.Load() < 1 {
		t.Fatal("expected at least one run")
	}
}

func TestCronSchedulerStopWaitsForRunningJob(t *testing.T) {
	t.Parallel()

	s, err := NewCronScheduler("@every 1s", time.UTC, nil)
	if err != nil {
		t.Fatalf("NewCronScheduler: %v", err)
	}

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var finished atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx, func(time.Time) {
		select {
		case entered <- struct{}{}:
		default:
			return
		}
		<-release
		finished.Store(true)
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("job never fired")
	}

	// Cancelling the start context triggers its own Stop; an explicit Stop must still wait.
	cancel()

	stopped := make(chan error, 1)
	go func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		stopped <- s.Stop(stopCtx)
	}()

	select {
	case err := <-stopped:
		t.Fatalf("Stop returned (err=%v) while the job was still running", err)
	case <-time.After(200 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the job finished")
	}
	if !finished.Load() {
		t.Fatal("Stop returned before the running job finished")
	}
}

func TestCronSchedulerStopTimesOut(t *testing.T) {
	t.Parallel()

	s, err := NewCronScheduler("@every 1s", time.UTC, nil)
	if err != nil {
		t.Fatalf("NewCronScheduler: %v", err)
	}

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)

	if err := s.Start(context.Background(), func(time.Time) {
		select {
		case entered <- struct{}{}:
		default:
			return
		}
		<-release
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("job never fired")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer stopCancel()
	if err := s.Stop(stopCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop err = %v, want deadline exceeded", err)
	}
}
