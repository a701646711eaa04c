// Package feedback delivers recorded-article results to storage without ever blocking the pipeline.
package feedback

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// NopSink discards every record.
type NopSink struct{}

var _ ports.FeedbackSink = NopSink{}

// Record does nothing.
func (NopSink) Record(context.Context, domain.Feedback) {}

// AsyncSink buffers feedback and writes it from a single background goroutine.
// When the buffer is full the record is dropped and logged.
type AsyncSink struct {
	repo         ports.FeedbackRepository
	logger       *slog.Logger
	queue        chan domain.Feedback
	done         chan struct{}
	closeOnce    sync.Once
	mu           sync.RWMutex
	closed       bool
	writeTimeout time.Duration

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

var _ ports.FeedbackSink = (*AsyncSink)(nil)

// NewAsyncSink starts the writer goroutine. Call Close to drain and stop it.
func NewAsyncSink(repo ports.FeedbackRepository, buffer int, logger *slog.Logger) *AsyncSink {
	if buffer < 1 {
		buffer = 1
	}
	s := &AsyncSink{
		repo:         repo,
		logger:       logger,
		queue:        make(chan domain.Feedback, buffer),
		done:         make(chan struct{}),
		writeTimeout: 10 * time.Second,
	}
	go s.loop()
	return s
}

// Record enqueues fb without blocking.
func (s *AsyncSink) Record(_ context.Context, fb domain.Feedback) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.drop(fb, "sink closed")
		return
	}

	select {
	case s.queue <- fb:
	default:
		s.drop(fb, "buffer full")
	}
}

// Close stops accepting records, writes everything still buffered and waits for the writer.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports written, dropped and failed record counts.
func (s *AsyncSink) Stats() (written, dropped, failed int64) {
	return s.written.Load(), s.dropped.Load(), s.failed.Load()
}

func (s *AsyncSink) loop() {
	defer close(s.done)
	for fb := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		err := s.repo.SaveFeedback(ctx, fb)
		cancel()
		if err != nil {
			s.failed.Add(1)
			s.log(slog.LevelError, "persist feedback", "link", fb.Link, "run_id", fb.RunID, "error", err)
			continue
		}
		s.written.Add(1)
	}
}

func (s *AsyncSink) drop(fb domain.Feedback, reason string) {
	s.dropped.Add(1)
	s.log(slog.LevelWarn, "feedback dropped", "link", fb.Link, "run_id", fb.RunID, "reason", reason, "error", domain.ErrFeedbackDropped)
}

func (s *AsyncSink) log(level slog.Level, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Log(context.Background(), level, msg, args...)
	}
}
