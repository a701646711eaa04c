package feedback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memoryRepo struct {
	mu      sync.Mutex
	saved   []domain.Feedback
	failFor string
	gate    chan struct{}
}

func (m *memoryRepo) AlreadyRecorded(context.Context, []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (m *memoryRepo) SaveFeedback(_ context.Context, fb domain.Feedback) error {
	if m.gate != nil {
		<-m.gate
	}
	if fb.Link == m.failFor {
		return errors.New("disk full")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, fb)
	return nil
}

func TestAsyncSinkWritesAndDrains(t *testing.T) {
	repo := &memoryRepo{failFor: "https://bad"}
	sink := NewAsyncSink(repo, 8, logging.Discard())

	ctx := context.Background()
	sink.Record(ctx, domain.Feedback{Link: "https://a", Revenue: 1})
	sink.Record(ctx, domain.Feedback{Link: "https://bad", Revenue: 2})
	sink.Record(ctx, domain.Feedback{Link: "https://b", Revenue: 3})

	if err := sink.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	written, dropped, failed := sink.Stats()
	if written != 2 || dropped != 0 || failed != 1 {
		t.Fatalf("unexpected stats: written=%d dropped=%d failed=%d", written, dropped, failed)
	}
	if len(repo.saved) != 2 || repo.saved[0].Link != "https://a" || repo.saved[1].Link != "https://b" {
		t.Fatalf("unexpected saved records: %+v", repo.saved)
	}

	sink.Record(ctx, domain.Feedback{Link: "https://late"})
	if _, dropped, _ := sink.Stats(); dropped != 1 {
		t.Fatalf("record after close should be dropped, dropped=%d", dropped)
	}
	if err := sink.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestAsyncSinkNeverBlocks(t *testing.T) {
	gate := make(chan struct{})
	repo := &memoryRepo{gate: gate}
	sink := NewAsyncSink(repo, 1, logging.Discard())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			sink.Record(context.Background(), domain.Feedback{Link: "https://x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a stalled repository")
	}

	close(gate)
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	written, dropped, _ := sink.Stats()
	if written+dropped != 10 || dropped < 8 {
		t.Fatalf("unexpected stats: written=%d dropped=%d", written, dropped)
	}
}

func TestNopSink(t *testing.T) {
	NopSink{}.Record(context.Background(), domain.Feedback{Link: "x"})
}
