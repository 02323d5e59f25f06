package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/navai/interview-server/internal/domain"
)

// recordingRepo captures calls for async writer tests.
type recordingRepo struct {
	mu    sync.Mutex
	calls []string
	block chan struct{} // when non-nil, AppendExchange waits on it
}

func (r *recordingRepo) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recordingRepo) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *recordingRepo) CreateInterview(_ context.Context, iv *domain.Interview) error {
	r.record("create:" + iv.ID)
	return nil
}

func (r *recordingRepo) AppendExchange(_ context.Context, id string, ex *domain.Exchange) error {
	if r.block != nil {
		<-r.block
	}
	r.record("exchange:" + id + ":" + ex.Answer)
	return nil
}

func (r *recordingRepo) FinishInterview(_ context.Context, id string, _ time.Time, _ bool) error {
	r.record("finish:" + id)
	return nil
}

func (r *recordingRepo) SaveSummary(_ context.Context, id string, _ *domain.Summary) error {
	r.record("summary:" + id)
	return nil
}

func (r *recordingRepo) GetInterview(context.Context, string) (*domain.Interview, error) {
	return nil, nil
}

func (r *recordingRepo) ListInterviews(context.Context, string, int) ([]*domain.Interview, error) {
	return nil, nil
}

func (r *recordingRepo) DeleteInterview(context.Context, string) error { return nil }

func (r *recordingRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

func (r *recordingRepo) Ping(context.Context) error { return nil }

func (r *recordingRepo) Close() error { return nil }

func TestAsyncWriterAppliesInOrder(t *testing.T) {
	repo := &recordingRepo{}
	w := NewAsyncWriter(repo, nil)

	iv := &domain.Interview{ID: "iv-1", StartedAt: time.Now()}
	w.RecordStart(iv)
	w.RecordExchange("iv-1", &domain.Exchange{Seq: 0, Answer: "first"})
	w.RecordExchange("iv-1", &domain.Exchange{Seq: 1, Answer: "second"})
	w.RecordFinish("iv-1", time.Now(), false)
	w.RecordSummary("iv-1", &domain.Summary{OverallScore: 70})

	w.Close()

	want := []string{
		"create:iv-1",
		"exchange:iv-1:first",
		"exchange:iv-1:second",
		"finish:iv-1",
		"summary:iv-1",
	}
	got := repo.snapshot()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestAsyncWriterDropsWhenFull(t *testing.T) {
	repo := &recordingRepo{block: make(chan struct{})}
	w := NewAsyncWriter(repo, nil)

	// All jobs target one interview and therefore one shard; overfill it.
	total := writerQueueSize + 64
	for i := 0; i < total; i++ {
		w.RecordExchange("iv-1", &domain.Exchange{Seq: i, Answer: "x"})
	}

	if w.Dropped() == 0 {
		t.Error("expected dropped writes once queues were full")
	}

	close(repo.block)
	w.Close()
}

func TestAsyncWriterCloseIsIdempotent(t *testing.T) {
	w := NewAsyncWriter(&recordingRepo{}, nil)
	w.Close()
	w.Close()

	// Writes after close are discarded, not a panic.
	w.RecordFinish("iv-1", time.Now(), false)
}
