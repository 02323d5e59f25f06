package store

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/navai/interview-server/internal/domain"
)

const (
	writerShards    = 2
	writerQueueSize = 256
	writeTimeout    = 5 * time.Second
)

type writeOp int

const (
	opCreate writeOp = iota
	opExchange
	opFinish
	opSummary
)

func (op writeOp) String() string {
	switch op {
	case opCreate:
		return "create"
	case opExchange:
		return "exchange"
	case opFinish:
		return "finish"
	case opSummary:
		return "summary"
	default:
		return "unknown"
	}
}

type writeJob struct {
	op          writeOp
	interviewID string
	interview   *domain.Interview
	exchange    *domain.Exchange
	endedAt     time.Time
	autoEnded   bool
	summary     *domain.Summary
}

// AsyncWriter persists interview history off the session hot path.
// Jobs for the same interview are routed to the same shard, so writes
// for one interview apply in submission order; the session loop never
// blocks on the database.
type AsyncWriter struct {
	repo    Repository
	shards  []chan writeJob
	wg      sync.WaitGroup
	closed  atomic.Bool
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewAsyncWriter creates the writer and starts its shard workers.
func NewAsyncWriter(repo Repository, logger *slog.Logger) *AsyncWriter {
	if logger == nil {
		logger = slog.Default()
	}

	w := &AsyncWriter{
		repo:   repo,
		shards: make([]chan writeJob, writerShards),
		logger: logger,
	}

	for i := range w.shards {
		w.shards[i] = make(chan writeJob, writerQueueSize)
		w.wg.Add(1)
		go w.worker(w.shards[i])
	}

	return w
}

func (w *AsyncWriter) worker(jobs <-chan writeJob) {
	defer w.wg.Done()

	for job := range jobs {
		w.apply(job)
	}
}

func (w *AsyncWriter) apply(job writeJob) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch job.op {
	case opCreate:
		err = w.repo.CreateInterview(ctx, job.interview)
	case opExchange:
		err = w.repo.AppendExchange(ctx, job.interviewID, job.exchange)
	case opFinish:
		err = w.repo.FinishInterview(ctx, job.interviewID, job.endedAt, job.autoEnded)
	case opSummary:
		err = w.repo.SaveSummary(ctx, job.interviewID, job.summary)
	}

	if err != nil {
		w.logger.Error("[HISTORY] write failed",
			"op", job.op.String(),
			"interview_id", job.interviewID,
			"error", err)
	}
}

func (w *AsyncWriter) enqueue(job writeJob) {
	if w.closed.Load() {
		w.logger.Warn("[HISTORY] write after close dropped", "op", job.op.String(), "interview_id", job.interviewID)
		return
	}

	h := fnv.New32a()
	h.Write([]byte(job.interviewID))
	shard := w.shards[h.Sum32()%uint32(len(w.shards))]

	select {
	case shard <- job:
	default:
		w.dropped.Add(1)
		w.logger.Warn("[HISTORY] queue full, dropping write",
			"op", job.op.String(),
			"interview_id", job.interviewID)
	}
}

// RecordStart persists a new interview record.
func (w *AsyncWriter) RecordStart(iv *domain.Interview) {
	w.enqueue(writeJob{op: opCreate, interviewID: iv.ID, interview: iv})
}

// RecordExchange persists one answer/evaluation round.
func (w *AsyncWriter) RecordExchange(interviewID string, ex *domain.Exchange) {
	w.enqueue(writeJob{op: opExchange, interviewID: interviewID, exchange: ex})
}

// RecordFinish persists the interview end.
func (w *AsyncWriter) RecordFinish(interviewID string, endedAt time.Time, autoEnded bool) {
	w.enqueue(writeJob{op: opFinish, interviewID: interviewID, endedAt: endedAt, autoEnded: autoEnded})
}

// RecordSummary persists the end-of-interview report.
func (w *AsyncWriter) RecordSummary(interviewID string, summary *domain.Summary) {
	w.enqueue(writeJob{op: opSummary, interviewID: interviewID, summary: summary})
}

// Dropped reports how many writes were discarded due to full queues.
func (w *AsyncWriter) Dropped() int64 {
	return w.dropped.Load()
}

// Close drains pending writes and stops the workers.
func (w *AsyncWriter) Close() {
	if w.closed.Swap(true) {
		return
	}
	for _, shard := range w.shards {
		close(shard)
	}
	w.wg.Wait()
}
