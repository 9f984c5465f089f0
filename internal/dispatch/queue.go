// Package dispatch provides the bounded in-process queue between webhook
// ingestion and enrichment. A single consumer goroutine drains it, so jobs
// run strictly one at a time in arrival order.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"crm-insights/internal/common/logging"
)

// Job is one unit of enrichment work.
type Job func(ctx context.Context)

// Queue is a bounded FIFO with one consumer. Enqueue never blocks the
// producer; when the queue is full the job is dropped and counted.
type Queue struct {
	jobs    chan Job
	logger  logging.Logger
	dropped atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewQueue creates a queue holding at most capacity pending jobs.
func NewQueue(capacity int, logger logging.Logger) *Queue {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Queue{
		jobs:   make(chan Job, capacity),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start launches the consumer goroutine. Jobs run under a context that is
// cancelled by Close, and a panicking job is contained so the consumer
// keeps draining.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		q.cancel = cancel
		q.started.Store(true)
		go q.consume(ctx)
	})
}

func (q *Queue) consume(ctx context.Context) {
	defer close(q.done)
	for job := range q.jobs {
		q.run(ctx, job)
	}
}

func (q *Queue) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Job panicked", nil,
				logging.Field{Key: "panic", Value: r},
			)
		}
	}()
	job(ctx)
}

// Enqueue appends a job, returning false when the queue is full or closed.
// A full queue sheds the newest work; the caller has already acknowledged
// the webhook, so dropping here is visible only through the log and counter.
func (q *Queue) Enqueue(job Job) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case q.jobs <- job:
		return true
	default:
		dropped := q.dropped.Add(1)
		q.logger.Warn("Dispatch queue full, dropping job",
			logging.Field{Key: "dropped_total", Value: dropped},
			logging.Field{Key: "capacity", Value: cap(q.jobs)},
		)
		return false
	}
}

// Dropped returns how many jobs were shed since startup.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Pending returns the number of jobs waiting in the queue.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Close stops accepting jobs and waits for the consumer to drain what
// remains, then releases the job context. Waiting is skipped when the
// consumer was never started, since nothing would ever close done.
func (q *Queue) Close() {
	q.stopOnce.Do(func() {
		close(q.jobs)
		if q.started.Load() {
			<-q.done
		}
		if q.cancel != nil {
			q.cancel()
		}
	})
}
