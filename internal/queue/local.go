package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// LocalQueue runs jobs in-process on a bounded worker pool
type LocalQueue struct {
	jobs        chan *Job
	concurrency int
	logger      *logrus.Logger

	mu      sync.Mutex
	closed  bool
	started bool
	done    chan struct{}
}

// NewLocalQueue creates a queue with a backlog of size jobs and at most
// concurrency jobs running at once
func NewLocalQueue(size, concurrency int, logger *logrus.Logger) *LocalQueue {
	if size < 1 {
		size = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &LocalQueue{
		jobs:        make(chan *Job, size),
		concurrency: concurrency,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Enqueue adds a job to the backlog without blocking
func (q *LocalQueue) Enqueue(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%w (%d pending)", ErrQueueFull, len(q.jobs))
	}
}

// Start consumes the backlog until Stop is called
func (q *LocalQueue) Start(ctx context.Context, handler Handler) error {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return fmt.Errorf("local queue already started or closed")
	}
	q.started = true
	q.mu.Unlock()

	p := pool.New().WithMaxGoroutines(q.concurrency)

	go func() {
		defer close(q.done)
		for job := range q.jobs {
			job := job
			p.Go(func() {
				if err := handler(ctx, job); err != nil {
					q.logger.WithError(err).WithFields(logrus.Fields{
						"job_id":   job.ID,
						"media_id": job.MediaID,
					}).Warn("Acquisition job failed")
				}
			})
		}
		p.Wait()
	}()

	q.logger.WithField("concurrency", q.concurrency).Info("Local job queue started")
	return nil
}

// Stop rejects new jobs and waits for the backlog to drain
func (q *LocalQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	started := q.started
	q.mu.Unlock()

	if started {
		<-q.done
	}
}

// Pending returns the number of jobs waiting for a worker
func (q *LocalQueue) Pending() int {
	return len(q.jobs)
}
