package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// TaskAcquire is the asynq task type carrying one Job
const TaskAcquire = "acquisition:run"

// AsynqQueue distributes jobs through Redis so several replicas can share work
type AsynqQueue struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *logrus.Logger
}

// NewAsynqQueue connects to the Redis instance at redisAddr
func NewAsynqQueue(redisAddr string, concurrency int, logger *logrus.Logger) *AsynqQueue {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	return &AsynqQueue{
		client: asynq.NewClient(redisOpt),
		server: asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: concurrency,
			Logger:      logger,
		}),
		mux:    asynq.NewServeMux(),
		logger: logger,
	}
}

// Enqueue pushes the job; the task id is the job id so a job is never queued twice
func (q *AsynqQueue) Enqueue(ctx context.Context, job *Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	task, err := newAcquireTask(job)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Start registers the handler and starts the worker server
func (q *AsynqQueue) Start(ctx context.Context, handler Handler) error {
	q.mux.HandleFunc(TaskAcquire, handleAcquireTask(handler))
	if err := q.server.Start(q.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	q.logger.Info("Redis job queue started")
	return nil
}

// Stop waits for running jobs and closes the Redis connections
func (q *AsynqQueue) Stop() {
	q.server.Shutdown()
	if err := q.client.Close(); err != nil {
		q.logger.WithError(err).Warn("Failed to close asynq client")
	}
}

func newAcquireTask(job *Job) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	// Retries happen inside the job; a failed job waits for a new request.
	return asynq.NewTask(TaskAcquire, data, asynq.TaskID(job.ID), asynq.MaxRetry(0)), nil
}

func handleAcquireTask(handler Handler) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var job Job
		if err := json.Unmarshal(task.Payload(), &job); err != nil {
			return fmt.Errorf("unmarshal job: %w: %w", err, asynq.SkipRetry)
		}
		return handler(ctx, &job)
	}
}
