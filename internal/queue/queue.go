package queue

import (
	"context"
	"errors"
	"time"

	"github.com/amaumene/bridgarr/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrQueueFull is returned when the local backlog cannot take another job
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueClosed is returned when enqueueing after Stop
	ErrQueueClosed = errors.New("job queue is closed")
)

// Job is one acquisition request, identified by the id stored in the media claim
type Job struct {
	ID         string           `json:"id"`
	MediaID    uint64           `json:"media_id"`
	ExternalID int64            `json:"external_id"`
	Kind       models.MediaKind `json:"kind"`
	Season     *int             `json:"season,omitempty"`
	Episodes   []int            `json:"episodes,omitempty"`
	Requester  string           `json:"requester,omitempty"`
	Attempt    int              `json:"attempt"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
}

// NewJobID returns a fresh job identifier
func NewJobID() string {
	return uuid.NewString()
}

// Handler runs one job. Errors are already recorded on the media item by the
// time the handler returns; the queue only logs them.
type Handler func(ctx context.Context, job *Job) error

// Queue hands acquisition jobs to background workers
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	Start(ctx context.Context, handler Handler) error
	Stop()
}
