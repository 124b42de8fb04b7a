// Package queue provides a durable job queue for content analysis, backed
// by the jobs table. Jobs survive restarts; delivery is at least once.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"studypal-ai/internal/contextutil"
	"studypal-ai/internal/storage"
)

// ErrJobInFlight is returned when a content item already has a queued or
// running analysis job.
var ErrJobInFlight = errors.New("analysis job already in flight for content")

// Stats summarizes queue state by job status.
type Stats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Queue enqueues analysis jobs and signals workers when work arrives.
type Queue struct {
	jobs storage.JobStore
	wake chan struct{}
}

// New creates a queue over the given job store.
func New(jobs storage.JobStore) *Queue {
	return &Queue{
		jobs: jobs,
		wake: make(chan struct{}, 1),
	}
}

// Enqueue creates a queued job for the content item. At most one job per
// content item may be queued or running at a time; a second enqueue returns
// ErrJobInFlight.
func (q *Queue) Enqueue(ctx context.Context, contentID string) (*storage.JobRecord, error) {
	logger := contextutil.LoggerFromContext(ctx)

	now := time.Now().UTC()
	job := &storage.JobRecord{
		ID:        uuid.New().String(),
		ContentID: contentID,
		Status:    storage.JobQueued,
		RunAfter:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := q.jobs.Insert(ctx, job); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrJobInFlight
		}
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	logger.InfoContext(ctx, "job enqueued", "job_id", job.ID, "content_id", contentID)
	q.Wake()
	return job, nil
}

// Wake signals workers that work may be available. Non-blocking; a pending
// signal is enough.
func (q *Queue) Wake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// WakeChan returns the channel workers wait on between polls.
func (q *Queue) WakeChan() <-chan struct{} {
	return q.wake
}

// Claim hands the oldest eligible queued job to a worker, marking it
// running. Returns storage.ErrNotFound when nothing is eligible.
func (q *Queue) Claim(ctx context.Context) (*storage.JobRecord, error) {
	return q.jobs.ClaimNext(ctx, time.Now().UTC())
}

// Stats reports job counts by status.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	counts, err := q.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	return &Stats{
		Queued:    counts[storage.JobQueued],
		Running:   counts[storage.JobRunning],
		Succeeded: counts[storage.JobSucceeded],
		Failed:    counts[storage.JobFailed],
	}, nil
}
