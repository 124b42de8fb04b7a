package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_job_store.go -package=mocks studypal-ai/internal/storage JobStore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStore defines the interface for analysis job persistence.
type JobStore interface {
	// Insert creates a new queued job. Returns ErrConflict if the content
	// already has a queued or running job.
	Insert(ctx context.Context, job *JobRecord) error
	// ClaimNext transitions the oldest runnable queued job to running and
	// returns it. Returns ErrNotFound when no job is runnable.
	ClaimNext(ctx context.Context, now time.Time) (*JobRecord, error)
	// MarkSucceeded transitions a job to the succeeded terminal state.
	MarkSucceeded(ctx context.Context, id string) error
	// MarkFailed transitions a job to the failed terminal state.
	MarkFailed(ctx context.Context, id, lastError string) error
	// Requeue returns a running job to the queue for a retry, recording the
	// error and the earliest time it may run again.
	Requeue(ctx context.Context, id, lastError string, runAfter time.Time) error
	// RequeueOrphanedRunning returns every running job to the queue and
	// reports how many were recovered. Called on startup, when no worker
	// can still own a running job.
	RequeueOrphanedRunning(ctx context.Context, runAfter time.Time) (int, error)
	// GetByID gets a job by ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*JobRecord, error)
	// GetLatestByContent returns the most recently created job for a content.
	GetLatestByContent(ctx context.Context, contentID string) (*JobRecord, error)
	// CountByStatus returns job counts keyed by status.
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// JobRepo provides methods for job operations.
// It implements the JobStore interface.
type JobRepo struct {
	db *sql.DB
}

// NewJobRepo creates a new JobRepo.
func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

// Insert creates a new queued job.
func (r *JobRepo) Insert(ctx context.Context, job *JobRecord) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.Status = JobQueued
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.RunAfter.IsZero() {
		job.RunAfter = now
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, content_id, status, attempts, last_error, run_after, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', ?, ?, ?)`,
		job.ID, job.ContentID, job.Status, job.Attempts,
		encodeTime(job.RunAfter), encodeTime(job.CreatedAt), encodeTime(job.UpdatedAt),
	)
	if err != nil {
		// The partial unique index on active jobs enforces the one
		// actionable job per content invariant.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// ClaimNext transitions the oldest runnable queued job to running.
// The guarded UPDATE (status must still be queued) makes the claim safe
// against concurrent workers; a lost race moves on to the next candidate.
func (r *JobRepo) ClaimNext(ctx context.Context, now time.Time) (*JobRecord, error) {
	for {
		var id string
		err := r.db.QueryRowContext(ctx,
			`SELECT id FROM jobs WHERE status = ? AND run_after <= ?
			 ORDER BY created_at LIMIT 1`,
			JobQueued, encodeTime(now),
		).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find queued job: %w", err)
		}

		result, err := r.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, attempts = attempts + 1, updated_at = ?
			 WHERE id = ? AND status = ?`,
			JobRunning, encodeTime(now), id, JobQueued,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to check claim result: %w", err)
		}
		if affected == 0 {
			// Another worker claimed it first, try the next one.
			continue
		}

		return r.GetByID(ctx, id)
	}
}

// MarkSucceeded transitions a job to the succeeded terminal state.
func (r *JobRepo) MarkSucceeded(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, JobSucceeded, "")
}

// MarkFailed transitions a job to the failed terminal state.
func (r *JobRepo) MarkFailed(ctx context.Context, id, lastError string) error {
	return r.setStatus(ctx, id, JobFailed, lastError)
}

func (r *JobRepo) setStatus(ctx context.Context, id, status, lastError string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?",
		status, lastError, encodeTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check job update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Requeue returns a running job to the queue for a retry.
func (r *JobRepo) Requeue(ctx context.Context, id, lastError string, runAfter time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, last_error = ?, run_after = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		JobQueued, lastError, encodeTime(runAfter), encodeTime(time.Now().UTC()),
		id, JobRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check requeue result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RequeueOrphanedRunning returns every running job to the queue. A running
// row with no live worker is a job interrupted by a crash or restart; left
// alone it would block ClaimNext and re-analysis forever.
func (r *JobRepo) RequeueOrphanedRunning(ctx context.Context, runAfter time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, last_error = ?, run_after = ?, updated_at = ?
		 WHERE status = ?`,
		JobQueued, "interrupted before completion", encodeTime(runAfter),
		encodeTime(time.Now().UTC()), JobRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue orphaned jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check orphan requeue result: %w", err)
	}
	return int(affected), nil
}

// GetByID gets a job by ID. Returns ErrNotFound if not found.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*JobRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, content_id, status, attempts, last_error, run_after, created_at, updated_at
		 FROM jobs WHERE id = ?`,
		id,
	)
	return scanJob(row)
}

// GetLatestByContent returns the most recently created job for a content.
// Returns ErrNotFound when the content has never been queued.
func (r *JobRepo) GetLatestByContent(ctx context.Context, contentID string) (*JobRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, content_id, status, attempts, last_error, run_after, created_at, updated_at
		 FROM jobs WHERE content_id = ? ORDER BY created_at DESC LIMIT 1`,
		contentID,
	)
	return scanJob(row)
}

// CountByStatus returns job counts keyed by status.
func (r *JobRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return counts, nil
}

func scanJob(row rowScanner) (*JobRecord, error) {
	var job JobRecord
	var runAfterStr, createdAtStr, updatedAtStr string

	err := row.Scan(&job.ID, &job.ContentID, &job.Status, &job.Attempts,
		&job.LastError, &runAfterStr, &createdAtStr, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if job.RunAfter, err = decodeTime(runAfterStr); err != nil {
		return nil, err
	}
	if job.CreatedAt, err = decodeTime(createdAtStr); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = decodeTime(updatedAtStr); err != nil {
		return nil, err
	}
	return &job, nil
}
