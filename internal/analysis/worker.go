package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"studypal-ai/internal/contextutil"
	"studypal-ai/internal/queue"
	"studypal-ai/internal/storage"
)

// pollInterval bounds how long an idle dispatcher waits before re-checking
// the queue, covering jobs whose backoff window has just elapsed.
const pollInterval = time.Second

// WorkerPool claims jobs from the queue and runs them on a bounded pool of
// goroutines. Delivery is at least once: a job interrupted mid-run is
// requeued the next time a pool starts, and a transient failure requeues
// it with exponential backoff.
type WorkerPool struct {
	queue       *queue.Queue
	jobs        storage.JobStore
	analyzer    *Analyzer
	logger      *slog.Logger
	maxAttempts int
	backoffBase time.Duration

	pool   *ants.Pool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a worker pool with the given concurrency.
func NewWorkerPool(
	q *queue.Queue,
	jobs storage.JobStore,
	analyzer *Analyzer,
	logger *slog.Logger,
	workers int,
	maxAttempts int,
	backoffBase time.Duration,
) (*WorkerPool, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &WorkerPool{
		queue:       q,
		jobs:        jobs,
		analyzer:    analyzer,
		logger:      logger,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		pool:        pool,
	}, nil
}

// Start recovers jobs orphaned in the running state by an earlier process
// and launches the dispatcher. It returns immediately; workers run until
// Stop is called.
func (w *WorkerPool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	// No worker is running yet, so every running row is an orphan from a
	// crashed or killed process. Requeue them before claiming.
	recovered, err := w.jobs.RequeueOrphanedRunning(ctx, time.Now().UTC())
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to recover orphaned jobs", "error", err)
	} else if recovered > 0 {
		w.logger.InfoContext(ctx, "recovered orphaned jobs", "count", recovered)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.dispatch(ctx)
	}()
}

// Stop shuts down the dispatcher and waits for in-flight jobs to finish.
func (w *WorkerPool) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.pool.Release()
}

// dispatch claims jobs and hands them to pool workers. When the queue is
// empty it waits for a wake signal or the next poll tick.
func (w *WorkerPool) dispatch(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		job, err := w.queue.Claim(ctx)
		if err == nil {
			w.submit(ctx, job)
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			w.logger.ErrorContext(ctx, "failed to claim job", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-w.queue.WakeChan():
		case <-ticker.C:
		}
	}
}

// submit blocks until a pool worker is free, bounding claim rate by
// worker capacity.
func (w *WorkerPool) submit(ctx context.Context, job *storage.JobRecord) {
	w.wg.Add(1)
	err := w.pool.Submit(func() {
		defer w.wg.Done()
		w.handle(ctx, job)
	})
	if err != nil {
		w.wg.Done()
		w.logger.ErrorContext(ctx, "failed to submit job to pool", "job_id", job.ID, "error", err)
		if reqErr := w.jobs.Requeue(ctx, job.ID, "worker pool unavailable", time.Now().UTC().Add(w.backoffBase)); reqErr != nil {
			w.logger.ErrorContext(ctx, "failed to requeue job", "job_id", job.ID, "error", reqErr)
		}
	}
}

// handle runs one claimed job to a terminal state or back into the queue.
func (w *WorkerPool) handle(ctx context.Context, job *storage.JobRecord) {
	logger := w.logger.With("job_id", job.ID, "content_id", job.ContentID, "attempt", job.Attempts)
	ctx = contextutil.WithLogger(ctx, logger)

	logger.InfoContext(ctx, "job started")
	start := time.Now()

	err := w.analyzer.Analyze(ctx, job.ContentID)
	if err == nil {
		if markErr := w.jobs.MarkSucceeded(ctx, job.ID); markErr != nil {
			logger.ErrorContext(ctx, "failed to mark job succeeded", "error", markErr)
			return
		}
		logger.InfoContext(ctx, "job succeeded", "duration", time.Since(start))
		return
	}

	if IsTransient(err) && job.Attempts < w.maxAttempts {
		delay := w.backoff(job.Attempts)
		logger.WarnContext(ctx, "job failed, will retry", "error", err, "retry_in", delay)
		if reqErr := w.jobs.Requeue(ctx, job.ID, err.Error(), time.Now().UTC().Add(delay)); reqErr != nil {
			logger.ErrorContext(ctx, "failed to requeue job", "error", reqErr)
		}
		return
	}

	logger.ErrorContext(ctx, "job failed permanently", "error", err, "attempts", job.Attempts)
	if markErr := w.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
		logger.ErrorContext(ctx, "failed to mark job failed", "error", markErr)
	}
}

// backoff returns the delay before retry n+1: base doubled per prior attempt.
func (w *WorkerPool) backoff(attempts int) time.Duration {
	delay := w.backoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
	}
	return delay
}
