package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJobRepo_Insert_Conflict(t *testing.T) {
	db := newTestDB(t)
	contents := NewContentRepo(db)
	jobs := NewJobRepo(db)
	ctx := context.Background()

	content := insertTestContent(t, contents, "user-1", "Notes")

	if err := jobs.Insert(ctx, &JobRecord{ContentID: content.ID}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := jobs.Insert(ctx, &JobRecord{ContentID: content.ID}); !errors.Is(err, ErrConflict) {
		t.Errorf("second Insert() error = %v, want ErrConflict", err)
	}
}

func TestJobRepo_ClaimNext(t *testing.T) {
	db := newTestDB(t)
	contents := NewContentRepo(db)
	jobs := NewJobRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := jobs.ClaimNext(ctx, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ClaimNext() on empty queue error = %v, want ErrNotFound", err)
	}

	first := insertTestContent(t, contents, "user-1", "First")
	second := insertTestContent(t, contents, "user-1", "Second")

	firstJob := &JobRecord{ContentID: first.ID}
	if err := jobs.Insert(ctx, firstJob); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	secondJob := &JobRecord{ContentID: second.ID}
	if err := jobs.Insert(ctx, secondJob); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	claimed, err := jobs.ClaimNext(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if claimed.ID != firstJob.ID {
		t.Errorf("ClaimNext() claimed %s, want oldest job %s", claimed.ID, firstJob.ID)
	}
	if claimed.Status != JobRunning {
		t.Errorf("claimed job status = %s, want running", claimed.Status)
	}
	if claimed.Attempts != 1 {
		t.Errorf("claimed job attempts = %d, want 1", claimed.Attempts)
	}
}

func TestJobRepo_ClaimNext_RespectsRunAfter(t *testing.T) {
	db := newTestDB(t)
	contents := NewContentRepo(db)
	jobs := NewJobRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	content := insertTestContent(t, contents, "user-1", "Backoff")
	job := &JobRecord{ContentID: content.ID, RunAfter: now.Add(time.Hour)}
	if err := jobs.Insert(ctx, job); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if _, err := jobs.ClaimNext(ctx, now); !errors.Is(err, ErrNotFound) {
		t.Errorf("ClaimNext() before run_after error = %v, want ErrNotFound", err)
	}
	if _, err := jobs.ClaimNext(ctx, now.Add(2*time.Hour)); err != nil {
		t.Errorf("ClaimNext() after run_after error = %v", err)
	}
}

func TestJobRepo_RequeueAndRetry(t *testing.T) {
	db := newTestDB(t)
	contents := NewContentRepo(db)
	jobs := NewJobRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	content := insertTestContent(t, contents, "user-1", "Flaky")
	job := &JobRecord{ContentID: content.ID}
	if err := jobs.Insert(ctx, job); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	claimed, err := jobs.ClaimNext(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}

	retryAt := now.Add(time.Minute)
	if err := jobs.Requeue(ctx, claimed.ID, "llm timeout", retryAt); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}

	got, err := jobs.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != JobQueued {
		t.Errorf("requeued job status = %s, want queued", got.Status)
	}
	if got.LastError != "llm timeout" {
		t.Errorf("requeued job last_error = %q, want llm timeout", got.LastError)
	}
	if got.Attempts != 1 {
		t.Errorf("requeued job attempts = %d, want 1", got.Attempts)
	}

	// Requeue only applies to running jobs.
	if err := jobs.Requeue(ctx, claimed.ID, "again", retryAt); !errors.Is(err, ErrNotFound) {
		t.Errorf("Requeue() on queued job error = %v, want ErrNotFound", err)
	}

	// The retried claim increments attempts again.
	reclaimed, err := jobs.ClaimNext(ctx, retryAt.Add(time.Second))
	if err != nil {
		t.Fatalf("ClaimNext() after backoff error = %v", err)
	}
	if reclaimed.Attempts != 2 {
		t.Errorf("reclaimed job attempts = %d, want 2", reclaimed.Attempts)
	}
}

func TestJobRepo_RequeueOrphanedRunning(t *testing.T) {
	db := newTestDB(t)
	contents := NewContentRepo(db)
	jobs := NewJobRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	orphaned := insertTestContent(t, contents, "user-1", "Orphaned")
	done := insertTestContent(t, contents, "user-1", "Done")

	orphanedJob := &JobRecord{ContentID: orphaned.ID}
	doneJob := &JobRecord{ContentID: done.ID}
	for _, job := range []*JobRecord{orphanedJob, doneJob} {
		if err := jobs.Insert(ctx, job); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	// Claim both, finish one. The unfinished running job simulates a
	// process killed mid-run.
	for i := 0; i < 2; i++ {
		if _, err := jobs.ClaimNext(ctx, now.Add(time.Second)); err != nil {
			t.Fatalf("ClaimNext() error = %v", err)
		}
	}
	if err := jobs.MarkSucceeded(ctx, doneJob.ID); err != nil {
		t.Fatalf("MarkSucceeded() error = %v", err)
	}

	recovered, err := jobs.RequeueOrphanedRunning(ctx, now)
	if err != nil {
		t.Fatalf("RequeueOrphanedRunning() error = %v", err)
	}
	if recovered != 1 {
		t.Errorf("RequeueOrphanedRunning() recovered %d jobs, want 1", recovered)
	}

	got, err := jobs.GetByID(ctx, orphanedJob.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != JobQueued {
		t.Errorf("orphaned job status = %s, want queued", got.Status)
	}

	// The recovered job is claimable again; the succeeded one is untouched.
	reclaimed, err := jobs.ClaimNext(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("ClaimNext() after recovery error = %v", err)
	}
	if reclaimed.ID != orphanedJob.ID {
		t.Errorf("ClaimNext() claimed %s, want recovered job %s", reclaimed.ID, orphanedJob.ID)
	}
	finished, err := jobs.GetByID(ctx, doneJob.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if finished.Status != JobSucceeded {
		t.Errorf("succeeded job status = %s, want untouched", finished.Status)
	}
}

func TestJobRepo_TerminalStatesAndCounts(t *testing.T) {
	db := newTestDB(t)
	contents := NewContentRepo(db)
	jobs := NewJobRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	okContent := insertTestContent(t, contents, "user-1", "OK")
	badContent := insertTestContent(t, contents, "user-1", "Bad")

	okJob := &JobRecord{ContentID: okContent.ID}
	badJob := &JobRecord{ContentID: badContent.ID}
	for _, job := range []*JobRecord{okJob, badJob} {
		if err := jobs.Insert(ctx, job); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	if _, err := jobs.ClaimNext(ctx, now.Add(time.Second)); err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if _, err := jobs.ClaimNext(ctx, now.Add(time.Second)); err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}

	if err := jobs.MarkSucceeded(ctx, okJob.ID); err != nil {
		t.Fatalf("MarkSucceeded() error = %v", err)
	}
	if err := jobs.MarkFailed(ctx, badJob.ID, "invalid model output"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	latest, err := jobs.GetLatestByContent(ctx, badContent.ID)
	if err != nil {
		t.Fatalf("GetLatestByContent() error = %v", err)
	}
	if latest.Status != JobFailed || latest.LastError != "invalid model output" {
		t.Errorf("latest job = %s/%q, want failed/invalid model output", latest.Status, latest.LastError)
	}

	counts, err := jobs.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts[JobSucceeded] != 1 || counts[JobFailed] != 1 {
		t.Errorf("CountByStatus() = %v, want 1 succeeded and 1 failed", counts)
	}
}
