package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/feedwise/analysis-back/internal/domain"
)

func newTestRepository() *MemoryJobsRepository {
	return NewMemoryJobsRepository(RetryPolicy{MaxRetries: 3, BaseDelay: time.Minute})
}

func TestEnqueueDeduplicatesActiveJobs(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()

	first, created, err := repo.Enqueue(ctx, "article-1", domain.KindAll, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !created {
		t.Fatalf("expected first enqueue to create a job")
	}

	duplicate, created, err := repo.Enqueue(ctx, "article-1", domain.KindAll, 5)
	if err != nil {
		t.Fatalf("duplicate enqueue: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate enqueue to be a no-op")
	}
	if duplicate.ID != first.ID {
		t.Fatalf("duplicate enqueue returned a different job: %s vs %s", duplicate.ID, first.ID)
	}

	// A different kind for the same article is a distinct job.
	_, created, err = repo.Enqueue(ctx, "article-1", domain.KindSummary, 0)
	if err != nil {
		t.Fatalf("enqueue second kind: %v", err)
	}
	if !created {
		t.Fatalf("expected distinct kind to create a job")
	}
}

func TestEnqueueAllowsReenqueueAfterTerminalState(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()

	job, _, err := repo.Enqueue(ctx, "article-1", domain.KindAll, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := repo.ClaimBatch(ctx, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v, claimed=%d", err, len(claimed))
	}
	if err := repo.Complete(ctx, job.ID, domain.JobOutcome{Provider: "openai", Model: "gpt-4.1-mini"}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, created, err := repo.Enqueue(ctx, "article-1", domain.KindAll, 0)
	if err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	if !created {
		t.Fatalf("expected re-enqueue after completion to create a fresh job")
	}
}

func TestClaimBatchOrdersByPriorityThenArrival(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	repo.SetClock(func() time.Time { return clock })

	_, _, _ = repo.Enqueue(ctx, "low-old", domain.KindAll, 1)
	clock = base.Add(time.Second)
	_, _, _ = repo.Enqueue(ctx, "high", domain.KindAll, 9)
	clock = base.Add(2 * time.Second)
	_, _, _ = repo.Enqueue(ctx, "low-new", domain.KindAll, 1)

	claimed, err := repo.ClaimBatch(ctx, 2)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed jobs, got %d", len(claimed))
	}
	if claimed[0].ArticleID != "high" {
		t.Errorf("expected priority 9 job first, got %s", claimed[0].ArticleID)
	}
	if claimed[1].ArticleID != "low-old" {
		t.Errorf("expected older low-priority job second, got %s", claimed[1].ArticleID)
	}
	for _, job := range claimed {
		if job.Status != domain.JobStatusProcessing {
			t.Errorf("claimed job %s not marked processing: %s", job.ArticleID, job.Status)
		}
		if job.StartedAt == nil {
			t.Errorf("claimed job %s missing started_at", job.ArticleID)
		}
	}
}

func TestClaimBatchNeverHandsOutTheSameJobTwice(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, _, _ = repo.Enqueue(ctx, fmt.Sprintf("article-%d", i), domain.KindAll, 0)
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var group sync.WaitGroup
	for i := 0; i < 10; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			for {
				claimed, err := repo.ClaimBatch(ctx, 3)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, job := range claimed {
					seen[job.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	group.Wait()

	if len(seen) != 50 {
		t.Fatalf("expected all 50 jobs claimed, got %d", len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("job %s claimed %d times", id, count)
		}
	}
}

func TestFailOrRetryBacksOffExponentiallyThenFailsTerminally(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	repo.SetClock(func() time.Time { return clock })

	job, _, err := repo.Enqueue(ctx, "article-1", domain.KindAll, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var previousDelay time.Duration
	for attempt := 1; attempt < 3; attempt++ {
		claimed, err := repo.ClaimBatch(ctx, 1)
		if err != nil || len(claimed) != 1 {
			t.Fatalf("attempt %d claim: %v claimed=%d", attempt, err, len(claimed))
		}
		if err := repo.FailOrRetry(ctx, job.ID, errors.New("provider exploded")); err != nil {
			t.Fatalf("attempt %d failOrRetry: %v", attempt, err)
		}

		stored, err := repo.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if stored.Status != domain.JobStatusPending {
			t.Fatalf("attempt %d: expected pending, got %s", attempt, stored.Status)
		}
		if stored.NextRetryAt == nil {
			t.Fatalf("attempt %d: missing next_retry_at", attempt)
		}
		delay := stored.NextRetryAt.Sub(clock)
		if delay <= previousDelay {
			t.Errorf("attempt %d: backoff %v not greater than previous %v", attempt, delay, previousDelay)
		}
		previousDelay = delay

		// Jobs behind a retry gate must not be claimable early.
		early, err := repo.ClaimBatch(ctx, 1)
		if err != nil {
			t.Fatalf("early claim: %v", err)
		}
		if len(early) != 0 {
			t.Fatalf("attempt %d: claimed job before retry gate opened", attempt)
		}
		clock = stored.NextRetryAt.Add(time.Second)
	}

	claimed, err := repo.ClaimBatch(ctx, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("final claim: %v claimed=%d", err, len(claimed))
	}
	if err := repo.FailOrRetry(ctx, job.ID, errors.New("provider exploded again")); err != nil {
		t.Fatalf("final failOrRetry: %v", err)
	}

	stored, err := repo.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != domain.JobStatusFailed {
		t.Fatalf("expected terminal failed after max retries, got %s", stored.Status)
	}
	if stored.NextRetryAt != nil {
		t.Errorf("terminal job still carries next_retry_at")
	}
	if stored.CompletedAt == nil {
		t.Errorf("terminal job missing completed_at")
	}
}

func TestCompleteRecordsOutcomeAndPartialErrors(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()

	job, _, _ := repo.Enqueue(ctx, "article-1", domain.KindAll, 0)
	if _, err := repo.ClaimBatch(ctx, 1); err != nil {
		t.Fatalf("claim: %v", err)
	}

	outcome := domain.JobOutcome{
		Provider:      "openai",
		Model:         "gpt-4.1-mini",
		TokensUsed:    1234,
		Cost:          0.0021,
		PartialErrors: []string{"keywords: empty reply"},
	}
	if err := repo.Complete(ctx, job.ID, outcome); err != nil {
		t.Fatalf("complete: %v", err)
	}

	stored, err := repo.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != domain.JobStatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	if stored.TokensUsed != 1234 || stored.Cost != 0.0021 {
		t.Errorf("outcome not persisted: tokens=%d cost=%f", stored.TokensUsed, stored.Cost)
	}
	if stored.ErrorMessage != "partial: keywords: empty reply" {
		t.Errorf("unexpected partial error note: %q", stored.ErrorMessage)
	}
}

func TestRetryFailedResetsOnlyFailedJobs(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()

	failed, _, _ := repo.Enqueue(ctx, "failed-article", domain.KindAll, 0)
	pending, _, _ := repo.Enqueue(ctx, "pending-article", domain.KindAll, 0)

	if _, err := repo.ClaimBatch(ctx, 1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	for i := 0; i < 3; i++ {
		_ = repo.FailOrRetry(ctx, failed.ID, errors.New("boom"))
	}
	stored, _ := repo.GetJob(ctx, failed.ID)
	if stored.Status != domain.JobStatusFailed {
		t.Fatalf("setup: expected failed job, got %s", stored.Status)
	}

	reset, err := repo.RetryFailed(ctx, 10)
	if err != nil {
		t.Fatalf("retryFailed: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset job, got %d", reset)
	}

	stored, _ = repo.GetJob(ctx, failed.ID)
	if stored.Status != domain.JobStatusPending || stored.RetryCount != 0 || stored.NextRetryAt != nil {
		t.Errorf("failed job not fully reset: %+v", stored)
	}
	untouched, _ := repo.GetJob(ctx, pending.ID)
	if untouched.Status != domain.JobStatusPending {
		t.Errorf("pending job was touched by retryFailed: %s", untouched.Status)
	}
}

func TestCleanupDeletesOnlyOldCompletedJobs(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	repo.SetClock(func() time.Time { return clock })

	completed, _, _ := repo.Enqueue(ctx, "completed-article", domain.KindAll, 0)
	failed, _, _ := repo.Enqueue(ctx, "failed-article", domain.KindAll, 0)

	claimed, _ := repo.ClaimBatch(ctx, 2)
	if len(claimed) != 2 {
		t.Fatalf("setup: expected 2 claimed, got %d", len(claimed))
	}
	_ = repo.Complete(ctx, completed.ID, domain.JobOutcome{})
	for i := 0; i < 3; i++ {
		_ = repo.FailOrRetry(ctx, failed.ID, errors.New("boom"))
	}

	clock = base.Add(48 * time.Hour)
	deleted, err := repo.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted job, got %d", deleted)
	}

	if _, err := repo.GetJob(ctx, completed.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("completed job survived cleanup")
	}
	// Failed jobs are retained for diagnosis.
	if _, err := repo.GetJob(ctx, failed.ID); err != nil {
		t.Errorf("failed job was deleted by cleanup: %v", err)
	}
}

func TestStatusCountsPerState(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()

	_, _, _ = repo.Enqueue(ctx, "a", domain.KindAll, 0)
	_, _, _ = repo.Enqueue(ctx, "b", domain.KindAll, 0)
	_, _, _ = repo.Enqueue(ctx, "c", domain.KindAll, 0)
	claimed, _ := repo.ClaimBatch(ctx, 1)
	_ = repo.Complete(ctx, claimed[0].ID, domain.JobOutcome{})

	status, err := repo.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Pending != 2 || status.Completed != 1 || status.Processing != 0 || status.Failed != 0 {
		t.Fatalf("unexpected status counts: %+v", status)
	}
}
