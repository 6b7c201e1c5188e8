package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feedwise/analysis-back/internal/domain"
)

var ErrNotFound = errors.New("resource not found")

// EnqueueItem is one entry of a batch enqueue.
type EnqueueItem struct {
	ArticleID string
	Kind      domain.AnalysisKind
	Priority  int
}

// RetryPolicy controls the job-level exponential backoff.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// NextDelay returns the backoff before the given (already incremented) retry.
func (p RetryPolicy) NextDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 16 {
		retryCount = 16
	}
	return p.BaseDelay * time.Duration(1<<uint(retryCount))
}

// JobsRepository is the single source of truth for job state. ClaimBatch must
// be atomic per job: two concurrent claimers never receive the same job.
type JobsRepository interface {
	// Enqueue creates a pending job unless one for the same (article, kind)
	// is already pending or processing; the dedup case is a silent no-op
	// reported through created=false, not an error.
	Enqueue(ctx context.Context, articleID string, kind domain.AnalysisKind, priority int) (job *domain.AnalysisJob, created bool, err error)
	// EnqueueBatch applies Enqueue semantics per item; duplicates never fail
	// the batch. Returns how many jobs were actually created.
	EnqueueBatch(ctx context.Context, items []EnqueueItem) (int, error)
	// ClaimBatch atomically moves up to limit eligible pending jobs to
	// processing, ordered by priority descending then arrival.
	ClaimBatch(ctx context.Context, limit int) ([]domain.AnalysisJob, error)
	Complete(ctx context.Context, jobID string, outcome domain.JobOutcome) error
	FailOrRetry(ctx context.Context, jobID string, jobErr error) error
	GetJob(ctx context.Context, jobID string) (*domain.AnalysisJob, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.AnalysisJob, int, error)
	Status(ctx context.Context) (domain.QueueStatus, error)
	// RetryFailed resets up to limit failed jobs back to pending. Manual
	// operator action; the automatic path never resurrects failed jobs.
	RetryFailed(ctx context.Context, limit int) (int, error)
	// Cleanup deletes completed jobs older than the retention window.
	// Failed jobs are kept for diagnosis; that asymmetry is deliberate.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// MemoryJobsRepository keeps jobs in memory for local development and tests.
// It honors the same claim atomicity contract via a single mutex.
type MemoryJobsRepository struct {
	mu     sync.Mutex
	jobs   map[string]*domain.AnalysisJob
	policy RetryPolicy
	now    func() time.Time
}

func NewMemoryJobsRepository(policy RetryPolicy) *MemoryJobsRepository {
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Minute
	}
	return &MemoryJobsRepository{
		jobs:   make(map[string]*domain.AnalysisJob),
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides time for backoff tests.
func (r *MemoryJobsRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryJobsRepository) Enqueue(
	_ context.Context,
	articleID string,
	kind domain.AnalysisKind,
	priority int,
) (*domain.AnalysisJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enqueueLocked(articleID, kind, priority)
}

func (r *MemoryJobsRepository) enqueueLocked(
	articleID string,
	kind domain.AnalysisKind,
	priority int,
) (*domain.AnalysisJob, bool, error) {
	for _, existing := range r.jobs {
		if existing.ArticleID == articleID && existing.Kind == kind && !existing.IsTerminal() {
			return cloneJob(existing), false, nil
		}
	}

	job := &domain.AnalysisJob{
		ID:        uuid.NewString(),
		ArticleID: articleID,
		Kind:      kind,
		Priority:  priority,
		Status:    domain.JobStatusPending,
		CreatedAt: r.now(),
	}
	r.jobs[job.ID] = job
	return cloneJob(job), true, nil
}

func (r *MemoryJobsRepository) EnqueueBatch(_ context.Context, items []EnqueueItem) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := 0
	for _, item := range items {
		if _, ok, _ := r.enqueueLocked(item.ArticleID, item.Kind, item.Priority); ok {
			created++
		}
	}
	return created, nil
}

func (r *MemoryJobsRepository) ClaimBatch(_ context.Context, limit int) ([]domain.AnalysisJob, error) {
	if limit <= 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	eligible := make([]*domain.AnalysisJob, 0)
	for _, job := range r.jobs {
		if job.Status != domain.JobStatusPending {
			continue
		}
		if job.NextRetryAt != nil && job.NextRetryAt.After(now) {
			continue
		}
		eligible = append(eligible, job)
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	claimed := make([]domain.AnalysisJob, 0, len(eligible))
	for _, job := range eligible {
		started := now
		job.Status = domain.JobStatusProcessing
		job.StartedAt = &started
		claimed = append(claimed, *cloneJob(job))
	}
	return claimed, nil
}

func (r *MemoryJobsRepository) Complete(_ context.Context, jobID string, outcome domain.JobOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}

	completed := r.now()
	job.Status = domain.JobStatusCompleted
	job.Provider = outcome.Provider
	job.Model = outcome.Model
	job.TokensUsed = outcome.TokensUsed
	job.Cost = outcome.Cost
	job.ErrorMessage = joinPartialErrors(outcome.PartialErrors)
	job.CompletedAt = &completed
	return nil
}

func (r *MemoryJobsRepository) FailOrRetry(_ context.Context, jobID string, jobErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}

	job.RetryCount++
	job.ErrorMessage = errorMessage(jobErr)

	if job.RetryCount >= r.policy.MaxRetries {
		completed := r.now()
		job.Status = domain.JobStatusFailed
		job.CompletedAt = &completed
		job.NextRetryAt = nil
		return nil
	}

	retryAt := r.now().Add(r.policy.NextDelay(job.RetryCount))
	job.Status = domain.JobStatusPending
	job.NextRetryAt = &retryAt
	job.StartedAt = nil
	return nil
}

func (r *MemoryJobsRepository) GetJob(_ context.Context, jobID string) (*domain.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryJobsRepository) ListJobs(
	_ context.Context,
	filter domain.JobFilter,
) ([]domain.AnalysisJob, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]domain.AnalysisJob, 0)
	for _, job := range r.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && job.Kind != filter.Kind {
			continue
		}
		matched = append(matched, *cloneJob(job))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return []domain.AnalysisJob{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryJobsRepository) Status(_ context.Context) (domain.QueueStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var status domain.QueueStatus
	for _, job := range r.jobs {
		switch job.Status {
		case domain.JobStatusPending:
			status.Pending++
		case domain.JobStatusProcessing:
			status.Processing++
		case domain.JobStatusCompleted:
			status.Completed++
		case domain.JobStatusFailed:
			status.Failed++
		}
	}
	return status, nil
}

func (r *MemoryJobsRepository) RetryFailed(_ context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	reset := 0
	for _, job := range r.jobs {
		if job.Status != domain.JobStatusFailed {
			continue
		}
		job.Status = domain.JobStatusPending
		job.RetryCount = 0
		job.NextRetryAt = nil
		job.StartedAt = nil
		job.CompletedAt = nil
		job.ErrorMessage = ""
		reset++
		if reset == limit {
			break
		}
	}
	return reset, nil
}

func (r *MemoryJobsRepository) Cleanup(_ context.Context, olderThan time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-olderThan)
	deleted := 0
	for id, job := range r.jobs {
		if job.Status != domain.JobStatusCompleted {
			continue
		}
		if job.CompletedAt == nil || job.CompletedAt.After(cutoff) {
			continue
		}
		delete(r.jobs, id)
		deleted++
	}
	return deleted, nil
}

func cloneJob(job *domain.AnalysisJob) *domain.AnalysisJob {
	if job == nil {
		return nil
	}
	clone := *job
	if job.NextRetryAt != nil {
		at := *job.NextRetryAt
		clone.NextRetryAt = &at
	}
	if job.StartedAt != nil {
		at := *job.StartedAt
		clone.StartedAt = &at
	}
	if job.CompletedAt != nil {
		at := *job.CompletedAt
		clone.CompletedAt = &at
	}
	return &clone
}

func joinPartialErrors(partial []string) string {
	if len(partial) == 0 {
		return ""
	}
	return "partial: " + strings.Join(partial, "; ")
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	message := err.Error()
	if len(message) > 1000 {
		message = message[:1000]
	}
	return message
}
