package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feedwise/analysis-back/internal/domain"
)

const jobColumns = `id, article_id, kind, priority, status, retry_count, next_retry_at,
	provider, model, tokens_used, cost, error_message, created_at, started_at, completed_at`

// PostgresJobsRepository persists jobs in the analysis_jobs table. Claim
// atomicity relies on FOR UPDATE SKIP LOCKED; the dedup invariant relies on a
// partial unique index over (article_id, kind) for non-terminal jobs.
type PostgresJobsRepository struct {
	pool   *pgxpool.Pool
	policy RetryPolicy
}

func NewPostgresJobsRepository(ctx context.Context, databaseURL string, policy RetryPolicy) (*PostgresJobsRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Minute
	}
	return &PostgresJobsRepository{pool: pool, policy: policy}, nil
}

// NewPostgresJobsRepositoryWithPool shares an existing pool across stores.
func NewPostgresJobsRepositoryWithPool(pool *pgxpool.Pool, policy RetryPolicy) *PostgresJobsRepository {
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Minute
	}
	return &PostgresJobsRepository{pool: pool, policy: policy}
}

func (r *PostgresJobsRepository) Close() {
	r.pool.Close()
}

func (r *PostgresJobsRepository) Enqueue(
	ctx context.Context,
	articleID string,
	kind domain.AnalysisKind,
	priority int,
) (*domain.AnalysisJob, bool, error) {
	job := &domain.AnalysisJob{
		ID:        uuid.NewString(),
		ArticleID: articleID,
		Kind:      kind,
		Priority:  priority,
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	command, err := r.pool.Exec(ctx, `
		INSERT INTO analysis_jobs (id, article_id, kind, priority, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
		ON CONFLICT (article_id, kind) WHERE status IN ('pending', 'processing') DO NOTHING
	`, job.ID, job.ArticleID, string(job.Kind), job.Priority, string(job.Status), job.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert job: %w", err)
	}
	if command.RowsAffected() == 0 {
		// An active job for this (article, kind) already exists.
		return nil, false, nil
	}
	return job, true, nil
}

func (r *PostgresJobsRepository) EnqueueBatch(ctx context.Context, items []EnqueueItem) (int, error) {
	created := 0
	for _, item := range items {
		_, ok, err := r.Enqueue(ctx, item.ArticleID, item.Kind, item.Priority)
		if err != nil {
			return created, fmt.Errorf("enqueue article %s: %w", item.ArticleID, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func (r *PostgresJobsRepository) ClaimBatch(ctx context.Context, limit int) ([]domain.AnalysisJob, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		WITH eligible AS (
			SELECT id
			FROM analysis_jobs
			WHERE status = 'pending'
			  AND (next_retry_at IS NULL OR next_retry_at <= now())
			ORDER BY priority DESC, created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE analysis_jobs
		SET status = 'processing', started_at = now()
		FROM eligible
		WHERE analysis_jobs.id = eligible.id
		RETURNING `+jobColumns,
		limit)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *PostgresJobsRepository) Complete(ctx context.Context, jobID string, outcome domain.JobOutcome) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE analysis_jobs
		SET status = 'completed',
			provider = $2,
			model = $3,
			tokens_used = $4,
			cost = $5,
			error_message = $6,
			completed_at = now()
		WHERE id = $1 AND status = 'processing'
	`, jobID, outcome.Provider, outcome.Model, outcome.TokensUsed, outcome.Cost, joinPartialErrors(outcome.PartialErrors))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresJobsRepository) FailOrRetry(ctx context.Context, jobID string, jobErr error) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE analysis_jobs
		SET retry_count = retry_count + 1,
			error_message = $2,
			status = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE 'pending' END,
			next_retry_at = CASE WHEN retry_count + 1 >= $3 THEN NULL
				ELSE now() + ($4::bigint * (1::bigint << LEAST(retry_count + 1, 16))) * interval '1 millisecond' END,
			completed_at = CASE WHEN retry_count + 1 >= $3 THEN now() ELSE NULL END,
			started_at = CASE WHEN retry_count + 1 >= $3 THEN started_at ELSE NULL END
		WHERE id = $1 AND status = 'processing'
	`, jobID, errorMessage(jobErr), r.policy.MaxRetries, r.policy.BaseDelay.Milliseconds())
	if err != nil {
		return fmt.Errorf("fail or retry job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresJobsRepository) GetJob(ctx context.Context, jobID string) (*domain.AnalysisJob, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, ErrNotFound
	}
	return &jobs[0], nil
}

func (r *PostgresJobsRepository) ListJobs(
	ctx context.Context,
	filter domain.JobFilter,
) ([]domain.AnalysisJob, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	builder := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	conditions := squirrel.And{}
	if filter.Status != "" {
		conditions = append(conditions, squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.Kind != "" {
		conditions = append(conditions, squirrel.Eq{"kind": string(filter.Kind)})
	}

	countQuery := builder.Select("COUNT(*)").From("analysis_jobs")
	if len(conditions) > 0 {
		countQuery = countQuery.Where(conditions)
	}
	countSQL, countArgs, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	listQuery := builder.Select(jobColumns).
		From("analysis_jobs").
		OrderBy("created_at DESC").
		Limit(uint64(filter.PageSize)).
		Offset(uint64((filter.Page - 1) * filter.PageSize))
	if len(conditions) > 0 {
		listQuery = listQuery.Where(conditions)
	}
	listSQL, listArgs, err := listQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *PostgresJobsRepository) Status(ctx context.Context) (domain.QueueStatus, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM analysis_jobs GROUP BY status`)
	if err != nil {
		return domain.QueueStatus{}, fmt.Errorf("query queue status: %w", err)
	}
	defer rows.Close()

	var status domain.QueueStatus
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return domain.QueueStatus{}, fmt.Errorf("scan queue status: %w", err)
		}
		switch domain.JobStatus(state) {
		case domain.JobStatusPending:
			status.Pending = count
		case domain.JobStatusProcessing:
			status.Processing = count
		case domain.JobStatusCompleted:
			status.Completed = count
		case domain.JobStatusFailed:
			status.Failed = count
		}
	}
	if rows.Err() != nil {
		return domain.QueueStatus{}, fmt.Errorf("iterate queue status: %w", rows.Err())
	}
	return status, nil
}

func (r *PostgresJobsRepository) RetryFailed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}

	command, err := r.pool.Exec(ctx, `
		UPDATE analysis_jobs
		SET status = 'pending',
			retry_count = 0,
			next_retry_at = NULL,
			started_at = NULL,
			completed_at = NULL,
			error_message = ''
		WHERE id IN (
			SELECT id FROM analysis_jobs
			WHERE status = 'failed'
			ORDER BY completed_at DESC
			LIMIT $1
		)
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	return int(command.RowsAffected()), nil
}

func (r *PostgresJobsRepository) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	command, err := r.pool.Exec(ctx, `
		DELETE FROM analysis_jobs
		WHERE status = 'completed' AND completed_at < now() - $1::bigint * interval '1 millisecond'
	`, olderThan.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", err)
	}
	return int(command.RowsAffected()), nil
}

func scanJobs(rows pgx.Rows) ([]domain.AnalysisJob, error) {
	jobs := make([]domain.AnalysisJob, 0)
	for rows.Next() {
		var (
			job    domain.AnalysisJob
			kind   string
			status string
		)
		if err := rows.Scan(
			&job.ID,
			&job.ArticleID,
			&kind,
			&job.Priority,
			&status,
			&job.RetryCount,
			&job.NextRetryAt,
			&job.Provider,
			&job.Model,
			&job.TokensUsed,
			&job.Cost,
			&job.ErrorMessage,
			&job.CreatedAt,
			&job.StartedAt,
			&job.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job.Kind = domain.AnalysisKind(kind)
		job.Status = domain.JobStatus(status)
		jobs = append(jobs, job)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate jobs: %w", rows.Err())
	}
	return jobs, nil
}
