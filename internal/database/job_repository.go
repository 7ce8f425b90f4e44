package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/whisper-vault/internal/domain"
)

// jobSelectList is the column list for SELECT/RETURNING on publish_jobs
// (single source for schema changes).
const jobSelectList = `id, confession_id, platforms, sub_results, status,
			asset_ref, max_attempts, last_error, cancel_requested,
			next_attempt_at, created_at, updated_at`

// JobRepository manages the durable publish job queue in PostgreSQL.
//
// Claiming uses FOR UPDATE SKIP LOCKED so any number of workers can poll
// concurrently while at most one executes a given job: a claimed job is
// status=processing with next_attempt_at cleared, which no other claim
// query matches. The claim acts as the job lease; ResetStale recovers
// leases from crashed workers.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new queued job.
func (r *JobRepository) Create(ctx context.Context, job *domain.PublishJob) error {
	subResults, err := json.Marshal(job.SubResults)
	if err != nil {
		return fmt.Errorf("marshal sub results: %w", err)
	}

	query := `
		INSERT INTO publish_jobs (id, confession_id, platforms, sub_results, status,
			asset_ref, max_attempts, last_error, cancel_requested,
			next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.ExecContext(ctx, query,
		job.ID, job.ConfessionID, platformArray(job.Platforms), subResults, job.Status,
		job.AssetRef, job.MaxAttempts, job.LastError, job.CancelRequested,
		job.NextAttemptAt, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert publish job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.PublishJob, error) {
	query := `SELECT ` + jobSelectList + ` FROM publish_jobs WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get publish job: %w", err)
	}
	return job, nil
}

// List returns the most recent jobs.
func (r *JobRepository) List(ctx context.Context, limit int) ([]*domain.PublishJob, error) {
	query := `SELECT ` + jobSelectList + `
		FROM publish_jobs
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list publish jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ClaimDue atomically claims jobs ready for execution: freshly queued jobs
// plus processing jobs whose retry or rate-limit reschedule time has
// arrived. Claimed jobs get next_attempt_at cleared, which is the lease.
func (r *JobRepository) ClaimDue(ctx context.Context, limit int) ([]*domain.PublishJob, error) {
	query := `
		UPDATE publish_jobs
		SET status = 'processing', next_attempt_at = NULL, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM publish_jobs
			WHERE status = 'queued'
			   OR (status = 'processing' AND next_attempt_at IS NOT NULL AND next_attempt_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobSelectList

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// Update persists the outcome of a dispatch attempt: sub-results, aggregate
// status, asset reference, error and reschedule time.
func (r *JobRepository) Update(ctx context.Context, job *domain.PublishJob) error {
	subResults, err := json.Marshal(job.SubResults)
	if err != nil {
		return fmt.Errorf("marshal sub results: %w", err)
	}

	query := `
		UPDATE publish_jobs
		SET sub_results = $2,
		    status = $3,
		    asset_ref = $4,
		    last_error = $5,
		    next_attempt_at = $6,
		    updated_at = NOW()
		WHERE id = $1`

	if err := r.execExpectOneRow(ctx, query,
		job.ID, subResults, job.Status, job.AssetRef, job.LastError, job.NextAttemptAt,
	); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("update publish job: %w", err)
	}
	return nil
}

// RequestCancel flags a non-terminal job for cancellation. Terminal jobs
// report ErrInvalidState so callers cannot silently "cancel" finished work.
func (r *JobRepository) RequestCancel(ctx context.Context, id string) error {
	query := `
		UPDATE publish_jobs
		SET cancel_requested = TRUE, updated_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'processing')`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		// Either missing or already terminal; disambiguate for the caller.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrInvalidState
	}
	return nil
}

// ResetStale reschedules claimed jobs whose worker disappeared: processing
// rows without a reschedule time that have not been touched within the
// lease window become immediately claimable again.
func (r *JobRepository) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE publish_jobs
		SET next_attempt_at = NOW(), updated_at = NOW()
		WHERE status = 'processing'
		  AND next_attempt_at IS NULL
		  AND updated_at < NOW() - $1::interval`

	result, err := r.db.ExecContext(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("reset stale jobs: %w", err)
	}
	return result.RowsAffected()
}

// JobStats holds queue statistics for monitoring.
type JobStats struct {
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// GetStats returns queue statistics.
func (r *JobRepository) GetStats(ctx context.Context) (*JobStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'queued') as queued,
			COUNT(*) FILTER (WHERE status = 'processing') as processing,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed
		FROM publish_jobs`

	var stats JobStats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Queued, &stats.Processing, &stats.Completed, &stats.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &stats, nil
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row
// was affected.
func (r *JobRepository) execExpectOneRow(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.PublishJob, error) {
	var job domain.PublishJob
	var platforms pq.StringArray
	var subResults []byte

	err := row.Scan(
		&job.ID, &job.ConfessionID, &platforms, &subResults, &job.Status,
		&job.AssetRef, &job.MaxAttempts, &job.LastError, &job.CancelRequested,
		&job.NextAttemptAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Platforms = make([]domain.Platform, 0, len(platforms))
	for _, p := range platforms {
		job.Platforms = append(job.Platforms, domain.Platform(p))
	}
	if unmarshalErr := json.Unmarshal(subResults, &job.SubResults); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal sub results: %w", unmarshalErr)
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*domain.PublishJob, error) {
	var jobs []*domain.PublishJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan publish job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func platformArray(platforms []domain.Platform) pq.StringArray {
	arr := make(pq.StringArray, 0, len(platforms))
	for _, p := range platforms {
		arr = append(arr, string(p))
	}
	return arr
}
