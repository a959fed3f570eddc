package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/queue"
	queuepg "github.com/wmsyw/aiWriter-sub006/internal/queue/postgres"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

// JobStore implements store.JobStore on PostgreSQL. Job rows and queue tasks
// live in the same database, so CreateJob can write both in one transaction.
type JobStore struct {
	pool *pgxpool.Pool
}

var _ store.JobStore = (*JobStore)(nil)

// NewJobStore creates a PostgreSQL-backed job store on an existing pool.
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

const jobColumns = `
	job_id, user_id, job_type, status, queue_task_id,
	payload, result, created_at, updated_at
`

func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.JobID,
		&job.UserID,
		&job.Type,
		&job.Status,
		&job.QueueTaskID,
		&job.Payload,
		&job.Result,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJob inserts the job row and its queue task in one transaction.
// Either both writes land or neither does, so a crash cannot leave a job
// row without a queue entry or vice versa.
func (s *JobStore) CreateJob(ctx context.Context, job *models.Job, task *queue.Task) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if err := queuepg.InsertTask(ctx, tx, task); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = tx.Exec(ctx, query,
		job.JobID,
		job.UserID,
		job.Type,
		job.Status,
		job.QueueTaskID,
		job.Payload,
		job.Result,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(err)
	}

	log.Info().
		Str("job_id", job.JobID.String()).
		Str("job_type", string(job.Type)).
		Str("user_id", job.UserID.String()).
		Msg("Created job")

	return nil
}

// GetJob retrieves a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, mapError(err)
	}
	return job, nil
}

// GetJobByQueueTask resolves the job projected from a queue task.
func (s *JobStore) GetJobByQueueTask(ctx context.Context, taskID uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE queue_task_id = $1`

	job, err := scanJob(s.pool.QueryRow(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, mapError(err)
	}
	return job, nil
}

// UpdateJobStatus applies a forward-only transition in a single conditional
// UPDATE. The status column only changes when the current status is one of
// the allowed predecessors, which keeps terminal states sticky even when
// two writers race.
func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus, result json.RawMessage) (*models.Job, error) {
	prior := models.PriorStatuses(status)
	if len(prior) == 0 {
		return nil, fmt.Errorf("%w: no transition into %q", store.ErrInvalidTransition, status)
	}

	allowed := make([]string, len(prior))
	for i, p := range prior {
		allowed[i] = string(p)
	}

	query := `
		UPDATE jobs
		SET status = $2, result = COALESCE($3, result), updated_at = NOW()
		WHERE job_id = $1 AND status = ANY($4)
		RETURNING ` + jobColumns

	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID, status, result, allowed))
	if err == nil {
		log.Debug().
			Str("job_id", jobID.String()).
			Str("status", string(status)).
			Msg("Updated job status")
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapError(err)
	}

	// No row updated: either the job is missing or the transition is invalid.
	current, getErr := s.GetJob(ctx, jobID)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current.Status, status)
}

// ListRecentJobs returns the user's jobs ordered newest-updated-first.
func (s *JobStore) ListRecentJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`
	return s.listJobs(ctx, query, userID, limit)
}

// ListJobsUpdatedSince returns the user's jobs with updated_at strictly
// greater than since, newest first. The strict comparison is what makes the
// streaming watermark exclusive.
func (s *JobStore) ListJobsUpdatedSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE user_id = $1 AND updated_at > $3
		ORDER BY updated_at DESC
		LIMIT $2
	`
	return s.listJobs(ctx, query, userID, limit, since)
}

// ListPendingOlderThan returns pending jobs created before cutoff, oldest
// first, for the reconciliation sweep.
func (s *JobStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *JobStore) listJobs(ctx context.Context, query string, userID uuid.UUID, limit int, extra ...any) ([]*models.Job, error) {
	args := append([]any{userID, limit}, extra...)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, mapError(err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return jobs, nil
}
