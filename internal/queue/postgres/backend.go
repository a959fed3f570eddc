// Package queuepg implements the durable task queue on PostgreSQL. Claiming
// uses SELECT ... FOR UPDATE SKIP LOCKED with a visibility timeout, so a
// crashed worker's tasks become claimable again once the timeout lapses.
package queuepg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/wmsyw/aiWriter-sub006/internal/queue"
)

// DBTX is the subset of pgx operations the queue needs. Both pgxpool.Pool
// and pgx.Tx satisfy it, which lets callers enqueue inside their own
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Backend implements queue.Backend, queue.Consumer, and queue.DebugReporter.
type Backend struct {
	pool       *pgxpool.Pool
	maxRetries int
}

var (
	_ queue.Backend       = (*Backend)(nil)
	_ queue.Consumer      = (*Backend)(nil)
	_ queue.DebugReporter = (*Backend)(nil)
)

// New creates a Postgres queue backend on an existing pool.
func New(pool *pgxpool.Pool, maxRetries int) *Backend {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Backend{pool: pool, maxRetries: maxRetries}
}

// NewTask builds a task in created state ready for InsertTask.
func NewTask(taskType string, payload json.RawMessage, maxRetries int) *queue.Task {
	now := time.Now()
	return &queue.Task{
		TaskID:     uuid.Must(uuid.NewV7()),
		Type:       taskType,
		State:      queue.TaskStateCreated,
		Payload:    payload,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// InsertTask writes a task row. It is exported so the job store can enqueue
// within the same transaction as the job row insert.
func InsertTask(ctx context.Context, db DBTX, task *queue.Task) error {
	query := `
		INSERT INTO queue_tasks (
			task_id, task_type, state, payload, retry_count, max_retries,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := db.Exec(ctx, query,
		task.TaskID,
		task.Type,
		task.State,
		task.Payload,
		task.RetryCount,
		task.MaxRetries,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// Enqueue submits a new task and returns its ID.
func (b *Backend) Enqueue(ctx context.Context, taskType string, payload json.RawMessage) (uuid.UUID, error) {
	task := NewTask(taskType, payload, b.maxRetries)
	if err := InsertTask(ctx, b.pool, task); err != nil {
		return uuid.Nil, err
	}

	log.Debug().
		Str("task_id", task.TaskID.String()).
		Str("task_type", taskType).
		Msg("Enqueued task")

	return task.TaskID, nil
}

// FetchState reads the current execution state of a task.
func (b *Backend) FetchState(ctx context.Context, taskID uuid.UUID) (*queue.TaskStateInfo, error) {
	query := `
		SELECT state, retry_count, created_at, updated_at, completed_at
		FROM queue_tasks
		WHERE task_id = $1
	`

	var info queue.TaskStateInfo
	err := b.pool.QueryRow(ctx, query, taskID).Scan(
		&info.State,
		&info.RetryCount,
		&info.CreatedAt,
		&info.UpdatedAt,
		&info.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrTaskNotFound
		}
		return nil, mapError(err)
	}

	return &info, nil
}

// RequestCancel cancels a task that is still in created state. Returns false
// when the task was already claimed or finished; the caller decides what
// that means for the job row.
func (b *Backend) RequestCancel(ctx context.Context, taskID uuid.UUID) (bool, error) {
	query := `
		UPDATE queue_tasks
		SET state = $2, updated_at = NOW(), completed_at = NOW()
		WHERE task_id = $1 AND state = $3
	`

	tag, err := b.pool.Exec(ctx, query, taskID, queue.TaskStateCancelled, queue.TaskStateCreated)
	if err != nil {
		return false, mapError(err)
	}

	cancelled := tag.RowsAffected() > 0
	log.Debug().
		Str("task_id", taskID.String()).
		Bool("cancelled", cancelled).
		Msg("Cancel requested")

	return cancelled, nil
}

// Claim atomically takes up to max created tasks of the given types, marks
// them active, and hides them behind a visibility timeout. Tasks whose
// visibility lapsed without settlement are reclaimed here too.
func (b *Backend) Claim(ctx context.Context, types []string, max int, visibility time.Duration) ([]*queue.Task, error) {
	query := `
		WITH claimable AS (
			SELECT task_id
			FROM queue_tasks
			WHERE task_type = ANY($1)
			  AND (
			        state = 'created'
			     OR (state = 'active' AND visible_until < NOW())
			  )
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queue_tasks
		SET
			state = 'active',
			visible_until = NOW() + $3 * INTERVAL '1 second',
			updated_at = NOW()
		FROM claimable
		WHERE queue_tasks.task_id = claimable.task_id
		RETURNING queue_tasks.task_id, queue_tasks.task_type, queue_tasks.payload,
		          queue_tasks.retry_count, queue_tasks.max_retries,
		          queue_tasks.created_at, queue_tasks.updated_at
	`

	rows, err := b.pool.Query(ctx, query, types, max, int(visibility.Seconds()))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var tasks []*queue.Task
	for rows.Next() {
		task := &queue.Task{State: queue.TaskStateActive}
		err := rows.Scan(
			&task.TaskID,
			&task.Type,
			&task.Payload,
			&task.RetryCount,
			&task.MaxRetries,
			&task.CreatedAt,
			&task.UpdatedAt,
		)
		if err != nil {
			return nil, mapError(err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	if len(tasks) > 0 {
		log.Debug().Int("claimed", len(tasks)).Msg("Claimed tasks")
	}

	return tasks, nil
}

// Complete marks an active task completed.
func (b *Backend) Complete(ctx context.Context, taskID uuid.UUID) error {
	query := `
		UPDATE queue_tasks
		SET state = $2, visible_until = NULL, completed_at = NOW(), updated_at = NOW()
		WHERE task_id = $1 AND state = $3
	`

	tag, err := b.pool.Exec(ctx, query, taskID, queue.TaskStateCompleted, queue.TaskStateActive)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrTaskNotFound
	}
	return nil
}

// Fail records a failed attempt. With retries remaining the task returns to
// created state; otherwise it fails permanently.
func (b *Backend) Fail(ctx context.Context, taskID uuid.UUID, reason string) error {
	query := `
		UPDATE queue_tasks
		SET
			retry_count = retry_count + 1,
			failure_reason = $2,
			state = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'created' END,
			completed_at = CASE WHEN retry_count + 1 >= max_retries THEN NOW() ELSE NULL END,
			visible_until = NULL,
			updated_at = NOW()
		WHERE task_id = $1 AND state = 'active'
	`

	tag, err := b.pool.Exec(ctx, query, taskID, reason)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrTaskNotFound
	}

	log.Warn().
		Str("task_id", taskID.String()).
		Str("reason", reason).
		Msg("Task attempt failed")

	return nil
}

// CountsByTypeAndState returns aggregate task counts for the debug surface.
func (b *Backend) CountsByTypeAndState(ctx context.Context) ([]queue.StateCount, error) {
	query := `
		SELECT task_type, state, COUNT(*)
		FROM queue_tasks
		GROUP BY task_type, state
		ORDER BY task_type, state
	`

	rows, err := b.pool.Query(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var counts []queue.StateCount
	for rows.Next() {
		var c queue.StateCount
		if err := rows.Scan(&c.Type, &c.State, &c.Count); err != nil {
			return nil, mapError(err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// RecentTasks returns the most recently created tasks, newest first.
func (b *Backend) RecentTasks(ctx context.Context, limit int) ([]*queue.Task, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT task_id, task_type, state, payload, retry_count, max_retries,
		       created_at, updated_at, visible_until, completed_at
		FROM queue_tasks
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := b.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var tasks []*queue.Task
	for rows.Next() {
		var task queue.Task
		err := rows.Scan(
			&task.TaskID,
			&task.Type,
			&task.State,
			&task.Payload,
			&task.RetryCount,
			&task.MaxRetries,
			&task.CreatedAt,
			&task.UpdatedAt,
			&task.VisibleUntil,
			&task.CompletedAt,
		)
		if err != nil {
			return nil, mapError(err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

// mapError collapses connection-class failures into queue.ErrUnavailable.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", queue.ErrUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "08", "53", "57": // connection, resources, operator intervention
			return fmt.Errorf("%w: %v", queue.ErrUnavailable, err)
		}
	}
	return err
}
