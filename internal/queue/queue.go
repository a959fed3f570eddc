// Package queue defines the contract for the durable task queue that
// executes background work. The queue owns retry, visibility, and cancel
// semantics; job rows in the application store are only a per-user
// projection of what happens here.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for common error conditions
var (
	ErrTaskNotFound = errors.New("queue task not found")
	// ErrUnavailable signals the queue backend is transiently unreachable.
	// Reads may be retried; writes surface the failure to the caller.
	ErrUnavailable = errors.New("queue backend unavailable")
)

// TaskState is the execution state of a queue task. This is distinct from
// the job status shown to users, though the worker keeps the two aligned.
type TaskState string

const (
	TaskStateCreated   TaskState = "created"
	TaskStateActive    TaskState = "active"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCancelled TaskState = "cancelled"
)

// Task is one unit of work in the queue.
type Task struct {
	TaskID     uuid.UUID
	Type       string
	State      TaskState
	Payload    json.RawMessage
	RetryCount int
	MaxRetries int

	CreatedAt    time.Time
	UpdatedAt    time.Time
	VisibleUntil *time.Time
	CompletedAt  *time.Time
}

// TaskStateInfo is the read-side view exposed to the job service and the
// reconciler.
type TaskStateInfo struct {
	State       TaskState
	RetryCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Backend is the adapter contract used by the job service.
type Backend interface {
	// Enqueue submits a new task and returns its ID.
	Enqueue(ctx context.Context, taskType string, payload json.RawMessage) (uuid.UUID, error)
	// FetchState reads the current execution state of a task.
	FetchState(ctx context.Context, taskID uuid.UUID) (*TaskStateInfo, error)
	// RequestCancel asks the queue to cancel a task. Returns true if the
	// cancel took effect, false if the task was already claimed or finished.
	// A false return is not an error; job status is ground truth either way.
	RequestCancel(ctx context.Context, taskID uuid.UUID) (bool, error)
}

// Consumer is the worker-side contract for claiming and settling tasks.
type Consumer interface {
	// Claim atomically takes up to max tasks in created state, marks them
	// active, and makes them invisible to other consumers for the given
	// visibility timeout.
	Claim(ctx context.Context, types []string, max int, visibility time.Duration) ([]*Task, error)
	// Complete marks a claimed task completed.
	Complete(ctx context.Context, taskID uuid.UUID) error
	// Fail records a failed attempt. Tasks with remaining retries return to
	// created state with the retry count bumped; otherwise they fail for good.
	Fail(ctx context.Context, taskID uuid.UUID, reason string) error
}

// StateCount is one row of the aggregate debug view.
type StateCount struct {
	Type  string    `json:"type"`
	State TaskState `json:"state"`
	Count int64     `json:"count"`
}

// DebugReporter is a narrow, read-only reporting surface for operators.
// It is deliberately separate from Backend so the queue implementation can
// change without touching the admin endpoints that consume it.
type DebugReporter interface {
	CountsByTypeAndState(ctx context.Context) ([]StateCount, error)
	RecentTasks(ctx context.Context, limit int) ([]*Task, error)
}
