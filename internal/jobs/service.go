// Package jobs implements the job service, the write-side facade over job
// rows and the task queue. Handlers call it for creation, reads, and
// cancellation; the worker and reconciler drive the remaining transitions.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/queue"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
	"github.com/wmsyw/aiWriter-sub006/internal/telemetry"
)

var (
	// ErrAlreadyTerminal is returned when cancelling a job that already
	// finished. Callers surface it distinctly from validation failures.
	ErrAlreadyTerminal = errors.New("job already in a terminal state")
	// ErrForbidden is returned when a job exists but belongs to another user.
	ErrForbidden = errors.New("job belongs to another user")
	// ErrUnknownJobType is returned for job types without a registered schema.
	ErrUnknownJobType = errors.New("unknown job type")
)

const defaultMaxRetries = 3

// Service coordinates job rows and queue tasks.
type Service struct {
	jobs    store.JobStore
	backend queue.Backend
}

// NewService creates a job service backed by the given store and queue.
func NewService(jobs store.JobStore, backend queue.Backend) *Service {
	return &Service{jobs: jobs, backend: backend}
}

// CreateJob persists the job row and its queue task as one logical
// operation. On success the job is pending and owned by userID. Queue
// unavailability surfaces as an error; nothing is persisted.
//
// The payload is opaque here. The service trusts its caller to have
// validated type and payload; routes do that with ValidatePayload before
// delegating, and the worker is the only component that interprets the
// payload's content.
func (s *Service) CreateJob(ctx context.Context, userID uuid.UUID, jobType models.JobType, payload json.RawMessage) (*models.Job, error) {
	start := time.Now()

	now := time.Now()
	task := &queue.Task{
		TaskID:     uuid.Must(uuid.NewV7()),
		Type:       string(jobType),
		State:      queue.TaskStateCreated,
		Payload:    payload,
		MaxRetries: defaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	job := &models.Job{
		JobID:       uuid.Must(uuid.NewV7()),
		UserID:      userID,
		Type:        jobType,
		Status:      models.JobStatusPending,
		QueueTaskID: task.TaskID,
		Payload:     payload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.jobs.CreateJob(ctx, job, task); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	m := telemetry.GetMetrics()
	m.JobsCreatedTotal.Add(ctx, 1)
	m.JobCreateDuration.Record(ctx, float64(time.Since(start).Milliseconds()))

	log.Info().
		Str("job_id", job.JobID.String()).
		Str("user_id", userID.String()).
		Str("type", string(jobType)).
		Msg("Job created")

	return job, nil
}

// GetJob returns the job if it exists and belongs to userID.
func (s *Service) GetJob(ctx context.Context, userID, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrForbidden
	}
	return job, nil
}

// ListRecentJobs returns the user's jobs ordered newest-updated-first.
func (s *Service) ListRecentJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Job, error) {
	return s.jobs.ListRecentJobs(ctx, userID, limit)
}

// CancelJob moves a non-terminal job to cancelled and asks the queue to drop
// the task if it has not been claimed. The job row is ground truth: a worker
// that already claimed the task will have its late completion rejected by the
// transition check in the store.
func (s *Service) CancelJob(ctx context.Context, userID, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrForbidden
	}
	if job.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}

	cancelled, err := s.backend.RequestCancel(ctx, job.QueueTaskID)
	if err != nil && !errors.Is(err, queue.ErrTaskNotFound) {
		// The queue is unreachable. Leave the job untouched rather than
		// record a cancel the queue never saw.
		return nil, fmt.Errorf("failed to cancel queue task: %w", err)
	}

	updated, err := s.jobs.UpdateJobStatus(ctx, jobID, models.JobStatusCancelled, nil)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			// Finished between our read and the update.
			return nil, ErrAlreadyTerminal
		}
		return nil, err
	}

	telemetry.GetMetrics().JobsCancelledTotal.Add(ctx, 1)

	log.Info().
		Str("job_id", jobID.String()).
		Bool("task_cancelled", cancelled).
		Msg("Job cancelled")

	return updated, nil
}
