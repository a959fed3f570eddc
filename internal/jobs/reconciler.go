package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/queue"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
	"github.com/wmsyw/aiWriter-sub006/internal/telemetry"
)

// ReconcilerConfig controls the orphan sweep.
type ReconcilerConfig struct {
	// Interval between sweeps.
	Interval time.Duration
	// MinAge is how long a job must have been pending before the sweep
	// considers it. Keeps the reconciler clear of jobs still in flight
	// between the row insert and the first worker claim.
	MinAge time.Duration
	// BatchSize caps the rows examined per sweep.
	BatchSize int
}

// DefaultReconcilerConfig returns conservative sweep settings.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:  time.Minute,
		MinAge:    5 * time.Minute,
		BatchSize: 100,
	}
}

// Reconciler periodically finds jobs stuck in pending whose queue task has
// vanished or finished without the job row catching up, and repairs the row.
// It never touches the queue; job rows are the only thing it writes.
type Reconciler struct {
	jobs    store.JobStore
	backend queue.Backend
	cfg     ReconcilerConfig
}

// NewReconciler creates a reconciler over the given store and queue.
func NewReconciler(jobs store.JobStore, backend queue.Backend, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{jobs: jobs, backend: backend, cfg: cfg}
}

// Run sweeps on the configured interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", r.cfg.Interval).
		Dur("min_age", r.cfg.MinAge).
		Msg("Reconciler started")

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Reconciler sweep failed")
			}
		}
	}
}

// Sweep runs one reconciliation pass.
func (r *Reconciler) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.cfg.MinAge)
	stale, err := r.jobs.ListPendingOlderThan(ctx, cutoff, r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list stale pending jobs: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	log.Debug().Int("count", len(stale)).Msg("Examining stale pending jobs")

	var repaired int
	for _, job := range stale {
		ok, err := r.reconcileJob(ctx, job)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Warn().Err(err).Str("job_id", job.JobID.String()).Msg("Failed to reconcile job")
			continue
		}
		if ok {
			repaired++
		}
	}

	if repaired > 0 {
		telemetry.GetMetrics().ReconciledOrphansTotal.Add(ctx, int64(repaired))
		log.Info().Int("repaired", repaired).Msg("Reconciled orphaned jobs")
	}
	return nil
}

// reconcileJob inspects one stale pending job and repairs its row when the
// queue task is gone or already settled. Returns true when the row changed.
func (r *Reconciler) reconcileJob(ctx context.Context, job *models.Job) (bool, error) {
	info, err := r.fetchStateWithRetry(ctx, job.QueueTaskID)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			// The row exists but the task does not. Either the enqueue was
			// lost or the task was purged; the job can never run.
			return true, r.markFailed(ctx, job, "queue task missing")
		}
		return false, err
	}

	switch info.State {
	case queue.TaskStateFailed:
		return true, r.markFailed(ctx, job, "queue task failed without status update")
	case queue.TaskStateCancelled:
		_, err := r.jobs.UpdateJobStatus(ctx, job.JobID, models.JobStatusCancelled, nil)
		if errors.Is(err, store.ErrInvalidTransition) {
			return false, nil
		}
		return err == nil, err
	default:
		// created or active: the worker will get to it.
		return false, nil
	}
}

func (r *Reconciler) fetchStateWithRetry(ctx context.Context, taskID uuid.UUID) (*queue.TaskStateInfo, error) {
	return backoff.Retry(ctx, func() (*queue.TaskStateInfo, error) {
		info, err := r.backend.FetchState(ctx, taskID)
		if err != nil {
			if errors.Is(err, queue.ErrUnavailable) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return info, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(4),
	)
}

func (r *Reconciler) markFailed(ctx context.Context, job *models.Job, reason string) error {
	result, _ := json.Marshal(map[string]string{"error": reason})
	_, err := r.jobs.UpdateJobStatus(ctx, job.JobID, models.JobStatusFailed, result)
	if errors.Is(err, store.ErrInvalidTransition) {
		// Raced with a worker update. The row is no longer pending, which is
		// exactly the outcome a repair wants.
		return nil
	}
	if err != nil {
		return err
	}
	log.Warn().
		Str("job_id", job.JobID.String()).
		Str("reason", reason).
		Msg("Marked orphaned job failed")
	return nil
}
