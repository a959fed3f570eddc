// Package worker claims tasks from the queue, runs the handler for their
// type, and settles both the task and the job row. The queue drives retry;
// the worker only reports outcomes.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wmsyw/aiWriter-sub006/internal/ai"
	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/queue"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
	"github.com/wmsyw/aiWriter-sub006/internal/telemetry"
)

// Config controls the claim loop.
type Config struct {
	// PollInterval is how often the worker polls when the queue is empty.
	PollInterval time.Duration
	// BatchSize is the maximum tasks claimed per poll.
	BatchSize int
	// Visibility is how long a claim hides a task from other workers. It
	// must exceed the slowest handler run, or the task gets claimed twice.
	Visibility time.Duration
}

// DefaultConfig returns the standard worker settings.
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		BatchSize:    5,
		Visibility:   5 * time.Minute,
	}
}

// Worker runs the claim loop.
type Worker struct {
	consumer  queue.Consumer
	jobs      store.JobStore
	handlers  map[models.JobType]Handler
	deliverer *HookDeliverer
	cfg       Config
}

// New creates a worker with handlers for every known job type.
func New(consumer queue.Consumer, jobs store.JobStore, templates store.TemplateStore, hooks store.HookStore, client ai.Client, cfg Config) (*Worker, error) {
	prompts, err := loadPrompts()
	if err != nil {
		return nil, err
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.Visibility <= 0 {
		cfg.Visibility = 5 * time.Minute
	}

	handlers := map[models.JobType]Handler{
		models.JobTypeMaterialEnhance: NewMaterialEnhanceHandler(client, prompts),
		models.JobTypeTemplateRender:  NewTemplateRenderHandler(client, templates, prompts),
	}

	return &Worker{
		consumer:  consumer,
		jobs:      jobs,
		handlers:  handlers,
		deliverer: NewHookDeliverer(hooks),
		cfg:       cfg,
	}, nil
}

// Run polls and executes tasks until the context is cancelled. Tasks in
// flight when cancellation arrives finish their current attempt.
func (w *Worker) Run(ctx context.Context) error {
	types := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, string(t))
	}

	log.Info().
		Strs("types", types).
		Int("batch_size", w.cfg.BatchSize).
		Msg("Worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.poll(ctx, types); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Worker poll failed")
			}
		}
	}
}

func (w *Worker) poll(ctx context.Context, types []string) error {
	tasks, err := w.consumer.Claim(ctx, types, w.cfg.BatchSize, w.cfg.Visibility)
	if err != nil {
		if errors.Is(err, queue.ErrUnavailable) {
			log.Warn().Err(err).Msg("Queue unavailable, will retry")
			return nil
		}
		return fmt.Errorf("claim failed: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	telemetry.GetMetrics().TasksClaimedTotal.Add(ctx, int64(len(tasks)))

	for _, task := range tasks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.runTask(ctx, task)
	}
	return nil
}

// runTask executes one claimed task end to end. All failure paths settle
// the task; the job row is updated wherever the transition table allows.
func (w *Worker) runTask(ctx context.Context, task *queue.Task) {
	logger := log.With().
		Str("task_id", task.TaskID.String()).
		Str("type", task.Type).
		Int("retry", task.RetryCount).
		Logger()

	job, err := w.jobs.GetJobByQueueTask(ctx, task.TaskID)
	if err != nil {
		// A task without a job row cannot report results anywhere. Fail it
		// so it does not spin through retries invisibly.
		logger.Error().Err(err).Msg("No job row for task")
		w.failTask(ctx, task, nil, "job row missing")
		return
	}

	if job.Status.Terminal() {
		// Cancelled (or otherwise settled) after the task was enqueued.
		// Settle the task and move on; the job row already has the answer.
		logger.Info().Str("status", string(job.Status)).Msg("Job already terminal, completing task")
		if err := w.consumer.Complete(ctx, task.TaskID); err != nil {
			logger.Warn().Err(err).Msg("Failed to complete task for terminal job")
		}
		return
	}

	// First attempt moves pending to active; a retry finds it already
	// active and the conditional update is a no-op rejection.
	if _, err := w.jobs.UpdateJobStatus(ctx, job.JobID, models.JobStatusActive, nil); err != nil {
		if !errors.Is(err, store.ErrInvalidTransition) {
			logger.Error().Err(err).Msg("Failed to mark job active")
			w.failTask(ctx, task, job, "failed to mark job active")
			return
		}
	}

	handler, ok := w.handlers[models.JobType(task.Type)]
	if !ok {
		logger.Error().Msg("No handler for task type")
		w.failTask(ctx, task, job, "no handler for task type")
		return
	}

	started := time.Now()
	result, err := handler.Execute(ctx, job)
	if err != nil {
		logger.Warn().Err(err).Dur("duration", time.Since(started)).Msg("Handler failed")
		w.failTask(ctx, task, job, err.Error())
		return
	}

	if err := w.consumer.Complete(ctx, task.TaskID); err != nil {
		// The task stays claimed until visibility expires, then another
		// worker repeats the run. Do not touch the job row on this path.
		logger.Error().Err(err).Msg("Failed to complete task")
		return
	}
	telemetry.GetMetrics().TasksCompletedTotal.Add(ctx, 1)

	updated, err := w.jobs.UpdateJobStatus(ctx, job.JobID, models.JobStatusCompleted, result)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			// The job was cancelled mid-run. The completion loses.
			logger.Info().Msg("Late completion rejected, job already terminal")
			return
		}
		logger.Error().Err(err).Msg("Failed to mark job completed")
		return
	}
	telemetry.GetMetrics().JobsCompletedTotal.Add(ctx, 1)

	logger.Info().Dur("duration", time.Since(started)).Msg("Task completed")
	w.deliverer.Deliver(ctx, updated)
}

// failTask records the failed attempt on the queue and, when retries are
// exhausted, settles the job row as failed.
func (w *Worker) failTask(ctx context.Context, task *queue.Task, job *models.Job, reason string) {
	if err := w.consumer.Fail(ctx, task.TaskID, reason); err != nil {
		log.Error().Err(err).Str("task_id", task.TaskID.String()).Msg("Failed to record task failure")
		return
	}
	telemetry.GetMetrics().TasksFailedTotal.Add(ctx, 1)

	final := task.RetryCount+1 >= task.MaxRetries
	if !final || job == nil {
		return
	}

	result, _ := json.Marshal(map[string]string{"error": reason})
	updated, err := w.jobs.UpdateJobStatus(ctx, job.JobID, models.JobStatusFailed, result)
	if err != nil {
		if !errors.Is(err, store.ErrInvalidTransition) {
			log.Error().Err(err).Str("job_id", job.JobID.String()).Msg("Failed to mark job failed")
		}
		return
	}
	telemetry.GetMetrics().JobsFailedTotal.Add(ctx, 1)
	w.deliverer.Deliver(ctx, updated)
}
