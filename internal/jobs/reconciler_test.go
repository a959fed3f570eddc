package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/queue"
	queuemem "github.com/wmsyw/aiWriter-sub006/internal/queue/memory"
	memorystore "github.com/wmsyw/aiWriter-sub006/internal/store/memory"
)

// stalePendingJob persists a pending job whose row predates the sweep cutoff.
// The task goes through whatever queue the store was built over.
func stalePendingJob(t *testing.T, jobs *memorystore.JobStore) *models.Job {
	t.Helper()

	old := time.Now().Add(-time.Hour)
	task := &queue.Task{
		TaskID:     uuid.Must(uuid.NewV7()),
		Type:       string(models.JobTypeMaterialEnhance),
		State:      queue.TaskStateCreated,
		MaxRetries: 3,
		CreatedAt:  old,
		UpdatedAt:  old,
	}
	job := &models.Job{
		JobID:       uuid.Must(uuid.NewV7()),
		UserID:      uuid.Must(uuid.NewV7()),
		Type:        models.JobTypeMaterialEnhance,
		Status:      models.JobStatusPending,
		QueueTaskID: task.TaskID,
		Payload:     json.RawMessage(`{"content":"x"}`),
		CreatedAt:   old,
		UpdatedAt:   old,
	}
	require.NoError(t, jobs.CreateJob(context.Background(), job, task))
	return job
}

func TestSweepMarksOrphanFailed(t *testing.T) {
	ctx := context.Background()
	q := queuemem.New()
	// The store writes its task into a throwaway queue, so q never sees it.
	jobs := memorystore.NewJobStore(queuemem.New())

	job := stalePendingJob(t, jobs)

	r := NewReconciler(jobs, q, ReconcilerConfig{MinAge: time.Minute, BatchSize: 10})
	require.NoError(t, r.Sweep(ctx))

	got, err := jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFailed, got.Status)
	require.Contains(t, string(got.Result), "queue task missing")
}

func TestSweepLeavesHealthyPendingAlone(t *testing.T) {
	ctx := context.Background()
	q := queuemem.New()
	jobs := memorystore.NewJobStore(q)

	job := stalePendingJob(t, jobs)

	r := NewReconciler(jobs, q, ReconcilerConfig{MinAge: time.Minute, BatchSize: 10})
	require.NoError(t, r.Sweep(ctx))

	// Task still in created state, so the row stays pending.
	got, err := jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusPending, got.Status)
}

func TestSweepMirrorsCancelledTask(t *testing.T) {
	ctx := context.Background()
	q := queuemem.New()
	jobs := memorystore.NewJobStore(q)

	job := stalePendingJob(t, jobs)

	_, err := q.RequestCancel(ctx, job.QueueTaskID)
	require.NoError(t, err)

	r := NewReconciler(jobs, q, ReconcilerConfig{MinAge: time.Minute, BatchSize: 10})
	require.NoError(t, r.Sweep(ctx))

	got, err := jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCancelled, got.Status)
}

func TestSweepIgnoresFreshPending(t *testing.T) {
	ctx := context.Background()
	q := queuemem.New()
	jobs := memorystore.NewJobStore(queuemem.New())

	// Orphaned but too fresh to touch.
	now := time.Now()
	task := &queue.Task{TaskID: uuid.Must(uuid.NewV7()), Type: string(models.JobTypeMaterialEnhance), State: queue.TaskStateCreated, MaxRetries: 3, CreatedAt: now, UpdatedAt: now}
	job := &models.Job{
		JobID:       uuid.Must(uuid.NewV7()),
		UserID:      uuid.Must(uuid.NewV7()),
		Type:        models.JobTypeMaterialEnhance,
		Status:      models.JobStatusPending,
		QueueTaskID: task.TaskID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, jobs.CreateJob(ctx, job, task))

	r := NewReconciler(jobs, q, ReconcilerConfig{MinAge: 5 * time.Minute, BatchSize: 10})
	require.NoError(t, r.Sweep(ctx))

	got, err := jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusPending, got.Status)
}
