package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wmsyw/aiWriter-sub006/internal/ai"
	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/queue"
	queuemem "github.com/wmsyw/aiWriter-sub006/internal/queue/memory"
	memorystore "github.com/wmsyw/aiWriter-sub006/internal/store/memory"
)

type workerFixture struct {
	queue  *queuemem.Backend
	jobs   *memorystore.JobStore
	worker *Worker
	userID uuid.UUID
}

func newWorkerFixture(t *testing.T, client ai.Client) *workerFixture {
	t.Helper()

	q := queuemem.New()
	jobs := memorystore.NewJobStore(q)
	w, err := New(q, jobs, memorystore.NewTemplateStore(), memorystore.NewHookStore(), client, DefaultConfig())
	require.NoError(t, err)

	return &workerFixture{
		queue:  q,
		jobs:   jobs,
		worker: w,
		userID: uuid.Must(uuid.NewV7()),
	}
}

// enqueue creates a job row with its queue task, the way the job service does.
func (f *workerFixture) enqueue(t *testing.T, maxRetries int) *models.Job {
	t.Helper()

	now := time.Now()
	task := &queue.Task{
		TaskID:     uuid.Must(uuid.NewV7()),
		Type:       string(models.JobTypeMaterialEnhance),
		State:      queue.TaskStateCreated,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	job := &models.Job{
		JobID:       uuid.Must(uuid.NewV7()),
		UserID:      f.userID,
		Type:        models.JobTypeMaterialEnhance,
		Status:      models.JobStatusPending,
		QueueTaskID: task.TaskID,
		Payload:     json.RawMessage(`{"content":"rough draft"}`),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.jobs.CreateJob(context.Background(), job, task))
	return job
}

// claimOne claims the single outstanding task.
func (f *workerFixture) claimOne(t *testing.T) *queue.Task {
	t.Helper()

	tasks, err := f.queue.Claim(context.Background(), []string{string(models.JobTypeMaterialEnhance)}, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	return tasks[0]
}

func TestRunTaskCompletesJob(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t, &ai.StaticClient{Response: "better prose"})

	job := f.enqueue(t, 3)
	task := f.claimOne(t)

	f.worker.runTask(ctx, task)

	got, err := f.jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, got.Status)
	require.Contains(t, string(got.Result), "better prose")

	info, err := f.queue.FetchState(ctx, task.TaskID)
	require.NoError(t, err)
	require.Equal(t, queue.TaskStateCompleted, info.State)
}

func TestRunTaskFinalFailureSettlesJob(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t, &ai.StaticClient{Err: errors.New("provider down")})

	// One attempt only, so the first failure is final.
	job := f.enqueue(t, 1)
	task := f.claimOne(t)

	f.worker.runTask(ctx, task)

	got, err := f.jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFailed, got.Status)
	require.Contains(t, string(got.Result), "provider down")

	info, err := f.queue.FetchState(ctx, task.TaskID)
	require.NoError(t, err)
	require.Equal(t, queue.TaskStateFailed, info.State)
}

func TestRunTaskFailureWithRetriesLeft(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t, &ai.StaticClient{Err: errors.New("provider down")})

	job := f.enqueue(t, 3)
	task := f.claimOne(t)

	f.worker.runTask(ctx, task)

	// The job row stays active; the queue will hand the task out again.
	got, err := f.jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusActive, got.Status)

	info, err := f.queue.FetchState(ctx, task.TaskID)
	require.NoError(t, err)
	require.Equal(t, queue.TaskStateCreated, info.State)
	require.Equal(t, 1, info.RetryCount)
}

func TestRunTaskSkipsTerminalJob(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t, &ai.StaticClient{Response: "should never run"})

	job := f.enqueue(t, 3)
	task := f.claimOne(t)

	// Cancelled between enqueue and claim.
	_, err := f.jobs.UpdateJobStatus(ctx, job.JobID, models.JobStatusCancelled, nil)
	require.NoError(t, err)

	f.worker.runTask(ctx, task)

	got, err := f.jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCancelled, got.Status)
	require.Empty(t, got.Result)

	// The task is settled so it never comes back around.
	info, err := f.queue.FetchState(ctx, task.TaskID)
	require.NoError(t, err)
	require.Equal(t, queue.TaskStateCompleted, info.State)
}

func TestRunTaskJobRowMissing(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t, &ai.StaticClient{Response: "ok"})

	// A task with no job row anywhere. One attempt makes the failure final.
	now := time.Now()
	require.NoError(t, f.queue.Put(&queue.Task{
		TaskID:     uuid.Must(uuid.NewV7()),
		Type:       string(models.JobTypeMaterialEnhance),
		State:      queue.TaskStateCreated,
		MaxRetries: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
	task := f.claimOne(t)

	f.worker.runTask(ctx, task)

	info, err := f.queue.FetchState(ctx, task.TaskID)
	require.NoError(t, err)
	require.Equal(t, queue.TaskStateFailed, info.State)
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	f := newWorkerFixture(t, &ai.StaticClient{Response: "ok"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.worker.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
