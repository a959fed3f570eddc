package memory

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
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

func newJob(userID uuid.UUID, updatedAt time.Time) (*models.Job, *queue.Task) {
	now := updatedAt
	task := &queue.Task{
		TaskID:     uuid.Must(uuid.NewV7()),
		Type:       string(models.JobTypeMaterialEnhance),
		State:      queue.TaskStateCreated,
		MaxRetries: 3,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	job := &models.Job{
		JobID:       uuid.Must(uuid.NewV7()),
		UserID:      userID,
		Type:        models.JobTypeMaterialEnhance,
		Status:      models.JobStatusPending,
		QueueTaskID: task.TaskID,
		Payload:     json.RawMessage(`{"content":"x"}`),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return job, task
}

func TestCreateJobWritesTaskFirst(t *testing.T) {
	ctx := context.Background()
	q := queuemem.New()
	s := NewJobStore(q)

	userID := uuid.Must(uuid.NewV7())
	job, task := newJob(userID, time.Now())
	require.NoError(t, s.CreateJob(ctx, job, task))

	got, err := s.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusPending, got.Status)

	info, err := q.FetchState(ctx, task.TaskID)
	require.NoError(t, err)
	require.Equal(t, queue.TaskStateCreated, info.State)
}

func TestCreateJobQueueDownLeavesNoRow(t *testing.T) {
	ctx := context.Background()
	q := queuemem.New()
	s := NewJobStore(q)

	q.SetUnavailable(true)

	job, task := newJob(uuid.Must(uuid.NewV7()), time.Now())
	err := s.CreateJob(ctx, job, task)
	require.ErrorIs(t, err, queue.ErrUnavailable)

	_, err = s.GetJob(ctx, job.JobID)
	require.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestGetJobByQueueTask(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(queuemem.New())

	job, task := newJob(uuid.Must(uuid.NewV7()), time.Now())
	require.NoError(t, s.CreateJob(ctx, job, task))

	got, err := s.GetJobByQueueTask(ctx, task.TaskID)
	require.NoError(t, err)
	require.Equal(t, job.JobID, got.JobID)

	_, err = s.GetJobByQueueTask(ctx, uuid.Must(uuid.NewV7()))
	require.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestUpdateJobStatusEnforcesTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(queuemem.New())

	job, task := newJob(uuid.Must(uuid.NewV7()), time.Now())
	require.NoError(t, s.CreateJob(ctx, job, task))

	// pending -> completed skips active.
	_, err := s.UpdateJobStatus(ctx, job.JobID, models.JobStatusCompleted, nil)
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	updated, err := s.UpdateJobStatus(ctx, job.JobID, models.JobStatusActive, nil)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusActive, updated.Status)

	result := json.RawMessage(`{"enhanced":"text"}`)
	updated, err = s.UpdateJobStatus(ctx, job.JobID, models.JobStatusCompleted, result)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, updated.Status)
	require.JSONEq(t, string(result), string(updated.Result))

	// Terminal rows never move again.
	_, err = s.UpdateJobStatus(ctx, job.JobID, models.JobStatusCancelled, nil)
	require.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestUpdateJobStatusNilResultKeepsExisting(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(queuemem.New())

	job, task := newJob(uuid.Must(uuid.NewV7()), time.Now())
	require.NoError(t, s.CreateJob(ctx, job, task))

	_, err := s.UpdateJobStatus(ctx, job.JobID, models.JobStatusActive, json.RawMessage(`{"partial":true}`))
	require.NoError(t, err)

	updated, err := s.UpdateJobStatus(ctx, job.JobID, models.JobStatusCancelled, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"partial":true}`, string(updated.Result))
}

func TestListJobsUpdatedSinceIsStrict(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(queuemem.New())
	userID := uuid.Must(uuid.NewV7())

	base := time.Now().Truncate(time.Millisecond)
	var jobs []*models.Job
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		job, task := newJob(userID, ts)
		require.NoError(t, s.CreateJob(ctx, job, task))
		jobs = append(jobs, job)
	}

	// Rows exactly at the watermark are excluded.
	got, err := s.ListJobsUpdatedSince(ctx, userID, jobs[1].UpdatedAt, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, jobs[2].JobID, got[0].JobID)

	got, err = s.ListJobsUpdatedSince(ctx, userID, base.Add(-time.Second), 100)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Newest updated first.
	require.Equal(t, jobs[2].JobID, got[0].JobID)
	require.Equal(t, jobs[0].JobID, got[2].JobID)

	// Other users' jobs are invisible.
	got, err = s.ListJobsUpdatedSince(ctx, uuid.Must(uuid.NewV7()), base.Add(-time.Second), 100)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestListRecentJobsLimit(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(queuemem.New())
	userID := uuid.Must(uuid.NewV7())

	base := time.Now()
	for i := 0; i < 5; i++ {
		job, task := newJob(userID, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.CreateJob(ctx, job, task))
	}

	got, err := s.ListRecentJobs(ctx, userID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].UpdatedAt.After(got[1].UpdatedAt))
}

func TestListPendingOlderThan(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(queuemem.New())
	userID := uuid.Must(uuid.NewV7())

	old, oldTask := newJob(userID, time.Now().Add(-time.Hour))
	old.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.CreateJob(ctx, old, oldTask))

	fresh, freshTask := newJob(userID, time.Now())
	require.NoError(t, s.CreateJob(ctx, fresh, freshTask))

	active, activeTask := newJob(userID, time.Now().Add(-time.Hour))
	active.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.CreateJob(ctx, active, activeTask))
	_, err := s.UpdateJobStatus(ctx, active.JobID, models.JobStatusActive, nil)
	require.NoError(t, err)

	got, err := s.ListPendingOlderThan(ctx, time.Now().Add(-30*time.Minute), 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, old.JobID, got[0].JobID)
}
