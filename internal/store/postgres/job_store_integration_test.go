//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/queue"
	queuepg "github.com/wmsyw/aiWriter-sub006/internal/queue/postgres"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := NewPool(ctx, &PoolConfig{
		ConnString:  fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		AutoMigrate: true,
	})
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}
	return pool, cleanup
}

func insertUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	users := NewUserStore(pool)
	user := &models.User{
		UserID:       uuid.Must(uuid.NewV7()),
		Email:        fmt.Sprintf("%s@example.com", uuid.Must(uuid.NewV7())),
		Name:         "Writer",
		PasswordHash: "x",
		Role:         models.RoleUser,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, users.Create(ctx, user))
	return user.UserID
}

func buildJob(userID uuid.UUID) (*models.Job, *queue.Task) {
	task := queuepg.NewTask(string(models.JobTypeMaterialEnhance), json.RawMessage(`{"content":"draft"}`), 3)
	now := time.Now()
	job := &models.Job{
		JobID:       uuid.Must(uuid.NewV7()),
		UserID:      userID,
		Type:        models.JobTypeMaterialEnhance,
		Status:      models.JobStatusPending,
		QueueTaskID: task.TaskID,
		Payload:     json.RawMessage(`{"content":"draft"}`),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return job, task
}

func TestIntegration_JobLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	jobs := NewJobStore(pool)
	backend := queuepg.New(pool, 3)
	userID := insertUser(t, ctx, pool)

	t.Run("create writes job and task together", func(t *testing.T) {
		job, task := buildJob(userID)
		require.NoError(t, jobs.CreateJob(ctx, job, task))

		got, err := jobs.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		require.Equal(t, models.JobStatusPending, got.Status)

		info, err := backend.FetchState(ctx, task.TaskID)
		require.NoError(t, err)
		require.Equal(t, queue.TaskStateCreated, info.State)
	})

	t.Run("claim and complete", func(t *testing.T) {
		job, task := buildJob(userID)
		require.NoError(t, jobs.CreateJob(ctx, job, task))

		claimed, err := backend.Claim(ctx, []string{string(models.JobTypeMaterialEnhance)}, 10, 5*time.Minute)
		require.NoError(t, err)
		require.NotEmpty(t, claimed)

		var ours *queue.Task
		for _, c := range claimed {
			if c.TaskID == task.TaskID {
				ours = c
			}
		}
		require.NotNil(t, ours)

		_, err = jobs.UpdateJobStatus(ctx, job.JobID, models.JobStatusActive, nil)
		require.NoError(t, err)

		require.NoError(t, backend.Complete(ctx, task.TaskID))
		result := json.RawMessage(`{"enhanced":"better"}`)
		updated, err := jobs.UpdateJobStatus(ctx, job.JobID, models.JobStatusCompleted, result)
		require.NoError(t, err)
		require.Equal(t, models.JobStatusCompleted, updated.Status)
		require.JSONEq(t, string(result), string(updated.Result))
	})

	t.Run("forward only transitions", func(t *testing.T) {
		job, task := buildJob(userID)
		require.NoError(t, jobs.CreateJob(ctx, job, task))

		// pending cannot jump straight to completed.
		_, err := jobs.UpdateJobStatus(ctx, job.JobID, models.JobStatusCompleted, nil)
		require.ErrorIs(t, err, store.ErrInvalidTransition)

		_, err = jobs.UpdateJobStatus(ctx, job.JobID, models.JobStatusCancelled, nil)
		require.NoError(t, err)

		// Terminal rows never move again.
		_, err = jobs.UpdateJobStatus(ctx, job.JobID, models.JobStatusActive, nil)
		require.ErrorIs(t, err, store.ErrInvalidTransition)
	})

	t.Run("cancel before claim", func(t *testing.T) {
		job, task := buildJob(userID)
		require.NoError(t, jobs.CreateJob(ctx, job, task))

		ok, err := backend.RequestCancel(ctx, task.TaskID)
		require.NoError(t, err)
		require.True(t, ok)

		info, err := backend.FetchState(ctx, task.TaskID)
		require.NoError(t, err)
		require.Equal(t, queue.TaskStateCancelled, info.State)

		// A cancelled task never comes out of a claim.
		claimed, err := backend.Claim(ctx, []string{string(models.JobTypeMaterialEnhance)}, 100, time.Minute)
		require.NoError(t, err)
		for _, c := range claimed {
			require.NotEqual(t, task.TaskID, c.TaskID)
		}
	})

	t.Run("fail exhausts retries", func(t *testing.T) {
		job, task := buildJob(userID)
		task.MaxRetries = 1
		require.NoError(t, jobs.CreateJob(ctx, job, task))

		claimed, err := backend.Claim(ctx, []string{string(models.JobTypeMaterialEnhance)}, 100, time.Minute)
		require.NoError(t, err)

		var found bool
		for _, c := range claimed {
			if c.TaskID == task.TaskID {
				found = true
			}
		}
		require.True(t, found)

		require.NoError(t, backend.Fail(ctx, task.TaskID, "provider down"))

		info, err := backend.FetchState(ctx, task.TaskID)
		require.NoError(t, err)
		require.Equal(t, queue.TaskStateFailed, info.State)
		require.Equal(t, 1, info.RetryCount)
	})

	t.Run("updated since watermark", func(t *testing.T) {
		watermarkUser := insertUser(t, ctx, pool)

		job, task := buildJob(watermarkUser)
		require.NoError(t, jobs.CreateJob(ctx, job, task))

		listed, err := jobs.ListRecentJobs(ctx, watermarkUser, 50)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		watermark := listed[0].UpdatedAt

		// Nothing changed, so nothing is strictly after the watermark.
		delta, err := jobs.ListJobsUpdatedSince(ctx, watermarkUser, watermark, 100)
		require.NoError(t, err)
		require.Empty(t, delta)

		_, err = jobs.UpdateJobStatus(ctx, job.JobID, models.JobStatusActive, nil)
		require.NoError(t, err)

		delta, err = jobs.ListJobsUpdatedSince(ctx, watermarkUser, watermark, 100)
		require.NoError(t, err)
		require.Len(t, delta, 1)
		require.Equal(t, job.JobID, delta[0].JobID)
		require.Equal(t, models.JobStatusActive, delta[0].Status)
	})

	t.Run("pending older than cutoff", func(t *testing.T) {
		sweepUser := insertUser(t, ctx, pool)

		job, task := buildJob(sweepUser)
		require.NoError(t, jobs.CreateJob(ctx, job, task))

		// Fresh rows stay out of the sweep window.
		stale, err := jobs.ListPendingOlderThan(ctx, time.Now().Add(-time.Minute), 100)
		require.NoError(t, err)
		for _, s := range stale {
			require.NotEqual(t, job.JobID, s.JobID)
		}

		stale, err = jobs.ListPendingOlderThan(ctx, time.Now().Add(time.Minute), 100)
		require.NoError(t, err)
		var found bool
		for _, s := range stale {
			if s.JobID == job.JobID {
				found = true
			}
		}
		require.True(t, found)
	})
}

func TestIntegration_ConcurrentClaim(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	jobs := NewJobStore(pool)
	backend := queuepg.New(pool, 3)
	userID := insertUser(t, ctx, pool)

	const total = 6
	for i := 0; i < total; i++ {
		job, task := buildJob(userID)
		require.NoError(t, jobs.CreateJob(ctx, job, task))
	}

	type claimResult struct {
		tasks []*queue.Task
		err   error
	}
	results := make(chan claimResult, 3)
	for w := 0; w < 3; w++ {
		go func() {
			claimed, err := backend.Claim(ctx, []string{string(models.JobTypeMaterialEnhance)}, 2, 5*time.Minute)
			results <- claimResult{tasks: claimed, err: err}
		}()
	}

	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 3; i++ {
		result := <-results
		require.NoError(t, result.err)
		for _, task := range result.tasks {
			require.False(t, seen[task.TaskID], "task %s claimed twice", task.TaskID)
			seen[task.TaskID] = true
		}
	}
	require.Equal(t, total, len(seen))
}
