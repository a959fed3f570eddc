// Package memory provides in-memory store implementations for unit tests
// and single-process development. They mirror the Postgres stores' contract,
// including forward-only job status transitions and the strictly-greater
// updated_at comparison the streaming watermark relies on.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/queue"
	queuemem "github.com/wmsyw/aiWriter-sub006/internal/queue/memory"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

// JobStore implements store.JobStore in memory. It pairs with a memory queue
// backend so CreateJob can mirror the Postgres transactional insert.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[uuid.UUID]*models.Job
	queue *queuemem.Backend

	// clock is overridable so tests can control updated_at ordering.
	clock func() time.Time
}

var _ store.JobStore = (*JobStore)(nil)

// NewJobStore creates a memory job store writing queue tasks to q.
func NewJobStore(q *queuemem.Backend) *JobStore {
	return &JobStore{
		jobs:  make(map[uuid.UUID]*models.Job),
		queue: q,
		clock: time.Now,
	}
}

// SetClock replaces the store's time source. Test helper.
func (s *JobStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// CreateJob stores the job and hands the task to the queue. The queue write
// happens first so a queue failure leaves no job row, matching Postgres.
func (s *JobStore) CreateJob(ctx context.Context, job *models.Job, task *queue.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.queue.Put(task); err != nil {
		return err
	}

	cp := *job
	s.jobs[cp.JobID] = &cp
	return nil
}

func (s *JobStore) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *JobStore) GetJobByQueueTask(ctx context.Context, taskID uuid.UUID) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if job.QueueTaskID == taskID {
			cp := *job
			return &cp, nil
		}
	}
	return nil, store.ErrJobNotFound
}

func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus, result json.RawMessage) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	if !job.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, job.Status, status)
	}

	job.Status = status
	if result != nil {
		job.Result = result
	}
	job.UpdatedAt = s.clock()

	cp := *job
	return &cp, nil
}

func (s *JobStore) ListRecentJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(limit, func(job *models.Job) bool {
		return job.UserID == userID
	}), nil
}

func (s *JobStore) ListJobsUpdatedSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(limit, func(job *models.Job) bool {
		return job.UserID == userID && job.UpdatedAt.After(since)
	}), nil
}

func (s *JobStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := s.collect(limit, func(job *models.Job) bool {
		return job.Status == models.JobStatusPending && job.CreatedAt.Before(cutoff)
	})
	// Oldest first for the sweep
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// collect returns copies of matching jobs, newest-updated-first.
func (s *JobStore) collect(limit int, match func(*models.Job) bool) []*models.Job {
	var jobs []*models.Job
	for _, job := range s.jobs {
		if match(job) {
			cp := *job
			jobs = append(jobs, &cp)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}
