// Package queuemem is an in-memory queue backend for unit tests and
// single-process development. It mirrors the Postgres backend's semantics:
// FIFO claim order, visibility timeouts, retry on failure, cancel only while
// still in created state.
package queuemem

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wmsyw/aiWriter-sub006/internal/queue"
)

// Backend implements queue.Backend, queue.Consumer, and queue.DebugReporter
// in memory.
type Backend struct {
	mu         sync.RWMutex
	tasks      map[uuid.UUID]*queue.Task
	order      []uuid.UUID // insertion order for FIFO claims
	maxRetries int

	// unavailable simulates a transiently unreachable backend in tests.
	unavailable bool
}

var (
	_ queue.Backend       = (*Backend)(nil)
	_ queue.Consumer      = (*Backend)(nil)
	_ queue.DebugReporter = (*Backend)(nil)
)

func New() *Backend {
	return &Backend{
		tasks:      make(map[uuid.UUID]*queue.Task),
		maxRetries: 3,
	}
}

// SetUnavailable makes every call fail with queue.ErrUnavailable.
func (b *Backend) SetUnavailable(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unavailable = down
}

func (b *Backend) checkAvailable() error {
	if b.unavailable {
		return queue.ErrUnavailable
	}
	return nil
}

// Put inserts a pre-built task. Used by the memory job store to mirror the
// Postgres transactional create.
func (b *Backend) Put(task *queue.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAvailable(); err != nil {
		return err
	}

	cp := *task
	b.tasks[cp.TaskID] = &cp
	b.order = append(b.order, cp.TaskID)
	return nil
}

func (b *Backend) Enqueue(ctx context.Context, taskType string, payload json.RawMessage) (uuid.UUID, error) {
	now := time.Now()
	task := &queue.Task{
		TaskID:     uuid.Must(uuid.NewV7()),
		Type:       taskType,
		State:      queue.TaskStateCreated,
		Payload:    payload,
		MaxRetries: b.maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := b.Put(task); err != nil {
		return uuid.Nil, err
	}
	return task.TaskID, nil
}

func (b *Backend) FetchState(ctx context.Context, taskID uuid.UUID) (*queue.TaskStateInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkAvailable(); err != nil {
		return nil, err
	}

	task, ok := b.tasks[taskID]
	if !ok {
		return nil, queue.ErrTaskNotFound
	}
	return &queue.TaskStateInfo{
		State:       task.State,
		RetryCount:  task.RetryCount,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
		CompletedAt: task.CompletedAt,
	}, nil
}

func (b *Backend) RequestCancel(ctx context.Context, taskID uuid.UUID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAvailable(); err != nil {
		return false, err
	}

	task, ok := b.tasks[taskID]
	if !ok {
		return false, nil
	}
	if task.State != queue.TaskStateCreated {
		return false, nil
	}

	now := time.Now()
	task.State = queue.TaskStateCancelled
	task.UpdatedAt = now
	task.CompletedAt = &now
	return true, nil
}

func (b *Backend) Claim(ctx context.Context, types []string, max int, visibility time.Duration) ([]*queue.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAvailable(); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	now := time.Now()
	var claimed []*queue.Task
	for _, id := range b.order {
		if len(claimed) >= max {
			break
		}
		task := b.tasks[id]
		if !wanted[task.Type] {
			continue
		}
		expired := task.State == queue.TaskStateActive &&
			task.VisibleUntil != nil && task.VisibleUntil.Before(now)
		if task.State != queue.TaskStateCreated && !expired {
			continue
		}

		until := now.Add(visibility)
		task.State = queue.TaskStateActive
		task.VisibleUntil = &until
		task.UpdatedAt = now

		cp := *task
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (b *Backend) Complete(ctx context.Context, taskID uuid.UUID) error {
	return b.settle(taskID, func(task *queue.Task, now time.Time) {
		task.State = queue.TaskStateCompleted
		task.VisibleUntil = nil
		task.CompletedAt = &now
	})
}

func (b *Backend) Fail(ctx context.Context, taskID uuid.UUID, reason string) error {
	return b.settle(taskID, func(task *queue.Task, now time.Time) {
		task.RetryCount++
		if task.RetryCount >= task.MaxRetries {
			task.State = queue.TaskStateFailed
			task.CompletedAt = &now
		} else {
			task.State = queue.TaskStateCreated
		}
		task.VisibleUntil = nil
	})
}

func (b *Backend) settle(taskID uuid.UUID, apply func(*queue.Task, time.Time)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAvailable(); err != nil {
		return err
	}

	task, ok := b.tasks[taskID]
	if !ok || task.State != queue.TaskStateActive {
		return queue.ErrTaskNotFound
	}

	now := time.Now()
	apply(task, now)
	task.UpdatedAt = now
	return nil
}

func (b *Backend) CountsByTypeAndState(ctx context.Context) ([]queue.StateCount, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkAvailable(); err != nil {
		return nil, err
	}

	byKey := make(map[[2]string]int64)
	for _, task := range b.tasks {
		byKey[[2]string{task.Type, string(task.State)}]++
	}

	counts := make([]queue.StateCount, 0, len(byKey))
	for key, n := range byKey {
		counts = append(counts, queue.StateCount{
			Type:  key[0],
			State: queue.TaskState(key[1]),
			Count: n,
		})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Type != counts[j].Type {
			return counts[i].Type < counts[j].Type
		}
		return counts[i].State < counts[j].State
	})
	return counts, nil
}

func (b *Backend) RecentTasks(ctx context.Context, limit int) ([]*queue.Task, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkAvailable(); err != nil {
		return nil, err
	}

	var tasks []*queue.Task
	for i := len(b.order) - 1; i >= 0 && len(tasks) < limit; i-- {
		cp := *b.tasks[b.order[i]]
		tasks = append(tasks, &cp)
	}
	return tasks, nil
}
