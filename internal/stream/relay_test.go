package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/queue"
	queuemem "github.com/wmsyw/aiWriter-sub006/internal/queue/memory"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
	memorystore "github.com/wmsyw/aiWriter-sub006/internal/store/memory"
)

type recordedEvent struct {
	name string
	data []byte
}

// fakeWriter collects frames in memory. Safe for use from a Serve goroutine.
type fakeWriter struct {
	mu       sync.Mutex
	events   []recordedEvent
	comments []string
	err      error
}

func (w *fakeWriter) WriteEvent(event string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	w.events = append(w.events, recordedEvent{name: event, data: cp})
	return nil
}

func (w *fakeWriter) WriteComment(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.comments = append(w.comments, text)
	return nil
}

func (w *fakeWriter) snapshot() ([]recordedEvent, []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]recordedEvent(nil), w.events...), append([]string(nil), w.comments...)
}

func decodeEvent(t *testing.T, ev recordedEvent) JobsEvent {
	t.Helper()
	require.Equal(t, EventJobs, ev.name)
	var body JobsEvent
	require.NoError(t, json.Unmarshal(ev.data, &body))
	return body
}

// seedJob writes a job row with the given update time.
func seedJob(t *testing.T, jobs *memorystore.JobStore, userID uuid.UUID, updatedAt time.Time) *models.Job {
	t.Helper()

	task := &queue.Task{
		TaskID:     uuid.Must(uuid.NewV7()),
		Type:       string(models.JobTypeMaterialEnhance),
		State:      queue.TaskStateCreated,
		MaxRetries: 3,
		CreatedAt:  updatedAt,
		UpdatedAt:  updatedAt,
	}
	job := &models.Job{
		JobID:       uuid.Must(uuid.NewV7()),
		UserID:      userID,
		Type:        models.JobTypeMaterialEnhance,
		Status:      models.JobStatusPending,
		QueueTaskID: task.TaskID,
		Payload:     json.RawMessage(`{"content":"x"}`),
		CreatedAt:   updatedAt,
		UpdatedAt:   updatedAt,
	}
	require.NoError(t, jobs.CreateJob(context.Background(), job, task))
	return job
}

func TestSnapshotEmptyStillEmits(t *testing.T) {
	ctx := context.Background()
	jobs := memorystore.NewJobStore(queuemem.New())
	r := NewRelay(jobs, DefaultRelayConfig())
	w := &fakeWriter{}

	before := time.Now()
	watermark, err := r.sendSnapshot(ctx, uuid.Must(uuid.NewV7()), w)
	require.NoError(t, err)

	events, _ := w.snapshot()
	require.Len(t, events, 1)
	body := decodeEvent(t, events[0])
	require.True(t, body.IsInitial)
	require.NotNil(t, body.Jobs)
	require.Empty(t, body.Jobs)
	// The raw frame must carry an empty array, not null.
	require.Contains(t, string(events[0].data), `"jobs":[]`)

	// No rows, so the watermark starts at connect time.
	require.False(t, watermark.Before(before))
}

func TestSnapshotWatermarkFromNewestRow(t *testing.T) {
	ctx := context.Background()
	jobs := memorystore.NewJobStore(queuemem.New())
	userID := uuid.Must(uuid.NewV7())

	older := time.Now().Add(-2 * time.Minute)
	newer := time.Now().Add(-time.Minute)
	seedJob(t, jobs, userID, older)
	newest := seedJob(t, jobs, userID, newer)

	r := NewRelay(jobs, DefaultRelayConfig())
	w := &fakeWriter{}

	watermark, err := r.sendSnapshot(ctx, userID, w)
	require.NoError(t, err)
	require.True(t, watermark.Equal(newest.UpdatedAt))

	events, _ := w.snapshot()
	require.Len(t, events, 1)
	body := decodeEvent(t, events[0])
	require.True(t, body.IsInitial)
	require.Len(t, body.Jobs, 2)
	// Newest first.
	require.Equal(t, newest.JobID, body.Jobs[0].JobID)
}

func TestDeltaStrictlyAfterWatermark(t *testing.T) {
	ctx := context.Background()
	jobs := memorystore.NewJobStore(queuemem.New())
	userID := uuid.Must(uuid.NewV7())

	watermark := time.Now().Add(-time.Minute)
	// Updated exactly at the watermark: already delivered, must not repeat.
	seedJob(t, jobs, userID, watermark)
	changed := seedJob(t, jobs, userID, watermark.Add(10*time.Second))

	r := NewRelay(jobs, DefaultRelayConfig())
	w := &fakeWriter{}

	next, err := r.sendDelta(ctx, userID, watermark, w)
	require.NoError(t, err)
	require.True(t, next.Equal(changed.UpdatedAt))

	events, _ := w.snapshot()
	require.Len(t, events, 1)
	body := decodeEvent(t, events[0])
	require.False(t, body.IsInitial)
	require.Len(t, body.Jobs, 1)
	require.Equal(t, changed.JobID, body.Jobs[0].JobID)
	// Delta frames carry the boolean explicitly, not by omission.
	require.Contains(t, string(events[0].data), `"isInitial":false`)
}

func TestDeltaEmptyPollEmitsNothing(t *testing.T) {
	ctx := context.Background()
	jobs := memorystore.NewJobStore(queuemem.New())
	userID := uuid.Must(uuid.NewV7())

	watermark := time.Now()
	seedJob(t, jobs, userID, watermark.Add(-time.Minute))

	r := NewRelay(jobs, DefaultRelayConfig())
	w := &fakeWriter{}

	next, err := r.sendDelta(ctx, userID, watermark, w)
	require.NoError(t, err)
	require.True(t, next.Equal(watermark))

	events, _ := w.snapshot()
	require.Empty(t, events)
}

// unavailableStore fails every delta poll the way a down database would.
type unavailableStore struct {
	store.JobStore
}

func (unavailableStore) ListJobsUpdatedSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*models.Job, error) {
	return nil, store.ErrUnavailable
}

func TestDeltaUnavailableKeepsWatermarkAndConnection(t *testing.T) {
	ctx := context.Background()
	r := NewRelay(unavailableStore{}, DefaultRelayConfig())
	w := &fakeWriter{}

	watermark := time.Now().Add(-time.Minute)
	next, err := r.sendDelta(ctx, uuid.Must(uuid.NewV7()), watermark, w)
	require.NoError(t, err)
	require.True(t, next.Equal(watermark))

	events, _ := w.snapshot()
	require.Empty(t, events)
}

func TestServeEndsOnContextCancel(t *testing.T) {
	jobs := memorystore.NewJobStore(queuemem.New())
	userID := uuid.Must(uuid.NewV7())
	seedJob(t, jobs, userID, time.Now().Add(-time.Minute))

	r := NewRelay(jobs, RelayConfig{
		InitialLimit: 50,
		PollLimit:    100,
		PollInterval: 10 * time.Millisecond,
	})
	w := &fakeWriter{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Serve(ctx, userID, w)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	events, _ := w.snapshot()
	require.NotEmpty(t, events)
	body := decodeEvent(t, events[0])
	require.True(t, body.IsInitial)
	require.Len(t, body.Jobs, 1)
}

func TestServeSendsKeepalives(t *testing.T) {
	jobs := memorystore.NewJobStore(queuemem.New())

	r := NewRelay(jobs, RelayConfig{
		InitialLimit:      50,
		PollLimit:         100,
		PollInterval:      time.Minute,
		KeepaliveInterval: 5 * time.Millisecond,
	})
	w := &fakeWriter{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Serve(ctx, uuid.Must(uuid.NewV7()), w)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	_, comments := w.snapshot()
	require.NotEmpty(t, comments)
}

func TestServeEndsOnWriteFailure(t *testing.T) {
	jobs := memorystore.NewJobStore(queuemem.New())
	w := &fakeWriter{err: errors.New("client went away")}

	r := NewRelay(jobs, DefaultRelayConfig())
	err := r.Serve(context.Background(), uuid.Must(uuid.NewV7()), w)
	require.Error(t, err)
	require.Contains(t, err.Error(), "client went away")
}
