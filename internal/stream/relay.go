// Package stream implements the job status relay. Each connection gets an
// initial snapshot of the user's recent jobs, then periodic deltas of rows
// updated since a timestamp watermark. Delivery is at-least-once of latest
// state: a row may repeat across events, but a client applying upserts keyed
// by job ID always converges on what the store holds.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
	"github.com/wmsyw/aiWriter-sub006/internal/telemetry"
)

// EventWriter is the transport side of a stream connection. The SSE writer
// implements it over HTTP; tests implement it over a slice.
type EventWriter interface {
	// WriteEvent sends one named event with a JSON body.
	WriteEvent(event string, data []byte) error
	// WriteComment sends a comment frame. Clients ignore it; it only keeps
	// idle connections alive through proxies.
	WriteComment(text string) error
}

// EventJobs is the single event name carried on the stream.
const EventJobs = "jobs"

// JobsEvent is the wire body of a jobs event. Both fields are always
// present; clients branch on isInitial without probing for the key.
type JobsEvent struct {
	Jobs      []*models.Job `json:"jobs"`
	IsInitial bool          `json:"isInitial"`
}

// RelayConfig controls snapshot size, poll cadence, and keepalive.
type RelayConfig struct {
	// InitialLimit is the snapshot size on connect.
	InitialLimit int
	// PollLimit caps rows per delta poll.
	PollLimit int
	// PollInterval is the delta poll cadence.
	PollInterval time.Duration
	// KeepaliveInterval is the comment-frame cadence. Zero disables keepalives.
	KeepaliveInterval time.Duration
}

// DefaultRelayConfig returns the standard stream settings.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		InitialLimit:      50,
		PollLimit:         100,
		PollInterval:      5 * time.Second,
		KeepaliveInterval: 30 * time.Second,
	}
}

// Relay serves job status streams from the job store.
type Relay struct {
	jobs store.JobStore
	cfg  RelayConfig
}

// NewRelay creates a relay over the given job store.
func NewRelay(jobs store.JobStore, cfg RelayConfig) *Relay {
	if cfg.InitialLimit <= 0 {
		cfg.InitialLimit = 50
	}
	if cfg.PollLimit <= 0 {
		cfg.PollLimit = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Relay{jobs: jobs, cfg: cfg}
}

// Serve runs one stream connection until the context is cancelled or a write
// fails. The caller owns the context; cancelling it is the only way to end a
// healthy stream.
func (r *Relay) Serve(ctx context.Context, userID uuid.UUID, w EventWriter) error {
	m := telemetry.GetMetrics()
	m.ActiveStreams.Add(ctx, 1)
	defer m.ActiveStreams.Add(ctx, -1)

	log.Debug().Str("user_id", userID.String()).Msg("Stream opened")
	defer log.Debug().Str("user_id", userID.String()).Msg("Stream closed")

	watermark, err := r.sendSnapshot(ctx, userID, w)
	if err != nil {
		return err
	}

	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()

	var keepalive <-chan time.Time
	if r.cfg.KeepaliveInterval > 0 {
		t := time.NewTicker(r.cfg.KeepaliveInterval)
		defer t.Stop()
		keepalive = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-keepalive:
			if err := w.WriteComment("keepalive"); err != nil {
				return fmt.Errorf("keepalive write failed: %w", err)
			}
		case <-poll.C:
			next, err := r.sendDelta(ctx, userID, watermark, w)
			if err != nil {
				return err
			}
			watermark = next
		}
	}
}

// sendSnapshot emits the initial event and returns the starting watermark.
// With no jobs at all the snapshot is still sent, with an empty list, so the
// client knows the stream is live.
func (r *Relay) sendSnapshot(ctx context.Context, userID uuid.UUID, w EventWriter) (time.Time, error) {
	connectedAt := time.Now()

	jobs, err := r.jobs.ListRecentJobs(ctx, userID, r.cfg.InitialLimit)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if err := r.writeJobs(ctx, w, jobs, true); err != nil {
		return time.Time{}, err
	}

	// Rows are newest-updated-first, so the first row carries the high
	// watermark. An empty snapshot starts the watermark at connect time.
	watermark := connectedAt
	if len(jobs) > 0 {
		watermark = jobs[0].UpdatedAt
	}
	return watermark, nil
}

// sendDelta polls for rows updated strictly after the watermark. Zero rows
// emits nothing. Returns the advanced watermark.
func (r *Relay) sendDelta(ctx context.Context, userID uuid.UUID, watermark time.Time, w EventWriter) (time.Time, error) {
	start := time.Now()
	jobs, err := r.jobs.ListJobsUpdatedSince(ctx, userID, watermark, r.cfg.PollLimit)
	telemetry.GetMetrics().StreamPollDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			// Transient. Keep the connection and the watermark; the next
			// poll picks the rows up.
			log.Warn().Err(err).Msg("Stream poll failed, will retry")
			return watermark, nil
		}
		return watermark, fmt.Errorf("stream poll failed: %w", err)
	}
	if len(jobs) == 0 {
		return watermark, nil
	}

	if err := r.writeJobs(ctx, w, jobs, false); err != nil {
		return watermark, err
	}
	return jobs[0].UpdatedAt, nil
}

// writeJobs serializes and writes one event, checking for disconnect first
// so an aborted connection never gets a partial frame.
func (r *Relay) writeJobs(ctx context.Context, w EventWriter, jobs []*models.Job, initial bool) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if jobs == nil {
		jobs = []*models.Job{}
	}
	data, err := json.Marshal(JobsEvent{Jobs: jobs, IsInitial: initial})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := w.WriteEvent(EventJobs, data); err != nil {
		return fmt.Errorf("event write failed: %w", err)
	}
	telemetry.GetMetrics().StreamEventsTotal.Add(ctx, 1)
	return nil
}
