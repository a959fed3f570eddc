package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
	"github.com/wmsyw/aiWriter-sub006/internal/telemetry"
)

// signatureHeader carries the hex HMAC-SHA256 of the request body, keyed by
// the hook secret.
const signatureHeader = "X-Aiwriter-Signature"

// HookDeliverer posts terminal job notifications to the owner's webhooks.
// Delivery is best effort; a failed delivery never affects the job.
type HookDeliverer struct {
	hooks  store.HookStore
	client *http.Client
}

// NewHookDeliverer creates a deliverer with a bounded request timeout.
func NewHookDeliverer(hooks store.HookStore) *HookDeliverer {
	return &HookDeliverer{
		hooks:  hooks,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type hookEvent struct {
	Event string      `json:"event"`
	Job   *models.Job `json:"job"`
}

// Deliver notifies every enabled hook for the job's terminal event.
func (d *HookDeliverer) Deliver(ctx context.Context, job *models.Job) {
	var event string
	switch job.Status {
	case models.JobStatusCompleted:
		event = models.HookEventJobCompleted
	case models.JobStatusFailed:
		event = models.HookEventJobFailed
	default:
		return
	}

	hooks, err := d.hooks.ListEnabled(ctx, job.UserID, event)
	if err != nil {
		log.Warn().Err(err).Str("job_id", job.JobID.String()).Msg("Failed to list hooks")
		return
	}

	for _, hook := range hooks {
		if err := d.deliverOne(ctx, hook, event, job); err != nil {
			telemetry.GetMetrics().HookDeliveryErrorsTotal.Add(ctx, 1)
			log.Warn().
				Err(err).
				Str("hook_id", hook.HookID.String()).
				Str("job_id", job.JobID.String()).
				Msg("Hook delivery failed")
			continue
		}
		telemetry.GetMetrics().HookDeliveriesTotal.Add(ctx, 1)
	}
}

func (d *HookDeliverer) deliverOne(ctx context.Context, hook *models.Hook, event string, job *models.Job) error {
	body, err := json.Marshal(hookEvent{Event: event, Job: job})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(hook.Secret))
	mac.Write(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.TargetURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, hex.EncodeToString(mac.Sum(nil)))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("receiver returned %d", resp.StatusCode)
	}
	return nil
}
