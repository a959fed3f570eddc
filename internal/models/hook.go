package models

import (
	"time"

	"github.com/google/uuid"
)

// Hook events fired by the worker when a job reaches a terminal state.
const (
	HookEventJobCompleted = "job.completed"
	HookEventJobFailed    = "job.failed"
)

// Hook is a user-configured webhook. Deliveries are signed with the hook
// secret so the receiver can verify origin.
type Hook struct {
	HookID    uuid.UUID `json:"hookId"`
	UserID    uuid.UUID `json:"userId"`
	Event     string    `json:"event"`
	TargetURL string    `json:"targetUrl"`
	Secret    string    `json:"-"`
	Enabled   bool      `json:"enabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
