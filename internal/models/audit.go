package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry is an append-only record of a mutating action. Entries are
// never updated or deleted by the application.
type AuditEntry struct {
	AuditID   uuid.UUID `json:"auditId"`
	ActorID   uuid.UUID `json:"actorId"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entityId"`
	IPAddress string    `json:"ipAddress,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
