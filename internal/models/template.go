package models

import (
	"time"

	"github.com/google/uuid"
)

// Template is a user-owned prompt template. Content may reference variables
// with {{name}} placeholders; Variables lists the names a render payload
// must supply.
type Template struct {
	TemplateID uuid.UUID `json:"templateId"`
	UserID     uuid.UUID `json:"userId"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	Variables  []string  `json:"variables"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
