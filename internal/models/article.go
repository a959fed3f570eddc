package models

import (
	"time"

	"github.com/google/uuid"
)

// Article is a chapter or scene belonging to one of the user's novels.
type Article struct {
	ArticleID uuid.UUID `json:"articleId"`
	UserID    uuid.UUID `json:"userId"`
	NovelID   string    `json:"novelId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
