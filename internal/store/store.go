package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/queue"
)

// Sentinel errors for common error conditions
var (
	ErrJobNotFound      = errors.New("job not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExpired   = errors.New("session expired")
	ErrTemplateNotFound = errors.New("template not found")
	ErrArticleNotFound  = errors.New("article not found")
	ErrHookNotFound     = errors.New("hook not found")
	// ErrInvalidTransition is returned when a status update would move a job
	// backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrUnavailable signals the database is transiently unreachable.
	ErrUnavailable = errors.New("store unavailable")
)

// JobStore persists job rows, the per-user projection of queue work.
type JobStore interface {
	// CreateJob persists the job row and its queue task as one logical
	// operation. Postgres does both in a single transaction, which closes
	// the orphaned-row window between the two writes.
	CreateJob(ctx context.Context, job *models.Job, task *queue.Task) error
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	// GetJobByQueueTask resolves the job projected from a queue task.
	GetJobByQueueTask(ctx context.Context, taskID uuid.UUID) (*models.Job, error)
	// UpdateJobStatus applies a forward-only status transition and returns
	// the updated row. A nil result leaves the stored result untouched.
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus, result json.RawMessage) (*models.Job, error)
	// ListRecentJobs returns the user's jobs ordered newest-updated-first.
	ListRecentJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Job, error)
	// ListJobsUpdatedSince returns the user's jobs with updated_at strictly
	// greater than since, ordered newest-updated-first.
	ListJobsUpdatedSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*models.Job, error)
	// ListPendingOlderThan feeds the reconciliation sweep.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.Job, error)
}

// UserStore persists accounts.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
}

// SessionStore persists server-side sessions keyed by the cookie value.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	UpdateLastUsed(ctx context.Context, sessionID uuid.UUID) error
	Delete(ctx context.Context, sessionID uuid.UUID) error
	DeleteExpired(ctx context.Context) (int, error)
}

// TemplateStore persists prompt templates.
type TemplateStore interface {
	Create(ctx context.Context, tmpl *models.Template) error
	Get(ctx context.Context, templateID uuid.UUID) (*models.Template, error)
	List(ctx context.Context, userID uuid.UUID) ([]*models.Template, error)
	Update(ctx context.Context, tmpl *models.Template) error
	Delete(ctx context.Context, templateID uuid.UUID) error
}

// ArticleStore persists novel articles.
type ArticleStore interface {
	Create(ctx context.Context, article *models.Article) error
	Get(ctx context.Context, articleID uuid.UUID) (*models.Article, error)
	List(ctx context.Context, userID uuid.UUID, novelID string) ([]*models.Article, error)
	Update(ctx context.Context, article *models.Article) error
	Delete(ctx context.Context, articleID uuid.UUID) error
}

// HookStore persists webhooks.
type HookStore interface {
	Create(ctx context.Context, hook *models.Hook) error
	Get(ctx context.Context, hookID uuid.UUID) (*models.Hook, error)
	List(ctx context.Context, userID uuid.UUID) ([]*models.Hook, error)
	// ListEnabled returns the user's enabled hooks for one event, for delivery.
	ListEnabled(ctx context.Context, userID uuid.UUID, event string) ([]*models.Hook, error)
	Update(ctx context.Context, hook *models.Hook) error
	Delete(ctx context.Context, hookID uuid.UUID) error
}

// AuditStore is append-only.
type AuditStore interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListRecent(ctx context.Context, limit int) ([]*models.AuditEntry, error)
}
