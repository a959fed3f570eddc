package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

// HookStore implements store.HookStore using PostgreSQL.
type HookStore struct {
	pool *pgxpool.Pool
}

var _ store.HookStore = (*HookStore)(nil)

func NewHookStore(pool *pgxpool.Pool) *HookStore {
	return &HookStore{pool: pool}
}

const hookColumns = `hook_id, user_id, event, target_url, secret, enabled, created_at, updated_at`

func (s *HookStore) Create(ctx context.Context, hook *models.Hook) error {
	query := `
		INSERT INTO hooks (` + hookColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		hook.HookID,
		hook.UserID,
		hook.Event,
		hook.TargetURL,
		hook.Secret,
		hook.Enabled,
		hook.CreatedAt,
		hook.UpdatedAt,
	)
	return mapError(err)
}

func (s *HookStore) Get(ctx context.Context, hookID uuid.UUID) (*models.Hook, error) {
	query := `SELECT ` + hookColumns + ` FROM hooks WHERE hook_id = $1`

	hook, err := scanHook(s.pool.QueryRow(ctx, query, hookID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrHookNotFound
		}
		return nil, mapError(err)
	}
	return hook, nil
}

func (s *HookStore) List(ctx context.Context, userID uuid.UUID) ([]*models.Hook, error) {
	query := `SELECT ` + hookColumns + ` FROM hooks WHERE user_id = $1 ORDER BY created_at DESC`
	return s.listHooks(ctx, query, userID)
}

func (s *HookStore) ListEnabled(ctx context.Context, userID uuid.UUID, event string) ([]*models.Hook, error) {
	query := `SELECT ` + hookColumns + ` FROM hooks WHERE user_id = $1 AND event = $2 AND enabled`
	return s.listHooks(ctx, query, userID, event)
}

func (s *HookStore) Update(ctx context.Context, hook *models.Hook) error {
	query := `
		UPDATE hooks
		SET event = $2, target_url = $3, secret = $4, enabled = $5, updated_at = NOW()
		WHERE hook_id = $1
	`

	result, err := s.pool.Exec(ctx, query, hook.HookID, hook.Event, hook.TargetURL, hook.Secret, hook.Enabled)
	if err != nil {
		return mapError(err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrHookNotFound
	}
	return nil
}

func (s *HookStore) Delete(ctx context.Context, hookID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM hooks WHERE hook_id = $1`, hookID)
	if err != nil {
		return mapError(err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrHookNotFound
	}
	return nil
}

func (s *HookStore) listHooks(ctx context.Context, query string, args ...any) ([]*models.Hook, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var hooks []*models.Hook
	for rows.Next() {
		hook, err := scanHook(rows)
		if err != nil {
			return nil, mapError(err)
		}
		hooks = append(hooks, hook)
	}
	return hooks, rows.Err()
}

func scanHook(row pgx.Row) (*models.Hook, error) {
	var hook models.Hook
	err := row.Scan(
		&hook.HookID,
		&hook.UserID,
		&hook.Event,
		&hook.TargetURL,
		&hook.Secret,
		&hook.Enabled,
		&hook.CreatedAt,
		&hook.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &hook, nil
}
