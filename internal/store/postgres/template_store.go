package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

// TemplateStore implements store.TemplateStore using PostgreSQL. Variables
// are stored as a JSONB array.
type TemplateStore struct {
	pool *pgxpool.Pool
}

var _ store.TemplateStore = (*TemplateStore)(nil)

func NewTemplateStore(pool *pgxpool.Pool) *TemplateStore {
	return &TemplateStore{pool: pool}
}

func (s *TemplateStore) Create(ctx context.Context, tmpl *models.Template) error {
	variables, err := json.Marshal(tmpl.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	query := `
		INSERT INTO templates (
			template_id, user_id, name, content, variables, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err = s.pool.Exec(ctx, query,
		tmpl.TemplateID,
		tmpl.UserID,
		tmpl.Name,
		tmpl.Content,
		variables,
		tmpl.CreatedAt,
		tmpl.UpdatedAt,
	)
	return mapError(err)
}

func (s *TemplateStore) Get(ctx context.Context, templateID uuid.UUID) (*models.Template, error) {
	query := `
		SELECT template_id, user_id, name, content, variables, created_at, updated_at
		FROM templates
		WHERE template_id = $1
	`

	tmpl, err := scanTemplate(s.pool.QueryRow(ctx, query, templateID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTemplateNotFound
		}
		return nil, mapError(err)
	}
	return tmpl, nil
}

func (s *TemplateStore) List(ctx context.Context, userID uuid.UUID) ([]*models.Template, error) {
	query := `
		SELECT template_id, user_id, name, content, variables, created_at, updated_at
		FROM templates
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var templates []*models.Template
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, mapError(err)
		}
		templates = append(templates, tmpl)
	}
	return templates, rows.Err()
}

func (s *TemplateStore) Update(ctx context.Context, tmpl *models.Template) error {
	variables, err := json.Marshal(tmpl.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	query := `
		UPDATE templates
		SET name = $2, content = $3, variables = $4, updated_at = NOW()
		WHERE template_id = $1
	`

	result, err := s.pool.Exec(ctx, query, tmpl.TemplateID, tmpl.Name, tmpl.Content, variables)
	if err != nil {
		return mapError(err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrTemplateNotFound
	}
	return nil
}

func (s *TemplateStore) Delete(ctx context.Context, templateID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM templates WHERE template_id = $1`, templateID)
	if err != nil {
		return mapError(err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrTemplateNotFound
	}
	return nil
}

func scanTemplate(row pgx.Row) (*models.Template, error) {
	var tmpl models.Template
	var variables []byte
	err := row.Scan(
		&tmpl.TemplateID,
		&tmpl.UserID,
		&tmpl.Name,
		&tmpl.Content,
		&variables,
		&tmpl.CreatedAt,
		&tmpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(variables, &tmpl.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}
	return &tmpl, nil
}
