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

// ArticleStore implements store.ArticleStore using PostgreSQL.
type ArticleStore struct {
	pool *pgxpool.Pool
}

var _ store.ArticleStore = (*ArticleStore)(nil)

func NewArticleStore(pool *pgxpool.Pool) *ArticleStore {
	return &ArticleStore{pool: pool}
}

func (s *ArticleStore) Create(ctx context.Context, article *models.Article) error {
	query := `
		INSERT INTO articles (
			article_id, user_id, novel_id, title, content, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := s.pool.Exec(ctx, query,
		article.ArticleID,
		article.UserID,
		article.NovelID,
		article.Title,
		article.Content,
		article.CreatedAt,
		article.UpdatedAt,
	)
	return mapError(err)
}

func (s *ArticleStore) Get(ctx context.Context, articleID uuid.UUID) (*models.Article, error) {
	query := `
		SELECT article_id, user_id, novel_id, title, content, created_at, updated_at
		FROM articles
		WHERE article_id = $1
	`

	var article models.Article
	err := s.pool.QueryRow(ctx, query, articleID).Scan(
		&article.ArticleID,
		&article.UserID,
		&article.NovelID,
		&article.Title,
		&article.Content,
		&article.CreatedAt,
		&article.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrArticleNotFound
		}
		return nil, mapError(err)
	}
	return &article, nil
}

// List returns the user's articles, optionally filtered by novel.
func (s *ArticleStore) List(ctx context.Context, userID uuid.UUID, novelID string) ([]*models.Article, error) {
	query := `
		SELECT article_id, user_id, novel_id, title, content, created_at, updated_at
		FROM articles
		WHERE user_id = $1 AND ($2 = '' OR novel_id = $2)
		ORDER BY updated_at DESC
	`

	rows, err := s.pool.Query(ctx, query, userID, novelID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var articles []*models.Article
	for rows.Next() {
		var article models.Article
		err := rows.Scan(
			&article.ArticleID,
			&article.UserID,
			&article.NovelID,
			&article.Title,
			&article.Content,
			&article.CreatedAt,
			&article.UpdatedAt,
		)
		if err != nil {
			return nil, mapError(err)
		}
		articles = append(articles, &article)
	}
	return articles, rows.Err()
}

func (s *ArticleStore) Update(ctx context.Context, article *models.Article) error {
	query := `
		UPDATE articles
		SET title = $2, content = $3, updated_at = NOW()
		WHERE article_id = $1
	`

	result, err := s.pool.Exec(ctx, query, article.ArticleID, article.Title, article.Content)
	if err != nil {
		return mapError(err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrArticleNotFound
	}
	return nil
}

func (s *ArticleStore) Delete(ctx context.Context, articleID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM articles WHERE article_id = $1`, articleID)
	if err != nil {
		return mapError(err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrArticleNotFound
	}
	return nil
}
