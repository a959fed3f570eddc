package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

// AuditStore implements store.AuditStore using PostgreSQL. The table is
// append-only; there are no update or delete paths.
type AuditStore struct {
	pool *pgxpool.Pool
}

var _ store.AuditStore = (*AuditStore)(nil)

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

func (s *AuditStore) Append(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO audit_log (
			audit_id, actor_id, action, entity, entity_id, ip_address, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6::inet, $7
		)
	`

	var ipAddress any
	if entry.IPAddress != "" {
		ipAddress = entry.IPAddress
	}

	_, err := s.pool.Exec(ctx, query,
		entry.AuditID,
		entry.ActorID,
		entry.Action,
		entry.Entity,
		entry.EntityID,
		ipAddress,
		entry.CreatedAt,
	)
	return mapError(err)
}

func (s *AuditStore) ListRecent(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT audit_id, actor_id, action, entity, entity_id, ip_address, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		var ipAddress any
		err := rows.Scan(
			&entry.AuditID,
			&entry.ActorID,
			&entry.Action,
			&entry.Entity,
			&entry.EntityID,
			&ipAddress,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, mapError(err)
		}
		if ipAddress != nil {
			entry.IPAddress = formatInet(ipAddress)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// formatInet renders whatever pgx decoded an INET column into.
func formatInet(v any) string {
	return fmt.Sprintf("%v", v)
}
