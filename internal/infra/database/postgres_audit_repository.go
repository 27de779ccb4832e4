// internal/infra/database/postgres_audit_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type PostgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

// Append writes one audit trail entry. userID is nil for system actions.
func (r *PostgresAuditRepository) Append(ctx context.Context, userID *int64, action, details string) error {
	query := `INSERT INTO logs (user_id, action, details, created_at) VALUES ($1, $2, $3, NOW())`

	var uid sql.NullInt64
	if userID != nil {
		uid = sql.NullInt64{Int64: *userID, Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, query, uid, action, details); err != nil {
		return fmt.Errorf("error appending audit log entry (%s): %w", action, err)
	}
	return nil
}
