// internal/infra/database/postgres_roster_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"classroom_reminder_bot/internal/domain/roster"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type PostgresRosterRepository struct {
	db *sql.DB
}

func NewPostgresRosterRepository(db *sql.DB) *PostgresRosterRepository {
	return &PostgresRosterRepository{db: db}
}

// ListApproved returns the approved members of a class.
func (r *PostgresRosterRepository) ListApproved(ctx context.Context, classID int64) ([]*roster.Student, error) {
	query := `SELECT u.user_id, u.full_name, u.username
               FROM class_members cm
               JOIN users u ON cm.user_id = u.user_id
               WHERE cm.class_id = $1 AND cm.status = 'approved'
               ORDER BY u.full_name`

	rows, err := r.db.QueryContext(ctx, query, classID)
	if err != nil {
		return nil, fmt.Errorf("error listing approved students for class %d: %w", classID, err)
	}
	defer rows.Close()

	students := make([]*roster.Student, 0)
	for rows.Next() {
		s := &roster.Student{}
		if err := rows.Scan(&s.UserID, &s.FullName, &s.Username); err != nil {
			return nil, fmt.Errorf("error scanning student: %w", err)
		}
		students = append(students, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating students: %w", err)
	}
	return students, nil
}

// IsClassManager reports whether the user manages any class.
func (r *PostgresRosterRepository) IsClassManager(ctx context.Context, userID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM class_managers WHERE user_id = $1)`

	var isManager bool
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&isManager); err != nil {
		return false, fmt.Errorf("error checking class manager role for user %d: %w", userID, err)
	}
	return isManager, nil
}

// IsGroupOwner reports whether the user owns the given group.
func (r *PostgresRosterRepository) IsGroupOwner(ctx context.Context, userID, groupID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM groups WHERE group_id = $1 AND owner_user_id = $2)`

	var isOwner bool
	if err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(&isOwner); err != nil {
		return false, fmt.Errorf("error checking group owner role for user %d: %w", userID, err)
	}
	return isOwner, nil
}
