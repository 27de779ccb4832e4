// internal/infra/database/postgres_reminder_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrDuplicateReminder signals that the (exam_id, reminder_percent) pair is
// already in the ledger. Callers treat it as "threshold already fired".
var ErrDuplicateReminder = fmt.Errorf("reminder already recorded for this exam and threshold")

const uniqueViolationCode = "23505"

type PostgresReminderRepository struct {
	db *sql.DB
}

func NewPostgresReminderRepository(db *sql.DB) *PostgresReminderRepository {
	return &PostgresReminderRepository{db: db}
}

// IsSent reports whether the ledger holds a record for (examID, percent).
func (r *PostgresReminderRepository) IsSent(ctx context.Context, examID int64, percent int) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM exam_reminders WHERE exam_id = $1 AND reminder_percent = $2)`

	var sent bool
	if err := r.db.QueryRowContext(ctx, query, examID, percent).Scan(&sent); err != nil {
		return false, fmt.Errorf("error checking reminder ledger for exam %d at %d%%: %w", examID, percent, err)
	}
	return sent, nil
}

// MarkSent records that the reminder wave for (examID, percent) has been
// dispatched. The primary key on (exam_id, reminder_percent) makes the insert
// atomic: a concurrent duplicate fails with a unique violation rather than
// producing a second record.
func (r *PostgresReminderRepository) MarkSent(ctx context.Context, examID int64, percent int) error {
	query := `INSERT INTO exam_reminders (exam_id, reminder_percent, sent_at) VALUES ($1, $2, NOW())`

	if _, err := r.db.ExecContext(ctx, query, examID, percent); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			return ErrDuplicateReminder
		}
		return fmt.Errorf("error recording reminder for exam %d at %d%%: %w", examID, percent, err)
	}
	return nil
}
