// internal/infra/database/postgres_exam_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"classroom_reminder_bot/internal/domain/exam"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type PostgresExamRepository struct {
	db *sql.DB
}

func NewPostgresExamRepository(db *sql.DB) *PostgresExamRepository {
	return &PostgresExamRepository{db: db}
}

// ListActiveUnexpired returns exams that are active, still within their
// configured duration, and at least minAge old. Zero-duration exams never
// expire but are reference material, so the duration filter drops them too.
func (r *PostgresExamRepository) ListActiveUnexpired(ctx context.Context, minAge time.Duration) ([]*exam.Exam, error) {
	query := `SELECT e.exam_id, e.class_id, c.group_id, e.title, c.class_name, g.group_title, e.creation_date, e.duration_days, e.is_active
               FROM exams e
               JOIN classes c ON e.class_id = c.class_id
               JOIN groups g ON c.group_id = g.group_id
               WHERE e.is_active = TRUE
                 AND e.duration_days > 0
                 AND e.creation_date + make_interval(days => e.duration_days) > NOW()
                 AND e.creation_date <= NOW() - ($1 * INTERVAL '1 second')
               ORDER BY e.creation_date`

	rows, err := r.db.QueryContext(ctx, query, int64(minAge.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("error listing active exams: %w", err)
	}
	defer rows.Close()

	exams := make([]*exam.Exam, 0)
	for rows.Next() {
		e := &exam.Exam{}
		if err := rows.Scan(&e.ID, &e.ClassID, &e.GroupID, &e.Title, &e.ClassName, &e.GroupTitle, &e.CreatedAt, &e.DurationDays, &e.IsActive); err != nil {
			return nil, fmt.Errorf("error scanning exam: %w", err)
		}
		exams = append(exams, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exams: %w", err)
	}
	return exams, nil
}

// SubmittedUserIDs returns the set of users with at least one submission for
// the exam. The mere existence of a submission row marks a user as not
// pending, regardless of grade.
func (r *PostgresExamRepository) SubmittedUserIDs(ctx context.Context, examID int64) (map[int64]struct{}, error) {
	query := `SELECT DISTINCT student_user_id FROM submissions WHERE exam_id = $1`

	rows, err := r.db.QueryContext(ctx, query, examID)
	if err != nil {
		return nil, fmt.Errorf("error listing submitted users for exam %d: %w", examID, err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("error scanning submitted user: %w", err)
		}
		ids[userID] = struct{}{}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submitted users: %w", err)
	}
	return ids, nil
}
