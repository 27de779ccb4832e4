package exam

import (
	"context"
	"time"
)

// Repository defines read access to exams and their submissions. Exams are
// created and managed elsewhere; the reminder engine only consumes them.
type Repository interface {
	// ListActiveUnexpired returns exams that are active, still within their
	// configured duration, and at least minAge old (the staleness guard).
	ListActiveUnexpired(ctx context.Context, minAge time.Duration) ([]*Exam, error)
	// SubmittedUserIDs returns the set of users with at least one submission
	// for the given exam, regardless of grade.
	SubmittedUserIDs(ctx context.Context, examID int64) (map[int64]struct{}, error)
}
