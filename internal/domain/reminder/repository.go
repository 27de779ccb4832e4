package reminder

import "context"

// Repository persists the reminder ledger.
type Repository interface {
	// IsSent reports whether the ledger already holds a record for
	// (examID, percent).
	IsSent(ctx context.Context, examID int64, percent int) (bool, error)
	// MarkSent inserts the ledger record for (examID, percent). The insert
	// must be atomic: a concurrent or repeated call for the same pair returns
	// the implementation's duplicate sentinel instead of inserting twice.
	MarkSent(ctx context.Context, examID int64, percent int) error
}
