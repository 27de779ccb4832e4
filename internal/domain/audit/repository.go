package audit

import "context"

// Repository appends entries to the audit trail. Entries are write-once.
type Repository interface {
	// Append records an action with free-form details. userID is nil for
	// actions performed by the system itself.
	Append(ctx context.Context, userID *int64, action, details string) error
}
