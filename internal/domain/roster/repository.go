package roster

import "context"

// Repository defines read access to class rosters and staff-role predicates.
type Repository interface {
	// ListApproved returns the class members with approved status.
	ListApproved(ctx context.Context, classID int64) ([]*Student, error)
	// IsClassManager reports whether the user manages any class.
	IsClassManager(ctx context.Context, userID int64) (bool, error)
	// IsGroupOwner reports whether the user owns the given group.
	IsGroupOwner(ctx context.Context, userID, groupID int64) (bool, error)
}
