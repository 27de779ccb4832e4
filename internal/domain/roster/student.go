package roster

import "database/sql"

// Student is an approved roster member of a class.
type Student struct {
	UserID   int64
	FullName string
	Username sql.NullString // Telegram handle, optional
}
