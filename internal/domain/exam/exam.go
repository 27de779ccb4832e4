package exam

import "time"

// Exam represents a unit of assigned work posted to a class.
// A duration of zero days marks non-expiring reference material, which is
// exempt from reminder processing.
type Exam struct {
	ID           int64
	ClassID      int64
	GroupID      int64
	Title        string
	ClassName    string
	GroupTitle   string
	CreatedAt    time.Time
	DurationDays int
	IsActive     bool
}
