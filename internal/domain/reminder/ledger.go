package reminder

import "time"

// SentRecord is the durable mark that the reminder wave for a specific
// (exam, threshold) pair has been dispatched. At most one record per pair
// ever exists; records are never updated or deleted.
type SentRecord struct {
	ExamID  int64
	Percent int
	SentAt  time.Time
}
