package domain

import "time"

// DispatchStats holds statistics about one notification dispatch.
type DispatchStats struct {
	PostID   int64
	Tags     int
	Contacts int
	Sent     int
	Skipped  int
	Errors   int
	Duration time.Duration
}
