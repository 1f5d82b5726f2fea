package domain

import "time"

// Session identifies one conversation of a widget instance within a process.
type Session struct {
	SessionID string
	ThreadID  string // empty until the backend assigns one
	StartTime time.Time
}
