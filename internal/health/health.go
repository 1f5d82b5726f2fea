// Package health provides widget health monitoring and status reporting.
package health

import "github.com/vietddude/relaychat/internal/core/domain"

// SystemStatus represents the overall health state of the widget or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the full widget health report.
type Report struct {
	Status          SystemStatus           `json:"status"`
	Connection      domain.ConnectionState `json:"connection"`
	Busy            bool                   `json:"busy"`
	ReconnectQueued bool                   `json:"reconnect_pending"`
	SessionDegraded bool                   `json:"session_degraded"`
	Session         *SessionInfo           `json:"session,omitempty"`
}

// SessionInfo is the session part of a detailed report.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	ThreadID  string `json:"thread_id,omitempty"`
	StartTime string `json:"start_time"`
}
