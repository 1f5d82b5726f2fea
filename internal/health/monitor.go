package health

import (
	"context"
	"time"

	"github.com/vietddude/relaychat/internal/core/domain"
)

// Source is the view of a widget the monitor needs.
type Source interface {
	ConnectionState() domain.ConnectionState
	ReconnectPending() bool
	IsBusy() bool
	SessionDegraded() bool
	HasSession(ctx context.Context) bool
	Session(ctx context.Context) domain.Session
}

// Monitor derives health reports from a widget.
type Monitor struct {
	source Source
}

// NewMonitor creates a new health monitor.
func NewMonitor(source Source) *Monitor {
	return &Monitor{source: source}
}

// CheckHealth reports the widget status. A channel in error is critical; a
// session store running on its memory fallback is degraded.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	report := Report{
		Status:          StatusHealthy,
		Connection:      m.source.ConnectionState(),
		Busy:            m.source.IsBusy(),
		ReconnectQueued: m.source.ReconnectPending(),
		SessionDegraded: m.source.SessionDegraded(),
	}

	switch {
	case report.Connection == domain.ConnectionError:
		report.Status = StatusCritical
	case report.SessionDegraded:
		report.Status = StatusDegraded
	}
	return report
}

// Detailed adds the current session to the report. It never creates a session.
func (m *Monitor) Detailed(ctx context.Context) Report {
	report := m.CheckHealth(ctx)
	if !m.source.HasSession(ctx) {
		return report
	}
	s := m.source.Session(ctx)
	report.Session = &SessionInfo{
		SessionID: s.SessionID,
		ThreadID:  s.ThreadID,
		StartTime: s.StartTime.Format(time.RFC3339),
	}
	return report
}
