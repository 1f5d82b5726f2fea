package stream

import (
	"time"

	"github.com/vietddude/relaychat/internal/core/domain"
)

// State is an alias for domain.ConnectionState for internal use.
type State = domain.ConnectionState

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	domain.ConnectionDisconnected: {domain.ConnectionConnecting, domain.ConnectionClosed},
	domain.ConnectionConnecting: {
		domain.ConnectionConnected,
		domain.ConnectionError,
		domain.ConnectionClosed,
	},
	domain.ConnectionConnected: {
		domain.ConnectionConnecting,
		domain.ConnectionError,
		domain.ConnectionClosed,
	},
	domain.ConnectionError:  {domain.ConnectionConnecting, domain.ConnectionClosed},
	domain.ConnectionClosed: {domain.ConnectionConnecting},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case domain.ConnectionDisconnected:
		return "Disconnected - no stream has been opened"
	case domain.ConnectionConnecting:
		return "Connecting - waiting for the stream to open"
	case domain.ConnectionConnected:
		return "Connected - receiving chunks"
	case domain.ConnectionError:
		return "Error - transport failed, reconnect pending"
	case domain.ConnectionClosed:
		return "Closed - stream finished or gave up"
	default:
		return "Unknown state"
	}
}
