// Package state is the observable view state shared with the rendering layer.
// Components publish partial updates with Sink.Set; the renderer subscribes to Store.
package state

import (
	"slices"
	"sync"

	"github.com/vietddude/relaychat/internal/core/domain"
)

// State is the full view state of one widget.
type State struct {
	Loading       bool
	Error         string // user-facing sentence, empty when there is no error
	Messages      []domain.ChatMessage
	StreamingText string
	Connection    domain.ConnectionState
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Loading       *bool
	Error         *string
	Messages      []domain.ChatMessage // replaces the list when non-nil
	StreamingText *string
	Connection    *domain.ConnectionState
}

// Sink receives partial state updates. Set must not block.
type Sink interface {
	Set(p Patch)
}

// Discard is a Sink that drops every update.
var Discard Sink = discard{}

type discard struct{}

func (discard) Set(Patch) {}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// Store is a Sink holding the merged state and notifying subscribers synchronously.
type Store struct {
	mu          sync.RWMutex
	state       State
	subscribers []func(State)
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{state: State{Connection: domain.ConnectionDisconnected}}
}

// Set merges p into the state and notifies subscribers with the new snapshot.
func (s *Store) Set(p Patch) {
	s.mu.Lock()
	if p.Loading != nil {
		s.state.Loading = *p.Loading
	}
	if p.Error != nil {
		s.state.Error = *p.Error
	}
	if p.Messages != nil {
		s.state.Messages = slices.Clone(p.Messages)
	}
	if p.StreamingText != nil {
		s.state.StreamingText = *p.StreamingText
	}
	if p.Connection != nil {
		s.state.Connection = *p.Connection
	}
	snapshot := s.snapshotLocked()
	subs := slices.Clone(s.subscribers)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// Get returns a snapshot of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called after every Set.
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Store) snapshotLocked() State {
	snap := s.state
	snap.Messages = slices.Clone(s.state.Messages)
	return snap
}
