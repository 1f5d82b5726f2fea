// Package session keeps the per-scope session and thread identifiers of widget
// instances. Storage failures never surface to callers: the store falls back to a
// volatile in-memory KV and keeps going.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/relaychat/internal/core/domain"
)

// Key helpers
func sessionIDKey(scope string) string {
	return fmt.Sprintf("relaychat:%s:session_id", scope)
}

func threadIDKey(scope string) string {
	return fmt.Sprintf("relaychat:%s:thread_id", scope)
}

func startTimeKey(scope string) string {
	return fmt.Sprintf("relaychat:%s:start_time", scope)
}

// Store persists session identifiers namespaced by scope.
type Store struct {
	primary  KV
	fallback *MemoryKV
	log      *slog.Logger

	mu       sync.Mutex
	degraded bool

	// createMu serializes session creation so concurrent first sends share one id.
	createMu sync.Mutex

	newID func() string
	now   func() time.Time
}

// NewStore creates a Store over kv. A nil kv means memory only.
func NewStore(kv KV, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	fallback := NewMemoryKV()
	if kv == nil {
		kv = fallback
	}
	return &Store{
		primary:  kv,
		fallback: fallback,
		log:      log,
		newID:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

// SessionID returns the session id for scope, creating and persisting one on first use.
func (s *Store) SessionID(ctx context.Context, scope string) string {
	key := sessionIDKey(scope)
	if id, ok := s.get(ctx, key); ok && id != "" {
		return id
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	if id, ok := s.get(ctx, key); ok && id != "" {
		return id
	}

	id, created := s.create(ctx, key, s.newID())
	if created {
		s.set(ctx, startTimeKey(scope), s.now().UTC().Format(time.RFC3339Nano))
		s.log.Debug("Created session", "scope", scope, "session_id", id)
	}
	return id
}

// ThreadID returns the backend-assigned thread id for scope, or "" if none.
func (s *Store) ThreadID(ctx context.Context, scope string) string {
	id, _ := s.get(ctx, threadIDKey(scope))
	return id
}

// SetThreadID records the backend-assigned thread id for scope.
func (s *Store) SetThreadID(ctx context.Context, scope, threadID string) {
	if threadID == "" {
		s.remove(ctx, threadIDKey(scope))
		return
	}
	s.set(ctx, threadIDKey(scope), threadID)
}

// HasSession reports whether a session id exists for scope.
func (s *Store) HasSession(ctx context.Context, scope string) bool {
	id, ok := s.get(ctx, sessionIDKey(scope))
	return ok && id != ""
}

// StartTime returns when the scope's session started, or now if unknown.
func (s *Store) StartTime(ctx context.Context, scope string) time.Time {
	raw, ok := s.get(ctx, startTimeKey(scope))
	if !ok {
		return s.now()
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return s.now()
	}
	return t
}

// Session returns a snapshot of the scope's session, creating it if needed.
func (s *Store) Session(ctx context.Context, scope string) domain.Session {
	id := s.SessionID(ctx, scope)
	return domain.Session{
		SessionID: id,
		ThreadID:  s.ThreadID(ctx, scope),
		StartTime: s.StartTime(ctx, scope),
	}
}

// Reset forgets the session id, thread id and start time of scope.
func (s *Store) Reset(ctx context.Context, scope string) {
	s.remove(ctx, sessionIDKey(scope))
	s.remove(ctx, threadIDKey(scope))
	s.remove(ctx, startTimeKey(scope))
	s.log.Debug("Reset session", "scope", scope)
}

// Degraded reports whether the store has fallen back to memory.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *Store) kv() KV {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return s.fallback
	}
	return s.primary
}

// fail handles a storage error. Errors caused by the caller's context are not
// storage failures and leave the primary in place; it reports whether the
// primary was given up.
func (s *Store) fail(ctx context.Context, op, key string, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.log.Debug("Session storage call cancelled", "op", op, "key", key, "error", err)
		return false
	}
	s.degrade(op, key, err)
	return true
}

// degrade switches to the in-memory fallback for the rest of the process.
func (s *Store) degrade(op, key string, err error) {
	s.mu.Lock()
	first := !s.degraded
	s.degraded = true
	s.mu.Unlock()

	if first {
		s.log.Warn("Session storage unavailable, using memory", "op", op, "key", key, "error", err)
	}
}

func (s *Store) get(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.kv().Get(ctx, key)
	if err != nil {
		s.fail(ctx, "get", key, err)
		v, ok, _ = s.fallback.Get(ctx, key)
	}
	return v, ok
}

// create stores value at key unless the key already holds a value, in which
// case the stored value wins. Backends implementing AtomicKV decide atomically.
func (s *Store) create(ctx context.Context, key, value string) (string, bool) {
	kv := s.kv()
	akv, atomic := kv.(AtomicKV)
	if !atomic || kv == KV(s.fallback) {
		s.set(ctx, key, value)
		return value, true
	}

	created, err := akv.SetIfAbsent(ctx, key, value)
	if err != nil {
		if s.fail(ctx, "create", key, err) {
			_ = s.fallback.Set(ctx, key, value)
		}
		return value, true
	}
	if !created {
		if existing, ok := s.get(ctx, key); ok && existing != "" {
			_ = s.fallback.Set(ctx, key, existing)
			return existing, false
		}
	}
	_ = s.fallback.Set(ctx, key, value)
	return value, true
}

// set and remove write through to the fallback so degrading keeps what was stored.
// A write cut short by the caller's context touches neither side.
func (s *Store) set(ctx context.Context, key, value string) {
	if kv := s.kv(); kv != KV(s.fallback) {
		if err := kv.Set(ctx, key, value); err != nil && !s.fail(ctx, "set", key, err) {
			return
		}
	}
	_ = s.fallback.Set(ctx, key, value)
}

func (s *Store) remove(ctx context.Context, key string) {
	if kv := s.kv(); kv != KV(s.fallback) {
		if err := kv.Remove(ctx, key); err != nil && !s.fail(ctx, "remove", key, err) {
			return
		}
	}
	_ = s.fallback.Remove(ctx, key)
}
