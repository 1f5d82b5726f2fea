package session

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"
)

var uuidPattern = regexp.MustCompile(`(?i)^[0-9a-f-]{36}$`)

type failingKV struct {
	failGet bool
	failSet bool
	MemoryKV
}

var errStorage = errors.New("storage quota exceeded")

func (f *failingKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errStorage
	}
	return f.MemoryKV.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errStorage
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func (f *failingKV) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	if f.failSet {
		return false, errStorage
	}
	return f.MemoryKV.SetIfAbsent(ctx, key, value)
}

func newFailingKV() *failingKV {
	return &failingKV{MemoryKV: MemoryKV{data: make(map[string]string)}}
}

func TestSessionID_StableWithinScope(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)

	first := s.SessionID(ctx, "lic_123")
	second := s.SessionID(ctx, "lic_123")

	if first != second {
		t.Errorf("SessionID changed between calls: %s != %s", first, second)
	}
	if len(first) != 36 || !uuidPattern.MatchString(first) {
		t.Errorf("SessionID %q is not a UUID", first)
	}
}

func TestSessionID_NewAfterReset(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryKV(), nil)

	before := s.SessionID(ctx, "lic_123")
	s.SetThreadID(ctx, "lic_123", "thread_1")
	s.Reset(ctx, "lic_123")

	if s.HasSession(ctx, "lic_123") {
		t.Error("HasSession true after Reset")
	}
	if got := s.ThreadID(ctx, "lic_123"); got != "" {
		t.Errorf("ThreadID after Reset = %q, want empty", got)
	}

	after := s.SessionID(ctx, "lic_123")
	if after == before {
		t.Error("SessionID not regenerated after Reset")
	}
	if !uuidPattern.MatchString(after) {
		t.Errorf("SessionID %q is not a UUID", after)
	}
}

func TestScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := NewStore(kv, nil)

	a := s.SessionID(ctx, "widget_a")
	b := s.SessionID(ctx, "widget_b")
	if a == b {
		t.Error("different scopes share a session id")
	}

	s.SetThreadID(ctx, "widget_a", "t-1")
	if got := s.ThreadID(ctx, "widget_b"); got != "" {
		t.Errorf("thread id leaked across scopes: %q", got)
	}

	s.Reset(ctx, "widget_a")
	if !s.HasSession(ctx, "widget_b") {
		t.Error("Reset of one scope removed another")
	}
}

func TestThreadID_SetAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)

	if got := s.ThreadID(ctx, "x"); got != "" {
		t.Errorf("ThreadID = %q, want empty", got)
	}
	s.SetThreadID(ctx, "x", "thread_42")
	if got := s.ThreadID(ctx, "x"); got != "thread_42" {
		t.Errorf("ThreadID = %q, want thread_42", got)
	}
	s.SetThreadID(ctx, "x", "")
	if got := s.ThreadID(ctx, "x"); got != "" {
		t.Errorf("ThreadID after clear = %q, want empty", got)
	}
}

func TestStartTime(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if got := s.StartTime(ctx, "x"); !got.Equal(fixed) {
		t.Errorf("StartTime without session = %v, want now", got)
	}

	s.SessionID(ctx, "x")
	s.now = func() time.Time { return fixed.Add(time.Hour) }

	if got := s.StartTime(ctx, "x"); !got.Equal(fixed) {
		t.Errorf("StartTime = %v, want recorded %v", got, fixed)
	}

	s.Reset(ctx, "x")
	if got := s.StartTime(ctx, "x"); !got.Equal(fixed.Add(time.Hour)) {
		t.Errorf("StartTime after Reset = %v, want now", got)
	}
}

func TestStorageFailureFallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	kv := newFailingKV()
	kv.failSet = true
	s := NewStore(kv, nil)

	id := s.SessionID(ctx, "lic_1")
	if id == "" {
		t.Fatal("SessionID empty despite fallback")
	}
	if !s.Degraded() {
		t.Error("store not degraded after set failure")
	}
	if got := s.SessionID(ctx, "lic_1"); got != id {
		t.Errorf("SessionID from fallback = %s, want %s", got, id)
	}
}

func TestDegradeKeepsWrittenSession(t *testing.T) {
	ctx := context.Background()
	kv := newFailingKV()
	s := NewStore(kv, nil)

	id := s.SessionID(ctx, "lic_1")
	kv.failGet = true

	if got := s.SessionID(ctx, "lic_1"); got != id {
		t.Errorf("SessionID after read failure = %s, want %s", got, id)
	}
	if !s.Degraded() {
		t.Error("store not degraded after get failure")
	}
}

func TestSessionSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)
	s.SetThreadID(ctx, "x", "th")

	snap := s.Session(ctx, "x")
	if snap.SessionID == "" || snap.ThreadID != "th" || snap.StartTime.IsZero() {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

// slowKV answers Get and then waits, like a network round trip. Only Get, Set
// and Remove are exposed so the store cannot create atomically.
type slowKV struct {
	kv    *MemoryKV
	delay time.Duration
}

func (k *slowKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := k.kv.Get(ctx, key)
	time.Sleep(k.delay)
	return v, ok, err
}

func (k *slowKV) Set(ctx context.Context, key, value string) error {
	return k.kv.Set(ctx, key, value)
}

func (k *slowKV) Remove(ctx context.Context, key string) error {
	return k.kv.Remove(ctx, key)
}

// slowAtomicKV adds SetIfAbsent to slowKV.
type slowAtomicKV struct {
	slowKV
}

func (k *slowAtomicKV) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	return k.kv.SetIfAbsent(ctx, key, value)
}

func collectIDs(n int, get func() string) map[string]bool {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		ids = make(map[string]bool)
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := get()
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	return ids
}

func TestSessionID_ConcurrentFirstUseAgrees(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := NewStore(&slowKV{kv: kv, delay: 5 * time.Millisecond}, nil)

	ids := collectIDs(8, func() string { return s.SessionID(ctx, "lic_123") })
	if len(ids) != 1 {
		t.Fatalf("concurrent first uses created %d session ids: %v", len(ids), ids)
	}

	stored, _, _ := kv.Get(ctx, sessionIDKey("lic_123"))
	if !ids[stored] {
		t.Errorf("stored session id %q differs from the returned one", stored)
	}
}

func TestSessionID_SharedBackendAgreesAcrossStores(t *testing.T) {
	ctx := context.Background()
	shared := &slowAtomicKV{slowKV{kv: NewMemoryKV(), delay: 5 * time.Millisecond}}
	stores := []*Store{NewStore(shared, nil), NewStore(shared, nil)}

	var n sync.Mutex
	next := 0
	ids := collectIDs(4, func() string {
		n.Lock()
		s := stores[next%len(stores)]
		next++
		n.Unlock()
		return s.SessionID(ctx, "lic_123")
	})
	if len(ids) != 1 {
		t.Fatalf("stores sharing a backend created %d session ids: %v", len(ids), ids)
	}
}

// ctxKV fails every call made with a done context, as a network client would.
type ctxKV struct {
	MemoryKV
}

func (k *ctxKV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return k.MemoryKV.Get(ctx, key)
}

func (k *ctxKV) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return k.MemoryKV.Set(ctx, key, value)
}

func (k *ctxKV) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return k.MemoryKV.Remove(ctx, key)
}

func (k *ctxKV) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return k.MemoryKV.SetIfAbsent(ctx, key, value)
}

func TestCancelledContextDoesNotDegrade(t *testing.T) {
	kv := &ctxKV{MemoryKV: MemoryKV{data: make(map[string]string)}}
	_ = kv.Set(context.Background(), sessionIDKey("lic_1"), "existing-remote-id")
	s := NewStore(kv, nil)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	s.SessionID(cancelled, "lic_1")
	s.SetThreadID(cancelled, "lic_1", "th_stale")
	s.Reset(cancelled, "lic_1")

	timedOut, cancelTimeout := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancelTimeout()
	<-timedOut.Done()
	s.ThreadID(timedOut, "lic_1")

	if s.Degraded() {
		t.Fatal("store degraded because of the caller's context")
	}

	ctx := context.Background()
	if got := s.SessionID(ctx, "lic_1"); got != "existing-remote-id" {
		t.Errorf("SessionID = %q, want existing-remote-id", got)
	}
	if got := s.ThreadID(ctx, "lic_1"); got != "" {
		t.Errorf("cancelled SetThreadID was stored: %q", got)
	}
}
