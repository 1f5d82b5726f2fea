package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/relaychat/internal/core/domain"
	"github.com/vietddude/relaychat/internal/core/state"
	"github.com/vietddude/relaychat/internal/infra/relay/dispatcher"
	"github.com/vietddude/relaychat/internal/infra/relay/retry"
	"github.com/vietddude/relaychat/internal/infra/relay/stream"
	"github.com/vietddude/relaychat/internal/infra/session"
	"github.com/vietddude/relaychat/internal/metrics"
)

// Widget is one embedded chat instance: it owns the dispatcher, the retry policy,
// the streaming channel and the view state, and drives the retry loop.
type Widget struct {
	cfg        Config
	dispatcher *dispatcher.Dispatcher
	policy     *retry.Policy
	channel    *stream.Channel
	sessions   *session.Store
	store      *state.Store
	log        *slog.Logger

	mu       sync.Mutex
	messages []domain.ChatMessage
	loops    map[uint64]context.CancelFunc
	nextLoop uint64

	sleep func(ctx context.Context, d time.Duration) error
}

// Config holds the widget configuration.
type Config struct {
	Dispatcher dispatcher.Config
	Retry      retry.Config
	Stream     stream.Config
}

// NewWidget wires a widget. kv and dialer may be nil for memory storage and
// plain HTTP streams.
func NewWidget(cfg Config, kv session.KV, dialer stream.Dialer, log *slog.Logger) (*Widget, error) {
	if log == nil {
		log = slog.Default()
	}

	policy, err := retry.NewPolicy(cfg.Retry)
	if err != nil {
		return nil, err
	}

	store := state.NewStore()
	sessions := session.NewStore(kv, log)

	d, err := dispatcher.NewDispatcher(cfg.Dispatcher, sessions, store, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init dispatcher: %w", err)
	}

	if dialer == nil {
		dialer = stream.NewHTTPDialer(nil)
	}

	w := &Widget{
		cfg:        cfg,
		dispatcher: d,
		policy:     policy,
		channel:    stream.NewChannel(dialer, cfg.Stream, store, log),
		sessions:   sessions,
		store:      store,
		log:        log.With("component", "widget", "scope", cfg.Dispatcher.Scope()),
		loops:      make(map[uint64]context.CancelFunc),
		sleep:      sleepContext,
	}
	w.channel.OnStateChange(w.onStreamState)
	return w, nil
}

// Send delivers text, retrying as the policy allows. The returned result is the
// last attempt's.
func (w *Widget) Send(ctx context.Context, text string, files []domain.File) domain.SendResult {
	ctx, done := w.trackLoop(ctx)
	defer done()

	w.appendMessage(domain.RoleUser, text)

	opts := domain.SendOptions{Text: text, Attachments: files, Timeout: w.cfg.Dispatcher.Timeout}
	for attempt := 0; ; attempt++ {
		result := w.dispatcher.Send(ctx, opts)
		if result.Success {
			w.handleReply(result)
			return result
		}

		if !w.policy.ShouldRetry(attempt, *result.Error) {
			return result
		}

		delay := w.policy.Delay(attempt)
		metrics.RetriesTotal.WithLabelValues(string(result.Error.Type)).Inc()
		w.log.Info("Retrying message",
			"attempt", attempt+1,
			"max_attempts", w.policy.Config().MaxAttempts,
			"delay", delay,
			"error_type", result.Error.Type,
		)

		if err := w.sleep(ctx, delay); err != nil {
			return result
		}
	}
}

// Abort cancels the in-flight request and any pending retry.
func (w *Widget) Abort() {
	w.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(w.loops))
	for _, cancel := range w.loops {
		cancels = append(cancels, cancel)
	}
	w.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	w.dispatcher.Abort()
}

// Reset starts a new conversation: the stream is closed, the session forgotten
// and the message list cleared.
func (w *Widget) Reset(ctx context.Context) {
	w.Abort()
	w.channel.Disconnect()
	w.sessions.Reset(ctx, w.dispatcher.Scope())

	w.mu.Lock()
	w.messages = nil
	w.mu.Unlock()

	w.store.Set(state.Patch{
		Messages:      []domain.ChatMessage{},
		StreamingText: state.Ptr(""),
		Error:         state.Ptr(""),
	})
	w.log.Info("Conversation reset")
}

// Close stops all activity.
func (w *Widget) Close() {
	w.Abort()
	w.channel.Disconnect()
}

// Session returns the current session, creating it if needed.
func (w *Widget) Session(ctx context.Context) domain.Session {
	return w.sessions.Session(ctx, w.dispatcher.Scope())
}

// HasSession reports whether a session exists, without creating one.
func (w *Widget) HasSession(ctx context.Context) bool {
	return w.sessions.HasSession(ctx, w.dispatcher.Scope())
}

// Store exposes the observable view state.
func (w *Widget) Store() *state.Store {
	return w.store
}

// Channel exposes the streaming channel.
func (w *Widget) Channel() *stream.Channel {
	return w.channel
}

// ConnectionState reports the streaming channel state.
func (w *Widget) ConnectionState() domain.ConnectionState {
	return w.channel.State()
}

// ReconnectPending reports whether a stream reconnect is scheduled.
func (w *Widget) ReconnectPending() bool {
	return w.channel.ReconnectPending()
}

// IsBusy reports whether a dispatch is in flight.
func (w *Widget) IsBusy() bool {
	return w.dispatcher.IsBusy()
}

// SessionDegraded reports whether session storage fell back to memory.
func (w *Widget) SessionDegraded() bool {
	return w.sessions.Degraded()
}

// Messages returns a copy of the conversation.
func (w *Widget) Messages() []domain.ChatMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.messages)
}

func (w *Widget) handleReply(result domain.SendResult) {
	if result.Reply != "" {
		w.appendMessage(domain.RoleAssistant, result.Reply)
	}
	if result.StreamURL == "" {
		return
	}

	streamURL, err := w.resolve(result.StreamURL)
	if err != nil {
		w.log.Warn("Ignoring invalid stream url", "url", result.StreamURL, "error", err)
		return
	}
	w.channel.Connect(streamURL)
}

// onStreamState turns a finished stream into an assistant message.
func (w *Widget) onStreamState(t stream.Transition) {
	if t.To != domain.ConnectionClosed {
		return
	}
	if text := w.channel.Buffer(); text != "" {
		w.appendMessage(domain.RoleAssistant, text)
		w.store.Set(state.Patch{StreamingText: state.Ptr("")})
	}
}

func (w *Widget) appendMessage(role domain.Role, text string) {
	msg := domain.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}

	w.mu.Lock()
	w.messages = append(w.messages, msg)
	snapshot := slices.Clone(w.messages)
	w.mu.Unlock()

	w.store.Set(state.Patch{Messages: snapshot})
}

// resolve makes a relative stream url absolute against the relay url.
func (w *Widget) resolve(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	base, err := url.Parse(w.cfg.Dispatcher.URL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (w *Widget) trackLoop(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	w.mu.Lock()
	w.nextLoop++
	id := w.nextLoop
	w.loops[id] = cancel
	w.mu.Unlock()

	return ctx, func() {
		w.mu.Lock()
		delete(w.loops, id)
		w.mu.Unlock()
		cancel()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
