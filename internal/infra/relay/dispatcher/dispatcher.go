// Package dispatcher sends one conversation turn to the relay. It performs exactly
// one attempt per call and reports every failure as a classified Result; retrying
// is left to the caller.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/vietddude/relaychat/internal/core/domain"
	"github.com/vietddude/relaychat/internal/core/state"
	"github.com/vietddude/relaychat/internal/infra/relay/classify"
	"github.com/vietddude/relaychat/internal/infra/session"
	"github.com/vietddude/relaychat/internal/metrics"
)

// DefaultTimeout bounds a single dispatch when SendOptions.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Config holds relay connection settings for one widget instance.
type Config struct {
	URL        string
	WidgetKey  string
	WidgetID   string
	LicenseKey string
	Timeout    time.Duration

	Page          *domain.PageContext
	CustomContext map[string]any
	ExtraInputs   map[string]any

	HTTPClient *http.Client
}

// Validate checks that the relay URL and credentials are usable.
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid relay url %q", c.URL)
	}
	if c.WidgetKey == "" && (c.WidgetID == "" || c.LicenseKey == "") {
		return errors.New("either widget key or widget id with license key is required")
	}
	return nil
}

// Scope returns the key that namespaces this widget's session data.
func (c Config) Scope() string {
	if c.WidgetKey != "" {
		return c.WidgetKey
	}
	return c.LicenseKey
}

// Dispatcher posts messages to the relay.
type Dispatcher struct {
	cfg      Config
	client   *http.Client
	sessions *session.Store
	sink     state.Sink
	log      *slog.Logger

	mu       sync.Mutex
	inflight map[uint64]context.CancelCauseFunc
	nextID   uint64

	// loadingMu orders loading updates with the in-flight changes behind them.
	loadingMu sync.Mutex
}

// NewDispatcher creates a Dispatcher. sink and log may be nil.
func NewDispatcher(
	cfg Config,
	sessions *session.Store,
	sink state.Sink,
	log *slog.Logger,
) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if sessions == nil {
		sessions = session.NewStore(nil, log)
	}
	if sink == nil {
		sink = state.Discard
	}
	if log == nil {
		log = slog.Default()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Dispatcher{
		cfg:      cfg,
		client:   client,
		sessions: sessions,
		sink:     sink,
		log:      log.With("component", "dispatcher"),
		inflight: make(map[uint64]context.CancelCauseFunc),
	}, nil
}

// Scope returns the session scope used by this dispatcher.
func (d *Dispatcher) Scope() string {
	return d.cfg.Scope()
}

// Send performs one dispatch. It never returns a Go error: failures are reported
// in the Result.
func (d *Dispatcher) Send(ctx context.Context, opts domain.SendOptions) domain.SendResult {
	start := time.Now()
	reqCtx, id := d.acquire(ctx)
	defer d.release(id)

	result := d.send(reqCtx, opts)
	d.record(result, time.Since(start))
	return result
}

func (d *Dispatcher) send(ctx context.Context, opts domain.SendOptions) domain.SendResult {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.cfg.Timeout
	}
	timer := time.AfterFunc(timeout, func() {
		d.cancel(ctx, classify.ErrTimeout)
	})
	defer timer.Stop()

	scope := d.cfg.Scope()
	sessionID := d.sessions.SessionID(ctx, scope)
	threadID := d.sessions.ThreadID(ctx, scope)
	if ctx.Err() != nil {
		return d.fail(ctx, ctx.Err())
	}

	attachments, err := encodeAttachments(ctx, opts.Attachments)
	if err != nil {
		return d.fail(ctx, err)
	}

	body, err := json.Marshal(d.buildPayload(opts.Text, sessionID, threadID, attachments))
	if err != nil {
		return d.fail(ctx, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return d.fail(ctx, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return d.fail(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return d.failWith(classify.Classify(resp))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return d.fail(ctx, fmt.Errorf("read response: %w", err))
	}

	var parsed Response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return d.fail(ctx, fmt.Errorf("%w: %w", classify.ErrParse, err))
	}

	if parsed.ThreadID != "" && parsed.ThreadID != threadID {
		d.sessions.SetThreadID(ctx, scope, parsed.ThreadID)
	}

	d.log.Debug("Message delivered", "session_id", sessionID, "message_id", parsed.MessageID)

	return domain.SendResult{
		Success:   true,
		MessageID: parsed.MessageID,
		Reply:     parsed.Reply(),
		ThreadID:  parsed.ThreadID,
		StreamURL: parsed.StreamURL,
	}
}

// Abort cancels every in-flight request and clears busy. It is a no-op when
// nothing is in flight.
func (d *Dispatcher) Abort() {
	d.loadingMu.Lock()
	defer d.loadingMu.Unlock()

	d.mu.Lock()
	cancels := make([]context.CancelCauseFunc, 0, len(d.inflight))
	for id, cancel := range d.inflight {
		cancels = append(cancels, cancel)
		delete(d.inflight, id)
	}
	d.mu.Unlock()

	if len(cancels) == 0 {
		return
	}
	for _, cancel := range cancels {
		cancel(classify.ErrAborted)
	}
	d.log.Debug("Aborted in-flight requests", "count", len(cancels))
	d.sink.Set(state.Patch{Loading: state.Ptr(false)})
}

// IsBusy reports whether any send is in flight.
func (d *Dispatcher) IsBusy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight) > 0
}

// acquire registers a new in-flight send with its own cancellation token.
func (d *Dispatcher) acquire(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancelCause(parent)

	d.loadingMu.Lock()
	defer d.loadingMu.Unlock()

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.inflight[id] = cancel
	d.mu.Unlock()

	d.sink.Set(state.Patch{Loading: state.Ptr(true), Error: state.Ptr("")})
	return context.WithValue(ctx, tokenKey{}, id), id
}

// release unregisters a send. Sends already released by Abort are skipped, so
// busy and loading are cleared exactly once.
func (d *Dispatcher) release(id uint64) {
	d.loadingMu.Lock()
	defer d.loadingMu.Unlock()

	d.mu.Lock()
	cancel, ok := d.inflight[id]
	delete(d.inflight, id)
	idle := len(d.inflight) == 0
	d.mu.Unlock()

	if !ok {
		return
	}
	cancel(context.Canceled)
	if idle {
		d.sink.Set(state.Patch{Loading: state.Ptr(false)})
	}
}

type tokenKey struct{}

// cancel cancels the send owning ctx with cause.
func (d *Dispatcher) cancel(ctx context.Context, cause error) {
	id, _ := ctx.Value(tokenKey{}).(uint64)

	d.mu.Lock()
	cancel, ok := d.inflight[id]
	d.mu.Unlock()

	if ok {
		cancel(cause)
	}
}

// fail classifies err, preferring the cancellation cause when the send was cancelled.
func (d *Dispatcher) fail(ctx context.Context, err error) domain.SendResult {
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
			err = fmt.Errorf("%w: %w", cause, err)
		}
	}
	return d.failWith(classify.Classify(err))
}

func (d *Dispatcher) failWith(ne domain.NetworkError) domain.SendResult {
	d.log.Warn("Dispatch failed",
		"type", ne.Type,
		"status", ne.StatusCode,
		"retryable", ne.Retryable,
		"error", ne.Message,
	)
	if ne.Type != domain.ErrorTypeAbort {
		d.sink.Set(state.Patch{Error: state.Ptr(classify.UserMessage(ne))})
	}
	return domain.SendResult{Success: false, Error: &ne}
}

func (d *Dispatcher) record(result domain.SendResult, latency time.Duration) {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
		metrics.DispatchErrorsTotal.WithLabelValues(
			string(result.Error.Type),
			strconv.FormatBool(result.Error.Retryable),
		).Inc()
	}
	metrics.DispatchTotal.WithLabelValues(outcome).Inc()
	metrics.DispatchLatency.WithLabelValues(outcome).Observe(latency.Seconds())
}
