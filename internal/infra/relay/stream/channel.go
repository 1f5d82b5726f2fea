// Package stream owns the server-push side of a conversation: one live event
// stream per widget, chunk fan-out to listeners, and autonomous reconnection with
// exponential backoff.
package stream

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/relaychat/internal/core/domain"
	"github.com/vietddude/relaychat/internal/core/state"
	"github.com/vietddude/relaychat/internal/infra/relay/retry"
	"github.com/vietddude/relaychat/internal/metrics"
)

// DoneSentinel marks the end of a stream.
const DoneSentinel = "[DONE]"

// Config defines reconnect behavior.
type Config struct {
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	BaseDelay            time.Duration `yaml:"base_delay"`
	MaxDelay             time.Duration `yaml:"max_delay"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxReconnectAttempts: 5,
	BaseDelay:            1 * time.Second,
	MaxDelay:             30 * time.Second,
}

// Channel is an auto-reconnecting streaming channel. Listeners are invoked
// outside the channel's lock, so they may call back into the channel.
type Channel struct {
	dialer Dialer
	cfg    Config
	sink   state.Sink
	log    *slog.Logger

	mu              sync.Mutex
	state           State
	url             string
	source          EventSource
	gen             uint64 // bumped on every teardown; stale events and timers compare against it
	errors          int    // consecutive transport errors
	shouldReconnect bool
	timer           *time.Timer
	buffer          strings.Builder

	chunkListeners []func(chunk string)
	stateListeners []func(t Transition)

	// notifications are queued under mu in state order and delivered by one
	// goroutine at a time.
	notifications []func()
	delivering    bool
}

// NewChannel creates a disconnected channel. sink and log may be nil.
func NewChannel(dialer Dialer, cfg Config, sink state.Sink, log *slog.Logger) *Channel {
	if sink == nil {
		sink = state.Discard
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return &Channel{
		dialer: dialer,
		cfg:    cfg,
		sink:   sink,
		log:    log.With("component", "stream"),
		state:  domain.ConnectionDisconnected,
	}
}

// OnChunk registers fn for every non-sentinel chunk, in registration order.
func (c *Channel) OnChunk(fn func(chunk string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunkListeners = append(c.chunkListeners, fn)
}

// OnStateChange registers fn for every state transition.
func (c *Channel) OnStateChange(fn func(t Transition)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateListeners = append(c.stateListeners, fn)
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EventSource returns the live transport, or nil.
func (c *Channel) EventSource() EventSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// Buffer returns the text streamed since the last Connect.
func (c *Channel) Buffer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.String()
}

// ReconnectPending reports whether a reconnect timer is armed.
func (c *Channel) ReconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// Connect opens a stream to url. It is a no-op while already connected or
// connecting to the same url; any other existing connection is torn down first.
func (c *Channel) Connect(url string) {
	c.mu.Lock()
	if c.url == url && c.state.IsActive() {
		c.mu.Unlock()
		return
	}

	c.teardownLocked()
	c.url = url
	c.errors = 0
	c.shouldReconnect = true
	c.buffer.Reset()
	c.mu.Unlock()

	c.sink.Set(state.Patch{StreamingText: state.Ptr("")})
	c.open("connect")
}

// Disconnect closes the stream for good; nothing reconnects until the next Connect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.shouldReconnect = false
	c.teardownLocked()
	fire := c.transitionLocked(domain.ConnectionClosed, "disconnect")
	c.mu.Unlock()

	fire()
}

// open dials the current url. The dial runs outside the lock; a dial superseded
// by a teardown in the meantime is discarded.
func (c *Channel) open(reason string) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	url := c.url
	fire := c.transitionLocked(domain.ConnectionConnecting, reason)
	c.mu.Unlock()
	fire()

	src, err := c.dialer.Dial(url, c.handlers(gen))

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if src != nil {
			src.Detach()
			_ = src.Close()
		}
		return
	}
	if err != nil {
		fire = c.failLocked(err)
		c.mu.Unlock()
		fire()
		return
	}
	c.source = src
	c.mu.Unlock()
}

func (c *Channel) handlers(gen uint64) Handlers {
	return Handlers{
		OnOpen:    func() { c.handleOpen(gen) },
		OnMessage: func(data string) { c.handleMessage(gen, data) },
		OnError:   func(err error) { c.handleError(gen, err) },
	}
}

func (c *Channel) handleOpen(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.errors = 0
	url := c.url
	fire := c.transitionLocked(domain.ConnectionConnected, "open")
	c.mu.Unlock()

	c.log.Debug("Stream connected", "url", url)
	fire()
}

func (c *Channel) handleMessage(gen uint64, data string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	if data == DoneSentinel {
		c.shouldReconnect = false
		c.teardownLocked()
		fire := c.transitionLocked(domain.ConnectionClosed, "done")
		c.mu.Unlock()
		fire()
		return
	}

	c.buffer.WriteString(data)
	text := c.buffer.String()
	listeners := append([]func(string){}, c.chunkListeners...)
	c.mu.Unlock()

	metrics.StreamChunksTotal.Inc()
	for _, fn := range listeners {
		fn(data)
	}
	c.sink.Set(state.Patch{StreamingText: &text})
}

func (c *Channel) handleError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	fire := c.failLocked(err)
	c.mu.Unlock()
	fire()
}

// failLocked closes the failed transport and either schedules a reconnect or
// gives up. Giving up moves straight to closed.
func (c *Channel) failLocked(err error) func() {
	c.teardownLocked()
	c.errors++

	if !c.shouldReconnect || c.errors >= c.cfg.MaxReconnectAttempts {
		c.shouldReconnect = false
		c.log.Warn("Stream closed after transport errors", "url", c.url, "errors", c.errors, "error", err)
		return c.transitionLocked(domain.ConnectionClosed, "reconnect attempts exhausted")
	}

	fire := c.transitionLocked(domain.ConnectionError, err.Error())

	delay := retry.Backoff(c.errors-1, c.cfg.BaseDelay, c.cfg.MaxDelay)
	gen := c.gen
	c.timer = time.AfterFunc(delay, func() { c.reconnect(gen) })
	metrics.StreamReconnectsTotal.Inc()
	c.log.Info("Stream error, reconnecting", "url", c.url, "attempt", c.errors, "delay", delay, "error", err)

	return fire
}

func (c *Channel) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.shouldReconnect {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	c.open("reconnect")
}

// teardownLocked cancels any pending reconnect and closes the transport with its
// handlers detached first.
func (c *Channel) teardownLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.source != nil {
		c.source.Detach()
		_ = c.source.Close()
		c.source = nil
	}
	c.gen++
}

// transitionLocked moves to next and returns the function that delivers queued
// notifications once the lock is released.
func (c *Channel) transitionLocked(next State, reason string) func() {
	prev := c.state
	if prev == next {
		return func() {}
	}
	c.state = next

	t := NewTransition(prev, next, reason)
	if !t.IsValid() {
		c.log.Warn("Unexpected stream transition", "from", prev, "to", next, "reason", reason)
	}
	metrics.StreamTransitionsTotal.WithLabelValues(string(prev), string(next)).Inc()
	listeners := append([]func(Transition){}, c.stateListeners...)

	c.notifications = append(c.notifications, func() {
		c.sink.Set(state.Patch{Connection: &next})
		for _, fn := range listeners {
			fn(t)
		}
	})
	return c.deliver
}

// deliver runs queued notifications in order. A call made while another goroutine
// is delivering returns at once; the active deliverer drains the queue.
func (c *Channel) deliver() {
	c.mu.Lock()
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	for len(c.notifications) > 0 {
		fn := c.notifications[0]
		c.notifications[0] = nil
		c.notifications = c.notifications[1:]
		c.mu.Unlock()
		fn()
		c.mu.Lock()
	}
	c.delivering = false
	c.mu.Unlock()
}
