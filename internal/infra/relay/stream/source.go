package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Handlers receive transport events. Any field may be nil.
type Handlers struct {
	OnOpen    func()
	OnMessage func(data string)
	OnError   func(err error)
}

// EventSource is one live server-push connection.
type EventSource interface {
	// URL returns the endpoint this source is connected to.
	URL() string

	// Detach drops the handlers; no callback fires afterwards.
	Detach()

	// Close terminates the connection. It does not wait for the reader to exit
	// and is safe to call from inside a handler.
	Close() error
}

// Dialer opens event sources.
type Dialer interface {
	Dial(url string, h Handlers) (EventSource, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(url string, h Handlers) (EventSource, error)

func (f DialerFunc) Dial(url string, h Handlers) (EventSource, error) {
	return f(url, h)
}

// StatusError reports a non-200 answer to the stream request.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stream request failed: http %d", e.Code)
}

// StatusCode lets the classifier treat the failure like an HTTP response.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// HTTPDialer opens Server-Sent Event streams over HTTP.
type HTTPDialer struct {
	Client *http.Client
}

// NewHTTPDialer creates a dialer using client, or a client without timeout when nil.
// Streams are long-lived, so a client-wide timeout would cut them off.
func NewHTTPDialer(client *http.Client) *HTTPDialer {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDialer{Client: client}
}

// Dial starts reading url in the background.
func (d *HTTPDialer) Dial(url string, h Handlers) (EventSource, error) {
	ctx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	s := &HTTPSource{
		url:      url,
		handlers: h,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.run(d.Client, req)
	return s, nil
}

// HTTPSource is an EventSource backed by a streaming HTTP response.
type HTTPSource struct {
	url    string
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	handlers Handlers
	closed   bool
}

func (s *HTTPSource) URL() string {
	return s.url
}

func (s *HTTPSource) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = Handlers{}
}

func (s *HTTPSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	return nil
}

// Done is closed once the reader goroutine has exited.
func (s *HTTPSource) Done() <-chan struct{} {
	return s.done
}

func (s *HTTPSource) run(client *http.Client, req *http.Request) {
	defer close(s.done)

	resp, err := client.Do(req)
	if err != nil {
		s.emitError(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		s.emitError(&StatusError{Code: resp.StatusCode})
		return
	}

	s.emitOpen()

	scanner := NewScanner(resp.Body)
	for scanner.Next() {
		ev := scanner.Event()
		if ev.Type != "" && ev.Type != "message" {
			continue
		}
		s.emitMessage(ev.Data)
	}

	err = scanner.Err()
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	s.emitError(fmt.Errorf("stream ended: %w", err))
}

func (s *HTTPSource) current() (Handlers, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers, !s.closed
}

func (s *HTTPSource) emitOpen() {
	if h, ok := s.current(); ok && h.OnOpen != nil {
		h.OnOpen()
	}
}

func (s *HTTPSource) emitMessage(data string) {
	if h, ok := s.current(); ok && h.OnMessage != nil {
		h.OnMessage(data)
	}
}

func (s *HTTPSource) emitError(err error) {
	if h, ok := s.current(); ok && h.OnError != nil {
		h.OnError(err)
	}
}
