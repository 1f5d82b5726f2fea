// Package classify turns anything caught while talking to the relay into a
// domain.NetworkError.
//
// Inputs form a closed set of shapes, checked in priority order:
//   - *http.Response or a StatusCoder: the HTTP rules
//   - error: cancellation, timeout, parse, fetch failure (cors or network)
//   - anything else (string, nil, unknown values): network, retryable
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/vietddude/relaychat/internal/core/domain"
)

// Sentinel errors for failures produced inside this module. They classify the same
// way as their browser counterparts.
var (
	ErrAborted = errors.New("request aborted")
	ErrTimeout = errors.New("request timed out")
	ErrParse   = errors.New("invalid response body")
	ErrFetch   = errors.New("failed to fetch")
)

// StatusCoder is implemented by response-like values that are not *http.Response.
type StatusCoder interface {
	StatusCode() int
}

// Named is implemented by errors that carry a DOM-style exception name
// ("AbortError", "TimeoutError", "SyntaxError", "TypeError").
type Named interface {
	Name() string
}

// Classify converts raw into a NetworkError. It never panics.
func Classify(raw any) domain.NetworkError {
	switch v := raw.(type) {
	case *http.Response:
		if v != nil {
			if ne, ok := fromStatus(v.StatusCode, v.Status, raw); ok {
				return ne
			}
		}
	case StatusCoder:
		if ne, ok := fromStatus(v.StatusCode(), "", raw); ok {
			return ne
		}
	case domain.NetworkError:
		return v
	case *domain.NetworkError:
		if v != nil {
			return *v
		}
	case error:
		return fromError(v)
	case string:
		return newError(domain.ErrorTypeNetwork, v, 0, raw)
	}

	return newError(domain.ErrorTypeNetwork, describe(raw), 0, raw)
}

// fromStatus classifies HTTP failure statuses. Success statuses are not failures and fall through.
func fromStatus(code int, status string, raw any) (domain.NetworkError, bool) {
	if code >= 200 && code < 400 {
		return domain.NetworkError{}, false
	}
	msg := strings.TrimSpace(status)
	if msg == "" {
		msg = fmt.Sprintf("%d %s", code, http.StatusText(code))
	}
	return newError(domain.ErrorTypeHTTP, msg, code, raw), true
}

func fromError(err error) domain.NetworkError {
	name := errorName(err)

	switch {
	case isAbort(err, name):
		return newError(domain.ErrorTypeAbort, err.Error(), 0, err)
	case isTimeout(err, name):
		return newError(domain.ErrorTypeTimeout, err.Error(), 0, err)
	case isParse(err, name):
		return newError(domain.ErrorTypeParse, err.Error(), 0, err)
	case isFetch(err, name):
		if mentionsCORS(err.Error()) {
			return newError(domain.ErrorTypeCORS, err.Error(), 0, err)
		}
		return newError(domain.ErrorTypeNetwork, err.Error(), 0, err)
	}

	var ne domain.NetworkError
	if errors.As(err, &ne) {
		return ne
	}
	return newError(domain.ErrorTypeNetwork, err.Error(), 0, err)
}

func isAbort(err error, name string) bool {
	// A timeout cause wins over the generic context.Canceled the HTTP client reports.
	if errors.Is(err, ErrTimeout) {
		return false
	}
	return name == "AbortError" || errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}

func isTimeout(err error, name string) bool {
	if name == "TimeoutError" || errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isParse(err error, name string) bool {
	if name == "SyntaxError" || errors.Is(err, ErrParse) {
		return true
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func isFetch(err error, name string) bool {
	if name == "TypeError" || errors.Is(err, ErrFetch) {
		return true
	}
	var urlErr *url.Error
	var opErr *net.OpError
	return errors.As(err, &urlErr) || errors.As(err, &opErr)
}

func mentionsCORS(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "cors") || strings.Contains(lower, "networkerror")
}

func errorName(err error) string {
	var named Named
	if errors.As(err, &named) {
		return named.Name()
	}
	return ""
}

func describe(raw any) string {
	if raw == nil {
		return "unknown error"
	}
	return fmt.Sprintf("unexpected failure value of type %T", raw)
}

func newError(t domain.ErrorType, msg string, code int, original any) domain.NetworkError {
	return domain.NetworkError{
		Type:       t,
		Message:    msg,
		StatusCode: code,
		Retryable:  domain.IsRetryable(t, code),
		Original:   original,
	}
}
