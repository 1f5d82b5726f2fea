package domain

import "fmt"

// ErrorType is the failure taxonomy shared by the dispatcher, the retry policy
// and the rendering layer.
type ErrorType string

const (
	ErrorTypeNetwork ErrorType = "network"
	ErrorTypeTimeout ErrorType = "timeout"
	ErrorTypeCORS    ErrorType = "cors"
	ErrorTypeHTTP    ErrorType = "http"
	ErrorTypeParse   ErrorType = "parse"
	ErrorTypeAbort   ErrorType = "abort"
)

// NetworkError is a classified delivery failure. It is built once per failure and
// passed around by value.
type NetworkError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"statusCode,omitempty"` // 0 when no HTTP status was received
	Retryable  bool      `json:"retryable"`

	// Original holds whatever was caught (error, response, value) for diagnostics.
	// It is never rendered to users.
	Original any `json:"-"`
}

// Error implements error.
func (e NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap exposes the original error, if there was one.
func (e NetworkError) Unwrap() error {
	if err, ok := e.Original.(error); ok {
		return err
	}
	return nil
}

// IsRetryable reports whether a failure of the given type and status may be retried.
// Retryable on NetworkError must always equal this function's result.
func IsRetryable(t ErrorType, statusCode int) bool {
	switch t {
	case ErrorTypeHTTP:
		return statusCode >= 500 || statusCode == 429
	case ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}
