package http

import (
	"errors"
	"fmt"
)

// StatusError indicates a non-2xx response from the upstream API.
type StatusError struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Body is the response body, kept for error detail extraction.
	Body []byte
}

// Error returns a string representation of the status error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.StatusCode)
}

// IsTransientError reports whether an error is worth counting against
// the circuit breaker (and retrying). Server-side failures and 429s are
// transient; other 4xx responses are the caller's fault and permanent.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 500 {
			return true
		}
		if statusErr.StatusCode == 429 {
			return true
		}
		return false
	}

	// Network errors, timeouts, etc.
	return true
}
