package youtube

import (
	"bytes"
	"fmt"

	httpx "ytproxy/http"
)

// QuotaExceededError indicates the provider itself rejected a key with
// a quotaExceeded 403. The key has already been marked exhausted in the
// ledger when this error is returned.
type QuotaExceededError struct {
	// KeyIndex is the pool index of the rejected key.
	KeyIndex int
}

// Error returns a string representation of the quota exceeded error.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("youtube: provider reports quota exceeded for key %d", e.KeyIndex)
}

// UpstreamError wraps a failed provider call. The wrapped error carries
// the transport or status detail; counters are never incremented for
// calls that end up here.
type UpstreamError struct {
	Endpoint string
	Err      error
}

// Error returns a string representation of the upstream error.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("youtube %s: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// quotaExceededReason is the error reason string in the provider's 403
// body when a key's daily quota is spent.
var quotaExceededReason = []byte("quotaExceeded")

// isQuotaExceeded reports whether a status error is the provider's
// quota rejection rather than an ordinary 403.
func isQuotaExceeded(err *httpx.StatusError) bool {
	return err.StatusCode == 403 && bytes.Contains(err.Body, quotaExceededReason)
}
