// Package quota tracks per-key daily usage of the YouTube Data API and
// decides which API key a caller should use for the next request.
//
// The package has three pieces:
//
//   - Ledger: best-effort local record of per-key quota units and request
//     counts for the current provider day (Pacific Time calendar date).
//   - Rotator: hands out the currently usable key, advancing strictly
//     forward through the pool when the active key crosses a threshold.
//   - Store: durable mirror of the ledger, used for startup hydration and
//     best-effort write-through. A no-op in-memory implementation serves
//     as the degraded mode when the backend is unreachable.
//
// Accounting is an estimate: the provider exposes no real-time quota
// endpoint, so usage is computed locally from fixed per-endpoint costs
// and may drift slightly from the provider's own numbers.
package quota

import (
	"log/slog"
	"time"
)

// Provider-defined quota policy. These mirror the YouTube Data API v3
// defaults and are fixed at build time.
const (
	// DailyQuotaLimit is the quota units available per key per day.
	DailyQuotaLimit = 10000

	// DailyRequestCeiling is the maximum requests per key per day before
	// rotation, independent of quota cost.
	DailyRequestCeiling = 1000

	// rotateAtFraction is the fraction of DailyQuotaLimit at which a key
	// is considered spent and rotated away from.
	rotateAtFraction = 0.90
)

// RotateThreshold is the quota level above which a key is no longer
// handed out.
const RotateThreshold = int64(DailyQuotaLimit * rotateAtFraction)

// Credential is one API key from the configured pool. Index is the key's
// stable position in the pool; Key is the secret token and must never be
// logged or exposed over any external interface.
type Credential struct {
	Index int
	Key   string
}

// LogValue keeps the secret out of structured logs. Logging a Credential
// emits only its pool index.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(slog.Int("key_index", c.Index))
}

// NewPool builds the credential pool from an ordered list of API keys.
// Pool order is load order; indexes are stable for the process lifetime.
func NewPool(keys []string) []Credential {
	pool := make([]Credential, len(keys))
	for i, k := range keys {
		pool[i] = Credential{Index: i, Key: k}
	}
	return pool
}

// Usage is one key's consumption for a single provider day.
type Usage struct {
	// QuotaUsed is the estimated quota units consumed, in provider units.
	QuotaUsed int64 `json:"quota_used"`
	// RequestsMade is the number of successful requests attributed to the key.
	RequestsMade int64 `json:"requests_made"`
	// DayKey is the Pacific Time calendar date these counters apply to.
	DayKey string `json:"day_key"`
	// LastReset is when the counters were last initialized.
	LastReset time.Time `json:"last_reset"`
}

// Observer receives quota lifecycle events. All methods may be called
// concurrently. Implementations must not block.
type Observer interface {
	// QuotaRecorded fires after usage is added to a key.
	QuotaRecorded(index int, quotaUsed, requestsMade int64)
	// KeyRotated fires when the active key changes.
	KeyRotated(from, to int)
	// PoolExhausted fires when no key in the pool is usable.
	PoolExhausted()
}
