package quota

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrAllKeysExhausted is returned when every key in the pool is over
// threshold for the current provider day. It is a circuit-open
// condition: callers should answer "temporarily unavailable" rather
// than retry, and it clears on its own at the next day rollover.
var ErrAllKeysExhausted = errors.New("all api keys exhausted for the day")

// Rotator chooses which credential is handed to a caller about to make
// a provider request. Rotation is an advisory pre-check against the
// ledger's local estimate, not a reaction to provider errors, and always
// advances strictly forward through pool order with wraparound. That
// never picks the globally least-used key, but it keeps the choice
// deterministic.
type Rotator struct {
	// Observer, when set, receives rotation events.
	Observer Observer

	pool   []Credential
	ledger *Ledger

	mu     sync.Mutex
	active int
}

// NewRotator creates a rotator over the given pool. The first configured
// credential starts active.
func NewRotator(pool []Credential, ledger *Ledger) *Rotator {
	return &Rotator{pool: pool, ledger: ledger}
}

// Acquire returns the credential to use for a call of the given expected
// cost. The active key is kept while it fits under both thresholds;
// otherwise the rotator advances forward, skipping keys that are over
// threshold themselves. When the whole pool is over threshold it returns
// ErrAllKeysExhausted.
//
// Acquire does not record usage. After the provider call succeeds the
// caller reports the real cost via Ledger.Record; between the two
// critical sections concurrent callers may briefly over-commit a key by
// up to one expected cost each, which is accepted.
func (r *Rotator) Acquire(expectedCost int64) (Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.pool)
	for step := 0; step < n; step++ {
		index := (r.active + step) % n
		if !r.usable(index, expectedCost) {
			continue
		}
		if index != r.active {
			slog.Info("quota: rotated active key",
				slog.Int("from", r.active), slog.Int("to", index))
			if r.Observer != nil {
				r.Observer.KeyRotated(r.active, index)
			}
			r.active = index
		}
		return r.pool[index], nil
	}

	slog.Error("quota: every key in the pool is over threshold")
	if r.Observer != nil {
		r.Observer.PoolExhausted()
	}
	return Credential{}, ErrAllKeysExhausted
}

// Active returns the index of the currently active credential.
func (r *Rotator) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// usable reports whether a key can absorb expectedCost without crossing
// either rotation threshold.
func (r *Rotator) usable(index int, expectedCost int64) bool {
	u := r.ledger.Get(index)
	if u.QuotaUsed+expectedCost > RotateThreshold {
		return false
	}
	if u.RequestsMade >= DailyRequestCeiling {
		return false
	}
	return true
}
