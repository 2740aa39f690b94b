package quota

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSaveTimeout bounds each best-effort persistence write. The
// request path never waits on the store longer than this.
const DefaultSaveTimeout = 2 * time.Second

// Ledger is the authoritative (best-effort, local) record of per-key
// usage for the current provider day. It owns an in-memory copy of every
// key's counters and mirrors updates to a Store; the in-memory value
// stays authoritative when the store is unreachable.
//
// All methods are safe for concurrent use. The internal mutex is never
// held across store I/O.
type Ledger struct {
	// Now returns the current instant. Replace before first use to test
	// day-boundary behavior with fixed instants.
	Now func() time.Time

	// SaveTimeout bounds each persistence write. Default: DefaultSaveTimeout.
	SaveTimeout time.Duration

	// Observer, when set, receives accounting events.
	Observer Observer

	store    Store
	keyCount int

	mu    sync.Mutex
	usage map[int]*Usage

	saveFailed atomic.Bool
}

// NewLedger creates a ledger covering keyCount pool indexes, mirrored to
// store. Counters start at zero; call Hydrate to restore persisted state.
func NewLedger(store Store, keyCount int) *Ledger {
	return &Ledger{
		Now:         time.Now,
		SaveTimeout: DefaultSaveTimeout,
		store:       store,
		keyCount:    keyCount,
		usage:       make(map[int]*Usage, keyCount),
	}
}

// Hydrate loads persisted usage into the ledger. Records for unknown
// indexes are dropped; stale-day records are kept as-is and reset on
// first use. Hydration failure leaves the ledger zeroed and is not
// fatal.
func (l *Ledger) Hydrate(ctx context.Context) error {
	loaded, err := l.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	restored := 0
	for index, u := range loaded {
		if index < 0 || index >= l.keyCount {
			continue
		}
		record := u
		l.usage[index] = &record
		restored++
	}
	slog.Info("quota: ledger hydrated", slog.Int("keys", l.keyCount), slog.Int("restored", restored))
	return nil
}

// Get returns the current-day usage for a key. A stored record from a
// previous provider day is silently reset to zero first. Get never
// fails; a key with no prior state reads as zero usage.
func (l *Ledger) Get(index int) Usage {
	l.mu.Lock()
	u, reset := l.currentLocked(index)
	snapshot := *u
	l.mu.Unlock()

	if reset {
		// Persist the rollover off the caller's path.
		go l.save(context.Background(), index, snapshot)
	}
	return snapshot
}

// Record adds a confirmed-successful call's cost to a key's counters.
// It must only be called after the provider call succeeded; failed calls
// leave the ledger untouched. The mirror write is bounded by SaveTimeout
// and its failure is logged and swallowed.
func (l *Ledger) Record(ctx context.Context, index int, cost int64) {
	if cost <= 0 {
		return
	}

	l.mu.Lock()
	u, _ := l.currentLocked(index)
	u.QuotaUsed += cost
	u.RequestsMade++
	snapshot := *u
	l.mu.Unlock()

	slog.Info("quota: usage recorded",
		slog.Int("key_index", index),
		slog.Int64("cost", cost),
		slog.Int64("quota_used", snapshot.QuotaUsed),
		slog.Int64("requests_made", snapshot.RequestsMade))
	if l.Observer != nil {
		l.Observer.QuotaRecorded(index, snapshot.QuotaUsed, snapshot.RequestsMade)
	}

	l.saveDetached(ctx, index, snapshot)
}

// MarkExhausted forces a key's quota to the daily limit so the rotator
// skips it for the rest of the provider day. Used when the provider
// itself answered quotaExceeded, which outranks the local estimate.
func (l *Ledger) MarkExhausted(ctx context.Context, index int) {
	l.mu.Lock()
	u, _ := l.currentLocked(index)
	if u.QuotaUsed < DailyQuotaLimit {
		u.QuotaUsed = DailyQuotaLimit
	}
	snapshot := *u
	l.mu.Unlock()

	slog.Warn("quota: key marked exhausted by provider", slog.Int("key_index", index))
	if l.Observer != nil {
		l.Observer.QuotaRecorded(index, snapshot.QuotaUsed, snapshot.RequestsMade)
	}

	l.saveDetached(ctx, index, snapshot)
}

// Summary returns a copy of every key's stored usage. It is a read-only
// snapshot for observability: stale-day records are returned unchanged,
// not reset.
func (l *Ledger) Summary() map[int]Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[int]Usage, l.keyCount)
	for index := 0; index < l.keyCount; index++ {
		if u, ok := l.usage[index]; ok {
			out[index] = *u
		} else {
			out[index] = Usage{}
		}
	}
	return out
}

// Degraded reports whether the most recent persistence attempt failed.
func (l *Ledger) Degraded() bool {
	return l.saveFailed.Load()
}

// currentLocked returns the live usage record for index, resetting it if
// the stored day differs from today. Caller holds l.mu. The second
// return value reports whether a day rollover happened.
func (l *Ledger) currentLocked(index int) (*Usage, bool) {
	now := l.Now()
	today := DayKey(now)

	u, ok := l.usage[index]
	if !ok {
		u = &Usage{DayKey: today, LastReset: now}
		l.usage[index] = u
		return u, false
	}
	if u.DayKey != today {
		*u = Usage{DayKey: today, LastReset: now}
		slog.Info("quota: daily counters reset", slog.Int("key_index", index), slog.String("day", today))
		return u, true
	}
	return u, false
}

// saveDetached persists a snapshot without inheriting the request's
// cancellation; the write is bounded by SaveTimeout instead.
func (l *Ledger) saveDetached(ctx context.Context, index int, snapshot Usage) {
	l.save(context.WithoutCancel(ctx), index, snapshot)
}

func (l *Ledger) save(parent context.Context, index int, snapshot Usage) {
	ctx, cancel := context.WithTimeout(parent, l.SaveTimeout)
	defer cancel()

	if err := l.store.Save(ctx, index, snapshot); err != nil {
		l.saveFailed.Store(true)
		slog.Warn("quota: persist failed, in-memory value stays authoritative",
			slog.Int("key_index", index), slog.Any("error", err))
		return
	}
	l.saveFailed.Store(false)
}
