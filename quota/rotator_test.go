package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func testPool(n int) []Credential {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = "test-key"
	}
	return NewPool(keys)
}

func newTestRotator(t *testing.T, keys int) (*Rotator, *Ledger) {
	t.Helper()
	ledger := newTestLedger(newFakeStore(), keys, &fixedClock{t: day1})
	return NewRotator(testPool(keys), ledger), ledger
}

func TestAcquireKeepsActiveKeyUnderThreshold(t *testing.T) {
	r, _ := newTestRotator(t, 2)

	cred, err := r.Acquire(100)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if cred.Index != 0 {
		t.Errorf("Acquire() = key %d, want 0", cred.Index)
	}
	if r.Active() != 0 {
		t.Errorf("Active() = %d, want 0", r.Active())
	}
}

func TestAcquireRotatesWhenQuotaThresholdWouldBeCrossed(t *testing.T) {
	// Key 0 at 9050 of a 10000 limit; one more 100-unit call would pass
	// the 90% threshold, so the rotator must hand out key 1.
	r, ledger := newTestRotator(t, 2)
	ctx := context.Background()

	ledger.Record(ctx, 0, 9000)
	ledger.Record(ctx, 0, 50)

	cred, err := r.Acquire(100)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if cred.Index != 1 {
		t.Errorf("Acquire() = key %d, want 1", cred.Index)
	}
	if r.Active() != 1 {
		t.Errorf("Active() = %d, want 1", r.Active())
	}
}

func TestAcquireFailsWhenAllKeysExhausted(t *testing.T) {
	r, ledger := newTestRotator(t, 2)
	ctx := context.Background()

	ledger.Record(ctx, 0, 9500)
	ledger.Record(ctx, 1, 9500)

	_, err := r.Acquire(1)
	if !errors.Is(err, ErrAllKeysExhausted) {
		t.Errorf("Acquire() error = %v, want ErrAllKeysExhausted", err)
	}
}

func TestRequestCeilingRotatesIndependentlyOfQuota(t *testing.T) {
	// Key 0 has made 1000 cheap requests: almost no quota used, but the
	// request ceiling alone forces rotation.
	r, ledger := newTestRotator(t, 2)
	ctx := context.Background()

	for i := 0; i < DailyRequestCeiling; i++ {
		ledger.Record(ctx, 0, 1)
	}
	if u := ledger.Get(0); u.QuotaUsed >= RotateThreshold {
		t.Fatalf("setup broken: quota %d already over threshold", u.QuotaUsed)
	}

	cred, err := r.Acquire(1)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if cred.Index != 1 {
		t.Errorf("Acquire() = key %d, want 1", cred.Index)
	}
}

func TestRotationAdvancesForwardSkippingExhausted(t *testing.T) {
	r, ledger := newTestRotator(t, 3)
	ctx := context.Background()

	// Keys 0 and 1 over threshold; 2 is fresh.
	ledger.Record(ctx, 0, 9500)
	ledger.Record(ctx, 1, 9500)

	cred, err := r.Acquire(100)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if cred.Index != 2 {
		t.Errorf("Acquire() = key %d, want 2 (skipping 1)", cred.Index)
	}
}

func TestRotationWrapsAround(t *testing.T) {
	clock := &fixedClock{t: day1}
	ledger := newTestLedger(newFakeStore(), 3, clock)
	r := NewRotator(testPool(3), ledger)
	ctx := context.Background()

	// Move active to 2 by exhausting 0 and 1.
	ledger.Record(ctx, 0, 9500)
	ledger.Record(ctx, 1, 9500)
	if cred, _ := r.Acquire(1); cred.Index != 2 {
		t.Fatalf("setup: active key = %d, want 2", cred.Index)
	}

	// A new day clears 0 and 1; key 2 then fills up. Rotation from
	// active=2 must wrap to 0, not stop at the pool's end.
	clock.set(day2)
	ledger.Record(ctx, 2, 9500)

	cred, err := r.Acquire(1)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if cred.Index != 0 {
		t.Errorf("Acquire() = key %d, want 0 (wraparound)", cred.Index)
	}
}

func TestDayRolloverClearsExhaustion(t *testing.T) {
	clock := &fixedClock{t: day1}
	ledger := newTestLedger(newFakeStore(), 2, clock)
	r := NewRotator(testPool(2), ledger)
	ctx := context.Background()

	ledger.Record(ctx, 0, 9500)
	ledger.Record(ctx, 1, 9500)
	if _, err := r.Acquire(1); !errors.Is(err, ErrAllKeysExhausted) {
		t.Fatalf("setup: expected exhaustion, got %v", err)
	}

	clock.set(day2)

	cred, err := r.Acquire(1)
	if err != nil {
		t.Fatalf("Acquire() after rollover error: %v", err)
	}
	if cred.Index != 0 {
		t.Errorf("Acquire() after rollover = key %d, want 0", cred.Index)
	}
}

// countingObserver records rotation events for assertions.
type countingObserver struct {
	mu        sync.Mutex
	rotations int
	exhausted int
}

func (o *countingObserver) QuotaRecorded(index int, quotaUsed, requestsMade int64) {}

func (o *countingObserver) KeyRotated(from, to int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rotations++
}

func (o *countingObserver) PoolExhausted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exhausted++
}

func TestObserverSeesRotationAndExhaustion(t *testing.T) {
	r, ledger := newTestRotator(t, 2)
	obs := &countingObserver{}
	r.Observer = obs
	ctx := context.Background()

	ledger.Record(ctx, 0, 9500)
	if _, err := r.Acquire(1); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if obs.rotations != 1 {
		t.Errorf("rotations = %d, want 1", obs.rotations)
	}

	ledger.Record(ctx, 1, 9500)
	if _, err := r.Acquire(1); !errors.Is(err, ErrAllKeysExhausted) {
		t.Fatal("expected exhaustion")
	}
	if obs.exhausted != 1 {
		t.Errorf("exhausted events = %d, want 1", obs.exhausted)
	}
}

func TestConcurrentAcquireAndRecord(t *testing.T) {
	r, ledger := newTestRotator(t, 2)
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			cred, err := r.Acquire(1)
			if err != nil {
				t.Errorf("Acquire() error: %v", err)
				return
			}
			ledger.Record(ctx, cred.Index, 1)
		}()
	}
	wg.Wait()

	var total int64
	for _, u := range ledger.Summary() {
		total += u.QuotaUsed
	}
	if total != workers {
		t.Errorf("total quota recorded = %d, want %d", total, workers)
	}
}
