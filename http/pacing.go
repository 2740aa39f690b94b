package http

import (
	"context"
	"math/rand"
	"time"
)

// Pacing defaults. A short random delay before each upstream call
// spreads request timing without serializing callers.
const (
	DefaultPaceMin = 50 * time.Millisecond
	DefaultPaceMax = 250 * time.Millisecond
)

// Pacer inserts a small random delay before each upstream dispatch.
// Each caller sleeps independently; there is no shared state, so
// concurrent requests are never serialized against each other.
type Pacer struct {
	// Min and Max bound the random delay. Max <= 0 disables pacing.
	Min time.Duration
	Max time.Duration

	// Sleep performs the actual wait. Tests replace it to run without
	// real elapsed time. When nil, a context-aware real sleep is used.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer returns a pacer with delays drawn uniformly from [min, max].
func NewPacer(min, max time.Duration) *Pacer {
	return &Pacer{Min: min, Max: max}
}

// Wait sleeps for one randomly drawn delay, or returns early with the
// context's error when it is canceled. A nil pacer waits for nothing.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.Max <= 0 {
		return nil
	}

	d := p.Min
	if span := p.Max - p.Min; span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = realSleep
	}
	return sleep(ctx, d)
}

func realSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
