package http

import (
	"context"
	"testing"
	"time"
)

func TestPacerWaitWithinBounds(t *testing.T) {
	var slept []time.Duration
	p := NewPacer(10*time.Millisecond, 50*time.Millisecond)
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	for i := 0; i < 100; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error: %v", err)
		}
	}

	for _, d := range slept {
		if d < 10*time.Millisecond || d > 50*time.Millisecond {
			t.Errorf("slept %v, want within [10ms, 50ms]", d)
		}
	}
}

func TestPacerNilIsNoop(t *testing.T) {
	var p *Pacer
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("nil pacer Wait() = %v, want nil", err)
	}
}

func TestPacerDisabledWhenMaxZero(t *testing.T) {
	p := NewPacer(0, 0)
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		t.Errorf("Sleep called with %v, want no sleep when disabled", d)
		return nil
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
}

func TestPacerEqualBoundsSleepExactly(t *testing.T) {
	p := NewPacer(25*time.Millisecond, 25*time.Millisecond)
	var got time.Duration
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		got = d
		return nil
	}

	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if got != 25*time.Millisecond {
		t.Errorf("slept %v, want exactly 25ms", got)
	}
}

func TestPacerWaitCanceled(t *testing.T) {
	p := NewPacer(time.Second, 2*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := p.Wait(ctx)
	if err != context.Canceled {
		t.Errorf("Wait() on canceled context = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Wait() took %v, want immediate return", elapsed)
	}
}
