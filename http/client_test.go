package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ytproxy/retry"
)

// fastConfig keeps retries near-instant so tests run quickly.
func fastConfig() *Config {
	cfg := DefaultConfig()
	cfg.Retry = retry.Config{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
	return cfg
}

func TestGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "ytproxy/1.0" {
			t.Errorf("User-Agent = %q, want ytproxy/1.0", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want application/json", got)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(fastConfig())
	defer c.Close()

	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(fastConfig())
	defer c.Close()

	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("upstream called %d times, want 3", got)
	}
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))
	defer srv.Close()

	c := New(fastConfig())
	defer c.Close()

	_, err := c.Get(context.Background(), srv.URL)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Get() error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", statusErr.StatusCode)
	}
	if len(statusErr.Body) == 0 {
		t.Error("StatusError.Body is empty, want upstream body attached")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream called %d times, want 1 (no retry on 4xx)", got)
	}
}

func TestGetOpensCircuitOnRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.Retry.MaxRetries = 0
	cfg.CircuitBreaker.FailureThreshold = 2
	c := New(cfg)
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := c.Get(ctx, srv.URL); err == nil {
			t.Fatal("Get() against failing upstream returned nil error")
		}
	}

	_, err := c.Get(ctx, srv.URL)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Get() with open circuit = %v, want ErrCircuitOpen", err)
	}
	if got := c.Breaker().State(); got != CircuitOpen {
		t.Errorf("Breaker().State() = %v, want open", got)
	}
}

func TestGetHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(fastConfig())
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Get(ctx, srv.URL)
	if err == nil {
		t.Fatal("Get() with expired context returned nil error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Get() took %v, want prompt return on cancellation", elapsed)
	}
}

func TestNewWithNilConfigUsesDefaults(t *testing.T) {
	c := New(nil)
	defer c.Close()

	if c.config.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", c.config.Timeout)
	}
	if c.limiter != nil {
		t.Error("limiter created with UpstreamRPS = 0, want none")
	}
}
