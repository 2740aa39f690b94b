// Package http provides the outbound HTTP client infrastructure for
// upstream API calls: pooled transport, retry with backoff, optional
// token-bucket rate limiting, random pre-dispatch pacing, and a circuit
// breaker that fails fast when the upstream is down.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"ytproxy/retry"
)

// Client wraps an HTTP client with retry logic, rate limiting, and a
// circuit breaker, tuned for talking to one upstream API host.
type Client struct {
	base    *http.Client
	config  *Config
	limiter *rate.Limiter
	breaker *CircuitBreaker
}

// Config holds HTTP client configuration.
type Config struct {
	// Timeout for individual HTTP requests.
	Timeout time.Duration

	// Retry configuration for transient failures.
	Retry retry.Config

	// UserAgent for HTTP requests.
	UserAgent string

	// UpstreamRPS caps requests per second to the upstream with a token
	// bucket. 0 disables the bucket; quota accounting then remains the
	// only throttle.
	UpstreamRPS float64
	// Burst is the token bucket size when UpstreamRPS is set.
	Burst int

	// CircuitBreaker configuration.
	CircuitBreaker CircuitBreakerConfig

	// Transport is the connection pool configuration.
	Transport TransportConfig
}

// TransportConfig configures the HTTP transport (connection pooling).
type TransportConfig struct {
	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int
	// MaxIdleConnsPerHost is the maximum idle connections per host.
	MaxIdleConnsPerHost int
	// MaxConnsPerHost is the maximum concurrent connections per host.
	MaxConnsPerHost int
	// IdleConnTimeout is how long an idle connection may stay open.
	IdleConnTimeout time.Duration
	// ForceAttemptHTTP2 enables HTTP/2 where the server supports it.
	ForceAttemptHTTP2 bool
}

// DefaultConfig returns sensible defaults for upstream API traffic.
func DefaultConfig() *Config {
	return &Config{
		Timeout:        10 * time.Second,
		Retry:          retry.DefaultConfig(),
		UserAgent:      "ytproxy/1.0",
		UpstreamRPS:    0,
		Burst:          1,
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Transport:      DefaultTransportConfig(),
	}
}

// DefaultTransportConfig returns sensible connection pool defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

// New creates a new HTTP client with the given configuration.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.Transport.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Transport.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.Transport.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Transport.IdleConnTimeout,
		ForceAttemptHTTP2:   cfg.Transport.ForceAttemptHTTP2,
	}

	var limiter *rate.Limiter
	if cfg.UpstreamRPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.UpstreamRPS), burst)
	}

	return &Client{
		base: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		config:  cfg,
		limiter: limiter,
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
	}
}

// Response represents an HTTP response with status code and body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get performs a GET request with rate limiting, retry logic, and
// circuit breaking. Non-2xx responses come back as *StatusError with
// the body attached; the body is never retried for permanent 4xx
// failures.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	// Fail fast while the upstream is known to be down.
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var result *Response
	err := retry.Do(ctx, c.config.Retry, c.isRetryable, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("User-Agent", c.config.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.base.Do(req)
		if err != nil {
			return fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{StatusCode: resp.StatusCode, Body: body}
		}

		result = &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		}
		return nil
	})

	if err != nil {
		c.breaker.RecordFailure(err)
		return nil, err
	}

	c.breaker.RecordSuccess()
	return result, nil
}

// isRetryable determines whether a request error is worth another
// attempt: transient status codes and network errors, but never
// permanent 4xx responses or canceled contexts.
func (c *Client) isRetryable(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return IsTransientError(err)
	}
	return true
}

// Breaker exposes the circuit breaker for observability.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// Close releases idle connections.
func (c *Client) Close() error {
	if c.base != nil {
		c.base.CloseIdleConnections()
	}
	return nil
}
