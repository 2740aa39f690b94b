// Package metrics exposes Prometheus metrics for the proxy: request
// throughput and latency, per-key quota consumption, and rotation
// events.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors, registered on a private registry so the
// endpoint exposes only this process's metrics. A nil *Metrics is valid
// and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	quotaUsed    *prometheus.GaugeVec
	keyRequests  *prometheus.GaugeVec
	rotations    prometheus.Counter
	exhaustions  prometheus.Counter
	upstreamErrs prometheus.Counter
}

// New creates and registers all proxy collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ytproxy",
				Name:      "requests_total",
				Help:      "Total proxy requests served, by endpoint and status code",
			},
			[]string{"endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ytproxy",
				Name:      "request_duration_seconds",
				Help:      "Proxy request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		quotaUsed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ytproxy",
				Name:      "quota_used",
				Help:      "Estimated quota units consumed today, per API key index",
			},
			[]string{"key_index"},
		),
		keyRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ytproxy",
				Name:      "key_requests",
				Help:      "Successful upstream requests today, per API key index",
			},
			[]string{"key_index"},
		),
		rotations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ytproxy",
				Name:      "key_rotations_total",
				Help:      "Number of times the active API key changed",
			},
		),
		exhaustions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ytproxy",
				Name:      "keys_exhausted_total",
				Help:      "Number of requests rejected because every key was over threshold",
			},
		),
		upstreamErrs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ytproxy",
				Name:      "upstream_errors_total",
				Help:      "Failed upstream API calls",
			},
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.quotaUsed,
		m.keyRequests,
		m.rotations,
		m.exhaustions,
		m.upstreamErrs,
	)
	return m
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveRequest records one served proxy request.
func (m *Metrics) ObserveRequest(endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveUpstreamError records a failed upstream call.
func (m *Metrics) ObserveUpstreamError() {
	if m == nil {
		return
	}
	m.upstreamErrs.Inc()
}

// QuotaRecorded implements quota.Observer.
func (m *Metrics) QuotaRecorded(index int, quotaUsed, requestsMade int64) {
	if m == nil {
		return
	}
	label := strconv.Itoa(index)
	m.quotaUsed.WithLabelValues(label).Set(float64(quotaUsed))
	m.keyRequests.WithLabelValues(label).Set(float64(requestsMade))
}

// KeyRotated implements quota.Observer.
func (m *Metrics) KeyRotated(from, to int) {
	if m == nil {
		return
	}
	m.rotations.Inc()
}

// PoolExhausted implements quota.Observer.
func (m *Metrics) PoolExhausted() {
	if m == nil {
		return
	}
	m.exhaustions.Inc()
}
