// Package metrics exposes the gateway's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the gateway instruments registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	UpstreamRetries      *prometheus.CounterVec
	UpstreamHealthy      *prometheus.GaugeVec
	RateLimitRejected    *prometheus.CounterVec
	CircuitBreakerOpened *prometheus.CounterVec
}

// New creates the instruments on a fresh registry. Re-registration of an
// identical collector is tolerated so reloads can reuse the instance.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portway_requests_total",
			Help: "Requests handled, by route pattern, method and status.",
		}, []string{"route", "method", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portway_request_duration_seconds",
			Help:    "End-to-end request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),

		UpstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portway_upstream_retries_total",
			Help: "Forwarding attempts beyond the first, per upstream.",
		}, []string{"upstream"}),

		UpstreamHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "portway_upstream_healthy_targets",
			Help: "Targets currently passing health checks, per upstream.",
		}, []string{"upstream"}),

		RateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portway_ratelimit_rejected_total",
			Help: "Requests rejected by rate limiting, per route pattern.",
		}, []string{"route"}),

		CircuitBreakerOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portway_circuit_breaker_rejections_total",
			Help: "Requests refused because every candidate breaker was open.",
		}, []string{"upstream"}),
	}

	for _, c := range []prometheus.Collector{
		m.RequestsTotal, m.RequestDuration, m.UpstreamRetries,
		m.UpstreamHealthy, m.RateLimitRejected, m.CircuitBreakerOpened,
	} {
		if err := m.registry.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
