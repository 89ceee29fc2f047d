// Package metrics holds the Prometheus collectors for routing and probing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "capability_router"

// Metrics tracks routing outcomes and provider health.
//
// Metrics:
//   - capability_router_route_requests_total: routes by capability and outcome
//   - capability_router_attempts_total: provider attempts by provider and error kind
//   - capability_router_attempt_latency_seconds: per attempt latency
//   - capability_router_provider_health: last probe result (1=ok, 0=failed)
type Metrics struct {
	registry *prometheus.Registry

	routes   *prometheus.CounterVec
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	health   *prometheus.GaugeVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		routes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "route_requests_total",
				Help:      "Total route requests by capability and outcome",
			},
			[]string{"capability", "outcome"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Total provider attempts by capability, provider and error kind",
			},
			[]string{"capability", "provider", "error_kind"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_latency_seconds",
				Help:      "Provider attempt latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"capability", "provider"},
		),
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_health",
				Help:      "Provider health from the latest probe (1=ok, 0=failed)",
			},
			[]string{"provider"},
		),
	}

	reg.MustRegister(
		m.routes,
		m.attempts,
		m.latency,
		m.health,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordRoute counts one finished route call.
func (m *Metrics) RecordRoute(capability, outcome string) {
	if m == nil {
		return
	}
	m.routes.WithLabelValues(capability, outcome).Inc()
}

// RecordAttempt counts one provider attempt. errorKind is "success" for successful attempts.
func (m *Metrics) RecordAttempt(capability, provider, errorKind string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(capability, provider, errorKind).Inc()
	m.latency.WithLabelValues(capability, provider).Observe(latencySeconds)
}

// UpdateHealth sets the provider health gauge.
func (m *Metrics) UpdateHealth(provider string, ok bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1.0
	}
	m.health.WithLabelValues(provider).Set(v)
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
