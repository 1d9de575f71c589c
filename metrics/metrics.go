// Package metrics holds the prometheus collectors for the landed-cost service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for oracle requests and comparisons.
const (
	OutcomeOK        = "ok"
	OutcomeNotFound  = "not_found"
	OutcomeTransport = "transport"
	OutcomeError     = "error"
)

// Metrics groups every collector the service records. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	OracleRequests *prometheus.CounterVec
	OracleDuration *prometheus.HistogramVec
	MissingYears   prometheus.Counter
	Comparisons    *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OracleRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "landedcost",
			Name:      "oracle_requests_total",
			Help:      "Rate oracle requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		OracleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "landedcost",
			Name:      "oracle_request_duration_seconds",
			Help:      "Rate oracle request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		MissingYears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landedcost",
			Name:      "series_missing_years_total",
			Help:      "Years dropped from year series because no rate could be obtained.",
		}),
		Comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "landedcost",
			Name:      "comparisons_total",
			Help:      "Country comparisons by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.OracleRequests,
		m.OracleDuration,
		m.MissingYears,
		m.Comparisons,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveOracle(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.OracleRequests.WithLabelValues(provider, outcome).Inc()
	m.OracleDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) AddMissingYears(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MissingYears.Add(float64(n))
}

func (m *Metrics) ObserveComparison(outcome string) {
	if m == nil {
		return
	}
	m.Comparisons.WithLabelValues(outcome).Inc()
}
