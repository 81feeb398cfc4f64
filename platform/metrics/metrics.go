// Package metrics exposes the Prometheus collectors of the analytics engine.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes used as the "outcome" label.
const (
	OutcomeRefreshed = "refreshed"
	OutcomeRemoved   = "removed"
	OutcomeFailed    = "failed"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Registry owns these metrics and backs the /metrics endpoint.
	Registry *prometheus.Registry

	refreshDuration  *prometheus.HistogramVec
	refreshOutcomes  *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
	principals       prometheus.Gauge
	triggersTotal    *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	upstreamFailures prometheus.Counter
}

// New creates a dedicated registry so repeated construction in tests never
// hits duplicate registration panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		refreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "principal_analytics_refresh_duration_seconds",
				Help:    "Duration of summary refreshes by scope.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scope"},
		),
		refreshOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "principal_analytics_refresh_principals_total",
				Help: "Per-principal refresh outcomes.",
			},
			[]string{"outcome"},
		),
		queryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "principal_analytics_query_duration_seconds",
				Help:    "Duration of summary queries by operation.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		principals: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "principal_analytics_qualifying_principals",
				Help: "Qualifying principals seen by the last full refresh.",
			},
		),
		triggersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "principal_analytics_refresh_triggers_total",
				Help: "Refresh requests by source.",
			},
			[]string{"source"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "principal_analytics_stats_cache_lookups_total",
				Help: "Stats cache lookups by result.",
			},
			[]string{"result"},
		),
		upstreamFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "principal_analytics_upstream_read_failures_total",
				Help: "Failed upstream snapshot reads.",
			},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveRefresh records how long a refresh of the given scope took.
func (m *Metrics) ObserveRefresh(scope string, d time.Duration) {
	if m == nil {
		return
	}
	m.refreshDuration.WithLabelValues(scope).Observe(d.Seconds())
}

// IncRefreshOutcome counts one principal refresh outcome.
func (m *Metrics) IncRefreshOutcome(outcome string) {
	m.AddRefreshOutcomes(outcome, 1)
}

// AddRefreshOutcomes counts n principal refresh outcomes.
func (m *Metrics) AddRefreshOutcomes(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.refreshOutcomes.WithLabelValues(outcome).Add(float64(n))
}

// ObserveQuery records the latency of a read operation.
func (m *Metrics) ObserveQuery(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetQualifyingPrincipals records how many principals the last full refresh saw.
func (m *Metrics) SetQualifyingPrincipals(n int) {
	if m == nil {
		return
	}
	m.principals.Set(float64(n))
}

// IncTrigger counts a refresh request from source.
func (m *Metrics) IncTrigger(source string) {
	if m == nil {
		return
	}
	m.triggersTotal.WithLabelValues(source).Inc()
}

// IncCacheLookup counts a stats cache hit or miss.
func (m *Metrics) IncCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// IncUpstreamFailure counts a failed upstream read.
func (m *Metrics) IncUpstreamFailure() {
	if m == nil {
		return
	}
	m.upstreamFailures.Inc()
}
