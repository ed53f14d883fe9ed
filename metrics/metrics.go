// Package metrics exposes the Prometheus counters and histograms for the
// metering data plane: ingest volume, validate outcomes, and aggregation
// tick health. Exported at /metrics via promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors, registered against a
// private registry so repeated construction in tests never collides with
// prometheus.DefaultRegisterer.
type Metrics struct {
	registry *prometheus.Registry

	EventsIngested   *prometheus.CounterVec
	IngestFailures   *prometheus.CounterVec
	ValidateOutcomes *prometheus.CounterVec
	AggregationRuns  *prometheus.CounterVec
	AggregationDur   prometheus.Histogram
}

// New constructs and registers the service's metric collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metering_events_ingested_total",
			Help: "Total events successfully persisted, by tenant.",
		}, []string{"tenant_id"}),
		IngestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metering_ingest_failures_total",
			Help: "Total ingest calls that failed, by reason.",
		}, []string{"reason"}),
		ValidateOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metering_validate_outcomes_total",
			Help: "Total /validate calls, by allowed/denied.",
		}, []string{"outcome"}),
		AggregationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metering_aggregation_runs_total",
			Help: "Total aggregation engine compute runs, by window type and outcome.",
		}, []string{"window_type", "outcome"}),
		AggregationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "metering_aggregation_duration_seconds",
			Help:    "Duration of an aggregation Compute call.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.EventsIngested, m.IngestFailures, m.ValidateOutcomes, m.AggregationRuns, m.AggregationDur)
	return m
}

// Handler returns the HTTP handler serving this registry's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
