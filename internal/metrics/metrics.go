// Package metrics holds the Prometheus collectors for ingest and aggregation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Ingest metrics
	EventsRecorded *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	EventsFiltered *prometheus.CounterVec

	// Counter side effect metrics
	CounterIncrements *prometheus.CounterVec
	CounterFailures   *prometheus.CounterVec

	// Aggregation metrics
	AggregationLatency  *prometheus.HistogramVec
	AggregationFailures *prometheus.CounterVec

	// Store metrics
	StoredEvents prometheus.Gauge
	GeoLookups   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates all collectors on a fresh registry so several instances
// can coexist in tests.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		EventsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_recorded_total",
				Help:      "Total number of interaction events persisted",
			},
			[]string{"target_type", "interaction_type"},
		),
		EventsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_rejected_total",
				Help:      "Total number of ingest requests rejected",
			},
			[]string{"reason"},
		),
		EventsFiltered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_filtered_total",
				Help:      "Total number of ingest requests accepted but not stored",
			},
			[]string{"reason"},
		),
		CounterIncrements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "target_counter_increments_total",
				Help:      "Total number of successful target view counter increments",
			},
			[]string{"backend"},
		),
		CounterFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "target_counter_failures_total",
				Help:      "Total number of failed target view counter increments",
			},
			[]string{"backend"},
		),
		AggregationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "aggregation_duration_seconds",
				Help:      "Aggregation query latency in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		AggregationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregation_failures_total",
				Help:      "Total number of failed aggregation sections",
			},
			[]string{"operation", "section"},
		),
		StoredEvents: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stored_events",
				Help:      "Number of events currently in the store",
			},
		),
		GeoLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "geo_lookups_total",
				Help:      "IP geolocation lookups by outcome",
			},
			[]string{"result"},
		),
		registry: reg,
	}
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAggregation records the latency of one aggregation operation.
func (m *Metrics) ObserveAggregation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.AggregationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordSectionFailure counts a failed fan-out section.
func (m *Metrics) RecordSectionFailure(operation, section string) {
	if m == nil {
		return
	}
	m.AggregationFailures.WithLabelValues(operation, section).Inc()
}
