package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// calculation service.
type Metrics struct {
	CalculationsTotal *prometheus.CounterVec // labels: outcome=success|<failure kind>
	HistoryRequests   prometheus.Counter
	RecordsPersisted  prometheus.Counter

	// Engine invocation metrics.
	EngineInvocations *prometheus.CounterVec // labels: outcome={success,timeout,execution_failed,empty_output}
	EngineDuration    prometheus.Histogram
	EngineActive      prometheus.Gauge

	// Best-effort side channels.
	EventsPublished *prometheus.CounterVec // labels: outcome={success,error}
	ArchiveWrites   *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		CalculationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geo_index",
			Name:      "calculations_total",
			Help:      "Calculation requests by outcome.",
		}, []string{"outcome"}),
		HistoryRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "geo_index",
			Name:      "history_requests_total",
			Help:      "Total history queries served.",
		}),
		RecordsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "geo_index",
			Name:      "records_persisted_total",
			Help:      "Total calculation records written to the store.",
		}),
		EngineInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geo_index",
			Name:      "engine_invocations_total",
			Help:      "Engine process launches by outcome.",
		}, []string{"outcome"}),
		EngineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "geo_index",
			Name:      "engine_duration_seconds",
			Help:      "Wall-clock duration of engine invocations.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		EngineActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "geo_index",
			Name:      "engine_active",
			Help:      "Engine processes currently running.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geo_index",
			Name:      "events_published_total",
			Help:      "Calculation events published to Kafka by outcome.",
		}, []string{"outcome"}),
		ArchiveWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geo_index",
			Name:      "archive_writes_total",
			Help:      "Raw engine output archive writes by outcome.",
		}, []string{"outcome"}),
	}

	prometheus.MustRegister(
		m.CalculationsTotal,
		m.HistoryRequests,
		m.RecordsPersisted,
		m.EngineInvocations,
		m.EngineDuration,
		m.EngineActive,
		m.EventsPublished,
		m.ArchiveWrites,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		CalculationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "geo_index", Name: "calculations_total"}, []string{"outcome"}),
		HistoryRequests:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "geo_index", Name: "history_requests_total"}),
		RecordsPersisted:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "geo_index", Name: "records_persisted_total"}),
		EngineInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "geo_index", Name: "engine_invocations_total"}, []string{"outcome"}),
		EngineDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "geo_index", Name: "engine_duration_seconds"}),
		EngineActive:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "geo_index", Name: "engine_active"}),
		EventsPublished:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "geo_index", Name: "events_published_total"}, []string{"outcome"}),
		ArchiveWrites:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "geo_index", Name: "archive_writes_total"}, []string{"outcome"}),
	}
}
