package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// proximity engine.
type Metrics struct {
	IncidentsConsumed  prometheus.Counter
	DecisionsPublished prometheus.Counter
	EvaluationErrors   prometheus.Counter
	EngineRunning      prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Location resolution metrics.
	LocationRequests       *prometheus.CounterVec // labels: outcome={cache,fresh,stale,default}
	LocationSourceDuration prometheus.Histogram
	ZoneMatches            prometheus.Histogram // matched zones per alert decision
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		IncidentsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "proximity_engine",
			Name:      "incidents_consumed_total",
			Help:      "Total incidents read from the source topic.",
		}),
		DecisionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "proximity_engine",
			Name:      "decisions_published_total",
			Help:      "Total alert decisions written to the sink topic.",
		}),
		EvaluationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "proximity_engine",
			Name:      "evaluation_errors_total",
			Help:      "Total incidents that could not be evaluated.",
		}),
		EngineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "proximity_engine",
			Name:      "running",
			Help:      "1 when the engine loop is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "proximity_engine",
			Name:      "batch_size",
			Help:      "Number of incidents per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "proximity_engine",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-evaluate-publish cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		LocationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proximity_engine",
			Name:      "location_requests_total",
			Help:      "Location resolutions by outcome.",
		}, []string{"outcome"}),
		LocationSourceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "proximity_engine",
			Name:      "location_source_duration_seconds",
			Help:      "Geolocation source request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		ZoneMatches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "proximity_engine",
			Name:      "zone_matches",
			Help:      "Matched zones per published alert decision.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}),
	}

	prometheus.MustRegister(
		m.IncidentsConsumed,
		m.DecisionsPublished,
		m.EvaluationErrors,
		m.EngineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.LocationRequests,
		m.LocationSourceDuration,
		m.ZoneMatches,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		IncidentsConsumed:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "proximity_engine", Name: "incidents_consumed_total"}),
		DecisionsPublished:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "proximity_engine", Name: "decisions_published_total"}),
		EvaluationErrors:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "proximity_engine", Name: "evaluation_errors_total"}),
		EngineRunning:           prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "proximity_engine", Name: "running"}),
		BatchSize:               prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "proximity_engine", Name: "batch_size"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "proximity_engine", Name: "batch_processing_duration_seconds"}),
		LocationRequests:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "proximity_engine", Name: "location_requests_total"}, []string{"outcome"}),
		LocationSourceDuration:  prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "proximity_engine", Name: "location_source_duration_seconds"}),
		ZoneMatches:             prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "proximity_engine", Name: "zone_matches"}),
	}
}
