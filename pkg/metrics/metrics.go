package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BaselinesTrained counts successful baseline fits by energy source.
	BaselinesTrained = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enpi_baselines_trained_total",
		Help: "Number of baseline models trained successfully.",
	}, []string{"energy_source"})

	// TrainingFailures counts failed training runs by failure kind.
	TrainingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enpi_training_failures_total",
		Help: "Number of baseline training runs that failed.",
	}, []string{"reason"})

	// PerformanceRecords counts tracked periods by resulting ISO status.
	PerformanceRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enpi_performance_records_total",
		Help: "Number of performance records written, by ISO status.",
	}, []string{"iso_status"})

	// Analyses counts single-call performance analyses.
	Analyses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enpi_analyses_total",
		Help: "Number of performance analyses served.",
	})

	// OpportunityScans counts factory-wide opportunity scans.
	OpportunityScans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enpi_opportunity_scans_total",
		Help: "Number of factory-wide opportunity scans served.",
	})

	// ReportsGenerated counts compliance reports by origin (cache or store).
	ReportsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enpi_reports_generated_total",
		Help: "Number of compliance reports served, by origin.",
	}, []string{"origin"})

	// AggregationDuration observes time-series aggregation query latency,
	// the dominant cost of train/track/analyze.
	AggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enpi_aggregation_query_seconds",
		Help:    "Latency of day-bucketed aggregation queries.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// TrainingDuration observes end-to-end baseline training latency,
	// including feature selection.
	TrainingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enpi_training_seconds",
		Help:    "End-to-end baseline training latency.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	// HTTPRequestDuration observes request latency by method and status class.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enpi_http_request_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"method", "status"})
)
