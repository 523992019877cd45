// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Sweep metrics
	PairsSimulated     prometheus.Counter
	PairsFailed        prometheus.Counter
	SignalsSkipped     *prometheus.CounterVec
	StrategiesRejected prometheus.Counter
	SweepDuration      prometheus.Histogram
	ExitsByReason      *prometheus.CounterVec

	// Provider metrics
	ProviderLatency *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec

	// Bar cache metrics
	CacheLookups *prometheus.CounterVec

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPipeline prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "exit_strategy_lab"
	}

	return &Metrics{
		PairsSimulated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "pairs_simulated_total",
			Help:      "Total number of (signal, strategy) pairs simulated",
		}),
		PairsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "pairs_failed_total",
			Help:      "Total number of pairs rejected for degenerate prices",
		}),
		SignalsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "signals_skipped_total",
			Help:      "Total number of signals skipped by reason",
		}, []string{"reason"}),
		StrategiesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "strategies_rejected_total",
			Help:      "Total number of grid combinations rejected at construction",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Sweep duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		ExitsByReason: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "exits_total",
			Help:      "Total number of simulated trades by exit reason",
		}, []string{"reason"}),

		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_latency_seconds",
			Help:      "Market data request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_errors_total",
			Help:      "Total number of failed market data requests",
		}, []string{"endpoint"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "barcache",
			Name:      "lookups_total",
			Help:      "Bar cache lookups by result",
		}, []string{"result"}),

		PipelineRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"phase", "status"}),
		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"phase"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulPipeline: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPairs adds simulated and failed pair counts of a sweep.
func RecordPairs(simulated, failed int) {
	DefaultMetrics.PairsSimulated.Add(float64(simulated))
	DefaultMetrics.PairsFailed.Add(float64(failed))
}

// RecordSkipped adds skipped signals for a reason such as "unmatched" or "unavailable".
func RecordSkipped(reason string, n int) {
	if n > 0 {
		DefaultMetrics.SignalsSkipped.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordRejected adds grid combinations rejected at construction.
func RecordRejected(n int) {
	DefaultMetrics.StrategiesRejected.Add(float64(n))
}

// RecordSweep records a completed sweep's duration.
func RecordSweep(seconds float64) {
	DefaultMetrics.SweepDuration.Observe(seconds)
}

// RecordExit counts one simulated trade by exit reason.
func RecordExit(reason string) {
	DefaultMetrics.ExitsByReason.WithLabelValues(reason).Inc()
}

// RecordProviderRequest records a market data request.
func RecordProviderRequest(endpoint string, seconds float64, err error) {
	DefaultMetrics.ProviderLatency.WithLabelValues(endpoint).Observe(seconds)
	if err != nil {
		DefaultMetrics.ProviderErrors.WithLabelValues(endpoint).Inc()
	}
}

// RecordCacheLookup records a bar cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheLookups.WithLabelValues(result).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordPipelineRun records a pipeline run.
func RecordPipelineRun(phase, status string, durationSeconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(phase).Observe(durationSeconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulPipeline.SetToCurrentTime()
	}
}
