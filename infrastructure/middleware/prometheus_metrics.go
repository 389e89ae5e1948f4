package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-concord/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It provides real-time monitoring of debate outcomes,
// round progression, capability invocations, and budget consumption.
type PrometheusMetrics struct {
	debatesTotal       *prometheus.CounterVec
	roundsTotal        *prometheus.CounterVec
	invocationsTotal   *prometheus.CounterVec
	operationCounter   *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	roundsUsed         *prometheus.HistogramVec
	invocationAttempts *prometheus.HistogramVec
	roundApprovals     prometheus.Histogram
	proposalVersion    prometheus.Gauge
	systemGauges       *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance and
// registers all required metrics in the global Prometheus registry.
// Create at most one instance per process; duplicate registration
// panics.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		// Terminal outcomes and round progression.
		debatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debates_total",
				Help: "Total number of debates run, by terminal outcome.",
			},
			[]string{"outcome"},
		),
		roundsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debate_rounds_total",
				Help: "Total number of rounds executed across all debates.",
			},
			[]string{"consensus"},
		),
		roundsUsed: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "debate_rounds_used",
				Help:    "Rounds consumed per debate before termination.",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
			[]string{"outcome"},
		),
		roundApprovals: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "debate_round_approvals",
				Help:    "Genuine approvals collected per round.",
				Buckets: prometheus.LinearBuckets(0, 1, 4),
			},
		),
		proposalVersion: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "debate_proposal_version",
				Help: "Proposal version evaluated by the most recent round.",
			},
		),

		// Capability invocation accounting from the resilient invoker.
		invocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debate_invocations_total",
				Help: "Total capability invocations, by role, operation, and outcome.",
			},
			[]string{"role", "operation", "status"},
		),
		invocationAttempts: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "debate_invocation_attempts",
				Help:    "Attempts spent per capability invocation, retries included.",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
			[]string{"role", "operation", "status"},
		),

		// General execution metrics for comprehensive observability.
		operationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "debate_operation_duration_seconds",
				Help:    "Execution time of engine operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
		operationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debate_operations_total",
				Help: "Total number of operations performed by the engine.",
			},
			[]string{"operation", "status"},
		),
		systemGauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "debate_system_state",
				Help: "Current system state values for the debate engine.",
			},
			[]string{"metric", "operation"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	outcome := labelOr(labels, "outcome", "unknown")
	pm.operationDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by
// incrementing Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "debates_total":
		pm.debatesTotal.WithLabelValues(
			labelOr(labels, "outcome", "unknown"),
		).Add(value)
	case "debate_rounds_total":
		pm.roundsTotal.WithLabelValues(
			labelOr(labels, "consensus", "unknown"),
		).Add(value)
	case "debate_invocations_total":
		pm.invocationsTotal.WithLabelValues(
			labelOr(labels, "role", "unknown"),
			labelOr(labels, "operation", "unknown"),
			labelOr(labels, "status", "unknown"),
		).Add(value)
	case "budget_exceeded_total":
		status := "exceeded_" + labelOr(labels, "limit_type", "unknown")
		pm.operationCounter.WithLabelValues("budget_check", status).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, "success").Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "debate_proposal_version":
		pm.proposalVersion.Set(value)
	default:
		operation := labelOr(labels, "operation", "unknown")
		pm.systemGauges.WithLabelValues(metric, operation).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface by
// recording values in the matching Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "debate_round_approvals":
		pm.roundApprovals.Observe(value)
	case "debate_rounds_used":
		pm.roundsUsed.WithLabelValues(
			labelOr(labels, "outcome", "unknown"),
		).Observe(value)
	case "debate_invocation_attempts":
		pm.invocationAttempts.WithLabelValues(
			labelOr(labels, "role", "unknown"),
			labelOr(labels, "operation", "unknown"),
			labelOr(labels, "status", "unknown"),
		).Observe(value)
	default:
		outcome := labelOr(labels, "outcome", "unknown")
		pm.operationDuration.WithLabelValues(metric, outcome).Observe(value)
	}
}

// labelOr extracts a label value, falling back when the key is absent
// or empty so Prometheus never sees an empty label value.
func labelOr(labels map[string]string, key, fallback string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return fallback
}

// Compile-time verification that PrometheusMetrics implements
// MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
