// Package middleware provides cross-cutting concerns for batch runs:
// Prometheus metrics collection for engine calls and report cells.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-childlimit/internal/ports"
)

// Metric names understood by PrometheusMetrics. Other names are folded
// into the generic operation counter and gauge.
const (
	MetricEngineRequests    = ports.MetricEngineRequests
	MetricEngineLatency     = ports.MetricEngineLatency
	MetricBatchCells        = ports.MetricBatchCells
	MetricBatchCellDuration = ports.MetricBatchCellDuration
	MetricZeroDivision      = ports.MetricZeroDivision
)

// PrometheusMetrics implements ports.MetricsCollector using Prometheus.
// It tracks engine call volume and latency, cell outcomes and the number
// of ratio metrics that fell back to a default.
type PrometheusMetrics struct {
	engineRequests   *prometheus.CounterVec
	engineLatency    *prometheus.HistogramVec
	cells            *prometheus.CounterVec
	cellDuration     *prometheus.HistogramVec
	zeroDivision     *prometheus.CounterVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers
// its collectors with reg. Pass prometheus.DefaultRegisterer to expose
// them on the default /metrics handler, or a fresh registry in tests.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		engineRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEngineRequests,
				Help: "Total number of microsimulation engine calculations.",
			},
			[]string{"provider", "variable", "status"},
		),
		engineLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricEngineLatency,
				Help:    "Latency of microsimulation engine calculations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "status"},
		),
		cells: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBatchCells,
				Help: "Report cells processed, by policy and outcome.",
			},
			[]string{"policy", "status"},
		),
		cellDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricBatchCellDuration,
				Help:    "Time to compute one report cell.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"policy"},
		),
		zeroDivision: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricZeroDivision,
				Help: "Ratio metrics reported with a fallback because the denominator was zero.",
			},
			[]string{"metric"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "childlimit_operations_total",
				Help: "Total number of other operations.",
			},
			[]string{"operation", "status"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "childlimit_system_state",
				Help: "Current values of run-level gauges.",
			},
			[]string{"metric"},
		),
	}
}

func label(labels map[string]string, key string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return "unknown"
}

// RecordLatency implements ports.MetricsCollector. Cell durations go to
// the cell histogram; everything else to the engine latency histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	if operation == MetricBatchCellDuration {
		pm.cellDuration.WithLabelValues(label(labels, "policy")).Observe(duration.Seconds())
		return
	}
	pm.engineLatency.WithLabelValues(label(labels, "provider"), label(labels, "status")).Observe(duration.Seconds())
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case MetricEngineRequests:
		pm.engineRequests.WithLabelValues(
			label(labels, "provider"),
			label(labels, "variable"),
			label(labels, "status"),
		).Add(value)
	case MetricBatchCells:
		pm.cells.WithLabelValues(label(labels, "policy"), label(labels, "status")).Add(value)
	case MetricZeroDivision:
		pm.zeroDivision.WithLabelValues(label(labels, "metric")).Add(value)
	default:
		status, ok := labels["status"]
		if !ok {
			status = "success"
		}
		pm.operationCounter.WithLabelValues(metric, status).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, _ map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case MetricBatchCellDuration:
		pm.cellDuration.WithLabelValues(label(labels, "policy")).Observe(value)
	default:
		pm.engineLatency.WithLabelValues(label(labels, "provider"), label(labels, "status")).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
