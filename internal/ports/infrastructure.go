package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-childlimit/internal/domain"
)

// Metric names shared by the engine middleware, the batch runner and the
// Prometheus collector.
const (
	MetricEngineRequests    = "engine_requests_total"
	MetricEngineLatency     = "engine_latency_seconds"
	MetricBatchCells        = "batch_cells_total"
	MetricBatchCellDuration = "batch_cell_duration_seconds"
	MetricZeroDivision      = "batch_zero_division_total"
)

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations integrate with observability platforms like Prometheus.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric, such as engine requests
	// or zero-division fallbacks.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// CombinedRow is one row of the combined results table.
type CombinedRow struct {
	Cell   domain.CellKey
	Metric domain.Metric
}

// ReportSink persists the results of a batch run. Implementations must
// be safe for concurrent use because cells complete in parallel.
type ReportSink interface {
	// WriteReport persists the metrics of a single cell.
	WriteReport(ctx context.Context, report *domain.Report) error

	// WriteDistribution persists the decile summary of a single cell.
	WriteDistribution(ctx context.Context, dist *domain.Distribution) error

	// WriteCombined persists every row of a run in one table. Rows are
	// written in the order given.
	WriteCombined(ctx context.Context, rows []CombinedRow) error
}

// NoopMetrics discards all metrics. It is used when no collector is
// configured.
type NoopMetrics struct{}

// RecordLatency does nothing.
func (NoopMetrics) RecordLatency(string, time.Duration, map[string]string) {}

// RecordCounter does nothing.
func (NoopMetrics) RecordCounter(string, float64, map[string]string) {}

// RecordGauge does nothing.
func (NoopMetrics) RecordGauge(string, float64, map[string]string) {}

// RecordHistogram does nothing.
func (NoopMetrics) RecordHistogram(string, float64, map[string]string) {}

var _ MetricsCollector = NoopMetrics{}
