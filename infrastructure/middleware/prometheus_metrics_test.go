package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-childlimit/internal/ports"
)

// gatheredValue returns the summed counter value, or histogram sample
// count, of every series of the named family.
func gatheredValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var total float64
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
		return total
	}
	return 0
}

func newTestMetrics(t *testing.T) (*PrometheusMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusMetrics(reg), reg
}

// TestNewPrometheusMetrics verifies that all vectors are initialized and
// that two instances can live on separate registries.
func TestNewPrometheusMetrics(t *testing.T) {
	pm, _ := newTestMetrics(t)
	other, _ := newTestMetrics(t)

	assert.NotNil(t, pm.engineRequests)
	assert.NotNil(t, pm.engineLatency)
	assert.NotNil(t, pm.cells)
	assert.NotNil(t, pm.cellDuration)
	assert.NotNil(t, pm.zeroDivision)
	assert.NotNil(t, other)

	var _ ports.MetricsCollector = pm
}

func TestPrometheusMetrics_RecordCounter(t *testing.T) {
	pm, reg := newTestMetrics(t)

	pm.RecordCounter(MetricEngineRequests, 1, map[string]string{"provider": "synthetic", "variable": "age", "status": "success"})
	pm.RecordCounter(MetricEngineRequests, 2, map[string]string{"status": "error"})
	pm.RecordCounter(MetricBatchCells, 1, map[string]string{"policy": "full-abolition", "status": "ok"})
	pm.RecordCounter(MetricZeroDivision, 3, map[string]string{"metric": "costPerChild"})
	pm.RecordCounter("combined_rows_written", 24, nil)

	assert.Equal(t, 3.0, gatheredValue(t, reg, MetricEngineRequests))
	assert.Equal(t, 1.0, gatheredValue(t, reg, MetricBatchCells))
	assert.Equal(t, 3.0, gatheredValue(t, reg, MetricZeroDivision))
	assert.Equal(t, 24.0, gatheredValue(t, reg, "childlimit_operations_total"))
}

func TestPrometheusMetrics_RecordLatencyAndHistogram(t *testing.T) {
	pm, reg := newTestMetrics(t)

	pm.RecordLatency(MetricBatchCellDuration, 250*time.Millisecond, map[string]string{"policy": "three-child-limit"})
	pm.RecordLatency("engine_call", 10*time.Millisecond, map[string]string{"provider": "sqlite"})
	pm.RecordHistogram(MetricEngineLatency, 0.2, map[string]string{"provider": "sqlite", "status": "success"})
	pm.RecordHistogram(MetricBatchCellDuration, 0.5, nil)

	assert.Equal(t, 2.0, gatheredValue(t, reg, MetricBatchCellDuration))
	assert.Equal(t, 2.0, gatheredValue(t, reg, MetricEngineLatency))
}

func TestPrometheusMetrics_RecordGauge(t *testing.T) {
	pm, reg := newTestMetrics(t)

	pm.RecordGauge("cells_pending", 12, nil)
	pm.RecordGauge("cells_pending", 4, nil)

	assert.Equal(t, 4.0, gatheredValue(t, reg, "childlimit_system_state"))
}

func TestPrometheusMetrics_EmptyLabelsDoNotPanic(t *testing.T) {
	pm, _ := newTestMetrics(t)
	assert.NotPanics(t, func() {
		pm.RecordCounter(MetricEngineRequests, 1, map[string]string{"provider": ""})
		pm.RecordLatency("x", time.Second, nil)
		pm.RecordHistogram("y", 1, map[string]string{})
	})
}
