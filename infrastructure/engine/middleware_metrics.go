package engine

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/ports"
)

// metricsEngine records call counts and latency.
type metricsEngine struct {
	next      CoreEngine
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that records
// engine_requests_total and engine_latency_seconds for every call.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreEngine) CoreEngine {
		return &metricsEngine{
			next:      next,
			collector: collector,
		}
	}
}

// Calculate executes the call while collecting metrics.
func (m *metricsEngine) Calculate(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
) ([]float64, error) {
	start := time.Now()
	values, err := m.next.Calculate(ctx, scenario, year, variable, level)

	labels := map[string]string{
		"provider": m.next.Name(),
		"variable": variable,
		"status":   callStatus(err),
	}

	if m.collector != nil {
		m.collector.RecordHistogram(ports.MetricEngineLatency, time.Since(start).Seconds(), labels)
		m.collector.RecordCounter(ports.MetricEngineRequests, 1, labels)
	}

	return values, err
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ports.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ports.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// Name returns the name of the wrapped implementation.
func (m *metricsEngine) Name() string { return m.next.Name() }
