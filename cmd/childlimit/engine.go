package main

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-childlimit/infrastructure/engine"
	"github.com/ahrav/go-childlimit/internal/application"
	"github.com/ahrav/go-childlimit/internal/ports"
)

const tracerName = "github.com/ahrav/go-childlimit"

// Circuit breaker metric names.
const (
	metricBreakerState = "engine_circuit_state"
	metricBreakerTrips = "engine_circuit_trips_total"
)

// breakerMetrics reports circuit breaker events to a metrics collector.
type breakerMetrics struct {
	collector ports.MetricsCollector
}

var _ engine.CircuitBreakerMetrics = breakerMetrics{}

func (b breakerMetrics) RecordState(s engine.CircuitBreakerState) {
	b.collector.RecordGauge(metricBreakerState, float64(s), nil)
}

func (b breakerMetrics) RecordTrip() {
	b.collector.RecordCounter(metricBreakerTrips, 1, map[string]string{"status": "tripped"})
}

func (b breakerMetrics) RecordSuccess() {}

func (b breakerMetrics) RecordFailure() {}

// engineMiddleware assembles the middleware chain for cfg, outermost
// first. Cache hits skip every other layer; retries sit inside the
// circuit breaker so a burst of retried failures trips it once.
func engineMiddleware(cfg application.EngineConfig, collector ports.MetricsCollector, logger *slog.Logger) []engine.Middleware {
	chain := []engine.Middleware{
		engine.CacheMiddleware(cfg.CacheSize),
		engine.TracingMiddleware(tracerName),
		engine.MetricsMiddleware(collector),
		engine.LoggingMiddleware(logger),
	}
	if cb := cfg.CircuitBreaker; cb.MaxFailures > 0 {
		chain = append(chain, engine.CircuitBreakerMiddlewareWithMetrics(
			cb.MaxFailures,
			time.Duration(cb.CooldownSeconds)*time.Second,
			breakerMetrics{collector: collector},
		))
	}
	if r := cfg.Retry; r.MaxAttempts > 0 {
		chain = append(chain, engine.RetryMiddleware(
			r.MaxAttempts,
			time.Duration(r.InitialWait)*time.Millisecond,
			time.Duration(r.MaxWait)*time.Millisecond,
		))
	}
	if rl := cfg.RateLimit; rl.RequestsPerSecond > 0 {
		burst := rl.Burst
		if burst <= 0 {
			burst = 1
		}
		chain = append(chain, engine.RateLimitMiddleware(rate.Limit(rl.RequestsPerSecond), burst))
	}
	return chain
}

// newEngineClient creates the engine client described by cfg.
func newEngineClient(cfg *application.BatchConfig, collector ports.MetricsCollector, logger *slog.Logger) (*engine.Client, error) {
	return engine.NewClient(cfg.Engine.Provider, engine.ClientConfig{
		DSN:        cfg.Engine.DSN,
		Dataset:    cfg.Dataset,
		Seed:       cfg.Engine.Seed,
		Size:       cfg.Engine.Size,
		Timeout:    cfg.Engine.Timeout(),
		Middleware: engineMiddleware(cfg.Engine, collector, logger),
	})
}

// loadConfig reads path, or the defaults when path is empty, applies
// overrides and validates the result against the registered policies
// and engine providers.
func loadConfig(path string, registry *application.PolicyRegistry, override func(*application.BatchConfig)) (*application.BatchConfig, error) {
	loader, err := application.NewConfigLoader(registry, engine.Providers())
	if err != nil {
		return nil, err
	}

	cfg := application.DefaultBatchConfig()
	if path != "" {
		if cfg, err = loader.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if override != nil {
		override(cfg)
	}
	if err := loader.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
