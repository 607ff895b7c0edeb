package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-childlimit/internal/domain"
)

// tracedEngine wraps every call in an OpenTelemetry span.
type tracedEngine struct {
	next   CoreEngine
	tracer trace.Tracer
}

// TracingMiddleware creates middleware that records a span per engine
// call using the global tracer provider.
func TracingMiddleware(serviceName string) Middleware {
	tracer := otel.Tracer(serviceName)
	return func(next CoreEngine) CoreEngine {
		return &tracedEngine{
			next:   next,
			tracer: tracer,
		}
	}
}

// Calculate executes the call within a span.
func (t *tracedEngine) Calculate(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
) ([]float64, error) {
	ctx, span := t.tracer.Start(ctx, "engine.calculate",
		trace.WithAttributes(
			attribute.String("engine.provider", t.next.Name()),
			attribute.String("engine.scenario", scenario.Name),
			attribute.String("engine.scenario_key", scenario.Key()),
			attribute.Int("engine.year", year),
			attribute.String("engine.variable", variable),
			attribute.String("engine.level", string(level)),
		),
	)
	defer span.End()

	values, err := t.next.Calculate(ctx, scenario, year, variable, level)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("engine.units", len(values)))
	span.SetStatus(codes.Ok, "")
	return values, nil
}

// Name returns the name of the wrapped implementation.
func (t *tracedEngine) Name() string { return t.next.Name() }
