package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/logging"
)

// loggedEngine logs every call at trace level and failures at debug.
type loggedEngine struct {
	next   CoreEngine
	logger *slog.Logger
}

// LoggingMiddleware creates middleware that logs engine calls. A nil
// logger disables it.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next CoreEngine) CoreEngine {
		if logger == nil {
			return next
		}
		return &loggedEngine{next: next, logger: logger}
	}
}

// Calculate forwards the call and logs its outcome.
func (l *loggedEngine) Calculate(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
) ([]float64, error) {
	start := time.Now()
	values, err := l.next.Calculate(ctx, scenario, year, variable, level)
	if err != nil {
		l.logger.DebugContext(ctx, "engine call failed",
			"provider", l.next.Name(),
			"scenario", scenario.Name,
			"year", year,
			"variable", variable,
			"error", err)
		return nil, err
	}
	l.logger.Log(ctx, logging.LevelTrace, "engine call",
		"provider", l.next.Name(),
		"scenario", scenario.Name,
		"year", year,
		"variable", variable,
		"level", string(level),
		"rows", len(values),
		"duration", time.Since(start))
	return values, nil
}

// Name returns the name of the wrapped implementation.
func (l *loggedEngine) Name() string { return l.next.Name() }
