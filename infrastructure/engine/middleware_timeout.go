package engine

import (
	"context"
	"time"

	"github.com/ahrav/go-childlimit/internal/domain"
)

// timeoutEngine bounds every call with a deadline.
type timeoutEngine struct {
	next    CoreEngine
	timeout time.Duration
}

// TimeoutMiddleware creates middleware that enforces a per-call timeout.
// A call that exceeds it fails with an error wrapping ports.ErrTimeout,
// which the retry middleware treats as transient.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreEngine) CoreEngine {
		return &timeoutEngine{
			next:    next,
			timeout: timeout,
		}
	}
}

// Calculate executes the call with a timeout context.
func (t *timeoutEngine) Calculate(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
) ([]float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	values, err := t.next.Calculate(callCtx, scenario, year, variable, level)
	if err != nil && ctx.Err() == nil && callCtx.Err() != nil {
		return nil, classifyContextError(callCtx.Err())
	}
	return values, err
}

// Name returns the name of the wrapped implementation.
func (t *timeoutEngine) Name() string { return t.next.Name() }
