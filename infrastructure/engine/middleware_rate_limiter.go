package engine

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-childlimit/internal/domain"
)

// rateLimitedEngine paces calls with a token bucket.
type rateLimitedEngine struct {
	next    CoreEngine
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that limits calls to limit per
// second with the given burst. All engines wrapped by the returned
// middleware share one bucket.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next CoreEngine) CoreEngine {
		return &rateLimitedEngine{
			next:    next,
			limiter: limiter,
		}
	}
}

// Calculate waits for a token before forwarding the call.
func (r *rateLimitedEngine) Calculate(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
) ([]float64, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Calculate(ctx, scenario, year, variable, level)
}

// Name returns the name of the wrapped implementation.
func (r *rateLimitedEngine) Name() string { return r.next.Name() }
