package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/ports"
)

// retryEngine retries transient failures with exponential backoff.
type retryEngine struct {
	next       CoreEngine
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware creates middleware that retries calls failing with a
// transient error (see ports.IsRetryable) using exponential backoff with
// jitter. Permanent errors and an open circuit are returned immediately.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreEngine) CoreEngine {
		return &retryEngine{
			next:       next,
			maxRetries: maxRetries,
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

// Calculate executes the call with retry logic.
func (r *retryEngine) Calculate(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
) ([]float64, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		attempts++
		values, err := r.next.Calculate(ctx, scenario, year, variable, level)
		if err == nil {
			return values, nil
		}

		lastErr = err

		if !ports.IsRetryable(err) || ctx.Err() != nil {
			if attempt == 0 {
				return nil, err
			}
			break
		}

		if attempt == r.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.calculateDelay(attempt)):
		}
	}

	return nil, fmt.Errorf("calculation failed after %d attempts: %w", attempts, lastErr)
}

func (r *retryEngine) calculateDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	// #nosec G115 - attempt is bounded between 0 and 30
	multiplier := 1 << uint(attempt)
	delay := time.Duration(float64(r.baseDelay) * float64(multiplier))

	// Jitter of ±25%.
	// #nosec G404 - weak RNG is fine for jitter
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - (delay / 4)

	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	return delay
}

// Name returns the name of the wrapped implementation.
func (r *retryEngine) Name() string { return r.next.Name() }
