package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/ports"
)

// CircuitBreakerState represents the current state of a circuit breaker.
type CircuitBreakerState int

// Circuit breaker states.
const (
	// StateClosed allows all calls through.
	StateClosed CircuitBreakerState = iota

	// StateOpen rejects calls immediately with ports.ErrCircuitOpen.
	StateOpen

	// StateHalfOpen lets one call through to test recovery.
	StateHalfOpen
)

// String returns the state name.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerMetrics receives circuit breaker events.
type CircuitBreakerMetrics interface {
	RecordState(state CircuitBreakerState)
	RecordTrip()
	RecordSuccess()
	RecordFailure()
}

// CircuitBreaker opens after maxFailures consecutive failures and stays
// open for cooldownDuration before letting a trial call through.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitBreakerState
	failureCount     int
	maxFailures      int
	cooldownDuration time.Duration
	lastFailure      time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(maxFailures int, cooldownDuration time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		maxFailures:      maxFailures,
		cooldownDuration: cooldownDuration,
	}
}

// allow reports whether a call may proceed, moving an expired open
// circuit to half-open.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailure) < cb.cooldownDuration {
			return false
		}
		cb.state = StateHalfOpen
	}
	return true
}

// record updates the breaker with the outcome of a call.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failureCount = 0
		cb.state = StateClosed
		return
	}

	cb.failureCount++
	cb.lastFailure = time.Now()
	if cb.state == StateHalfOpen || cb.failureCount >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// Call executes fn through the circuit breaker. The lock is not held
// while fn runs, so concurrent cells are not serialized behind a slow
// engine call.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ports.ErrCircuitOpen
	}
	err := fn()
	cb.record(err)
	return err
}

// GetState returns the current circuit breaker state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// circuitBreakerEngine guards a CoreEngine with a CircuitBreaker.
type circuitBreakerEngine struct {
	next    CoreEngine
	cb      *CircuitBreaker
	metrics CircuitBreakerMetrics
}

// CircuitBreakerMiddleware creates middleware that stops calling the
// engine after maxFailures consecutive failures, for the cooldown
// duration.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return CircuitBreakerMiddlewareWithMetrics(maxFailures, cooldown, nil)
}

// CircuitBreakerMiddlewareWithMetrics is CircuitBreakerMiddleware with
// event reporting.
func CircuitBreakerMiddlewareWithMetrics(maxFailures int, cooldown time.Duration, metrics CircuitBreakerMetrics) Middleware {
	cb := NewCircuitBreaker(maxFailures, cooldown)

	return func(next CoreEngine) CoreEngine {
		return &circuitBreakerEngine{
			next:    next,
			cb:      cb,
			metrics: metrics,
		}
	}
}

// Calculate executes the call through the circuit breaker.
func (c *circuitBreakerEngine) Calculate(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
) ([]float64, error) {
	var values []float64

	err := c.cb.Call(func() error {
		var err error
		values, err = c.next.Calculate(ctx, scenario, year, variable, level)
		return err
	})

	if c.metrics != nil {
		switch {
		case err == nil:
			c.metrics.RecordSuccess()
		case errors.Is(err, ports.ErrCircuitOpen):
			c.metrics.RecordTrip()
		default:
			c.metrics.RecordFailure()
		}
		c.metrics.RecordState(c.cb.GetState())
	}

	return values, err
}

// Name returns the name of the wrapped implementation.
func (c *circuitBreakerEngine) Name() string { return c.next.Name() }
