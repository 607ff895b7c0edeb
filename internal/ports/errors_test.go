package ports

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestSimulationError tests message formatting, unwrapping and retry
// classification of SimulationError.
func TestSimulationError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := NewSimulationError("baseline", 2026, "in_poverty", ErrInvalidResponse)

		assert.Equal(t,
			"simulation error: scenario=baseline, year=2026, variable=in_poverty, err=invalid response",
			err.Error())
		assert.True(t, errors.Is(err, ErrInvalidResponse))
	})

	t.Run("with retry after", func(t *testing.T) {
		retryAfter := 5 * time.Second
		err := &SimulationError{
			Scenario:   "baseline",
			Year:       2027,
			Variable:   "age",
			Err:        ErrRateLimited,
			RetryAfter: &retryAfter,
		}
		assert.Contains(t, err.Error(), "retry_after=5s")
	})

	t.Run("retryable errors", func(t *testing.T) {
		for _, baseErr := range []error{ErrRateLimited, ErrServiceUnavailable, ErrTimeout} {
			err := NewSimulationError("s", 2026, "v", baseErr)
			assert.True(t, err.IsRetryable(), "%v should be retryable", baseErr)
			assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", err)))
		}

		for _, baseErr := range []error{ErrInvalidResponse, ErrCircuitOpen, errors.New("boom")} {
			err := NewSimulationError("s", 2026, "v", baseErr)
			assert.False(t, err.IsRetryable(), "%v should not be retryable", baseErr)
		}
	})
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(ErrCircuitOpen))
	assert.True(t, IsRetryable(fmt.Errorf("call: %w", ErrTimeout)))
	assert.False(t, IsRetryable(errors.New("plain")))
}

// TestOutputError verifies the formatted message of OutputError.
func TestOutputError(t *testing.T) {
	err := NewOutputError("out/full-abolition-2026.csv", "WriteReport", errors.New("disk full"))

	assert.Equal(t, "output error: operation=WriteReport, path=out/full-abolition-2026.csv, err=disk full", err.Error())
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("engine.dsn", ErrConfigNotFound)

	assert.Equal(t, "config error: key=engine.dsn, err=configuration not found", err.Error())
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

// TestErrorUnwrapping tests that all custom error types in the package
// support unwrapping.
func TestErrorUnwrapping(t *testing.T) {
	baseErr := errors.New("underlying error")

	errorList := []interface {
		error
		Unwrap() error
	}{
		NewSimulationError("s", 2026, "v", baseErr),
		NewOutputError("p", "op", baseErr),
		NewMetricsError("metric", "op", baseErr),
		NewConfigError("key", baseErr),
	}

	for _, err := range errorList {
		assert.Equal(t, baseErr, err.Unwrap(), "%T should unwrap to base error", err)
		assert.True(t, errors.Is(err, baseErr), "%T should match base error with Is", err)
	}
}
