package ports

import (
	"errors"
	"fmt"
	"time"
)

// Common infrastructure errors that can occur while talking to the
// microsimulation engine or writing results.
var (
	// ErrRateLimited indicates that the engine backend rejected the request
	// because of load.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that the engine is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates that an engine call exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidResponse indicates that the engine returned data that could
	// not be used, such as a missing variable or a wrong-length array.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrCircuitOpen indicates that the circuit breaker rejected the call
	// without reaching the engine.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrConfigNotFound indicates that required configuration is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// SimulationError represents a failed engine calculation. It records the
// scenario, year and variable that were requested.
type SimulationError struct {
	// Scenario is the key of the scenario being simulated.
	Scenario string

	// Year is the simulation year.
	Year int

	// Variable is the engine variable being calculated.
	Variable string

	// Err is the underlying error.
	Err error

	// RetryAfter indicates how long to wait before retrying, if known.
	RetryAfter *time.Duration
}

// Error implements the error interface for SimulationError.
func (e *SimulationError) Error() string {
	msg := fmt.Sprintf("simulation error: scenario=%s, year=%d, variable=%s, err=%v",
		e.Scenario, e.Year, e.Variable, e.Err)
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(", retry_after=%v", *e.RetryAfter)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *SimulationError) Unwrap() error { return e.Err }

// IsRetryable returns true if the failure is transient and the call can
// be repeated.
func (e *SimulationError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewSimulationError creates a new SimulationError with the given details.
func NewSimulationError(scenario string, year int, variable string, err error) *SimulationError {
	return &SimulationError{
		Scenario: scenario,
		Year:     year,
		Variable: variable,
		Err:      err,
	}
}

// IsRetryable reports whether err is a transient engine failure. Errors
// that are not SimulationErrors are retryable only when they wrap one of
// the transient sentinels.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var simErr *SimulationError
	if errors.As(err, &simErr) {
		return simErr.IsRetryable()
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// OutputError represents a failure to write or read a result file.
type OutputError struct {
	// Path is the file involved in the failed operation.
	Path string

	// Operation is the name of the operation that failed.
	Operation string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for OutputError.
func (e *OutputError) Error() string {
	return fmt.Sprintf("output error: operation=%s, path=%s, err=%v", e.Operation, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *OutputError) Unwrap() error { return e.Err }

// NewOutputError creates a new OutputError with the given details.
func NewOutputError(path, operation string, err error) *OutputError {
	return &OutputError{
		Path:      path,
		Operation: operation,
		Err:       err,
	}
}

// MetricsError represents an error from metrics collection operations.
type MetricsError struct {
	// Metric is the name of the metric being collected.
	Metric string

	// Operation is the name of the metrics operation that failed.
	Operation string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for MetricsError.
func (e *MetricsError) Error() string {
	return fmt.Sprintf("metrics error: operation=%s, metric=%s, err=%v", e.Operation, e.Metric, e.Err)
}

// Unwrap returns the underlying error.
func (e *MetricsError) Unwrap() error { return e.Err }

// NewMetricsError creates a new MetricsError with the given details.
func NewMetricsError(metric, operation string, err error) *MetricsError {
	return &MetricsError{
		Metric:    metric,
		Operation: operation,
		Err:       err,
	}
}

// ConfigError represents an error from configuration operations.
type ConfigError struct {
	// ConfigKey is the configuration key involved in the failed operation.
	ConfigKey string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}
