package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during aggregation and reporting.
var (
	// ErrDivisionUndefined indicates that a rate or ratio was requested
	// over a zero denominator. Callers receive a defined fallback value
	// alongside this error and decide whether to report, skip or log it.
	ErrDivisionUndefined = errors.New("division undefined: zero denominator")

	// ErrMissingGroupKey indicates that a join referenced a group key with
	// no matching group record. Joins recover by applying a default.
	ErrMissingGroupKey = errors.New("missing group key")

	// ErrLengthMismatch indicates that parallel arrays differ in length.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrNegativeWeight indicates that a weight was negative or not finite.
	ErrNegativeWeight = errors.New("weight must be finite and non-negative")

	// ErrGroupNotConstant indicates that a property assumed constant within
	// a group took different values on different rows of that group.
	ErrGroupNotConstant = errors.New("value not constant within group")

	// ErrColumnNotFound indicates that a requested column does not exist.
	ErrColumnNotFound = errors.New("column not found")

	// ErrInvalidValue indicates that an input value cannot be used.
	ErrInvalidValue = errors.New("invalid value")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ColumnError represents an error that occurred while reading or writing
// a Frame column. It records which column and operation failed.
type ColumnError struct {
	// Column is the variable name involved in the failed operation.
	Column string

	// Operation describes what was being done when the error occurred.
	Operation string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for ColumnError.
func (e *ColumnError) Error() string {
	return fmt.Sprintf("column error: operation=%s, column=%s, err=%v", e.Operation, e.Column, e.Err)
}

// Unwrap returns the underlying error.
func (e *ColumnError) Unwrap() error { return e.Err }

// NewColumnError creates a new ColumnError with the given details.
func NewColumnError(column, operation string, err error) *ColumnError {
	return &ColumnError{
		Column:    column,
		Operation: operation,
		Err:       err,
	}
}

// DivisionError records which metric hit a zero denominator and the
// fallback value substituted for it. It unwraps to ErrDivisionUndefined.
type DivisionError struct {
	// Metric names the ratio being computed.
	Metric string

	// Fallback is the value returned in place of the undefined ratio.
	Fallback float64
}

// Error implements the error interface for DivisionError.
func (e *DivisionError) Error() string {
	return fmt.Sprintf("%v: metric=%s, fallback=%g", ErrDivisionUndefined, e.Metric, e.Fallback)
}

// Unwrap returns ErrDivisionUndefined so callers can use errors.Is.
func (e *DivisionError) Unwrap() error { return ErrDivisionUndefined }

// NewDivisionError creates a DivisionError for the named metric.
func NewDivisionError(metric string, fallback float64) *DivisionError {
	return &DivisionError{Metric: metric, Fallback: fallback}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap lets callers match validation failures with ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
