package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/ports"
)

// Common errors returned by engine providers.
var (
	// ErrUnknownVariable indicates that the backend has no data for the
	// requested variable.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrUnsupportedLevel indicates that a variable was requested at a
	// level the backend cannot produce.
	ErrUnsupportedLevel = errors.New("unsupported level")
)

// classifyContextError maps context failures onto the ports sentinels so
// that callers and the retry middleware can classify them.
func classifyContextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ports.ErrTimeout, err)
	default:
		return err
	}
}

// wrapSimulationError attaches the request details to err unless it
// already carries them.
func wrapSimulationError(scenario domain.Scenario, year int, variable string, err error) error {
	var simErr *ports.SimulationError
	if errors.As(err, &simErr) {
		return err
	}
	return ports.NewSimulationError(scenario.Key(), year, variable, err)
}
