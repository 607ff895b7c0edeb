// Package ports defines the interfaces that form the contract between the
// application layer and the infrastructure layer: the microsimulation
// engine boundary, metrics collection and report output.
package ports

import (
	"context"

	"github.com/ahrav/go-childlimit/internal/domain"
)

// SimulationEngine is the boundary to the external tax-and-benefit
// microsimulation engine. The engine is treated as opaque: the
// application only asks it for flat per-unit arrays.
//
// For a given dataset, year and level, implementations must return
// arrays in a stable unit order so that baseline and reform results can
// be aligned by position. Implementations must be safe for concurrent
// use.
type SimulationEngine interface {
	// Calculate evaluates one variable for one scenario and year at the
	// requested level (person, household or benefit unit).
	//
	// Example:
	//
	//	weights, err := engine.Calculate(ctx, domain.Baseline(), 2026,
	//	    domain.VarPersonWeight, domain.LevelPerson)
	//	if err != nil {
	//	    return fmt.Errorf("load weights: %w", err)
	//	}
	Calculate(
		ctx context.Context,
		scenario domain.Scenario,
		year int,
		variable string,
		level domain.Level,
	) ([]float64, error)
}

// EngineFunc adapts an ordinary function to the SimulationEngine
// interface.
type EngineFunc func(ctx context.Context, scenario domain.Scenario, year int, variable string, level domain.Level) ([]float64, error)

// Calculate calls f.
func (f EngineFunc) Calculate(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
) ([]float64, error) {
	return f(ctx, scenario, year, variable, level)
}
