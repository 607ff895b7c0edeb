package testutils

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/ports"
)

// FakeEngine is a scripted ports.SimulationEngine serving populations
// registered per scenario. Unregistered scenarios and variables fail
// with ports.ErrInvalidResponse.
type FakeEngine struct {
	mu          sync.Mutex
	populations map[string]Population
	failures    map[string]error
	delay       time.Duration
	calls       map[string]int
	total       int
}

var _ ports.SimulationEngine = (*FakeEngine)(nil)

// NewFakeEngine creates an engine with no scenarios.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		populations: make(map[string]Population),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
	}
}

// Add registers the population returned for scenario.
func (f *FakeEngine) Add(scenario domain.Scenario, p Population) *FakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.populations[scenario.Key()] = p
	return f
}

// Fail makes every call for scenario return err.
func (f *FakeEngine) Fail(scenario domain.Scenario, err error) *FakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[scenario.Key()] = err
	return f
}

// SetDelay delays every call, honouring cancellation.
func (f *FakeEngine) SetDelay(d time.Duration) *FakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// Calls returns the number of calls made for scenario.
func (f *FakeEngine) Calls(scenario domain.Scenario) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[scenario.Key()]
}

// TotalCalls returns the number of calls made.
func (f *FakeEngine) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// Calculate implements ports.SimulationEngine.
func (f *FakeEngine) Calculate(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
) ([]float64, error) {
	key := scenario.Key()

	f.mu.Lock()
	f.calls[key]++
	f.total++
	delay := f.delay
	p, ok := f.populations[key]
	failure := f.failures[key]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, ports.NewSimulationError(scenario.Name, year, variable, failure)
	}
	if !ok {
		return nil, ports.NewSimulationError(scenario.Name, year, variable,
			fmt.Errorf("%w: scenario %q not registered", ports.ErrInvalidResponse, key))
	}

	var cols map[string][]float64
	switch level {
	case domain.LevelPerson:
		cols = p.PersonColumns()
	case domain.LevelHousehold, domain.LevelBenunit:
		cols = p.HouseholdColumns()
	default:
		return nil, fmt.Errorf("%w: level %q", ports.ErrInvalidResponse, level)
	}
	values, ok := cols[variable]
	if !ok {
		return nil, ports.NewSimulationError(scenario.Name, year, variable,
			fmt.Errorf("%w: variable %q at %s level", ports.ErrInvalidResponse, variable, level))
	}
	return slices.Clone(values), nil
}
