package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/ports"
)

// MockCall records one call made to MockCoreEngine.
type MockCall struct {
	Scenario domain.Scenario
	Year     int
	Variable string
	Level    domain.Level
	At       time.Time
}

// MockCoreEngine is a configurable CoreEngine for tests. It serves values
// from a map keyed by variable name and can inject delays and failures.
type MockCoreEngine struct {
	mu sync.Mutex

	// Values maps variable names to the array returned for them. Lookups
	// for scenario-specific data use ScenarioValues first.
	Values map[string][]float64

	// ScenarioValues maps scenario key, then variable name, to a result.
	ScenarioValues map[string]map[string][]float64

	// Error is returned by every call when set.
	Error error

	// ResponseDelay delays every call, honouring context cancellation.
	ResponseDelay time.Duration

	// FailUntilAttempt fails the first N calls with Error, or with
	// ports.ErrServiceUnavailable when Error is nil.
	FailUntilAttempt int

	// Tracking
	CallCount int
	Calls     []MockCall
}

var _ CoreEngine = (*MockCoreEngine)(nil)

// NewMockCoreEngine creates a mock with no data.
func NewMockCoreEngine() *MockCoreEngine {
	return &MockCoreEngine{
		Values:         make(map[string][]float64),
		ScenarioValues: make(map[string]map[string][]float64),
	}
}

// Set stores values for a variable in every scenario.
func (m *MockCoreEngine) Set(variable string, values []float64) *MockCoreEngine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Values[variable] = values
	return m
}

// SetFor stores values for a variable in one scenario.
func (m *MockCoreEngine) SetFor(scenario domain.Scenario, variable string, values []float64) *MockCoreEngine {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scenario.Key()
	if m.ScenarioValues[key] == nil {
		m.ScenarioValues[key] = make(map[string][]float64)
	}
	m.ScenarioValues[key][variable] = values
	return m
}

// Name identifies the backend.
func (m *MockCoreEngine) Name() string { return "mock" }

// Calculate implements CoreEngine with configurable behavior.
func (m *MockCoreEngine) Calculate(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
) ([]float64, error) {
	m.mu.Lock()
	m.CallCount++
	call := m.CallCount
	m.Calls = append(m.Calls, MockCall{Scenario: scenario, Year: year, Variable: variable, Level: level, At: time.Now()})
	delay := m.ResponseDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUntilAttempt > 0 && call <= m.FailUntilAttempt {
		if m.Error != nil {
			return nil, m.Error
		}
		return nil, ports.ErrServiceUnavailable
	}
	if m.Error != nil {
		return nil, m.Error
	}

	if byVar, ok := m.ScenarioValues[scenario.Key()]; ok {
		if v, ok := byVar[variable]; ok {
			return append([]float64(nil), v...), nil
		}
	}
	if v, ok := m.Values[variable]; ok {
		return append([]float64(nil), v...), nil
	}
	return nil, ErrUnknownVariable
}

// GetCallCount returns the number of calls made.
func (m *MockCoreEngine) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// CallsFor counts calls for a scenario key and variable.
func (m *MockCoreEngine) CallsFor(scenarioKey, variable string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Scenario.Key() == scenarioKey && c.Variable == variable {
			n++
		}
	}
	return n
}

// Reset clears all tracking data while preserving configuration.
func (m *MockCoreEngine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount = 0
	m.Calls = nil
}
