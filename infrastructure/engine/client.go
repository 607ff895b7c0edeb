// Package engine provides the client used to talk to the microsimulation
// engine, with built-in support for timeouts, retries, rate limiting,
// circuit breaking, caching, metrics and tracing.
//
// Engine backends implement CoreEngine and register a ProviderFactory
// under a name. Cross-cutting concerns wrap a CoreEngine as Middleware,
// so backends stay small and the application sees a single
// ports.SimulationEngine.
//
// Basic usage:
//
//	client, err := engine.NewClient("sqlite", engine.ClientConfig{
//	    DSN: "file:runs.db",
//	    Middleware: []engine.Middleware{
//	        engine.TimeoutMiddleware(2 * time.Minute),
//	        engine.RetryMiddleware(3, time.Second, 30*time.Second),
//	        engine.CacheMiddleware(256),
//	    },
//	})
//	ages, err := client.Calculate(ctx, domain.Baseline(), 2026, domain.VarAge, domain.LevelPerson)
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/ports"
)

// CoreEngine defines the minimal interface an engine backend must
// implement. The middleware chain wraps any conforming implementation.
type CoreEngine interface {
	// Calculate returns one variable for one scenario and year at the
	// requested level.
	Calculate(
		ctx context.Context,
		scenario domain.Scenario,
		year int,
		variable string,
		level domain.Level,
	) ([]float64, error)

	// Name identifies the backend in logs, metrics and traces.
	Name() string
}

// ClientConfig holds all configuration options for creating an engine
// client.
type ClientConfig struct {
	// DSN locates the backend's data, e.g. a SQLite file for the sqlite
	// provider. Providers that need no data ignore it.
	DSN string

	// Dataset names the population dataset. Providers may use it to pick
	// a table or a generator preset.
	Dataset string

	// Seed and Size configure generated populations.
	Seed int64
	Size int

	// Timeout sets the maximum duration for individual calls.
	// Zero value means no timeout.
	Timeout time.Duration

	// Middleware is applied in the order specified; the first entry is
	// the outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreEngine to add cross-cutting functionality.
type Middleware func(CoreEngine) CoreEngine

// Client implements ports.SimulationEngine on top of a middleware-wrapped
// CoreEngine.
type Client struct {
	core CoreEngine
}

var _ ports.SimulationEngine = (*Client)(nil)

// NewClient creates a client for the named provider. When
// config.Timeout is set a TimeoutMiddleware is installed innermost so
// that every attempt made by outer middleware gets its own deadline.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	factory, ok := lookupProvider(providerType)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s (available: %v)", providerType, Providers())
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	if config.Timeout > 0 {
		core = TimeoutMiddleware(config.Timeout)(core)
	}

	// Apply middleware in reverse order so the first middleware is the outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	return &Client{core: core}, nil
}

// NewClientFromCore wraps an existing CoreEngine with middleware. It is
// used by tests and by callers that build their own backend.
func NewClientFromCore(core CoreEngine, middleware ...Middleware) *Client {
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	return &Client{core: core}
}

// Calculate implements ports.SimulationEngine. Failures are wrapped in a
// ports.SimulationError unless a middleware already did so.
func (c *Client) Calculate(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
) ([]float64, error) {
	values, err := c.core.Calculate(ctx, scenario, year, variable, level)
	if err != nil {
		return nil, wrapSimulationError(scenario, year, variable, err)
	}
	return values, nil
}

// Name returns the backend name.
func (c *Client) Name() string { return c.core.Name() }

// ProviderFactory creates a CoreEngine from configuration.
type ProviderFactory func(ClientConfig) (CoreEngine, error)

var (
	providerMu        sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory registers an engine backend under a name.
// Registering an existing name replaces it.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerFactories[providerType] = factory
}

// Providers returns the registered provider names in sorted order.
func Providers() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()
	names := make([]string, 0, len(providerFactories))
	for n := range providerFactories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupProvider(name string) (ProviderFactory, bool) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	f, ok := providerFactories[name]
	return f, ok
}
