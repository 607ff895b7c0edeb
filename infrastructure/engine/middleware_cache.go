package engine

import (
	"context"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ahrav/go-childlimit/internal/domain"
)

// cacheKey identifies one engine result.
type cacheKey struct {
	scenario string
	year     int
	variable string
	level    domain.Level
}

// cachedEngine memoizes engine results in a bounded LRU cache.
type cachedEngine struct {
	next  CoreEngine
	cache *lru.Cache[cacheKey, []float64]
}

// CacheMiddleware creates middleware that keeps the most recent size
// results in memory, keyed by scenario overrides, year, variable and
// level. Cached arrays are copied on the way in and out so callers may
// modify what they receive. A non-positive size disables caching.
func CacheMiddleware(size int) Middleware {
	if size <= 0 {
		return func(next CoreEngine) CoreEngine { return next }
	}
	cache, err := lru.New[cacheKey, []float64](size)
	if err != nil {
		panic(fmt.Sprintf("engine: create cache: %v", err))
	}
	return func(next CoreEngine) CoreEngine {
		return &cachedEngine{next: next, cache: cache}
	}
}

// Calculate returns a cached result or forwards the call. Errors are not
// cached.
func (c *cachedEngine) Calculate(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
) ([]float64, error) {
	key := cacheKey{scenario: scenario.Key(), year: year, variable: variable, level: level}
	if values, ok := c.cache.Get(key); ok {
		return slices.Clone(values), nil
	}

	values, err := c.next.Calculate(ctx, scenario, year, variable, level)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, slices.Clone(values))
	return values, nil
}

// Name returns the name of the wrapped implementation.
func (c *cachedEngine) Name() string { return c.next.Name() }
