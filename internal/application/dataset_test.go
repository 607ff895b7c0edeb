package application

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-childlimit/infrastructure/engine"
	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/logging"
)

type memoryStore struct {
	mu   sync.Mutex
	puts map[string]int
	err  error
}

func (s *memoryStore) Put(_ context.Context, scenario domain.Scenario, year int, variable string, level domain.Level, _ []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.puts == nil {
		s.puts = make(map[string]int)
	}
	s.puts[snapshotKey(scenario, year)]++
	return nil
}

func TestDatasetScenarios(t *testing.T) {
	cfg := oneOfEach(2026, 2027)
	scenarios, err := DatasetScenarios(cfg, NewPolicyRegistry())
	require.NoError(t, err)

	require.Len(t, scenarios, 2)
	for _, year := range cfg.Years {
		// Baseline, abolition (shared with the full-abolition policy) and
		// the limit 3 reform. Estimated policies add nothing.
		require.Len(t, scenarios[year], 3, "year %d", year)
		assert.True(t, scenarios[year][0].IsBaseline())
		assert.Equal(t, AbolitionScenario(year, testPaths).Key(), scenarios[year][1].Key())
		assert.Equal(t, "three-child-limit-3", scenarios[year][2].Name)
	}

	cfg.Policies = append(cfg.Policies, PolicyConfig{Name: "no-such-policy"})
	_, err = DatasetScenarios(cfg, NewPolicyRegistry())
	assert.ErrorContains(t, err, `unknown policy "no-such-policy"`)
}

func TestGenerateDataset(t *testing.T) {
	years := []int{2026, 2027}
	store := &memoryStore{}

	summary, err := GenerateDataset(context.Background(), oneOfEach(years...), NewPolicyRegistry(),
		fixtureEngine(years, 3), store, logging.Discard())
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Scenarios)
	assert.Equal(t, 6*variablesPerSnapshot, summary.Results)
	assert.Len(t, store.puts, 6)
	for key, n := range store.puts {
		assert.Equal(t, variablesPerSnapshot, n, key)
	}
}

func TestGenerateDatasetErrors(t *testing.T) {
	years := []int{2026}

	t.Run("engine failure", func(t *testing.T) {
		boom := errors.New("engine down")
		src := fixtureEngine(years, 3).Fail(domain.Baseline(), boom)
		_, err := GenerateDataset(context.Background(), oneOfEach(years...), NewPolicyRegistry(),
			src, &memoryStore{}, logging.Discard())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("store failure", func(t *testing.T) {
		full := errors.New("store full")
		_, err := GenerateDataset(context.Background(), oneOfEach(years...), NewPolicyRegistry(),
			fixtureEngine(years, 3), &memoryStore{err: full}, logging.Discard())
		assert.ErrorIs(t, err, full)
	})
}

// TestDatasetReplay stores a dataset in SQLite and checks that a run
// served from the store reproduces the run served by the engine.
func TestDatasetReplay(t *testing.T) {
	years := []int{2026}
	cfg := oneOfEach(years...)
	ctx := context.Background()

	store, err := engine.OpenSQLiteStore(filepath.Join(t.TempDir(), "dataset.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	summary, err := GenerateDataset(ctx, cfg, NewPolicyRegistry(), fixtureEngine(years, 3), store, logging.Discard())
	require.NoError(t, err)
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, summary.Results, count)

	live, err := NewBatchRunner(cfg, fixtureEngine(years, 3), &memorySink{})
	require.NoError(t, err)
	want, err := live.Run(ctx)
	require.NoError(t, err)

	replay, err := NewBatchRunner(cfg, engine.NewClientFromCore(store), &memorySink{})
	require.NoError(t, err)
	got, err := replay.Run(ctx)
	require.NoError(t, err)

	require.Equal(t, len(want.Rows()), len(got.Rows()))
	for i, row := range want.Rows() {
		assert.Equal(t, row.Cell, got.Rows()[i].Cell)
		assert.Equal(t, row.Metric, got.Rows()[i].Metric)
	}
}
