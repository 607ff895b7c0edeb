package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/logging"
	"github.com/ahrav/go-childlimit/internal/ports"
	"github.com/ahrav/go-childlimit/internal/testutils"
)

var variablesPerSnapshot = len(domain.PersonVariables) + len(domain.HouseholdVariables)

func TestSnapshotLoaderLoadsOnce(t *testing.T) {
	engine := fixtureEngine([]int{2026}).SetDelay(10 * time.Millisecond)
	loader := NewSnapshotLoader(engine, logging.Discard(), 3)

	var wg sync.WaitGroup
	snapshots := make([]*Snapshot, 8)
	for i := range snapshots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := loader.Load(context.Background(), domain.Baseline(), 2026)
			assert.NoError(t, err)
			snapshots[i] = s
		}()
	}
	wg.Wait()

	for _, s := range snapshots[1:] {
		assert.Same(t, snapshots[0], s)
	}
	assert.Equal(t, variablesPerSnapshot, engine.Calls(domain.Baseline()))
	assert.Equal(t, 1, loader.Loaded())

	s := snapshots[0]
	assert.Equal(t, 2026, s.Year)
	assert.Equal(t, 13, s.Person.Len())
	assert.Equal(t, 3, s.Household.Len())
}

func TestSnapshotLoaderSeparatesYears(t *testing.T) {
	engine := fixtureEngine([]int{2026, 2027})
	loader := NewSnapshotLoader(engine, logging.Discard(), 2)

	a, err := loader.Load(context.Background(), domain.Baseline(), 2026)
	require.NoError(t, err)
	b, err := loader.Load(context.Background(), domain.Baseline(), 2027)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2*variablesPerSnapshot, engine.Calls(domain.Baseline()))
}

func TestSnapshotLoaderRemembersFailures(t *testing.T) {
	boom := errors.New("engine exploded")
	engine := fixtureEngine([]int{2026}).Fail(domain.Baseline(), boom)
	loader := NewSnapshotLoader(engine, logging.Discard(), 1)

	_, err := loader.Load(context.Background(), domain.Baseline(), 2026)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var simErr *ports.SimulationError
	assert.ErrorAs(t, err, &simErr)

	calls := engine.Calls(domain.Baseline())
	_, err = loader.Load(context.Background(), domain.Baseline(), 2026)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, calls, engine.Calls(domain.Baseline()), "failure must be served from memory")
}

func TestSnapshotLoaderDoesNotRememberCancellation(t *testing.T) {
	engine := fixtureEngine([]int{2026}).SetDelay(time.Second)
	loader := NewSnapshotLoader(engine, logging.Discard(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := loader.Load(ctx, domain.Baseline(), 2026)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	engine.SetDelay(0)
	s, err := loader.Load(context.Background(), domain.Baseline(), 2026)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Household.Len())
}

func TestCheckAlignment(t *testing.T) {
	engine := fixtureEngine([]int{2026})
	other := testutils.ThreeFamilies()[:2]
	engine.Add(domain.ChildLimitScenario("short", 2026, 4, testPaths...), other)

	reordered := testutils.ThreeFamilies()
	reordered[0], reordered[1] = reordered[1], reordered[0]
	reordered[0].ID, reordered[1].ID = 1, 2
	reordered[1].People = append(reordered[1].People, testutils.Child(1, false, false))
	engine.Add(domain.ChildLimitScenario("reordered", 2026, 5, testPaths...), reordered)

	loader := NewSnapshotLoader(engine, logging.Discard(), 2)
	ctx := context.Background()
	load := func(s domain.Scenario) *Snapshot {
		snap, err := loader.Load(ctx, s, 2026)
		require.NoError(t, err)
		return snap
	}

	baseline := load(domain.Baseline())
	assert.NoError(t, CheckAlignment(baseline, load(AbolitionScenario(2026, testPaths))))

	err := CheckAlignment(baseline, load(domain.ChildLimitScenario("short", 2026, 4, testPaths...)))
	assert.ErrorIs(t, err, ErrSnapshotMisaligned)
	assert.Contains(t, err.Error(), "person_id has 9 rows, baseline 13")

	err = CheckAlignment(baseline, load(domain.ChildLimitScenario("reordered", 2026, 5, testPaths...)))
	assert.ErrorIs(t, err, ErrSnapshotMisaligned)
}
