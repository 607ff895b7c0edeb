package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/logging"
	"github.com/ahrav/go-childlimit/internal/ports"
)

// ErrSnapshotMisaligned indicates that a reform snapshot does not list
// the same units in the same order as its baseline.
var ErrSnapshotMisaligned = errors.New("snapshot not aligned with baseline")

// Snapshot holds the engine output of one scenario for one year at
// person and household level.
type Snapshot struct {
	Scenario  domain.Scenario
	Year      int
	Person    domain.Frame
	Household domain.Frame
}

// CheckAlignment verifies that reform lists the same persons and
// households as baseline, in the same order. Aggregates combine the two
// by row position, so any difference would silently mix units.
func CheckAlignment(baseline, reform *Snapshot) error {
	if err := alignedColumn(baseline.Person, reform.Person, domain.VarPersonID); err != nil {
		return err
	}
	return alignedColumn(baseline.Household, reform.Household, domain.VarHouseholdID)
}

func alignedColumn(base, reform domain.Frame, column string) error {
	b, err := base.Keys(column)
	if err != nil {
		return err
	}
	r, err := reform.Keys(column)
	if err != nil {
		return err
	}
	if len(b) != len(r) {
		return fmt.Errorf("%w: %s has %d rows, baseline %d", ErrSnapshotMisaligned, column, len(r), len(b))
	}
	for i := range b {
		if b[i] != r[i] {
			return fmt.Errorf("%w: %s differs at row %d (%d != %d)", ErrSnapshotMisaligned, column, i, r[i], b[i])
		}
	}
	return nil
}

// SnapshotLoader fetches snapshots from the engine. Each (scenario, year)
// is loaded at most once per loader; concurrent requests for the same
// snapshot share one load. Failures are remembered as well so that every
// cell depending on a broken scenario fails fast.
type SnapshotLoader struct {
	engine      ports.SimulationEngine
	logger      *slog.Logger
	fetchLimit  int
	personVars  []string
	householdVs []string

	sf    singleflight.Group
	mu    sync.Mutex
	memo  map[string]*Snapshot
	fails map[string]error
}

// NewSnapshotLoader creates a loader. fetchLimit bounds the number of
// variables requested concurrently for one snapshot.
func NewSnapshotLoader(engine ports.SimulationEngine, logger *slog.Logger, fetchLimit int) *SnapshotLoader {
	if fetchLimit <= 0 {
		fetchLimit = 4
	}
	return &SnapshotLoader{
		engine:      engine,
		logger:      logger,
		fetchLimit:  fetchLimit,
		personVars:  domain.PersonVariables,
		householdVs: domain.HouseholdVariables,
		memo:        make(map[string]*Snapshot),
		fails:       make(map[string]error),
	}
}

func snapshotKey(scenario domain.Scenario, year int) string {
	return strconv.Itoa(year) + "|" + scenario.Key()
}

// Load returns the snapshot for scenario in year.
func (l *SnapshotLoader) Load(ctx context.Context, scenario domain.Scenario, year int) (*Snapshot, error) {
	key := snapshotKey(scenario, year)

	l.mu.Lock()
	if s, ok := l.memo[key]; ok {
		l.mu.Unlock()
		return s, nil
	}
	if err, ok := l.fails[key]; ok {
		l.mu.Unlock()
		return nil, err
	}
	l.mu.Unlock()

	v, err, shared := l.sf.Do(key, func() (any, error) {
		s, err := l.fetch(ctx, scenario, year)

		l.mu.Lock()
		defer l.mu.Unlock()
		if err != nil {
			// Cancellation is not a property of the scenario.
			if ctx.Err() == nil {
				l.fails[key] = err
			}
			return nil, err
		}
		l.memo[key] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Log(ctx, logging.LevelTrace, "snapshot ready",
		"scenario", scenario.Name, "year", year, "shared", shared)
	return v.(*Snapshot), nil
}

// Loaded returns the number of snapshots held in memory.
func (l *SnapshotLoader) Loaded() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.memo)
}

func (l *SnapshotLoader) fetch(ctx context.Context, scenario domain.Scenario, year int) (*Snapshot, error) {
	person, err := l.fetchFrame(ctx, scenario, year, l.personVars, domain.LevelPerson)
	if err != nil {
		return nil, err
	}
	household, err := l.fetchFrame(ctx, scenario, year, l.householdVs, domain.LevelHousehold)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("loaded snapshot",
		"scenario", scenario.Name,
		"year", year,
		"persons", person.Len(),
		"households", household.Len())
	return &Snapshot{Scenario: scenario, Year: year, Person: person, Household: household}, nil
}

func (l *SnapshotLoader) fetchFrame(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variables []string,
	level domain.Level,
) (domain.Frame, error) {
	columns := make([][]float64, len(variables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.fetchLimit)
	for i, variable := range variables {
		g.Go(func() error {
			values, err := l.engine.Calculate(gctx, scenario, year, variable, level)
			if err != nil {
				return err
			}
			columns[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Frame{}, fmt.Errorf("load %s %s/%d: %w", level, scenario.Name, year, err)
	}

	cols := make(map[string][]float64, len(variables))
	for i, variable := range variables {
		cols[variable] = columns[i]
	}
	frame, err := domain.FrameFromColumns(cols)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("load %s %s/%d: %w", level, scenario.Name, year, err)
	}
	return frame, nil
}
