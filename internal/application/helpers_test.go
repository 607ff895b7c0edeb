package application

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-childlimit/internal/aggregation"
	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/logging"
	"github.com/ahrav/go-childlimit/internal/ports"
	"github.com/ahrav/go-childlimit/internal/testutils"
)

var testPaths = DefaultBatchConfig().Parameters.Paths()

// fixtureEngine serves testutils.ThreeFamilies as the baseline, with the
// limit abolished and with every three-child-limit variant in limits
// simulated for each year.
func fixtureEngine(years []int, limits ...int) *testutils.FakeEngine {
	base := testutils.ThreeFamilies()
	engine := testutils.NewFakeEngine().Add(domain.Baseline(), base)

	childLimit, _ := NewPolicyRegistry().Lookup(PolicyThreeChildLimit)
	for _, year := range years {
		engine.Add(AbolitionScenario(year, testPaths), base.RaiseLimit(math.Inf(1), testutils.StandardElement))
		for _, limit := range limits {
			engine.Add(childLimit.Reform(year, &limit, testPaths),
				base.RaiseLimit(float64(limit), testutils.StandardElement))
		}
	}
	return engine
}

// fixtureYear builds the year context of ThreeFamilies for year.
func fixtureYear(t *testing.T, year int) (*YearContext, *SnapshotLoader) {
	t.Helper()
	loader := NewSnapshotLoader(fixtureEngine([]int{year}, 3), logging.Discard(), 2)
	ctx := context.Background()

	baseline, err := loader.Load(ctx, domain.Baseline(), year)
	require.NoError(t, err)
	abolition, err := loader.Load(ctx, AbolitionScenario(year, testPaths), year)
	require.NoError(t, err)

	yc, err := NewYearContext(baseline, abolition, aggregation.WarnOnDisagreement, logging.Discard())
	require.NoError(t, err)
	return yc, loader
}

func intPtr(v int) *int { return &v }

// memorySink records everything written to it.
type memorySink struct {
	mu            sync.Mutex
	reports       []*domain.Report
	distributions []*domain.Distribution
	combined      []ports.CombinedRow
	combinedCalls int
	failReports   error
}

var _ ports.ReportSink = (*memorySink)(nil)

func (s *memorySink) WriteReport(_ context.Context, r *domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReports != nil {
		return s.failReports
	}
	s.reports = append(s.reports, r)
	return nil
}

func (s *memorySink) WriteDistribution(_ context.Context, d *domain.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distributions = append(s.distributions, d)
	return nil
}

func (s *memorySink) WriteCombined(_ context.Context, rows []ports.CombinedRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.combined = rows
	s.combinedCalls++
	return nil
}

// metricValue fetches a metric that must be present.
func metricValue(t *testing.T, r *domain.Report, name string) domain.Value {
	t.Helper()
	v, ok := r.Lookup(name)
	require.True(t, ok, "metric %s missing from %s", name, r.Cell)
	return v
}
