package application

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-childlimit/internal/aggregation"
	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/logging"
	"github.com/ahrav/go-childlimit/internal/testutils"
)

type wantMetric struct {
	name       string
	amount     float64
	provenance domain.Provenance
}

func assertMetrics(t *testing.T, report *domain.Report, want []wantMetric) {
	t.Helper()
	for _, w := range want {
		v := metricValue(t, report, w.name)
		assert.InDelta(t, w.amount, v.Amount, 1e-6, w.name)
		assert.Equal(t, w.provenance, v.Provenance, w.name)
	}
}

// commonMetricNames is the leading metric order shared by every report.
var commonMetricNames = []string{
	MetricCost,
	MetricFullReformCost,
	MetricFamiliesAffected,
	MetricTotalAffectedFamilies,
	MetricChildrenNoLongerLimited,
	MetricTotalLimitedChildren,
	MetricChildrenOutOfPoverty,
	MetricBaselinePovertyRate,
	MetricReformedPovertyRate,
	MetricPovertyRateReduction,
	MetricCostPerChild,
}

// fullAbolitionExtraMetrics follows the common metrics in the
// full-abolition report.
var fullAbolitionExtraMetrics = []string{
	MetricTotalChildren,
	MetricCTCAffectedChildren,
	MetricCTCAffectedFamilies,
	MetricUCFamilies,
	MetricCTCFamilies,
	MetricChildrenBornBeforeLimit,
	MetricBaselineOverallPovertyRate,
	MetricReformedOverallPovertyRate,
}

func metricNames(r *domain.Report) []string {
	names := make([]string, len(r.Metrics))
	for i, m := range r.Metrics {
		names[i] = m.Name
	}
	return names
}

func buildCell(t *testing.T, policyName string, param *int) (*domain.Report, *CellInput) {
	t.Helper()
	yc, loader := fixtureYear(t, 2026)
	policy, ok := NewPolicyRegistry().Lookup(policyName)
	require.True(t, ok)

	in := &CellInput{
		Cell:        domain.NewCellKey(2026, policyName, param),
		Year:        yc,
		Assumptions: DefaultBatchConfig().Assumptions,
	}
	if policy.Simulated() {
		reform, err := loader.Load(context.Background(), policy.Reform(2026, param, testPaths), 2026)
		require.NoError(t, err)
		in.Reform = reform
	}
	report, err := policy.Build(in)
	require.NoError(t, err)
	assert.Equal(t, in.Cell, report.Cell)
	assert.Equal(t, commonMetricNames, metricNames(report)[:len(commonMetricNames)])
	return report, in
}

func TestBuildFullAbolition(t *testing.T) {
	report, in := buildCell(t, PolicyFullAbolition, nil)

	assertMetrics(t, report, []wantMetric{
		{MetricCost, 725200, domain.ProvenanceSimulated},
		{MetricFullReformCost, 725200, domain.ProvenanceSimulated},
		{MetricFamiliesAffected, 150, domain.ProvenanceSimulated},
		{MetricTotalAffectedFamilies, 150, domain.ProvenanceSimulated},
		{MetricChildrenNoLongerLimited, 200, domain.ProvenanceSimulated},
		{MetricTotalLimitedChildren, 200, domain.ProvenanceSimulated},
		{MetricChildrenOutOfPoverty, 300, domain.ProvenanceSimulated},
		{MetricBaselinePovertyRate, 1.0 / 3, domain.ProvenanceSimulated},
		{MetricReformedPovertyRate, 0, domain.ProvenanceSimulated},
		{MetricPovertyRateReduction, 1.0 / 3, domain.ProvenanceSimulated},
		{MetricCostPerChild, 3626, domain.ProvenanceSimulated},
		{MetricTotalChildren, 900, domain.ProvenanceSimulated},
		{MetricCTCAffectedChildren, 200, domain.ProvenanceSimulated},
		{MetricCTCAffectedFamilies, 50, domain.ProvenanceSimulated},
		{MetricUCFamilies, 150, domain.ProvenanceSimulated},
		{MetricCTCFamilies, 50, domain.ProvenanceSimulated},
		{MetricChildrenBornBeforeLimit, 100, domain.ProvenanceSimulated},
		{MetricBaselineOverallPovertyRate, 400.0 / 1450, domain.ProvenanceSimulated},
		{MetricReformedOverallPovertyRate, 0, domain.ProvenanceSimulated},
	})
	assert.Equal(t, fullAbolitionExtraMetrics, metricNames(report)[len(commonMetricNames):])
	assert.Empty(t, in.Fallbacks())
}

func TestBuildChildLimit(t *testing.T) {
	report, in := buildCell(t, PolicyThreeChildLimit, intPtr(3))

	assertMetrics(t, report, []wantMetric{
		{MetricCost, 543900, domain.ProvenanceSimulated},
		{MetricFullReformCost, 725200, domain.ProvenanceSimulated},
		{MetricFamiliesAffected, 150, domain.ProvenanceSimulated},
		{MetricChildrenNoLongerLimited, 150, domain.ProvenanceSimulated},
		{MetricChildrenOutOfPoverty, 300, domain.ProvenanceSimulated},
		{MetricReformedPovertyRate, 0, domain.ProvenanceSimulated},
		{MetricCostPerChild, 1813, domain.ProvenanceSimulated},
		{"childLimit", 3, domain.ProvenanceInput},
		{"familiesAtLimit", 1, domain.ProvenanceSimulated},
		{"familiesAboveLimit", 1, domain.ProvenanceSimulated},
	})
	assert.Empty(t, in.Fallbacks())
}

func TestBuildChildLimitRequiresInputs(t *testing.T) {
	yc, _ := fixtureYear(t, 2026)

	_, err := buildChildLimit(&CellInput{Cell: domain.NewCellKey(2026, PolicyThreeChildLimit, nil), Year: yc})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = buildChildLimit(&CellInput{Cell: domain.NewCellKey(2026, PolicyThreeChildLimit, intPtr(3)), Year: yc})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestBuildUnderAgeExemption(t *testing.T) {
	report, _ := buildCell(t, PolicyUnderFiveExemption, intPtr(5))

	assertMetrics(t, report, []wantMetric{
		{MetricCost, 543900, domain.ProvenanceEstimated},
		{MetricFullReformCost, 725200, domain.ProvenanceSimulated},
		{MetricFamiliesAffected, 112.5, domain.ProvenanceEstimated},
		{MetricChildrenNoLongerLimited, 150, domain.ProvenanceSimulated},
		{MetricChildrenOutOfPoverty, 225, domain.ProvenanceEstimated},
		{MetricReformedPovertyRate, 1.0/3 - 0.25, domain.ProvenanceEstimated},
		{MetricPovertyRateReduction, 0.25, domain.ProvenanceEstimated},
		{MetricCostPerChild, 3626, domain.ProvenanceEstimated},
		{"ageLimit", 5, domain.ProvenanceInput},
		{"totalChildrenUnderAge", 450, domain.ProvenanceSimulated},
		{"affectedChildrenUnderAge", 150, domain.ProvenanceSimulated},
	})

	cost := metricValue(t, report, MetricCost)
	assert.Equal(t, "share of affected children under 5", cost.Basis)
}

func TestBuildDisabledChildExemption(t *testing.T) {
	report, _ := buildCell(t, PolicyDisabledChildExemption, nil)

	assertMetrics(t, report, []wantMetric{
		{MetricCost, 108780, domain.ProvenanceEstimated},
		{MetricFamiliesAffected, 22.5, domain.ProvenanceEstimated},
		{MetricChildrenNoLongerLimited, 30, domain.ProvenanceEstimated},
		{MetricChildrenOutOfPoverty, 45, domain.ProvenanceEstimated},
		{MetricPovertyRateReduction, 0.05, domain.ProvenanceEstimated},
		{MetricCostPerChild, 3626, domain.ProvenanceEstimated},
		{"disabledChildren", 45, domain.ProvenanceEstimated},
		{"familiesWithDisabledChild", 22.5, domain.ProvenanceEstimated},
		{"publishedCost", 1.2e9, domain.ProvenanceInput},
		{"publishedChildrenOutOfPoverty", 120000, domain.ProvenanceInput},
	})
	assert.Equal(t, "assumed disabled share 0.15", metricValue(t, report, MetricCost).Basis)
}

func TestBuildWorkingFamiliesExemption(t *testing.T) {
	report, _ := buildCell(t, PolicyWorkingFamiliesExemption, nil)

	// One of the two affected benefit units has a working adult, so the
	// share is a half even though the working unit carries a third of
	// the household weight.
	assertMetrics(t, report, []wantMetric{
		{MetricCost, 362600, domain.ProvenanceEstimated},
		{MetricFamiliesAffected, 1, domain.ProvenanceSimulated},
		{MetricTotalAffectedFamilies, 150, domain.ProvenanceSimulated},
		{MetricChildrenNoLongerLimited, 100, domain.ProvenanceEstimated},
		{MetricChildrenOutOfPoverty, 150, domain.ProvenanceEstimated},
		{MetricCostPerChild, 3626, domain.ProvenanceEstimated},
		{"workingFamilies", 1, domain.ProvenanceSimulated},
		{"nonWorkingFamilies", 1, domain.ProvenanceSimulated},
	})
	assert.Equal(t, "unweighted share of affected benefit units in work", metricValue(t, report, MetricCost).Basis)
}

func TestWorkingShareCountsBenefitUnits(t *testing.T) {
	// Two affected units with one child each: a working one of weight 10
	// and a non-working one of weight 30. A child's earnings do not make
	// a unit a working family.
	pop := testutils.Population{
		{Weight: 10, NetIncome: 20000, Decile: 1, People: []testutils.Person{
			testutils.Adult(12000, false), testutils.Child(3, true, true),
		}},
		{Weight: 30, NetIncome: 10000, Decile: 1, People: []testutils.Person{
			testutils.Adult(0, true),
			{Age: 16, Child: true, Employment: 3000, InPoverty: true, Affected: true},
		}},
	}
	engine := testutils.NewFakeEngine().
		Add(domain.Baseline(), pop).
		Add(AbolitionScenario(2026, testPaths), pop.RaiseLimit(math.Inf(1), testutils.StandardElement))
	loader := NewSnapshotLoader(engine, logging.Discard(), 1)
	baseline, err := loader.Load(context.Background(), domain.Baseline(), 2026)
	require.NoError(t, err)
	abolition, err := loader.Load(context.Background(), AbolitionScenario(2026, testPaths), 2026)
	require.NoError(t, err)
	yc, err := NewYearContext(baseline, abolition, aggregation.WarnOnDisagreement, logging.Discard())
	require.NoError(t, err)

	tests := []struct {
		metric string
		want   float64
	}{
		{MetricFamiliesAffected, 1},
		{"workingFamilies", 1},
		{"nonWorkingFamilies", 1},
		{MetricTotalAffectedFamilies, 40},
		{MetricChildrenNoLongerLimited, 20},
		{MetricCost, 0.5 * 40 * testutils.StandardElement},
	}
	report, err := buildWorkingFamiliesExemption(&CellInput{
		Cell:        domain.NewCellKey(2026, PolicyWorkingFamiliesExemption, nil),
		Year:        yc,
		Assumptions: DefaultBatchConfig().Assumptions,
	})
	require.NoError(t, err)
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			assert.InDelta(t, tt.want, metricValue(t, report, tt.metric).Amount, 1e-9)
		})
	}
}

func TestBuildLowerThirdChildElement(t *testing.T) {
	report, _ := buildCell(t, PolicyLowerThirdChildElement, intPtr(50))

	assertMetrics(t, report, []wantMetric{
		{MetricCost, 362600, domain.ProvenanceEstimated},
		{MetricFamiliesAffected, 150, domain.ProvenanceSimulated},
		{MetricChildrenNoLongerLimited, 200, domain.ProvenanceSimulated},
		{MetricChildrenOutOfPoverty, 150, domain.ProvenanceEstimated},
		{MetricCostPerChild, 1813, domain.ProvenanceEstimated},
		{"reductionRate", 0.5, domain.ProvenanceInput},
		{"standardElement", 3626, domain.ProvenanceInput},
		{"reducedElement", 1813, domain.ProvenanceInput},
		{"thirdPlusChildren", 200, domain.ProvenanceSimulated},
	})

	report, _ = buildCell(t, PolicyLowerThirdChildElement, intPtr(0))
	assert.Zero(t, metricValue(t, report, MetricCost).Amount)
	assert.Zero(t, metricValue(t, report, "reducedElement").Amount)
}

func TestEstimatedPolicyWithoutAffectedChildren(t *testing.T) {
	yc, _ := fixtureYear(t, 2026)
	empty := *yc
	empty.AffectedChildren = 0
	empty.AffectedFamilies = 0
	empty.AffectedBenunits = map[int64]struct{}{}
	empty.AffectedFamilyCount = 0
	empty.WorkingFamilyCount = 0

	in := &CellInput{
		Cell:        domain.NewCellKey(2026, PolicyWorkingFamiliesExemption, nil),
		Year:        &empty,
		Assumptions: DefaultBatchConfig().Assumptions,
	}
	report, err := buildWorkingFamiliesExemption(in)
	require.NoError(t, err)

	cost := metricValue(t, report, MetricCost)
	assert.Zero(t, cost.Amount)
	assert.Equal(t, domain.ProvenanceEstimated, cost.Provenance)
	assert.Zero(t, metricValue(t, report, MetricCostPerChild).Amount)
	assert.Equal(t, []string{
		MetricCost,
		MetricChildrenNoLongerLimited,
		MetricChildrenOutOfPoverty,
		MetricCostPerChild,
	}, in.Fallbacks())
}

func TestBuildDistribution(t *testing.T) {
	yc, _ := fixtureYear(t, 2026)
	cell := domain.NewCellKey(2026, PolicyFullAbolition, nil)

	dist, err := BuildDistribution(cell, yc, yc.Abolition)
	require.NoError(t, err)
	require.Len(t, dist.Rows, 10)
	assert.Equal(t, cell, dist.Cell)

	assert.InDelta(t, 18.13, dist.Rows[0].RelativeChangePct(), 1e-9)
	assert.InDelta(t, 3626, dist.Rows[0].MeanChange, 1e-9)
	assert.InDelta(t, 7252.0/30000*100, dist.Rows[1].RelativeChangePct(), 1e-9)
	assert.Zero(t, dist.Rows[2].RelativeChange)
	assert.True(t, dist.Rows[2].Defined)
	for _, row := range dist.Rows[3:] {
		assert.False(t, row.Defined, "decile %d", row.Decile)
		assert.True(t, math.IsNaN(row.RelativeChange))
	}
}
