package application

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-childlimit/internal/aggregation"
	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/logging"
	"github.com/ahrav/go-childlimit/internal/testutils"
)

func TestYearContextAggregates(t *testing.T) {
	yc, _ := fixtureYear(t, 2026)

	assert.Equal(t, 2026, yc.Year)
	assert.InDelta(t, 900, yc.TotalChildren, 1e-9)
	assert.InDelta(t, 200, yc.AffectedChildren, 1e-9)
	assert.InDelta(t, 150, yc.AffectedFamilies, 1e-9)
	assert.Equal(t, map[int64]struct{}{1: {}, 2: {}}, yc.AffectedBenunits)
	assert.Equal(t, map[int64]int{1: 3, 2: 4, 3: 2}, yc.ChildrenPerBenunit)
	assert.Equal(t, 2, yc.AffectedFamilyCount)
	assert.Equal(t, 1, yc.WorkingFamilyCount)

	assert.InDelta(t, 0, yc.BaselineOutcome.Cost, 1e-9)
	assert.InDelta(t, 300, yc.BaselineOutcome.ChildrenInPoverty, 1e-9)
	assert.InDelta(t, 1.0/3, yc.BaselineOutcome.PovertyRate, 1e-12)
	assert.InDelta(t, 200, yc.BaselineOutcome.AffectedPersons, 1e-9)
	assert.InDelta(t, 400.0/1450, yc.BaselineOutcome.OverallPovertyRate, 1e-12)

	assert.InDelta(t, 725200, yc.AbolitionOutcome.Cost, 1e-6)
	assert.InDelta(t, 0, yc.AbolitionOutcome.ChildrenInPoverty, 1e-9)
	assert.InDelta(t, 0, yc.AbolitionOutcome.AffectedPersons, 1e-9)
	assert.InDelta(t, 0, yc.AbolitionOutcome.OverallPovertyRate, 1e-12)
	assert.InDelta(t, 300, yc.FullChildrenOut, 1e-9)

	assert.Empty(t, yc.Fallbacks)
	assert.Empty(t, yc.Disagreements)
}

func TestYearContextQueries(t *testing.T) {
	yc, _ := fixtureYear(t, 2026)

	t.Run("families by size", func(t *testing.T) {
		tests := []struct {
			limit     int
			at, above int
		}{
			{limit: 2, at: 0, above: 2},
			{limit: 3, at: 1, above: 1},
			{limit: 4, at: 1, above: 0},
			{limit: 5, at: 0, above: 0},
		}
		for _, tt := range tests {
			at, above := yc.FamiliesBySize(tt.limit)
			assert.Equal(t, tt.at, at, "limit %d", tt.limit)
			assert.Equal(t, tt.above, above, "limit %d", tt.limit)
		}
	})

	t.Run("children under age", func(t *testing.T) {
		total, affected, err := yc.ChildrenUnderAge(5)
		require.NoError(t, err)
		assert.InDelta(t, 450, total, 1e-9)
		assert.InDelta(t, 150, affected, 1e-9)

		total, affected, err = yc.ChildrenUnderAge(1)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Zero(t, affected)
	})


	t.Run("household change", func(t *testing.T) {
		change, weights, err := yc.HouseholdChange(yc.Abolition)
		require.NoError(t, err)
		assert.Equal(t, []float64{3626, 7252, 0}, change)
		assert.Equal(t, []float64{100, 50, 200}, weights)
	})
}

func TestYearContextBenefitUnitAggregates(t *testing.T) {
	yc, _ := fixtureYear(t, 2026)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"ctc affected children", yc.CTCAffectedChildren, 200},
		{"ctc affected families", yc.CTCAffectedFamilies, 50},
		{"uc families", yc.UCFamilies, 150},
		{"ctc families", yc.CTCFamilies, 50},
		{"children born before limit", yc.ChildrenBornBeforeLimit, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.got, 1e-9)
		})
	}
}

func TestYearContextBenefitUnitValuesFromFirstMember(t *testing.T) {
	// The award and the tax credit flag sit on the first member only, as
	// engines report benefit unit amounts on the head.
	pop := testutils.Population{
		{Weight: 40, NetIncome: 9000, Decile: 1, People: []testutils.Person{
			testutils.Adult(0, true), testutils.Child(7, true, false), testutils.Child(2, true, true),
		}},
		{Weight: 60, NetIncome: 30000, Decile: 5, People: []testutils.Person{
			testutils.Adult(25000, false), testutils.Child(9, false, false),
		}},
	}
	engine := testutils.NewFakeEngine().Add(domain.Baseline(), pop).Add(AbolitionScenario(2026, testPaths), pop)
	loader := NewSnapshotLoader(engine, logging.Discard(), 1)
	baseline, err := loader.Load(context.Background(), domain.Baseline(), 2026)
	require.NoError(t, err)
	abolition, err := loader.Load(context.Background(), AbolitionScenario(2026, testPaths), 2026)
	require.NoError(t, err)

	cols := map[string][]float64{}
	for _, name := range baseline.Person.Names() {
		values, _ := baseline.Person.Column(name)
		cols[name] = append([]float64(nil), values...)
	}
	// Rows 0..2 are benefit unit 1, rows 3..4 benefit unit 2.
	cols[domain.VarUniversalCredit][0] = 8000
	cols[domain.VarChildTaxCredit][3] = 2000
	cols[domain.VarCTCLimitAffected][3] = 1
	person, err := domain.FrameFromColumns(cols)
	require.NoError(t, err)
	baseline = &Snapshot{Scenario: baseline.Scenario, Year: 2026, Person: person, Household: baseline.Household}

	yc, err := NewYearContext(baseline, abolition, aggregation.Strict, logging.Discard())
	require.NoError(t, err)

	assert.InDelta(t, 40, yc.UCFamilies, 1e-9)
	assert.InDelta(t, 60, yc.CTCFamilies, 1e-9)
	assert.InDelta(t, 60, yc.CTCAffectedFamilies, 1e-9)
	// The child of unit 2 inherits the unit flag from the head's row.
	assert.InDelta(t, 60, yc.CTCAffectedChildren, 1e-9)
	assert.Empty(t, yc.Fallbacks)
}

func TestYearContextWithoutChildren(t *testing.T) {
	pop := testutils.Population{
		{Weight: 10, NetIncome: 1000, Decile: 5, People: []testutils.Person{testutils.Adult(0, false)}},
	}
	engine := testutils.NewFakeEngine().
		Add(domain.Baseline(), pop).
		Add(AbolitionScenario(2026, testPaths), pop)
	loader := NewSnapshotLoader(engine, logging.Discard(), 1)

	baseline, err := loader.Load(context.Background(), domain.Baseline(), 2026)
	require.NoError(t, err)
	abolition, err := loader.Load(context.Background(), AbolitionScenario(2026, testPaths), 2026)
	require.NoError(t, err)

	yc, err := NewYearContext(baseline, abolition, aggregation.WarnOnDisagreement, logging.Discard())
	require.NoError(t, err)

	assert.Zero(t, yc.TotalChildren)
	assert.Zero(t, yc.BaselineOutcome.PovertyRate)
	assert.Equal(t, []string{"povertyRate", "povertyRate"}, yc.Fallbacks)
}

func TestYearContextWeightDisagreement(t *testing.T) {
	yc, _ := fixtureYear(t, 2026)

	// Give the second member of benefit unit 1 a different household weight.
	cols := map[string][]float64{}
	for _, name := range yc.Baseline.Person.Names() {
		values, _ := yc.Baseline.Person.Column(name)
		cols[name] = append([]float64(nil), values...)
	}
	cols[domain.VarHouseholdWeight][1] = 999
	person, err := domain.FrameFromColumns(cols)
	require.NoError(t, err)

	baseline := &Snapshot{Scenario: domain.Baseline(), Year: 2026, Person: person, Household: yc.Baseline.Household}
	abolition := &Snapshot{Scenario: yc.Abolition.Scenario, Year: 2026, Person: yc.Abolition.Person, Household: yc.Abolition.Household}

	t.Run("warn keeps the first value and logs", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		got, err := NewYearContext(baseline, abolition, aggregation.WarnOnDisagreement, logger)
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, got.Disagreements)
		assert.InDelta(t, 150, got.AffectedFamilies, 1e-9)
		assert.Contains(t, buf.String(), "household weight differs within benefit units")
	})

	t.Run("strict fails", func(t *testing.T) {
		_, err := NewYearContext(baseline, abolition, aggregation.Strict, logging.Discard())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrGroupNotConstant)
	})
}

func TestParseConstancy(t *testing.T) {
	tests := []struct {
		in   string
		want aggregation.ConstancyPolicy
	}{
		{"", aggregation.WarnOnDisagreement},
		{"warn", aggregation.WarnOnDisagreement},
		{"pick_first", aggregation.PickFirst},
		{"strict", aggregation.Strict},
	}
	for _, tt := range tests {
		got, err := ParseConstancy(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseConstancy("lenient")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
