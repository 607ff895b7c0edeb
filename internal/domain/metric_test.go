package domain

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestValue_Provenance(t *testing.T) {
	s := Simulated(1.5)
	e := Estimated(2.5, "share=0.15")
	in := Input(3626)

	assert.False(t, s.IsEstimate())
	assert.True(t, e.IsEstimate())
	assert.Equal(t, "share=0.15", e.Basis)
	assert.Equal(t, ProvenanceInput, in.Provenance)

	assert.Equal(t, "simulated", ProvenanceSimulated.String())
	assert.Equal(t, "estimated", ProvenanceEstimated.String())
	assert.Equal(t, "input", ProvenanceInput.String())
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.7, "0.7"},
		{150000000, "1.5e+08"},
		{3626, "3626"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatAmount(tt.in))
	}
	assert.False(t, Simulated(math.NaN()).IsDefined())
}

func TestCellKey_Ordering(t *testing.T) {
	keys := []CellKey{
		NewCellKey(2027, "full-abolition", nil),
		NewCellKey(2026, "three-child-limit", intPtr(4)),
		NewCellKey(2026, "three-child-limit", nil),
		NewCellKey(2026, "three-child-limit", intPtr(3)),
		NewCellKey(2026, "disabled-child-exemption", nil),
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	got := make([]string, len(keys))
	for i, k := range keys {
		got[i] = k.String()
	}
	assert.Equal(t, []string{
		"disabled-child-exemption/2026",
		"three-child-limit/2026",
		"three-child-limit/2026/3",
		"three-child-limit/2026/4",
		"full-abolition/2027",
	}, got)
}

func TestNewCellKey_CopiesParameter(t *testing.T) {
	p := 5
	k := NewCellKey(2026, "under-five-exemption", &p)
	p = 9
	require.NotNil(t, k.Parameter)
	assert.Equal(t, 5, *k.Parameter)
	assert.True(t, k.HasParameter())
}

func TestReport_AddLookup(t *testing.T) {
	r := NewReport(NewCellKey(2026, "full-abolition", nil))
	r.Add("cost", Simulated(3.4e9)).Add("publishedCost", Input(1.2e9))

	v, ok := r.Lookup("cost")
	require.True(t, ok)
	assert.Equal(t, 3.4e9, v.Amount)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
	assert.Len(t, r.Metrics, 2)
}

func TestScenario_Key(t *testing.T) {
	a := Scenario{Name: "a", Overrides: []ParameterOverride{
		{Path: "x.y", Year: 2026, Value: 3},
		{Path: "a.b", Year: 2026, Value: math.Inf(1)},
	}}
	b := Scenario{Name: "b", Overrides: []ParameterOverride{
		{Path: "a.b", Year: 2026, Value: math.Inf(1)},
		{Path: "x.y", Year: 2026, Value: 3},
	}}

	assert.Equal(t, a.Key(), b.Key(), "override order must not change the key")
	assert.Equal(t, "a.b@2026=inf;x.y@2026=3", a.Key())
	assert.Equal(t, "baseline", Baseline().Key())
	assert.True(t, Baseline().IsBaseline())

	v, ok := a.Override("x.y", 2026)
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
}

func TestCohorts(t *testing.T) {
	f, err := FrameFromColumns(map[string][]float64{
		VarBenunitID: {1, 1, 2, 3},
		VarIsChild:   {0, 1, 1, 1},
		VarAge:       {40, 2, 7, 4},
	})
	require.NoError(t, err)

	children := FlagCohort("children", VarIsChild)
	underFive := AllOf("children under 5", children, BelowCohort("under 5", VarAge, 5))
	inFamilies := InGroupsCohort("in families 1,3", VarBenunitID, map[int64]struct{}{1: {}, 3: {}})

	m, err := children.Mask(f)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true, true}, m)

	m, err = underFive.Mask(f)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false, true}, m)

	m, err = inFamilies.Mask(f)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false, true}, m)

	m, err = Not("adults", children).Mask(f)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, false}, m)

	m, err = Everyone().Mask(f)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true, true}, m)

	_, err = FlagCohort("missing", "nope").Mask(f)
	assert.ErrorIs(t, err, ErrColumnNotFound)

	_, err = Cohort{Name: "empty"}.Mask(f)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
