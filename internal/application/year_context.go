package application

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahrav/go-childlimit/internal/aggregation"
	"github.com/ahrav/go-childlimit/internal/domain"
)

// Cohorts evaluated against the baseline person frame.
var (
	childCohort    = domain.FlagCohort("children", domain.VarIsChild)
	affectedCohort = domain.FlagCohort("limit-affected", domain.VarUCLimitAffected)
	adultCohort    = domain.FlagCohort("adults", domain.VarIsAdult)

	earnerCohort = domain.AllOf("working adults", adultCohort,
		domain.FlagCohort("earners", domain.VarEmployment))
	protectedCohort = domain.AllOf("born before limit", childCohort,
		domain.FlagCohort("protected", domain.VarUCBornBeforeLimit))
)

// fallbackLog collects the names of ratio metrics that fell back to a
// default because their denominator was zero.
type fallbackLog struct {
	metrics []string
}

// check passes v through when err is nil, records metric when err is a
// zero-division fallback and returns any other error.
func (f *fallbackLog) check(metric string, v float64, err error) (float64, error) {
	if err == nil {
		return v, nil
	}
	if errors.Is(err, domain.ErrDivisionUndefined) {
		f.metrics = append(f.metrics, metric)
		return v, nil
	}
	return 0, fmt.Errorf("%s: %w", metric, err)
}

func (f *fallbackLog) note(metric string) { f.metrics = append(f.metrics, metric) }

// Names returns the recorded metric names.
func (f *fallbackLog) Names() []string { return f.metrics }

// Outcome is the set of aggregates that differ between scenarios.
type Outcome struct {
	// Cost is the weighted change in household net income against the
	// baseline.
	Cost float64
	// ChildrenInPoverty is the weighted count of children in poverty.
	ChildrenInPoverty float64
	// PovertyRate is the weighted child poverty rate.
	PovertyRate float64
	// OverallPovertyRate is the weighted poverty rate of all persons.
	OverallPovertyRate float64
	// AffectedPersons is the weighted count of persons flagged as
	// affected by the child limit.
	AffectedPersons float64
}

// YearContext holds the baseline and full-abolition aggregates shared by
// every cell of one year. It is computed once per year and read by many
// cells concurrently, so it must not be modified after construction.
type YearContext struct {
	Year      int
	Baseline  *Snapshot
	Abolition *Snapshot

	BaselineOutcome  Outcome
	AbolitionOutcome Outcome

	// TotalChildren is the weighted number of children.
	TotalChildren float64
	// AffectedChildren is the weighted number of persons in the baseline
	// whose support is capped by the limit.
	AffectedChildren float64
	// AffectedFamilies is the household weight summed once per affected
	// benefit unit.
	AffectedFamilies float64
	// AffectedBenunits is the set of benefit units with an affected member.
	AffectedBenunits map[int64]struct{}
	// AffectedFamilyCount is the unweighted number of affected benefit
	// units.
	AffectedFamilyCount int
	// WorkingFamilyCount is the unweighted number of affected benefit
	// units with a member in paid work.
	WorkingFamilyCount int
	// ChildrenPerBenunit counts children per benefit unit.
	ChildrenPerBenunit map[int64]int
	// FullChildrenOut is the weighted number of children lifted out of
	// poverty by abolishing the limit.
	FullChildrenOut float64

	// CTCAffectedChildren is the weighted number of children in benefit
	// units capped by the Child Tax Credit limit.
	CTCAffectedChildren float64
	// CTCAffectedFamilies is the household weight of those benefit units.
	CTCAffectedFamilies float64
	// UCFamilies and CTCFamilies are the household weights of benefit
	// units receiving Universal Credit and Child Tax Credit.
	UCFamilies, CTCFamilies float64
	// ChildrenBornBeforeLimit is the weighted number of children under
	// transitional protection.
	ChildrenBornBeforeLimit float64

	childMask     []bool
	affectedMask  []bool
	personWeights []float64
	benunitIDs    []int64
	benunitWeight aggregation.Groups
	benunitUnit   aggregation.Groups

	// Fallbacks lists ratio metrics that fell back while building the
	// context.
	Fallbacks []string
	// Disagreements lists benefit units whose members carried different
	// household weights.
	Disagreements []int64
}

// NewYearContext computes the shared aggregates for one year.
func NewYearContext(
	baseline, abolition *Snapshot,
	constancy aggregation.ConstancyPolicy,
	logger *slog.Logger,
) (*YearContext, error) {
	if err := CheckAlignment(baseline, abolition); err != nil {
		return nil, fmt.Errorf("full abolition: %w", err)
	}

	p := baseline.Person
	childMask, err := childCohort.Mask(p)
	if err != nil {
		return nil, err
	}
	affectedMask, err := affectedCohort.Mask(p)
	if err != nil {
		return nil, err
	}
	cols, err := p.MustColumns(domain.VarPersonWeight, domain.VarHouseholdWeight)
	if err != nil {
		return nil, err
	}
	personWeights, householdWeights := cols[0], cols[1]
	benunits, err := p.Keys(domain.VarBenunitID)
	if err != nil {
		return nil, err
	}

	yc := &YearContext{
		Year:          baseline.Year,
		Baseline:      baseline,
		Abolition:     abolition,
		childMask:     childMask,
		affectedMask:  affectedMask,
		personWeights: personWeights,
		benunitIDs:    benunits,
	}

	// Household weight is constant within a benefit unit.
	yc.benunitWeight, err = aggregation.GroupFirst(benunits, householdWeights, constancy)
	if err != nil {
		return nil, fmt.Errorf("benefit unit weights: %w", err)
	}
	yc.Disagreements = yc.benunitWeight.Disagreements
	if len(yc.Disagreements) > 0 {
		logger.Warn("household weight differs within benefit units",
			"year", yc.Year,
			"benunits", len(yc.Disagreements),
			"policy", constancy.String())
	}
	units := make(map[int64]float64, yc.benunitWeight.Len())
	for _, k := range yc.benunitWeight.Keys {
		units[k] = 1
	}
	yc.benunitUnit = aggregation.Groups{Keys: yc.benunitWeight.Keys, Values: units}

	if yc.TotalChildren, err = aggregation.TotalWeight(personWeights, childMask); err != nil {
		return nil, err
	}
	if yc.AffectedChildren, err = aggregation.TotalWeight(personWeights, affectedMask); err != nil {
		return nil, err
	}
	if yc.AffectedBenunits, err = aggregation.KeySet(benunits, affectedMask); err != nil {
		return nil, err
	}
	if yc.AffectedFamilies, err = yc.FamilyWeight(yc.AffectedBenunits); err != nil {
		return nil, err
	}
	yc.AffectedFamilyCount = len(yc.AffectedBenunits)
	if yc.WorkingFamilyCount, err = yc.workingFamilies(); err != nil {
		return nil, err
	}
	if yc.ChildrenPerBenunit, err = aggregation.GroupCount(benunits, childMask); err != nil {
		return nil, err
	}
	protected, err := protectedCohort.Mask(p)
	if err != nil {
		return nil, err
	}
	if yc.ChildrenBornBeforeLimit, err = aggregation.TotalWeight(personWeights, protected); err != nil {
		return nil, err
	}

	var fb fallbackLog
	if err := yc.benefitUnitAggregates(&fb); err != nil {
		return nil, err
	}
	if yc.BaselineOutcome, err = yc.Outcome(baseline, &fb); err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}
	if yc.AbolitionOutcome, err = yc.Outcome(abolition, &fb); err != nil {
		return nil, fmt.Errorf("full abolition: %w", err)
	}
	yc.FullChildrenOut = yc.BaselineOutcome.ChildrenInPoverty - yc.AbolitionOutcome.ChildrenInPoverty
	yc.Fallbacks = fb.Names()
	return yc, nil
}

// Outcome computes the scenario-dependent aggregates of s. Cohorts come
// from the baseline; s only supplies outcome columns.
func (yc *YearContext) Outcome(s *Snapshot, fb *fallbackLog) (Outcome, error) {
	var out Outcome

	cost, err := yc.householdIncomeChange(s)
	if err != nil {
		return out, err
	}
	out.Cost = cost

	poverty, ok := s.Person.Column(domain.VarInPoverty)
	if !ok {
		return out, domain.NewColumnError(domain.VarInPoverty, "Outcome", domain.ErrColumnNotFound)
	}
	if out.ChildrenInPoverty, err = aggregation.MaskedSum(poverty, yc.personWeights, yc.childMask); err != nil {
		return out, err
	}
	rate, err := aggregation.MaskedRate(poverty, yc.personWeights, yc.childMask)
	if out.PovertyRate, err = fb.check("povertyRate", rate, err); err != nil {
		return out, err
	}
	overall, err := aggregation.WeightedRate(poverty, yc.personWeights)
	if out.OverallPovertyRate, err = fb.check("overallPovertyRate", overall, err); err != nil {
		return out, err
	}

	affected, ok := s.Person.Column(domain.VarUCLimitAffected)
	if !ok {
		return out, domain.NewColumnError(domain.VarUCLimitAffected, "Outcome", domain.ErrColumnNotFound)
	}
	mask := make([]bool, len(affected))
	for i, v := range affected {
		mask[i] = v > 0
	}
	if out.AffectedPersons, err = aggregation.TotalWeight(yc.personWeights, mask); err != nil {
		return out, err
	}
	return out, nil
}

// householdIncomeChange returns Σ household_weight·(s.net − baseline.net).
func (yc *YearContext) householdIncomeChange(s *Snapshot) (float64, error) {
	change, weights, err := yc.HouseholdChange(s)
	if err != nil {
		return 0, err
	}
	return aggregation.WeightedSum(change, weights)
}

// HouseholdChange returns the per-household net income change of s
// against the baseline together with the baseline household weights.
func (yc *YearContext) HouseholdChange(s *Snapshot) (change, weights []float64, err error) {
	base, err := yc.Baseline.Household.MustColumns(domain.VarHouseholdNetIncome, domain.VarHouseholdWeight)
	if err != nil {
		return nil, nil, err
	}
	reform, ok := s.Household.Column(domain.VarHouseholdNetIncome)
	if !ok {
		return nil, nil, domain.NewColumnError(domain.VarHouseholdNetIncome, "HouseholdChange", domain.ErrColumnNotFound)
	}
	if len(reform) != len(base[0]) {
		return nil, nil, fmt.Errorf("%w: household rows %d != %d", domain.ErrLengthMismatch, len(reform), len(base[0]))
	}
	change = make([]float64, len(reform))
	for i := range reform {
		change[i] = reform[i] - base[0][i]
	}
	return change, base[1], nil
}

// FamilyWeight sums household weight over the given benefit units.
func (yc *YearContext) FamilyWeight(benunits map[int64]struct{}) (float64, error) {
	if len(benunits) == 0 {
		return 0, nil
	}
	return aggregation.WeightedGroupSum(yc.benunitUnit, yc.benunitWeight, benunits)
}

// FamiliesBySize returns the unweighted number of affected benefit units
// with exactly limit children and with more than limit children.
func (yc *YearContext) FamiliesBySize(limit int) (at, above int) {
	for k := range yc.AffectedBenunits {
		switch n := yc.ChildrenPerBenunit[k]; {
		case n == limit:
			at++
		case n > limit:
			above++
		}
	}
	return at, above
}

// ChildrenUnderAge returns the weighted number of children younger than
// age and how many of them are affected by the limit.
func (yc *YearContext) ChildrenUnderAge(age int) (total, affected float64, err error) {
	under := domain.AllOf("children under age", childCohort,
		domain.BelowCohort("under age", domain.VarAge, float64(age)))
	mask, err := under.Mask(yc.Baseline.Person)
	if err != nil {
		return 0, 0, err
	}
	if total, err = aggregation.TotalWeight(yc.personWeights, mask); err != nil {
		return 0, 0, err
	}
	both, err := aggregation.And(mask, yc.affectedMask)
	if err != nil {
		return 0, 0, err
	}
	if affected, err = aggregation.TotalWeight(yc.personWeights, both); err != nil {
		return 0, 0, err
	}
	return total, affected, nil
}

// workingFamilies counts the affected benefit units with at least one
// adult in paid work.
func (yc *YearContext) workingFamilies() (int, error) {
	mask, err := earnerCohort.Mask(yc.Baseline.Person)
	if err != nil {
		return 0, err
	}
	working, err := aggregation.KeySet(yc.benunitIDs, mask)
	if err != nil {
		return 0, err
	}
	var n int
	for k := range yc.AffectedBenunits {
		if _, ok := working[k]; ok {
			n++
		}
	}
	return n, nil
}

// benefitUnitAggregates fills the benefit receipt and Child Tax Credit
// limit aggregates. Benefit unit variables are taken from the first
// member row of each unit, so they are grouped without a constancy check.
func (yc *YearContext) benefitUnitAggregates(fb *fallbackLog) error {
	cols, err := yc.Baseline.Person.MustColumns(
		domain.VarUniversalCredit, domain.VarChildTaxCredit, domain.VarCTCLimitAffected)
	if err != nil {
		return err
	}
	firsts := make([]aggregation.Groups, len(cols))
	for i, values := range cols {
		if firsts[i], err = aggregation.GroupFirst(yc.benunitIDs, values, aggregation.PickFirst); err != nil {
			return fmt.Errorf("benefit unit values: %w", err)
		}
	}
	uc, ctc, ctcAffected := firsts[0], firsts[1], firsts[2]

	if yc.UCFamilies, err = yc.FamilyWeight(positiveKeys(uc)); err != nil {
		return err
	}
	if yc.CTCFamilies, err = yc.FamilyWeight(positiveKeys(ctc)); err != nil {
		return err
	}
	if yc.CTCAffectedFamilies, err = yc.FamilyWeight(positiveKeys(ctcAffected)); err != nil {
		return err
	}

	// Children inherit the flag of their benefit unit.
	join, err := aggregation.JoinGroups(yc.benunitIDs, ctcAffected.Values, 0)
	if err != nil {
		return err
	}
	if join.Missing > 0 {
		fb.note(MetricCTCAffectedChildren)
	}
	mask := make([]bool, len(join.Values))
	for i, v := range join.Values {
		mask[i] = yc.childMask[i] && v > 0
	}
	yc.CTCAffectedChildren, err = aggregation.TotalWeight(yc.personWeights, mask)
	return err
}

// positiveKeys returns the groups whose value is strictly positive.
func positiveKeys(g aggregation.Groups) map[int64]struct{} {
	keys := make(map[int64]struct{})
	for k, v := range g.Values {
		if v > 0 {
			keys[k] = struct{}{}
		}
	}
	return keys
}

// ParseConstancy maps a configured group constancy name to its policy.
// An empty name selects the default.
func ParseConstancy(name string) (aggregation.ConstancyPolicy, error) {
	switch name {
	case "", "warn":
		return aggregation.WarnOnDisagreement, nil
	case "pick_first":
		return aggregation.PickFirst, nil
	case "strict":
		return aggregation.Strict, nil
	default:
		return 0, fmt.Errorf("%w: group constancy %q", domain.ErrInvalidConfiguration, name)
	}
}
