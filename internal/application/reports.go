package application

import (
	"fmt"
	"math"

	"github.com/ahrav/go-childlimit/internal/aggregation"
	"github.com/ahrav/go-childlimit/internal/domain"
)

// Metric names written to every report.
const (
	MetricCost                    = "cost"
	MetricFullReformCost          = "fullReformCost"
	MetricFamiliesAffected        = "familiesAffected"
	MetricTotalAffectedFamilies   = "totalAffectedFamilies"
	MetricChildrenNoLongerLimited = "childrenNoLongerLimited"
	MetricTotalLimitedChildren    = "totalLimitedChildren"
	MetricChildrenOutOfPoverty    = "childrenOutOfPoverty"
	MetricBaselinePovertyRate     = "baselinePovertyRate"
	MetricReformedPovertyRate     = "reformedPovertyRate"
	MetricPovertyRateReduction    = "povertyRateReduction"
	MetricCostPerChild            = "costPerChild"
	MetricTotalChildren           = "totalChildren"
)

// Metric names of the benefit receipt breakdown in the full-abolition
// report.
const (
	MetricCTCAffectedChildren        = "ctcAffectedChildren"
	MetricCTCAffectedFamilies        = "ctcAffectedFamilies"
	MetricUCFamilies                 = "ucFamilies"
	MetricCTCFamilies                = "ctcFamilies"
	MetricChildrenBornBeforeLimit    = "childrenBornBeforeLimit"
	MetricBaselineOverallPovertyRate = "baselineOverallPovertyRate"
	MetricReformedOverallPovertyRate = "reformedOverallPovertyRate"
)

// CellInput is everything a report builder reads. Year is shared across
// cells and must be treated as read-only.
type CellInput struct {
	Cell        domain.CellKey
	Year        *YearContext
	Reform      *Snapshot
	Assumptions AssumptionConfig

	fallbacks fallbackLog
}

// Fallbacks lists ratio metrics of the cell that fell back to a default.
func (in *CellInput) Fallbacks() []string { return in.fallbacks.Names() }

func (in *CellInput) param() (int, error) {
	if in.Cell.Parameter == nil {
		return 0, fmt.Errorf("%w: policy %s needs a parameter", domain.ErrInvalidConfiguration, in.Cell.Policy)
	}
	return *in.Cell.Parameter, nil
}

// ratio divides with the shared zero guard, recording fallbacks.
func (in *CellInput) ratio(metric string, num, den float64) float64 {
	v, err := aggregation.Ratio(metric, num, den)
	if err != nil {
		in.fallbacks.note(metric)
	}
	return v
}

// perChild divides cost by a child count, falling back to 0.
func (in *CellInput) perChild(cost, children float64) float64 {
	v, ok := aggregation.CostPerUnit(cost, children)
	if !ok {
		in.fallbacks.note(MetricCostPerChild)
	}
	return v
}

// scaler returns a function that scales simulated full-abolition values
// by num/den, tagging them Estimated with basis.
func (in *CellInput) scaler(num, den float64, basis string) func(metric string, base float64) domain.Value {
	return func(metric string, base float64) domain.Value {
		v, err := aggregation.ProportionalScale(base, num, den, basis)
		if err != nil {
			in.fallbacks.note(metric)
		}
		return v
	}
}

// commonMetrics is the metric set shared by every policy.
type commonMetrics struct {
	cost                    domain.Value
	familiesAffected        domain.Value
	childrenNoLongerLimited domain.Value
	childrenOutOfPoverty    domain.Value
	reformedPovertyRate     domain.Value
	povertyRateReduction    domain.Value
	costPerChild            domain.Value
}

func (in *CellInput) newReport(c commonMetrics) *domain.Report {
	yc := in.Year
	return domain.NewReport(in.Cell).
		Add(MetricCost, c.cost).
		Add(MetricFullReformCost, domain.Simulated(yc.AbolitionOutcome.Cost)).
		Add(MetricFamiliesAffected, c.familiesAffected).
		Add(MetricTotalAffectedFamilies, domain.Simulated(yc.AffectedFamilies)).
		Add(MetricChildrenNoLongerLimited, c.childrenNoLongerLimited).
		Add(MetricTotalLimitedChildren, domain.Simulated(yc.AffectedChildren)).
		Add(MetricChildrenOutOfPoverty, c.childrenOutOfPoverty).
		Add(MetricBaselinePovertyRate, domain.Simulated(yc.BaselineOutcome.PovertyRate)).
		Add(MetricReformedPovertyRate, c.reformedPovertyRate).
		Add(MetricPovertyRateReduction, c.povertyRateReduction).
		Add(MetricCostPerChild, c.costPerChild)
}

// estimatedReport fills in the poverty and cost-effectiveness metrics of
// a policy estimated from full-abolition results. The reformed rate is
// the baseline rate less the estimated children lifted out of poverty
// over all children.
func (in *CellInput) estimatedReport(cost, families, noLongerLimited, childrenOut domain.Value, basis string) *domain.Report {
	yc := in.Year
	reduction := in.ratio(MetricPovertyRateReduction, childrenOut.Amount, yc.TotalChildren)
	return in.newReport(commonMetrics{
		cost:                    cost,
		familiesAffected:        families,
		childrenNoLongerLimited: noLongerLimited,
		childrenOutOfPoverty:    childrenOut,
		reformedPovertyRate:     domain.Estimated(yc.BaselineOutcome.PovertyRate-reduction, basis),
		povertyRateReduction:    domain.Estimated(reduction, basis),
		costPerChild:            domain.Estimated(in.perChild(cost.Amount, noLongerLimited.Amount), basis),
	})
}

func buildFullAbolition(in *CellInput) (*domain.Report, error) {
	yc := in.Year
	full := yc.AbolitionOutcome
	report := in.newReport(commonMetrics{
		cost:                    domain.Simulated(full.Cost),
		familiesAffected:        domain.Simulated(yc.AffectedFamilies),
		childrenNoLongerLimited: domain.Simulated(yc.AffectedChildren),
		childrenOutOfPoverty:    domain.Simulated(yc.FullChildrenOut),
		reformedPovertyRate:     domain.Simulated(full.PovertyRate),
		povertyRateReduction:    domain.Simulated(yc.BaselineOutcome.PovertyRate - full.PovertyRate),
		costPerChild:            domain.Simulated(in.perChild(full.Cost, yc.AffectedChildren)),
	})
	return report.
		Add(MetricTotalChildren, domain.Simulated(yc.TotalChildren)).
		Add(MetricCTCAffectedChildren, domain.Simulated(yc.CTCAffectedChildren)).
		Add(MetricCTCAffectedFamilies, domain.Simulated(yc.CTCAffectedFamilies)).
		Add(MetricUCFamilies, domain.Simulated(yc.UCFamilies)).
		Add(MetricCTCFamilies, domain.Simulated(yc.CTCFamilies)).
		Add(MetricChildrenBornBeforeLimit, domain.Simulated(yc.ChildrenBornBeforeLimit)).
		Add(MetricBaselineOverallPovertyRate, domain.Simulated(yc.BaselineOutcome.OverallPovertyRate)).
		Add(MetricReformedOverallPovertyRate, domain.Simulated(full.OverallPovertyRate)), nil
}

// buildChildLimit reports a raised child limit from its own simulation.
// Children no longer limited is the fall in affected persons against
// the baseline.
func buildChildLimit(in *CellInput) (*domain.Report, error) {
	limit, err := in.param()
	if err != nil {
		return nil, err
	}
	if in.Reform == nil {
		return nil, fmt.Errorf("%w: %s needs a reform snapshot", domain.ErrInvalidConfiguration, in.Cell)
	}
	yc := in.Year
	out, err := yc.Outcome(in.Reform, &in.fallbacks)
	if err != nil {
		return nil, err
	}
	at, above := yc.FamiliesBySize(limit)

	childrenOut := yc.BaselineOutcome.ChildrenInPoverty - out.ChildrenInPoverty
	report := in.newReport(commonMetrics{
		cost:                    domain.Simulated(out.Cost),
		familiesAffected:        domain.Simulated(yc.AffectedFamilies),
		childrenNoLongerLimited: domain.Simulated(yc.BaselineOutcome.AffectedPersons - out.AffectedPersons),
		childrenOutOfPoverty:    domain.Simulated(childrenOut),
		reformedPovertyRate:     domain.Simulated(out.PovertyRate),
		povertyRateReduction:    domain.Simulated(yc.BaselineOutcome.PovertyRate - out.PovertyRate),
		costPerChild:            domain.Simulated(in.perChild(out.Cost, childrenOut)),
	})
	return report.
		Add("childLimit", domain.Input(float64(limit))).
		Add("familiesAtLimit", domain.Simulated(float64(at))).
		Add("familiesAboveLimit", domain.Simulated(float64(above))), nil
}

// buildUnderAgeExemption estimates exempting children below an age from
// the limit by the share of affected children who are under that age.
func buildUnderAgeExemption(in *CellInput) (*domain.Report, error) {
	age, err := in.param()
	if err != nil {
		return nil, err
	}
	yc := in.Year
	underAge, affectedUnderAge, err := yc.ChildrenUnderAge(age)
	if err != nil {
		return nil, err
	}

	basis := fmt.Sprintf("share of affected children under %d", age)
	scale := in.scaler(affectedUnderAge, yc.AffectedChildren, basis)
	report := in.estimatedReport(
		scale(MetricCost, yc.AbolitionOutcome.Cost),
		scale(MetricFamiliesAffected, yc.AffectedFamilies),
		domain.Simulated(affectedUnderAge),
		scale(MetricChildrenOutOfPoverty, yc.FullChildrenOut),
		basis,
	)
	return report.
		Add("ageLimit", domain.Input(float64(age))).
		Add("totalChildrenUnderAge", domain.Simulated(underAge)).
		Add("affectedChildrenUnderAge", domain.Simulated(affectedUnderAge)), nil
}

// buildDisabledChildExemption applies a fixed assumed share of the full
// abolition effect.
func buildDisabledChildExemption(in *CellInput) (*domain.Report, error) {
	yc := in.Year
	a := in.Assumptions
	basis := fmt.Sprintf("assumed disabled share %s", domain.FormatAmount(a.DisabledChildShare))
	scale := in.scaler(a.DisabledChildShare, 1, basis)

	families := scale(MetricFamiliesAffected, yc.AffectedFamilies)
	report := in.estimatedReport(
		scale(MetricCost, yc.AbolitionOutcome.Cost),
		families,
		scale(MetricChildrenNoLongerLimited, yc.AffectedChildren),
		scale(MetricChildrenOutOfPoverty, yc.FullChildrenOut),
		basis,
	)
	prevalence := fmt.Sprintf("assumed prevalence %s", domain.FormatAmount(a.DisabledChildPrevalence))
	return report.
		Add("disabledChildren", domain.Estimated(yc.TotalChildren*a.DisabledChildPrevalence, prevalence)).
		Add("familiesWithDisabledChild", families).
		Add("publishedCost", domain.Input(a.PublishedDisabledCost)).
		Add("publishedChildrenOutOfPoverty", domain.Input(a.PublishedDisabledChildrenOutOfPoverty)), nil
}

// buildWorkingFamiliesExemption scales by the share of affected benefit
// units with a member in paid work. The share and the family counts are
// unweighted benefit unit counts.
func buildWorkingFamiliesExemption(in *CellInput) (*domain.Report, error) {
	yc := in.Year
	working := float64(yc.WorkingFamilyCount)
	affected := float64(yc.AffectedFamilyCount)

	basis := "unweighted share of affected benefit units in work"
	scale := in.scaler(working, affected, basis)
	report := in.estimatedReport(
		scale(MetricCost, yc.AbolitionOutcome.Cost),
		domain.Simulated(working),
		scale(MetricChildrenNoLongerLimited, yc.AffectedChildren),
		scale(MetricChildrenOutOfPoverty, yc.FullChildrenOut),
		basis,
	)
	return report.
		Add("workingFamilies", domain.Simulated(working)).
		Add("nonWorkingFamilies", domain.Simulated(affected-working)), nil
}

// buildLowerThirdChildElement pays third and later children a percentage
// of the standard element, scaling full-abolition effects by that rate.
func buildLowerThirdChildElement(in *CellInput) (*domain.Report, error) {
	pct, err := in.param()
	if err != nil {
		return nil, err
	}
	yc := in.Year
	rate := float64(pct) / 100
	standard := in.Assumptions.StandardChildElement

	basis := fmt.Sprintf("element paid at %d%%", pct)
	scale := in.scaler(float64(pct), 100, basis)
	report := in.estimatedReport(
		scale(MetricCost, yc.AbolitionOutcome.Cost),
		domain.Simulated(yc.AffectedFamilies),
		domain.Simulated(yc.AffectedChildren),
		scale(MetricChildrenOutOfPoverty, yc.FullChildrenOut),
		basis,
	)
	return report.
		Add("reductionRate", domain.Input(rate)).
		Add("standardElement", domain.Input(standard)).
		Add("reducedElement", domain.Input(math.Trunc(standard*rate))).
		Add("thirdPlusChildren", domain.Simulated(yc.AffectedChildren)), nil
}

// BuildDistribution summarises the household income change of reform by
// baseline income decile.
func BuildDistribution(cell domain.CellKey, yc *YearContext, reform *Snapshot) (*domain.Distribution, error) {
	change, weights, err := yc.HouseholdChange(reform)
	if err != nil {
		return nil, err
	}
	cols, err := yc.Baseline.Household.MustColumns(domain.VarHouseholdNetIncome, domain.VarIncomeDecile)
	if err != nil {
		return nil, err
	}
	rows, err := aggregation.DecileSummary(change, cols[0], weights, aggregation.DecileBuckets(cols[1]))
	if err != nil {
		return nil, err
	}
	return &domain.Distribution{Cell: cell, Rows: rows}, nil
}
