package domain

import (
	"fmt"
	"math"
	"strconv"
)

// Provenance records how a metric value was obtained. Downstream
// consumers use it to tell exact simulation output apart from
// approximations and from configured inputs.
type Provenance int

const (
	// ProvenanceSimulated marks values computed directly from engine output.
	ProvenanceSimulated Provenance = iota

	// ProvenanceEstimated marks values derived by scaling simulated results
	// for a variant the engine did not run.
	ProvenanceEstimated

	// ProvenanceInput marks values echoed from configuration or parameters,
	// such as a child limit or a published costing.
	ProvenanceInput
)

// String returns the lowercase provenance name used in CSV output.
func (p Provenance) String() string {
	switch p {
	case ProvenanceSimulated:
		return "simulated"
	case ProvenanceEstimated:
		return "estimated"
	case ProvenanceInput:
		return "input"
	default:
		return fmt.Sprintf("provenance(%d)", int(p))
	}
}

// Value is a metric value tagged with its provenance. Estimated values
// also carry the basis of the estimate, e.g. "share=0.15 of full-abolition".
type Value struct {
	Amount     float64
	Provenance Provenance
	Basis      string
}

// Simulated wraps a directly simulated value.
func Simulated(v float64) Value { return Value{Amount: v, Provenance: ProvenanceSimulated} }

// Estimated wraps an approximated value together with its basis.
func Estimated(v float64, basis string) Value {
	return Value{Amount: v, Provenance: ProvenanceEstimated, Basis: basis}
}

// Input wraps a value taken from configuration rather than computed.
func Input(v float64) Value { return Value{Amount: v, Provenance: ProvenanceInput} }

// IsEstimate reports whether the value is an approximation.
func (v Value) IsEstimate() bool { return v.Provenance == ProvenanceEstimated }

// IsDefined reports whether the value is a real number. Undefined ratios
// are carried as NaN so that they are written out rather than dropped.
func (v Value) IsDefined() bool { return !math.IsNaN(v.Amount) }

// String formats the amount the way it is written to CSV.
func (v Value) String() string { return FormatAmount(v.Amount) }

// FormatAmount renders a float with the shortest exact representation,
// "NaN" for undefined values and "inf"/"-inf" for infinities.
func FormatAmount(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Metric is a named value produced by aggregation. Metrics are immutable
// once added to a Report.
type Metric struct {
	Name  string
	Value Value
}

// CellKey identifies one (year, policy, parameter) cell of a batch run.
// Parameter is nil for parameterless policies.
type CellKey struct {
	Year      int
	Policy    string
	Parameter *int
}

// NewCellKey builds a CellKey, copying the parameter.
func NewCellKey(year int, policy string, parameter *int) CellKey {
	k := CellKey{Year: year, Policy: policy}
	if parameter != nil {
		p := *parameter
		k.Parameter = &p
	}
	return k
}

// HasParameter reports whether the cell is parameterised.
func (k CellKey) HasParameter() bool { return k.Parameter != nil }

// Less orders cells by year, then policy, then parameter with the
// parameterless cell first. Batch output is sorted with it.
func (k CellKey) Less(o CellKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	if k.Policy != o.Policy {
		return k.Policy < o.Policy
	}
	switch {
	case k.Parameter == nil && o.Parameter == nil:
		return false
	case k.Parameter == nil:
		return true
	case o.Parameter == nil:
		return false
	}
	return *k.Parameter < *o.Parameter
}

// String returns "policy/year" or "policy/year/param".
func (k CellKey) String() string {
	if k.Parameter == nil {
		return fmt.Sprintf("%s/%d", k.Policy, k.Year)
	}
	return fmt.Sprintf("%s/%d/%d", k.Policy, k.Year, *k.Parameter)
}

// Report is the ordered set of metrics computed for one cell.
type Report struct {
	Cell    CellKey
	Metrics []Metric
}

// NewReport creates an empty report for a cell.
func NewReport(cell CellKey) *Report {
	return &Report{Cell: cell, Metrics: make([]Metric, 0, 16)}
}

// Add appends a metric. Names are not deduplicated; report builders add
// each metric once.
func (r *Report) Add(name string, v Value) *Report {
	r.Metrics = append(r.Metrics, Metric{Name: name, Value: v})
	return r
}

// Lookup returns the value of the named metric.
func (r *Report) Lookup(name string) (Value, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m.Value, true
		}
	}
	return Value{}, false
}

// DecileRow is one row of a distributional summary. RelativeChange is
// NaN when Defined is false. MeanChange is NaN only for a decile with no
// weight.
type DecileRow struct {
	Decile         int
	WeightTotal    float64
	MeanChange     float64
	RelativeChange float64
	Defined        bool
}

// RelativeChangePct returns the relative change as a percentage.
func (r DecileRow) RelativeChangePct() float64 { return r.RelativeChange * 100 }

// Distribution is the per-decile income change for one simulated cell.
type Distribution struct {
	Cell CellKey
	Rows []DecileRow
}

// ParseProvenance is the inverse of Provenance.String. An empty string
// is read as simulated.
func ParseProvenance(s string) (Provenance, error) {
	switch s {
	case "", "simulated":
		return ProvenanceSimulated, nil
	case "estimated":
		return ProvenanceEstimated, nil
	case "input":
		return ProvenanceInput, nil
	default:
		return 0, fmt.Errorf("%w: provenance %q", ErrInvalidValue, s)
	}
}
