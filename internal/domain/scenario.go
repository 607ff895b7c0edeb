package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ParameterOverride sets one dotted engine parameter for one year.
// A Value of +Inf removes a limit entirely.
type ParameterOverride struct {
	Path  string
	Year  int
	Value float64
}

// Scenario is a reform configuration passed to the simulation engine.
// The baseline is the scenario with no overrides.
type Scenario struct {
	Name      string
	Overrides []ParameterOverride
}

// Baseline returns the status-quo scenario.
func Baseline() Scenario { return Scenario{Name: "baseline"} }

// IsBaseline reports whether the scenario leaves every parameter unchanged.
func (s Scenario) IsBaseline() bool { return len(s.Overrides) == 0 }

// Key returns a canonical string identifying the scenario's overrides.
// Two scenarios with the same overrides in any order share a key, which
// makes the key safe to use for caching and for the dataset store.
func (s Scenario) Key() string {
	if s.IsBaseline() {
		return "baseline"
	}
	parts := make([]string, len(s.Overrides))
	for i, o := range s.Overrides {
		parts[i] = fmt.Sprintf("%s@%d=%s", o.Path, o.Year, FormatAmount(o.Value))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

// Override returns the value set for path in year, if any.
func (s Scenario) Override(path string, year int) (float64, bool) {
	for _, o := range s.Overrides {
		if o.Path == path && o.Year == year {
			return o.Value, true
		}
	}
	return 0, false
}

// ChildLimitScenario builds the reform that sets every given limit path to
// limit for year. Pass math.Inf(1) to abolish the limit.
func ChildLimitScenario(name string, year int, limit float64, paths ...string) Scenario {
	s := Scenario{Name: name, Overrides: make([]ParameterOverride, 0, len(paths))}
	for _, p := range paths {
		s.Overrides = append(s.Overrides, ParameterOverride{Path: p, Year: year, Value: limit})
	}
	return s
}

// Unlimited is the override value that abolishes a limit.
var Unlimited = math.Inf(1)

// Default engine parameter paths for the child limit.
const (
	ParamUCChildLimit  = "gov.dwp.universal_credit.elements.child.limit.child_count"
	ParamCTCChildLimit = "gov.dwp.tax_credits.child_tax_credit.limit.child_count"
)

// DefaultChildLimit is the number of children that attract support in the
// baseline.
const DefaultChildLimit = 2
