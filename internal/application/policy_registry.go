package application

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ahrav/go-childlimit/internal/domain"
)

// Built-in policy names.
const (
	PolicyFullAbolition            = "full-abolition"
	PolicyThreeChildLimit          = "three-child-limit"
	PolicyUnderFiveExemption       = "under-five-exemption"
	PolicyDisabledChildExemption   = "disabled-child-exemption"
	PolicyWorkingFamiliesExemption = "working-families-exemption"
	PolicyLowerThirdChildElement   = "lower-third-child-element"
)

// ReformFunc builds the reform scenario a policy variant simulates. paths
// are the configured child limit parameters.
type ReformFunc func(year int, param *int, paths []string) domain.Scenario

// ReportBuilder computes the metrics of one cell.
type ReportBuilder func(in *CellInput) (*domain.Report, error)

// Policy describes one reform family: how to simulate it, if at all, and
// how to report it.
type Policy struct {
	// Name is the policy identifier used in configs and file names.
	Name string
	// ParamLabel prefixes the parameter in per-scenario file names, e.g.
	// "limit" in three-child-limit-2026-limit3.csv. Empty for
	// parameterless policies.
	ParamLabel string
	// DefaultRange is the parameter sweep used when the config gives
	// none. Nil marks a parameterless policy.
	DefaultRange *RangeConfig
	// Bounds limits configured sweeps.
	Bounds *RangeConfig
	// Reform builds the simulated scenario. Nil for policies estimated
	// from full-abolition results.
	Reform ReformFunc
	// Build computes the cell's report.
	Build ReportBuilder
}

// Parameterised reports whether the policy is swept over a parameter.
func (p Policy) Parameterised() bool { return p.DefaultRange != nil }

// Simulated reports whether the policy runs its own simulation.
func (p Policy) Simulated() bool { return p.Reform != nil }

// Values returns the parameter values to evaluate for cfg, or a single
// nil entry for parameterless policies.
func (p Policy) Values(cfg PolicyConfig) []*int {
	if !p.Parameterised() {
		return []*int{nil}
	}
	rng := *p.DefaultRange
	if cfg.Range != nil {
		rng = *cfg.Range
	}
	values := rng.Values()
	out := make([]*int, len(values))
	for i := range values {
		out[i] = &values[i]
	}
	return out
}

// PolicyRegistry maps policy names to their definitions. It comes with
// the built-in policies registered and is safe for concurrent use.
type PolicyRegistry struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewPolicyRegistry creates a registry holding the built-in policies.
func NewPolicyRegistry() *PolicyRegistry {
	r := &PolicyRegistry{policies: make(map[string]Policy)}
	r.registerBuiltinPolicies()
	return r
}

func (r *PolicyRegistry) registerBuiltinPolicies() {
	r.policies[PolicyFullAbolition] = Policy{
		Name: PolicyFullAbolition,
		Reform: func(year int, _ *int, paths []string) domain.Scenario {
			return AbolitionScenario(year, paths)
		},
		Build: buildFullAbolition,
	}

	r.policies[PolicyThreeChildLimit] = Policy{
		Name:         PolicyThreeChildLimit,
		ParamLabel:   "limit",
		DefaultRange: &RangeConfig{From: 3, To: 9, Step: 1},
		Bounds:       &RangeConfig{From: 1, To: 20, Step: 1},
		Reform: func(year int, param *int, paths []string) domain.Scenario {
			name := fmt.Sprintf("%s-%d", PolicyThreeChildLimit, *param)
			return domain.ChildLimitScenario(name, year, float64(*param), paths...)
		},
		Build: buildChildLimit,
	}

	r.policies[PolicyUnderFiveExemption] = Policy{
		Name:         PolicyUnderFiveExemption,
		ParamLabel:   "age",
		DefaultRange: &RangeConfig{From: 3, To: 9, Step: 1},
		Bounds:       &RangeConfig{From: 1, To: 18, Step: 1},
		Build:        buildUnderAgeExemption,
	}

	r.policies[PolicyDisabledChildExemption] = Policy{
		Name:  PolicyDisabledChildExemption,
		Build: buildDisabledChildExemption,
	}

	r.policies[PolicyWorkingFamiliesExemption] = Policy{
		Name:  PolicyWorkingFamiliesExemption,
		Build: buildWorkingFamiliesExemption,
	}

	r.policies[PolicyLowerThirdChildElement] = Policy{
		Name:         PolicyLowerThirdChildElement,
		ParamLabel:   "rate",
		DefaultRange: &RangeConfig{From: 50, To: 100, Step: 10},
		Bounds:       &RangeConfig{From: 0, To: 100, Step: 1},
		Build:        buildLowerThirdChildElement,
	}
}

// AbolitionScenario removes the child limit on every given path.
func AbolitionScenario(year int, paths []string) domain.Scenario {
	return domain.ChildLimitScenario(PolicyFullAbolition, year, domain.Unlimited, paths...)
}

// Lookup returns the policy registered under name.
func (r *PolicyRegistry) Lookup(name string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[name]
	return p, ok
}

// Register adds or replaces a policy.
func (r *PolicyRegistry) Register(p Policy) error {
	if p.Name == "" {
		return fmt.Errorf("policy name cannot be empty")
	}
	if p.Build == nil {
		return fmt.Errorf("policy %s: report builder cannot be nil", p.Name)
	}
	if p.Parameterised() && p.ParamLabel == "" {
		return fmt.Errorf("policy %s: parameterised policy needs a parameter label", p.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[p.Name] = p
	return nil
}

// Names returns the registered policy names in sorted order.
func (r *PolicyRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParamLabels maps each parameterised policy to its file name label.
func (r *PolicyRegistry) ParamLabels() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	labels := make(map[string]string)
	for name, p := range r.policies {
		if p.ParamLabel != "" {
			labels[name] = p.ParamLabel
		}
	}
	return labels
}
