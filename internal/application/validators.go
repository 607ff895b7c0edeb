package application

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
)

var (
	dottedPathPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z0-9_]+)+$`)
	policyNamePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// maxSuggestionDistance bounds how different a suggested name may be.
const maxSuggestionDistance = 4

// ValidatePolicyParameters checks a configured sweep against the policy
// it targets. Parameterless policies must not carry a range and every
// value of a range must fall inside the policy's bounds.
func ValidatePolicyParameters(policy Policy, rng *RangeConfig) error {
	if rng == nil {
		return nil
	}
	if !policy.Parameterised() {
		return fmt.Errorf("policy %s takes no parameter but a range was given", policy.Name)
	}
	if rng.Step <= 0 {
		return fmt.Errorf("policy %s: range step must be positive", policy.Name)
	}
	if rng.To < rng.From {
		return fmt.Errorf("policy %s: range from %d is after to %d", policy.Name, rng.From, rng.To)
	}
	if b := policy.Bounds; b != nil && (rng.From < b.From || rng.To > b.To) {
		return fmt.Errorf("policy %s: range %d..%d outside allowed %d..%d",
			policy.Name, rng.From, rng.To, b.From, b.To)
	}
	return nil
}

// SuggestName returns the candidate closest to name by edit distance, or
// "" when nothing is close enough to be a plausible typo.
func SuggestName(name string, candidates []string) string {
	folded := cases.Fold().String(name)
	best, bestDist := "", maxSuggestionDistance+1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(folded, c)
		if d < bestDist || (d == bestDist && c < best) {
			best, bestDist = c, d
		}
	}
	if bestDist > maxSuggestionDistance {
		return ""
	}
	return best
}

// unknownNameError formats an unknown-name error with an optional
// suggestion.
func unknownNameError(kind, name string, candidates []string) error {
	if s := SuggestName(name, candidates); s != "" {
		return fmt.Errorf("unknown %s %q (did you mean %q?)", kind, name, s)
	}
	sorted := slices.Clone(candidates)
	slices.Sort(sorted)
	return fmt.Errorf("unknown %s %q (known: %s)", kind, name, strings.Join(sorted, ", "))
}

// registerCustomValidators registers the semver, dottedpath and
// policyname struct tags with v.
func registerCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}
	if err := v.RegisterValidation("dottedpath", validateDottedPath); err != nil {
		return fmt.Errorf("failed to register dottedpath validator: %w", err)
	}
	if err := v.RegisterValidation("policyname", validatePolicyName); err != nil {
		return fmt.Errorf("failed to register policyname validator: %w", err)
	}
	return nil
}

// validateSemver validates that a string follows semantic versioning
// format (X.Y.Z where X, Y, Z are non-negative integers).
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3 && major >= 0 && minor >= 0 && patch >= 0
}

// validateDottedPath accepts engine parameter paths such as
// gov.dwp.universal_credit.elements.child.limit.child_count.
func validateDottedPath(fl validator.FieldLevel) bool {
	return dottedPathPattern.MatchString(fl.Field().String())
}

// validatePolicyName accepts lowercase kebab-case names. Whether the name
// is registered is checked later so the error can carry a suggestion.
func validatePolicyName(fl validator.FieldLevel) bool {
	return policyNamePattern.MatchString(fl.Field().String())
}
