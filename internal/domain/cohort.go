package domain

import "fmt"

// Cohort is a named predicate over the rows of a Frame. Cohorts are not
// stored; they are evaluated into a boolean mask at aggregation time.
// Membership must always be evaluated against the baseline frame so that
// baseline and reform aggregates cover the same units.
type Cohort struct {
	// Name identifies the cohort in logs and errors.
	Name string

	eval func(f Frame) ([]bool, error)
}

// Mask evaluates the cohort against every row of f.
func (c Cohort) Mask(f Frame) ([]bool, error) {
	if c.eval == nil {
		return nil, fmt.Errorf("cohort %q: %w: no predicate", c.Name, ErrInvalidConfiguration)
	}
	mask, err := c.eval(f)
	if err != nil {
		return nil, fmt.Errorf("cohort %q: %w", c.Name, err)
	}
	return mask, nil
}

// Everyone matches every row.
func Everyone() Cohort {
	return Cohort{Name: "everyone", eval: func(f Frame) ([]bool, error) {
		mask := make([]bool, f.Len())
		for i := range mask {
			mask[i] = true
		}
		return mask, nil
	}}
}

// FlagCohort matches rows where column is strictly positive. Engine
// booleans arrive as 0/1 and counts such as "affected children" as
// non-negative integers, so > 0 covers both.
func FlagCohort(name, column string) Cohort {
	return Cohort{Name: name, eval: func(f Frame) ([]bool, error) {
		values, ok := f.Column(column)
		if !ok {
			return nil, NewColumnError(column, "FlagCohort", ErrColumnNotFound)
		}
		mask := make([]bool, len(values))
		for i, v := range values {
			mask[i] = v > 0
		}
		return mask, nil
	}}
}

// BelowCohort matches rows where column is strictly less than bound.
func BelowCohort(name, column string, bound float64) Cohort {
	return Cohort{Name: name, eval: func(f Frame) ([]bool, error) {
		values, ok := f.Column(column)
		if !ok {
			return nil, NewColumnError(column, "BelowCohort", ErrColumnNotFound)
		}
		mask := make([]bool, len(values))
		for i, v := range values {
			mask[i] = v < bound
		}
		return mask, nil
	}}
}

// InGroupsCohort matches rows whose key column names one of the groups.
func InGroupsCohort(name, keyColumn string, groups map[int64]struct{}) Cohort {
	return Cohort{Name: name, eval: func(f Frame) ([]bool, error) {
		keys, err := f.Keys(keyColumn)
		if err != nil {
			return nil, err
		}
		mask := make([]bool, len(keys))
		for i, k := range keys {
			_, mask[i] = groups[k]
		}
		return mask, nil
	}}
}

// AllOf matches rows that satisfy every given cohort.
func AllOf(name string, cohorts ...Cohort) Cohort {
	return Cohort{Name: name, eval: func(f Frame) ([]bool, error) {
		mask := make([]bool, f.Len())
		for i := range mask {
			mask[i] = true
		}
		for _, c := range cohorts {
			m, err := c.Mask(f)
			if err != nil {
				return nil, err
			}
			for i := range mask {
				mask[i] = mask[i] && m[i]
			}
		}
		return mask, nil
	}}
}

// Not matches rows that do not satisfy c.
func Not(name string, c Cohort) Cohort {
	return Cohort{Name: name, eval: func(f Frame) ([]bool, error) {
		m, err := c.Mask(f)
		if err != nil {
			return nil, err
		}
		for i := range m {
			m[i] = !m[i]
		}
		return m, nil
	}}
}
