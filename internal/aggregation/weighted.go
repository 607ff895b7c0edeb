// Package aggregation implements the weighted aggregation engine that turns
// flat per-unit arrays from the microsimulation engine into population
// estimates: weighted sums, rates and means, first-per-group reduction,
// many-to-one group joins, decile summaries and proportional scaling.
//
// Every function is pure and safe for concurrent use. Inputs are validated
// for equal length and for finite, non-negative weights. Ratio operations
// never fail a batch: on a zero denominator they return a defined fallback
// together with an error wrapping domain.ErrDivisionUndefined so that the
// caller can log the condition and carry on.
package aggregation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ahrav/go-childlimit/internal/domain"
)

// validateWeights checks that values and weights are parallel and that
// every weight is finite and non-negative.
func validateWeights(values, weights []float64) error {
	if len(values) != len(weights) {
		return fmt.Errorf("%w: values=%d, weights=%d", domain.ErrLengthMismatch, len(values), len(weights))
	}
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight %v at index %d", domain.ErrNegativeWeight, w, i)
		}
	}
	return nil
}

// validateMask checks that a non-nil mask covers every row.
func validateMask(n int, mask []bool) error {
	if mask != nil && len(mask) != n {
		return fmt.Errorf("%w: rows=%d, mask=%d", domain.ErrLengthMismatch, n, len(mask))
	}
	return nil
}

// WeightedSum returns Σ valuesᵢ·weightsᵢ. An empty input sums to 0.
func WeightedSum(values, weights []float64) (float64, error) {
	if err := validateWeights(values, weights); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	return floats.Dot(values, weights), nil
}

// MaskedSum returns Σ valuesᵢ·weightsᵢ over the rows where mask is true.
// A nil mask selects every row.
func MaskedSum(values, weights []float64, mask []bool) (float64, error) {
	if err := validateWeights(values, weights); err != nil {
		return 0, err
	}
	if err := validateMask(len(values), mask); err != nil {
		return 0, err
	}
	if mask == nil {
		return WeightedSum(values, weights)
	}
	var sum float64
	for i, v := range values {
		if mask[i] {
			sum += v * weights[i]
		}
	}
	return sum, nil
}

// TotalWeight returns Σ weightsᵢ over the rows where mask is true.
// A nil mask selects every row.
func TotalWeight(weights []float64, mask []bool) (float64, error) {
	if err := validateWeights(weights, weights); err != nil {
		return 0, err
	}
	if err := validateMask(len(weights), mask); err != nil {
		return 0, err
	}
	if mask == nil {
		return floats.Sum(weights), nil
	}
	var sum float64
	for i, w := range weights {
		if mask[i] {
			sum += w
		}
	}
	return sum, nil
}

// Ratio divides num by den. When den is zero it returns 0 and a
// *domain.DivisionError naming metric.
func Ratio(metric string, num, den float64) (float64, error) {
	if den == 0 {
		return 0, domain.NewDivisionError(metric, 0)
	}
	return num / den, nil
}

// WeightedRate returns the weighted share of rows whose flag is true:
// Σ flagᵢ·wᵢ / Σ wᵢ. Flags are 0/1 values; any positive flag counts as
// true so that engine count variables can be used directly. When the
// total weight is zero the fallback 0 is returned with an error wrapping
// domain.ErrDivisionUndefined.
func WeightedRate(flags, weights []float64) (float64, error) {
	return MaskedRate(flags, weights, nil)
}

// MaskedRate is WeightedRate restricted to the rows selected by mask.
// Typical use is a cohort rate such as the child poverty rate.
func MaskedRate(flags, weights []float64, mask []bool) (float64, error) {
	if err := validateWeights(flags, weights); err != nil {
		return 0, err
	}
	if err := validateMask(len(flags), mask); err != nil {
		return 0, err
	}
	var hit, total float64
	for i, f := range flags {
		if mask != nil && !mask[i] {
			continue
		}
		total += weights[i]
		if f > 0 {
			hit += weights[i]
		}
	}
	return Ratio("weighted_rate", hit, total)
}

// WeightedMean returns Σ valuesᵢ·wᵢ / Σ wᵢ. A zero total weight yields the
// fallback 0 and an error wrapping domain.ErrDivisionUndefined.
func WeightedMean(values, weights []float64) (float64, error) {
	if err := validateWeights(values, weights); err != nil {
		return 0, err
	}
	if len(values) == 0 || floats.Sum(weights) == 0 {
		return 0, domain.NewDivisionError("weighted_mean", 0)
	}
	return stat.Mean(values, weights), nil
}

// Select returns the indices of the rows where mask is true, in order.
// It is the affected-cohort operation: combined with a cohort mask it
// yields the subset of units that satisfy the predicate.
func Select(mask []bool) []int {
	out := make([]int, 0, len(mask))
	for i, m := range mask {
		if m {
			out = append(out, i)
		}
	}
	return out
}

// And combines masks row by row. All masks must have the same length.
func And(masks ...[]bool) ([]bool, error) {
	if len(masks) == 0 {
		return nil, nil
	}
	n := len(masks[0])
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	for _, m := range masks {
		if len(m) != n {
			return nil, fmt.Errorf("%w: masks of length %d and %d", domain.ErrLengthMismatch, n, len(m))
		}
		for i := range out {
			out[i] = out[i] && m[i]
		}
	}
	return out, nil
}

// MaskWeights returns a copy of weights with unselected rows set to 0.
// This is the "child weights" idiom: person_weight × is_child.
func MaskWeights(weights []float64, mask []bool) ([]float64, error) {
	if err := validateMask(len(weights), mask); err != nil {
		return nil, err
	}
	out := make([]float64, len(weights))
	for i, w := range weights {
		if mask == nil || mask[i] {
			out[i] = w
		}
	}
	return out, nil
}
