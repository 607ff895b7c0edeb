package aggregation

import (
	"fmt"
	"math"

	"github.com/ahrav/go-childlimit/internal/domain"
)

// NoDecile marks a unit whose decile could not be determined.
const NoDecile = 0

// Deciles is the number of income deciles.
const Deciles = 10

// DecileBucket converts a raw decile value from the engine into an
// integer decile in [1, 10]. NaN and infinite values yield NoDecile.
// Finite values are rounded to the nearest integer and then clipped.
func DecileBucket(raw float64) int {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return NoDecile
	}
	d := math.Round(raw)
	switch {
	case d < 1:
		return 1
	case d > Deciles:
		return Deciles
	}
	return int(d)
}

// DecileBuckets applies DecileBucket to every value.
func DecileBuckets(raw []float64) []int {
	out := make([]int, len(raw))
	for i, r := range raw {
		out[i] = DecileBucket(r)
	}
	return out
}

// DecileSummary aggregates per-unit income changes by decile. It always
// returns exactly ten rows for deciles 1..10 in order. For each decile it
// reports the weighted mean change and the relative change
// Σ(change·w) / Σ(baseline·w). A decile with zero total weight has both
// values NaN. A weighted decile with zero baseline income keeps its mean
// change and only the relative change is NaN. Defined reports whether
// the relative change is a real number.
// Units in NoDecile are excluded.
func DecileSummary(change, baselineIncome, weights []float64, deciles []int) ([]domain.DecileRow, error) {
	if err := validateWeights(change, weights); err != nil {
		return nil, err
	}
	if len(baselineIncome) != len(change) || len(deciles) != len(change) {
		return nil, fmt.Errorf("%w: change=%d, baseline=%d, deciles=%d",
			domain.ErrLengthMismatch, len(change), len(baselineIncome), len(deciles))
	}

	var weight, changeSum, baseSum [Deciles + 1]float64
	for i, d := range deciles {
		if d < 1 || d > Deciles {
			continue
		}
		w := weights[i]
		weight[d] += w
		changeSum[d] += change[i] * w
		baseSum[d] += baselineIncome[i] * w
	}

	rows := make([]domain.DecileRow, Deciles)
	for d := 1; d <= Deciles; d++ {
		row := domain.DecileRow{Decile: d, WeightTotal: weight[d], MeanChange: math.NaN(), RelativeChange: math.NaN()}
		if weight[d] != 0 {
			row.MeanChange = changeSum[d] / weight[d]
		}
		if weight[d] != 0 && baseSum[d] != 0 {
			row.RelativeChange = changeSum[d] / baseSum[d]
			row.Defined = true
		}
		rows[d-1] = row
	}
	return rows, nil
}
