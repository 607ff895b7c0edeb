package aggregation

import "github.com/ahrav/go-childlimit/internal/domain"

// ProportionalScale estimates a metric for a variant that was not
// simulated by scaling a simulated base value by num/den. The result is
// tagged Estimated with the given basis. When den is zero the estimate is
// Estimated(0) and the returned error wraps domain.ErrDivisionUndefined.
func ProportionalScale(base, num, den float64, basis string) (domain.Value, error) {
	share, err := Ratio(basis, num, den)
	if err != nil {
		return domain.Estimated(0, basis), err
	}
	return domain.Estimated(base*share, basis), nil
}

// CostPerUnit divides a total cost by a unit count. It reports false when
// count is not positive, in which case the cost is 0.
func CostPerUnit(total, count float64) (float64, bool) {
	if count <= 0 {
		return 0, false
	}
	return total / count, true
}
