package aggregation

import (
	"fmt"
	"math"

	"github.com/ahrav/go-childlimit/internal/domain"
)

// ConstancyPolicy controls how GroupFirst treats rows of the same group
// that disagree on a value assumed constant within the group.
type ConstancyPolicy int

const (
	// WarnOnDisagreement keeps the first value and records the disagreeing
	// groups in Groups.Disagreements. It is the default.
	WarnOnDisagreement ConstancyPolicy = iota

	// PickFirst keeps the first value and ignores disagreements.
	PickFirst

	// Strict fails with domain.ErrGroupNotConstant on any disagreement.
	Strict
)

// String returns the policy name.
func (p ConstancyPolicy) String() string {
	switch p {
	case WarnOnDisagreement:
		return "warn"
	case PickFirst:
		return "pick_first"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("constancy(%d)", int(p))
	}
}

// Groups is the result of reducing per-unit values to one value per group.
type Groups struct {
	// Keys lists group keys in order of first occurrence.
	Keys []int64

	// Values maps each group key to the value of its first row.
	Values map[int64]float64

	// Disagreements lists, in order of first occurrence, groups whose rows
	// did not all carry the same value. Only populated under
	// WarnOnDisagreement.
	Disagreements []int64
}

// Len returns the number of groups.
func (g Groups) Len() int { return len(g.Keys) }

// Ordered returns the group values in key order of first occurrence.
func (g Groups) Ordered() []float64 {
	out := make([]float64, len(g.Keys))
	for i, k := range g.Keys {
		out[i] = g.Values[k]
	}
	return out
}

// sameValue treats NaN as equal to NaN so a group of missing values is
// still considered constant.
func sameValue(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// GroupFirst reduces per-unit values to one value per group key, keeping
// the value of the first row seen for each key. It is used to extract
// group-constant properties such as a household's weight from a
// person-level array.
func GroupFirst(keys []int64, values []float64, policy ConstancyPolicy) (Groups, error) {
	if len(keys) != len(values) {
		return Groups{}, fmt.Errorf("%w: keys=%d, values=%d", domain.ErrLengthMismatch, len(keys), len(values))
	}

	g := Groups{
		Keys:   make([]int64, 0),
		Values: make(map[int64]float64),
	}
	flagged := make(map[int64]struct{})

	for i, k := range keys {
		first, seen := g.Values[k]
		if !seen {
			g.Keys = append(g.Keys, k)
			g.Values[k] = values[i]
			continue
		}
		if sameValue(first, values[i]) {
			continue
		}
		switch policy {
		case Strict:
			return Groups{}, fmt.Errorf("%w: group %d has %v and %v", domain.ErrGroupNotConstant, k, first, values[i])
		case WarnOnDisagreement:
			if _, dup := flagged[k]; !dup {
				flagged[k] = struct{}{}
				g.Disagreements = append(g.Disagreements, k)
			}
		}
	}
	return g, nil
}

// WeightedGroupSum sums group values weighted by group weights over the
// groups present in include. A nil include selects every group. Both
// maps must cover every included key.
func WeightedGroupSum(values, weights Groups, include map[int64]struct{}) (float64, error) {
	var sum float64
	for _, k := range values.Keys {
		if include != nil {
			if _, ok := include[k]; !ok {
				continue
			}
		}
		w, ok := weights.Values[k]
		if !ok {
			return 0, fmt.Errorf("%w: no weight for group %d", domain.ErrMissingGroupKey, k)
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return 0, fmt.Errorf("%w: weight %v for group %d", domain.ErrNegativeWeight, w, k)
		}
		sum += values.Values[k] * w
	}
	return sum, nil
}

// GroupCount counts the rows per group key where mask is true. A nil
// mask counts every row. Groups with no selected rows are absent.
func GroupCount(keys []int64, mask []bool) (map[int64]int, error) {
	if err := validateMask(len(keys), mask); err != nil {
		return nil, err
	}
	counts := make(map[int64]int)
	for i, k := range keys {
		if mask == nil || mask[i] {
			counts[k]++
		}
	}
	return counts, nil
}

// KeySet returns the distinct keys of the rows where mask is true.
func KeySet(keys []int64, mask []bool) (map[int64]struct{}, error) {
	if err := validateMask(len(keys), mask); err != nil {
		return nil, err
	}
	set := make(map[int64]struct{})
	for i, k := range keys {
		if mask == nil || mask[i] {
			set[k] = struct{}{}
		}
	}
	return set, nil
}

// Join is the result of broadcasting group values back onto units.
type Join struct {
	// Values has one entry per unit key, in input order.
	Values []float64

	// Missing counts units whose key had no group record and received the
	// default value.
	Missing int
}

// Err returns an error wrapping domain.ErrMissingGroupKey when any unit
// fell back to the default, nil otherwise.
func (j Join) Err() error {
	if j.Missing == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d units", domain.ErrMissingGroupKey, j.Missing, len(j.Values))
}

// JoinGroups maps each unit key onto its group's value. The output always
// has one entry per unit key. Keys with no group record receive def and
// are counted in Join.Missing; a missing key is never fatal.
func JoinGroups(unitKeys []int64, groups map[int64]float64, def float64) (Join, error) {
	j := Join{Values: make([]float64, len(unitKeys))}
	for i, k := range unitKeys {
		v, ok := groups[k]
		if !ok {
			v = def
			j.Missing++
		}
		j.Values[i] = v
	}
	return j, nil
}
