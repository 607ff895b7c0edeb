// Package domain contains pure, dependency-free domain models and types
// for the child-limit reform analysis.
package domain

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
)

// Frame is an immutable columnar table of per-unit values. Every column
// has the same length, and row i of every column describes the same unit
// (a person, household or benefit unit depending on the level the frame
// was loaded at). Frame uses copy-on-write semantics: With returns a new
// Frame and never mutates the receiver, so frames can be shared across
// goroutines without synchronization.
type Frame struct {
	// rows is the common length of every column.
	rows int
	// cols holds the column data keyed by variable name.
	// It is unexported to maintain immutability guarantees.
	cols map[string][]float64
}

// NewFrame creates an empty Frame whose columns must all have the given
// number of rows.
func NewFrame(rows int) Frame {
	return Frame{rows: rows, cols: make(map[string][]float64)}
}

// FrameFromColumns builds a Frame from a set of columns. All columns must
// have equal length; an empty map yields an empty zero-row frame.
func FrameFromColumns(cols map[string][]float64) (Frame, error) {
	rows := -1
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string][]float64, len(cols))
	for _, name := range names {
		values := cols[name]
		if rows == -1 {
			rows = len(values)
		}
		if len(values) != rows {
			return Frame{}, NewColumnError(name, "FrameFromColumns",
				fmt.Errorf("%w: want %d rows, got %d", ErrLengthMismatch, rows, len(values)))
		}
		out[name] = slices.Clone(values)
	}
	if rows < 0 {
		rows = 0
	}
	return Frame{rows: rows, cols: out}, nil
}

// Len returns the number of rows in the frame.
func (f Frame) Len() int { return f.rows }

// Has reports whether the frame carries the named column.
func (f Frame) Has(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Column returns a copy of the named column and whether it exists.
// The copy keeps the frame immutable even if the caller writes to it.
func (f Frame) Column(name string) ([]float64, bool) {
	values, ok := f.cols[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(values), true
}

// MustColumns returns copies of the named columns in order, or a
// ColumnError wrapping ErrColumnNotFound for the first missing one.
func (f Frame) MustColumns(names ...string) ([][]float64, error) {
	out := make([][]float64, len(names))
	for i, name := range names {
		values, ok := f.Column(name)
		if !ok {
			return nil, NewColumnError(name, "MustColumns", ErrColumnNotFound)
		}
		out[i] = values
	}
	return out, nil
}

// Bounds of the float64 values that convert exactly to int64.
const (
	minKey = -(1 << 63)
	maxKey = 1 << 63
)

// Keys returns the named column converted to integer group keys.
// Identifier columns arrive from the engine as floats. Non-finite,
// fractional and out-of-range identifiers are rejected.
func (f Frame) Keys(name string) ([]int64, error) {
	values, ok := f.cols[name]
	if !ok {
		return nil, NewColumnError(name, "Keys", ErrColumnNotFound)
	}
	keys := make([]int64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, NewColumnError(name, "Keys",
				fmt.Errorf("%w: non-finite identifier at row %d", ErrInvalidValue, i))
		}
		if v != math.Trunc(v) {
			return nil, NewColumnError(name, "Keys",
				fmt.Errorf("%w: fractional identifier %v at row %d", ErrInvalidValue, v, i))
		}
		if v < minKey || v >= maxKey {
			return nil, NewColumnError(name, "Keys",
				fmt.Errorf("%w: identifier %v out of range at row %d", ErrInvalidValue, v, i))
		}
		keys[i] = int64(v)
	}
	return keys, nil
}

// With returns a new Frame with the named column added or replaced.
// The receiver is left unchanged. The column must match the frame length.
func (f Frame) With(name string, values []float64) (Frame, error) {
	if len(values) != f.rows {
		return f, NewColumnError(name, "With",
			fmt.Errorf("%w: want %d rows, got %d", ErrLengthMismatch, f.rows, len(values)))
	}
	cols := maps.Clone(f.cols)
	if cols == nil {
		cols = make(map[string][]float64)
	}
	cols[name] = slices.Clone(values)
	return Frame{rows: f.rows, cols: cols}, nil
}

// Names returns the sorted column names present in the frame.
func (f Frame) Names() []string {
	names := make([]string, 0, len(f.cols))
	for name := range f.cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns a short description of the frame for debugging.
func (f Frame) String() string {
	return fmt.Sprintf("Frame{rows=%d, cols=%v}", f.rows, f.Names())
}
