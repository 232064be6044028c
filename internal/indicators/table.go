package indicators

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Table is a date-aligned set of indicator series. Every series has exactly
// Len() values; NaN marks an undefined value.
// ⭐ SSOT: 지표 테이블 (가격 이력과 같은 길이)
type Table struct {
	dates  []time.Time
	floats map[string][]float64
	flags  map[string][]bool
}

// NewTable creates an empty table over the given date index
func NewTable(dates []time.Time) *Table {
	return &Table{
		dates:  dates,
		floats: make(map[string][]float64),
		flags:  make(map[string][]bool),
	}
}

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.dates)
}

// Dates returns the row index
func (t *Table) Dates() []time.Time {
	return t.dates
}

// SetFloat adds a numeric series. A length mismatch is rejected.
func (t *Table) SetFloat(name string, series []float64) error {
	if len(series) != t.Len() {
		return fmt.Errorf("indicator %s has %d rows, table has %d", name, len(series), t.Len())
	}
	t.floats[name] = series
	return nil
}

// SetFlag adds a boolean series. A length mismatch is rejected.
func (t *Table) SetFlag(name string, series []bool) error {
	if len(series) != t.Len() {
		return fmt.Errorf("indicator %s has %d rows, table has %d", name, len(series), t.Len())
	}
	t.flags[name] = series
	return nil
}

// Float returns a numeric series
func (t *Table) Float(name string) ([]float64, bool) {
	s, ok := t.floats[name]
	return s, ok
}

// Flag returns a boolean series
func (t *Table) Flag(name string) ([]bool, bool) {
	s, ok := t.flags[name]
	return s, ok
}

// Has reports whether a series of either kind exists
func (t *Table) Has(name string) bool {
	if t == nil {
		return false
	}
	if _, ok := t.floats[name]; ok {
		return true
	}
	_, ok := t.flags[name]
	return ok
}

// Missing returns the names not present in the table
func (t *Table) Missing(names ...string) []string {
	var missing []string
	for _, name := range names {
		if !t.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Last returns the final value of a numeric series, false when absent or NaN
func (t *Table) Last(name string) (float64, bool) {
	return t.At(name, t.Len()-1)
}

// At returns the value at row i, false when absent, out of range or NaN
func (t *Table) At(name string, i int) (float64, bool) {
	s, ok := t.floats[name]
	if !ok || i < 0 || i >= len(s) || math.IsNaN(s[i]) {
		return math.NaN(), false
	}
	return s[i], true
}

// LastFlag returns the final value of a boolean series
func (t *Table) LastFlag(name string) (bool, bool) {
	s, ok := t.flags[name]
	if !ok || len(s) == 0 {
		return false, false
	}
	return s[len(s)-1], true
}

// Names returns all series names sorted
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.floats)+len(t.flags))
	for name := range t.floats {
		names = append(names, name)
	}
	for name := range t.flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of series
func (t *Table) Count() int {
	if t == nil {
		return 0
	}
	return len(t.floats) + len(t.flags)
}

// Equal reports whether two tables hold identical series. NaN equals NaN.
func (t *Table) Equal(other *Table) bool {
	if t.Len() != other.Len() || len(t.floats) != len(other.floats) || len(t.flags) != len(other.flags) {
		return false
	}
	for i := range t.dates {
		if !t.dates[i].Equal(other.dates[i]) {
			return false
		}
	}
	for name, a := range t.floats {
		b, ok := other.floats[name]
		if !ok {
			return false
		}
		for i := range a {
			if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
				return false
			}
		}
	}
	for name, a := range t.flags {
		b, ok := other.flags[name]
		if !ok {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}
