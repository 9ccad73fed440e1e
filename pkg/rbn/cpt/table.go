package cpt

import (
	"sort"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
)

type entry struct {
	f Formula
	p float64
}

// Table maps formulas to probabilities.
type Table struct {
	entries map[string]entry
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string]entry)}
}

// TableOf collects CP rows into a table. Later rows for the same formula
// replace earlier ones.
func TableOf(cps []CP) *Table {
	t := NewTable()
	for _, cp := range cps {
		t.Set(cp.Formula(), cp.Prob)
	}
	return t
}

// Set stores the probability of f.
func (t *Table) Set(f Formula, p float64) {
	t.entries[f.Key()] = entry{f: f, p: p}
}

// Get returns the probability of f.
func (t *Table) Get(f Formula) (float64, bool) {
	e, ok := t.entries[f.Key()]
	return e.p, ok
}

// Len returns the number of formulas in the table.
func (t *Table) Len() int { return len(t.entries) }

// Formulas returns the table's formulas in key order.
func (t *Table) Formulas() []Formula {
	out := make([]Formula, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// CPs returns the table as CP rows in formula order.
func (t *Table) CPs() []CP {
	fs := t.Formulas()
	out := make([]CP, len(fs))
	for i, f := range fs {
		out[i] = CP{Child: f.child, Parents: append([]literal.Literal(nil), f.parents...), Prob: t.entries[f.Key()].p}
	}
	return out
}
