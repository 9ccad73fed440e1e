// Package cpt holds conditional probabilities: single estimated rows, the
// formulas that key them and the tables that collect them.
package cpt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/stats"
)

// PrintDigits is the precision probabilities are printed with.
const PrintDigits = 3

// CP is one conditional probability: P(Child | Parents) = Prob. Parents are
// positional, in the order of the node's parent list.
type CP struct {
	Child   literal.Literal
	Parents []literal.Literal
	Prob    float64
}

// Equal compares child exactly, parents as sets and probabilities within
// stats.Epsilon.
func (cp CP) Equal(o CP) bool {
	return cp.Child.Equal(o.Child) &&
		literal.SameLiterals(cp.Parents, o.Parents) &&
		stats.ProbEqual(cp.Prob, o.Prob)
}

// Less orders by child, then sorted parents, then probability.
func (cp CP) Less(o CP) bool {
	if !cp.Child.Equal(o.Child) {
		return cp.Child.Less(o.Child)
	}
	if c := compareLists(sortedCopy(cp.Parents), sortedCopy(o.Parents)); c != 0 {
		return c < 0
	}
	return cp.Prob < o.Prob && !stats.ProbEqual(cp.Prob, o.Prob)
}

// Formula returns the table key of cp.
func (cp CP) Formula() Formula {
	return NewFormula(cp.Child, cp.Parents...)
}

func (cp CP) String() string {
	return fmt.Sprintf("P(%s%s)=%.*f", cp.Child, parentSuffix(cp.Parents), PrintDigits, cp.Prob)
}

func parentSuffix(parents []literal.Literal) string {
	if len(parents) == 0 {
		return ""
	}
	parts := make([]string, len(parents))
	for i, p := range parents {
		parts[i] = p.String()
	}
	return "|" + strings.Join(parts, ",")
}

// Formula is an immutable (child, parent set) pair usable as a table key.
// Its literals either all carry values or are all terms.
type Formula struct {
	child   literal.Literal
	parents []literal.Literal
	key     string
}

// NewFormula builds a formula. Parent order and duplicates are irrelevant.
func NewFormula(child literal.Literal, parents ...literal.Literal) Formula {
	ps := sortedCopy(parents)
	uniq := ps[:0]
	for _, p := range ps {
		if len(uniq) > 0 && uniq[len(uniq)-1].Equal(p) {
			continue
		}
		uniq = append(uniq, p)
	}

	var b strings.Builder
	b.WriteString(child.Key())
	for _, p := range uniq {
		b.WriteString("|")
		b.WriteString(p.Key())
	}
	return Formula{child: child, parents: uniq, key: b.String()}
}

// Child returns the formula's child literal.
func (f Formula) Child() literal.Literal { return f.child }

// Parents returns the parent set in literal order.
func (f Formula) Parents() []literal.Literal {
	return append([]literal.Literal(nil), f.parents...)
}

// Key is the canonical string of the formula. Two formulas are equal iff
// their keys are.
func (f Formula) Key() string { return f.key }

// Equal reports whether f and o have the same child and parent set.
func (f Formula) Equal(o Formula) bool { return f.key == o.key }

// Less orders formulas by key.
func (f Formula) Less(o Formula) bool { return f.key < o.key }

// AsTerm strips every value from the formula.
func (f Formula) AsTerm() Formula {
	ps := make([]literal.Literal, len(f.parents))
	for i, p := range f.parents {
		ps[i] = p.AsTerm()
	}
	return NewFormula(f.child.AsTerm(), ps...)
}

func (f Formula) String() string {
	return "P(" + f.child.String() + parentSuffix(f.parents) + ")"
}

func sortedCopy(ls []literal.Literal) []literal.Literal {
	out := append([]literal.Literal(nil), ls...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func compareLists(a, b []literal.Literal) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i].Equal(b[i]) {
			continue
		}
		if a[i].Less(b[i]) {
			return -1
		}
		return 1
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
