// Package blanket evaluates a node's Markov blanket: the node's own family
// and the family of each of its children, every literal carrying a value.
package blanket

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/bayesnet"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/cpt"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
)

// Blanket is the focus node's term and the literal formulas of its blanket.
type Blanket struct {
	Focus literal.Literal
	Terms []cpt.Formula
}

// New creates a blanket. Terms are treated as a set.
func New(focus literal.Literal, terms ...cpt.Formula) Blanket {
	return Blanket{Focus: focus.AsTerm(), Terms: uniqueFormulas(terms)}
}

// TermFormulas returns the blanket's formulas with every value stripped.
func (b Blanket) TermFormulas() []cpt.Formula {
	out := make([]cpt.Formula, len(b.Terms))
	for i, f := range b.Terms {
		out[i] = f.AsTerm()
	}
	return uniqueFormulas(out)
}

func (b Blanket) String() string {
	parts := make([]string, len(b.Terms))
	for i, f := range b.Terms {
		parts[i] = f.String()
	}
	return "MB(" + b.Focus.TermKey() + ": " + strings.Join(parts, ", ") + ")"
}

// MismatchError reports how a blanket differs from the one the net implies.
type MismatchError struct {
	Focus   string
	Missing []cpt.Formula // required by the net, absent from the blanket
	Extra   []cpt.Formula // present in the blanket, not implied by the net
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v: blanket of %s: missing %v, extra %v",
		internalerr.ErrIncompatible, e.Focus, e.Missing, e.Extra)
}

func (e *MismatchError) Unwrap() error { return internalerr.ErrIncompatible }

// Expected returns the term formulas a blanket of focus must hold in net:
// the focus family and the family of every other node listing focus as a
// parent.
func Expected(net *bayesnet.Net, focus literal.Literal) ([]cpt.Formula, error) {
	fn, err := net.Node(focus)
	if err != nil {
		return nil, err
	}
	out := []cpt.Formula{family(fn)}
	for _, child := range net.Children(fn) {
		out = append(out, family(child))
	}
	return uniqueFormulas(out), nil
}

func family(n *bayesnet.Node) cpt.Formula {
	ps := n.ParentLiterals()
	for i := range ps {
		ps[i] = ps[i].AsTerm()
	}
	return cpt.NewFormula(n.Literal().AsTerm(), ps...)
}

// IsCompatible checks that b holds exactly the families Expected requires.
// A mismatch is reported as a *MismatchError.
func IsCompatible(net *bayesnet.Net, b Blanket) error {
	want, err := Expected(net, b.Focus)
	if err != nil {
		return err
	}
	have := b.TermFormulas()

	missing := subtract(want, have)
	extra := subtract(have, want)
	if len(missing)+len(extra) > 0 {
		return &MismatchError{Focus: b.Focus.TermKey(), Missing: missing, Extra: extra}
	}
	return nil
}

// Gibbs multiplies the table entries of every formula in b. Every formula
// must be in the table.
func Gibbs(table *cpt.Table, b Blanket) (float64, error) {
	p := 1.0
	for _, f := range b.Terms {
		q, ok := table.Get(f)
		if !ok {
			return 0, fmt.Errorf("%w: %s", internalerr.ErrMissingProbability, f)
		}
		p *= q
	}
	return p, nil
}

func uniqueFormulas(fs []cpt.Formula) []cpt.Formula {
	seen := make(map[string]struct{}, len(fs))
	out := make([]cpt.Formula, 0, len(fs))
	for _, f := range fs {
		if _, dup := seen[f.Key()]; dup {
			continue
		}
		seen[f.Key()] = struct{}{}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func subtract(a, b []cpt.Formula) []cpt.Formula {
	keys := make(map[string]struct{}, len(b))
	for _, f := range b {
		keys[f.Key()] = struct{}{}
	}
	var out []cpt.Formula
	for _, f := range a {
		if _, ok := keys[f.Key()]; !ok {
			out = append(out, f)
		}
	}
	return out
}
