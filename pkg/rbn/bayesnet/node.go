package bayesnet

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/cpt"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/database"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/stats"
)

// Node is a template literal and the nodes it is conditioned on. A node may
// list itself as a parent.
type Node struct {
	lit      literal.Literal
	parents  []*Node
	deferred bool
}

// NewNode creates a node with the given parents.
func NewNode(lit literal.Literal, parents ...*Node) *Node {
	return &Node{lit: lit, parents: append([]*Node(nil), parents...)}
}

// NewSelfLoopNode creates a node that is its own last parent.
func NewSelfLoopNode(lit literal.Literal, parents ...*Node) *Node {
	n := NewNode(lit, parents...)
	n.parents = append(n.parents, n)
	return n
}

// NewDeferredNode creates a node whose parents are supplied later with
// SetParents, so that nodes can name parents that do not exist yet.
func NewDeferredNode(lit literal.Literal) *Node {
	return &Node{lit: lit, deferred: true}
}

// SetParents links a deferred node. It may be called once.
func (n *Node) SetParents(parents ...*Node) error {
	if !n.deferred {
		return fmt.Errorf("%w: parents of %s already set", internalerr.ErrContract, n.lit.TermKey())
	}
	n.parents = append([]*Node(nil), parents...)
	n.deferred = false
	return nil
}

// Literal returns the node's literal.
func (n *Node) Literal() literal.Literal { return n.lit }

// Name is the node's canonical name, its term without value.
func (n *Node) Name() string { return n.lit.TermKey() }

// Parents returns the parent nodes in order.
func (n *Node) Parents() []*Node { return append([]*Node(nil), n.parents...) }

// ParentLiterals returns the parents' literals in order.
func (n *Node) ParentLiterals() []literal.Literal {
	out := make([]literal.Literal, len(n.parents))
	for i, p := range n.parents {
		out[i] = p.lit
	}
	return out
}

// HasParent reports whether p's term is among n's parents.
func (n *Node) HasParent(p *Node) bool {
	for _, q := range n.parents {
		if q == p || q.lit.SameTerm(p.lit) {
			return true
		}
	}
	return false
}

// PopVariables returns the variables of the node and its immediate parents,
// sorted.
func (n *Node) PopVariables() []string {
	set := make(map[string]struct{})
	for _, v := range n.lit.PopVariables() {
		set[v] = struct{}{}
	}
	for _, p := range n.parents {
		for _, v := range p.lit.PopVariables() {
			set[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether n and o have the same literal and the same parent
// literals, in any order.
func (n *Node) Equal(o *Node) bool {
	return n.lit.Equal(o.lit) && literal.SameLiterals(n.ParentLiterals(), o.ParentLiterals())
}

// Less orders nodes by literal, then by sorted parent literals.
func (n *Node) Less(o *Node) bool {
	if !n.lit.Equal(o.lit) {
		return n.lit.Less(o.lit)
	}
	a, b := sortedLiterals(n.ParentLiterals()), sortedLiterals(o.ParentLiterals())
	for i := 0; i < len(a) && i < len(b); i++ {
		if !a[i].Equal(b[i]) {
			return a[i].Less(b[i])
		}
	}
	return len(a) < len(b)
}

func (n *Node) String() string {
	names := make([]string, len(n.parents))
	for i, p := range n.parents {
		names[i] = p.Name()
	}
	return n.Name() + " <- (" + strings.Join(names, ", ") + ")"
}

// ParentAssignments enumerates every assignment of values to the parents:
// the Cartesian product of their ranges, the first parent varying slowest.
// A node without parents has one empty assignment.
func (n *Node) ParentAssignments(r literal.Ranges) ([][]literal.Literal, error) {
	out := [][]literal.Literal{nil}
	for _, p := range n.parents {
		rng, err := r.FunctorRange(p.lit.Functor)
		if err != nil {
			return nil, fmt.Errorf("parent %s: %w", p.Name(), err)
		}
		next := make([][]literal.Literal, 0, len(out)*len(rng))
		for _, prefix := range out {
			for _, v := range rng {
				row := make([]literal.Literal, len(prefix), len(prefix)+1)
				copy(row, prefix)
				next = append(next, append(row, p.lit.With(v)))
			}
		}
		out = next
	}
	return out, nil
}

// EstimateCPT estimates the node's conditional probability table from db.
// For each parent assignment j and child value v the estimate is
//
//	N(child=v, parents=j) / N(child, parents=j)
//
// smoothed by calc. Assignments no grounding supports yield no rows unless
// calc smooths.
func (n *Node) EstimateCPT(db *database.Database, calc *stats.Calculator) ([]cpt.CP, error) {
	rng, err := db.FunctorRange(n.lit.Functor)
	if err != nil {
		return nil, err
	}
	assignments, err := n.ParentAssignments(db)
	if err != nil {
		return nil, err
	}

	term := n.lit.AsTerm()
	var out []cpt.CP
	for _, j := range assignments {
		support, err := db.CountSatisfying(append([]literal.Literal{term}, j...))
		if err != nil {
			return nil, fmt.Errorf("estimate %s: %w", n.Name(), err)
		}
		for _, v := range rng {
			child := term.With(v)
			c, err := db.CountSatisfying(append([]literal.Literal{child}, j...))
			if err != nil {
				return nil, fmt.Errorf("estimate %s: %w", n.Name(), err)
			}
			p, ok := calc.Conditional(c.Valid, support.Valid, len(rng))
			if !ok {
				continue
			}
			out = append(out, cpt.CP{Child: child, Parents: j, Prob: p})
		}
	}
	return out, nil
}

func sortedLiterals(ls []literal.Literal) []literal.Literal {
	out := append([]literal.Literal(nil), ls...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
