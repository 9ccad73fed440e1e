// Package bayesnet implements template Bayes nets over relational literals:
// nodes with parent lists that may loop back on themselves, coherence
// checks, CPT estimation, grounding over populations and the name keyed
// serialized form.
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

// Net is an append-only list of template nodes. A node can only be
// appended after its parents.
type Net struct {
	nodes []*Node
}

// New creates an empty net.
func New() *Net {
	return &Net{}
}

// Append adds a node. Every parent other than the node itself must already
// be in the net.
func (bn *Net) Append(n *Node) error {
	if n.deferred {
		return fmt.Errorf("%w: node %s has unresolved parents", internalerr.ErrContract, n.Name())
	}
	if bn.contains(n) {
		return fmt.Errorf("%w: node %s appended twice", internalerr.ErrContract, n.Name())
	}
	for _, p := range n.parents {
		if p == n {
			continue
		}
		if !bn.contains(p) {
			return fmt.Errorf("%w: node %s added before its parent %s", internalerr.ErrContract, n, p.Name())
		}
	}
	bn.nodes = append(bn.nodes, n)
	return nil
}

func (bn *Net) contains(n *Node) bool {
	for _, m := range bn.nodes {
		if m == n {
			return true
		}
	}
	return false
}

// Nodes returns the nodes in append order.
func (bn *Net) Nodes() []*Node { return append([]*Node(nil), bn.nodes...) }

// Len returns the number of nodes.
func (bn *Net) Len() int { return len(bn.nodes) }

// Node returns the node whose term matches lit's term.
func (bn *Net) Node(lit literal.Literal) (*Node, error) {
	for _, n := range bn.nodes {
		if n.lit.SameTerm(lit) {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: node %s not in net", internalerr.ErrNotFound, lit.TermKey())
}

// Children returns the nodes other than n that list n as a parent.
func (bn *Net) Children(n *Node) []*Node {
	var out []*Node
	for _, m := range bn.nodes {
		if m != n && m.HasParent(n) {
			out = append(out, m)
		}
	}
	return out
}

// VariableList returns the population variables of the net's nodes, sorted.
func (bn *Net) VariableList() []string {
	lits := make([]literal.Literal, len(bn.nodes))
	for i, n := range bn.nodes {
		lits[i] = n.lit
	}
	return database.FreeVariables(lits)
}

// FunctorSet returns the functors used by the net's nodes, sorted.
func (bn *Net) FunctorSet() []string {
	set := make(map[string]struct{})
	for _, n := range bn.nodes {
		set[n.lit.Functor] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// FunctorDeclarer reports whether a functor has a declared range.
type FunctorDeclarer interface {
	HasFunctor(functor string) bool
}

// IsCompatibleFR reports whether every functor of the net is declared.
func (bn *Net) IsCompatibleFR(d FunctorDeclarer) bool {
	return len(bn.MissingFunctors(d)) == 0
}

// MissingFunctors returns the net's functors without a declared range.
func (bn *Net) MissingFunctors(d FunctorDeclarer) []string {
	var out []string
	for _, f := range bn.FunctorSet() {
		if !d.HasFunctor(f) {
			out = append(out, f)
		}
	}
	return out
}

// IsCoherent reports whether the nodes' variable sets form one connected
// structure: nodes sharing a variable are joined, and a non-empty net must
// end up as a single class. A node without variables is a class of its own.
func (bn *Net) IsCoherent() bool {
	if len(bn.nodes) == 0 {
		return true
	}
	uf := newUnionFind(len(bn.nodes))
	owner := make(map[string]int)
	for i, n := range bn.nodes {
		for _, v := range n.lit.PopVariables() {
			if j, ok := owner[v]; ok {
				uf.union(i, j)
			} else {
				owner[v] = i
			}
		}
	}
	return uf.classes() == 1
}

// Thetas estimates every node's CPT from db and collects them in one table.
// The table may be incomplete: a parent assignment no grounding supports
// yields no rows unless calc smooths, so callers must treat a missing
// formula as unknown rather than zero.
func (bn *Net) Thetas(db *database.Database, calc *stats.Calculator) (*cpt.Table, error) {
	table := cpt.NewTable()
	for _, n := range bn.nodes {
		cps, err := n.EstimateCPT(db, calc)
		if err != nil {
			return nil, err
		}
		for _, cp := range cps {
			table.Set(cp.Formula(), cp.Prob)
		}
	}
	return table, nil
}

// Merge returns a net holding bn's nodes followed by o's. Variables are
// scoped to their net, so the two nets may not share a variable name.
func (bn *Net) Merge(o *Net) (*Net, error) {
	mine := make(map[string]struct{})
	for _, v := range bn.VariableList() {
		mine[v] = struct{}{}
	}
	var shared []string
	for _, v := range o.VariableList() {
		if _, ok := mine[v]; ok {
			shared = append(shared, v)
		}
	}
	if len(shared) > 0 {
		return nil, fmt.Errorf("%w: nets share variables %v", internalerr.ErrIncompatible, shared)
	}

	out := New()
	for _, n := range append(bn.Nodes(), o.nodes...) {
		if err := out.Append(n); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Ground instantiates the net for every grounding of specs over db. With no
// specs the net's variables are drawn from db's default populations. Each
// ground node lists the ground terms of its template parents; nodes reached
// from several groundings accumulate all their parents.
func (bn *Net) Ground(db *database.Database, specs []database.VarSpec) (*SerializedGraph, error) {
	if len(specs) == 0 {
		specs = database.Specs(bn.VariableList()...)
	}
	groundings, err := db.GenerateGroundings(literal.Grounding{}, specs)
	if err != nil {
		return nil, err
	}

	sg := NewSerializedGraph()
	for _, g := range groundings {
		for _, n := range bn.nodes {
			gl, err := g.GroundLiteral(n.lit.AsTerm())
			if err != nil {
				return nil, err
			}
			parents := make([]*Node, len(n.parents))
			for i, p := range n.parents {
				pl, err := g.GroundLiteral(p.lit.AsTerm())
				if err != nil {
					return nil, err
				}
				parents[i] = NewNode(pl)
			}
			sg.Add(NewNode(gl, parents...))
		}
	}
	return sg, nil
}

// Serialize returns the net in serialized form.
func (bn *Net) Serialize() *SerializedGraph {
	sg := NewSerializedGraph()
	for _, n := range bn.nodes {
		sg.Add(n)
	}
	return sg
}

// Equal reports whether both nets hold equal nodes in the same order.
func (bn *Net) Equal(o *Net) bool {
	if len(bn.nodes) != len(o.nodes) {
		return false
	}
	for i := range bn.nodes {
		if !bn.nodes[i].Equal(o.nodes[i]) {
			return false
		}
	}
	return true
}

func (bn *Net) String() string {
	parts := make([]string, len(bn.nodes))
	for i, n := range bn.nodes {
		parts[i] = n.String()
	}
	return "Net[" + strings.Join(parts, "; ") + "]"
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(i, j int) {
	uf.parent[uf.find(i)] = uf.find(j)
}

func (uf *unionFind) classes() int {
	n := 0
	for i := range uf.parent {
		if uf.find(i) == i {
			n++
		}
	}
	return n
}
