package bayesnet

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
)

// SerializedGraph is a node graph keyed by canonical node name. Parents are
// held by name, so nodes may name themselves or each other and the graph may
// contain cycles.
type SerializedGraph struct {
	entries map[string]*sgEntry
}

type sgEntry struct {
	term    literal.Literal
	parents []string // declared order, no repeats
}

func (e *sgEntry) addParent(name string) {
	if !e.hasParent(name) {
		e.parents = append(e.parents, name)
	}
}

func (e *sgEntry) hasParent(name string) bool {
	for _, p := range e.parents {
		if p == name {
			return true
		}
	}
	return false
}

// Adjacency is one node of the serialized form.
type Adjacency struct {
	Functor string   `json:"functor" yaml:"functor"`
	Args    []string `json:"args" yaml:"args"`
	Parents []string `json:"parents" yaml:"parents"`
}

// NewSerializedGraph creates an empty graph.
func NewSerializedGraph() *SerializedGraph {
	return &SerializedGraph{entries: make(map[string]*sgEntry)}
}

// Add inserts a node under its canonical name. Adding a name that is already
// present appends the parents it does not hold yet.
func (sg *SerializedGraph) Add(n *Node) {
	name := n.Name()
	e, ok := sg.entries[name]
	if !ok {
		e = &sgEntry{term: n.lit.AsTerm()}
		sg.entries[name] = e
	}
	for _, p := range n.parents {
		e.addParent(p.Name())
	}
}

// Len returns the number of nodes.
func (sg *SerializedGraph) Len() int { return len(sg.entries) }

// Names returns the node names, sorted.
func (sg *SerializedGraph) Names() []string {
	out := make([]string, 0, len(sg.entries))
	for name := range sg.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Term returns the term stored under name.
func (sg *SerializedGraph) Term(name string) (literal.Literal, bool) {
	e, ok := sg.entries[name]
	if !ok {
		return literal.Literal{}, false
	}
	return e.term, true
}

// ParentNames returns the parent names of a node, sorted.
func (sg *SerializedGraph) ParentNames(name string) []string {
	e, ok := sg.entries[name]
	if !ok {
		return nil
	}
	return sortedCopy(e.parents)
}

// DeclaredParents returns the parent names of a node in the order they were
// declared. Rules match parents by position in this order.
func (sg *SerializedGraph) DeclaredParents(name string) []string {
	e, ok := sg.entries[name]
	if !ok {
		return nil
	}
	return append([]string(nil), e.parents...)
}

// Equal reports whether both graphs hold the same names, terms and parent
// sets.
func (sg *SerializedGraph) Equal(o *SerializedGraph) bool {
	if len(sg.entries) != len(o.entries) {
		return false
	}
	for name, e := range sg.entries {
		oe, ok := o.entries[name]
		if !ok || !e.term.Equal(oe.term) || len(e.parents) != len(oe.parents) {
			return false
		}
		for _, p := range e.parents {
			if !oe.hasParent(p) {
				return false
			}
		}
	}
	return true
}

// Adjacency returns the graph as name to node description, parents in
// declared order.
func (sg *SerializedGraph) Adjacency() map[string]Adjacency {
	out := make(map[string]Adjacency, len(sg.entries))
	for name, e := range sg.entries {
		out[name] = Adjacency{
			Functor: e.term.Functor,
			Args:    append([]string{}, e.term.Args...),
			Parents: append([]string{}, e.parents...),
		}
	}
	return out
}

// FromAdjacency builds a graph from node descriptions. Parent names may
// refer to nodes listed later, to the node itself or to each other. Nodes
// are stored under their canonical names whatever key they were given.
func FromAdjacency(adj map[string]Adjacency) (*SerializedGraph, error) {
	canon := make(map[string]string, len(adj))
	sg := NewSerializedGraph()
	for given, a := range adj {
		if a.Functor == "" {
			return nil, fmt.Errorf("%w: node %q has no functor", internalerr.ErrInvalidInput, given)
		}
		term := literal.New(a.Functor, a.Args...)
		name := term.TermKey()
		if _, dup := sg.entries[name]; dup {
			return nil, fmt.Errorf("%w: node %q repeats term %s", internalerr.ErrInvalidInput, given, name)
		}
		canon[given] = name
		sg.entries[name] = &sgEntry{term: term}
	}
	for given, a := range adj {
		e := sg.entries[canon[given]]
		for _, p := range a.Parents {
			pn, ok := canon[p]
			if !ok {
				return nil, fmt.Errorf("%w: parent %q of node %q not defined", internalerr.ErrInvalidInput, p, given)
			}
			e.addParent(pn)
		}
	}
	return sg, nil
}

// MarshalJSON writes name -> [[functor, [args]], [sorted parent names]].
func (sg *SerializedGraph) MarshalJSON() ([]byte, error) {
	out := make(map[string][2]interface{}, len(sg.entries))
	for name, a := range sg.Adjacency() {
		out[name] = [2]interface{}{[]interface{}{a.Functor, a.Args}, sortedCopy(a.Parents)}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (sg *SerializedGraph) UnmarshalJSON(data []byte) error {
	var raw map[string][]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: serialized graph: %v", internalerr.ErrInvalidInput, err)
	}

	adj := make(map[string]Adjacency, len(raw))
	for name, parts := range raw {
		if len(parts) != 2 {
			return fmt.Errorf("%w: node %q: expected [[functor, args], parents]", internalerr.ErrInvalidInput, name)
		}
		var term []json.RawMessage
		if err := json.Unmarshal(parts[0], &term); err != nil || len(term) != 2 {
			return fmt.Errorf("%w: node %q: expected [functor, args]", internalerr.ErrInvalidInput, name)
		}
		var a Adjacency
		if err := json.Unmarshal(term[0], &a.Functor); err != nil {
			return fmt.Errorf("%w: node %q functor: %v", internalerr.ErrInvalidInput, name, err)
		}
		if err := json.Unmarshal(term[1], &a.Args); err != nil {
			return fmt.Errorf("%w: node %q args: %v", internalerr.ErrInvalidInput, name, err)
		}
		if err := json.Unmarshal(parts[1], &a.Parents); err != nil {
			return fmt.Errorf("%w: node %q parents: %v", internalerr.ErrInvalidInput, name, err)
		}
		adj[name] = a
	}

	loaded, err := FromAdjacency(adj)
	if err != nil {
		return err
	}
	sg.entries = loaded.entries
	return nil
}

// Load parses a serialized graph.
func Load(data []byte) (*SerializedGraph, error) {
	sg := NewSerializedGraph()
	if err := sg.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return sg, nil
}

// Nodes links the graph into nodes keyed by name. All nodes are created
// first and their parents resolved afterwards, so cycles are preserved.
// Parents keep their declared order.
func (sg *SerializedGraph) Nodes() (map[string]*Node, error) {
	nodes := make(map[string]*Node, len(sg.entries))
	for name, e := range sg.entries {
		nodes[name] = NewDeferredNode(e.term)
	}
	for _, name := range sg.Names() {
		pnames := sg.entries[name].parents
		parents := make([]*Node, len(pnames))
		for i, pn := range pnames {
			p, ok := nodes[pn]
			if !ok {
				return nil, fmt.Errorf("%w: parent %s of %s not in graph", internalerr.ErrIncompatible, pn, name)
			}
			parents[i] = p
		}
		if err := nodes[name].SetParents(parents...); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// OrderedKeys returns the node names parents first. Self-loops are ignored;
// any other cycle fails with ErrIncompatible.
func (sg *SerializedGraph) OrderedKeys() ([]string, error) {
	deps := make(map[string][]string, len(sg.entries))
	for name, e := range sg.entries {
		for _, p := range e.parents {
			if p != name {
				deps[name] = append(deps[name], p)
			}
		}
		if _, ok := deps[name]; !ok {
			deps[name] = nil
		}
	}
	return toposort(deps)
}

// LoadNet appends the graph's nodes to a new net in OrderedKeys order.
func LoadNet(sg *SerializedGraph) (*Net, error) {
	keys, err := sg.OrderedKeys()
	if err != nil {
		return nil, err
	}
	nodes, err := sg.Nodes()
	if err != nil {
		return nil, err
	}
	bn := New()
	for _, k := range keys {
		if err := bn.Append(nodes[k]); err != nil {
			return nil, err
		}
	}
	return bn, nil
}

func sortedCopy(names []string) []string {
	out := append([]string{}, names...)
	sort.Strings(out)
	return out
}
