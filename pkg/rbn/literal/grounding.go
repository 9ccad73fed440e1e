package literal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
)

// Binding assigns a constant to a population variable.
type Binding struct {
	Var   string
	Const string
}

// Grounding is an assignment of constants to population variables. It is
// immutable; Extended returns a new value.
type Grounding struct {
	env []Binding
}

// NewGrounding builds a grounding from bindings. Variable names are expected
// to be unique.
func NewGrounding(bindings ...Binding) Grounding {
	env := append([]Binding(nil), bindings...)
	sort.Slice(env, func(i, j int) bool { return env[i].Var < env[j].Var })
	return Grounding{env: env}
}

// Bind is shorthand for a single-variable grounding.
func Bind(v, c string) Grounding {
	return Grounding{env: []Binding{{Var: v, Const: c}}}
}

// Len returns the number of bound variables.
func (g Grounding) Len() int { return len(g.env) }

// Vars returns the bound variables in name order.
func (g Grounding) Vars() []string {
	out := make([]string, len(g.env))
	for i, b := range g.env {
		out[i] = b.Var
	}
	return out
}

// Value returns the constant bound to term. Constants and the wildcard map
// to themselves.
func (g Grounding) Value(term string) (string, error) {
	if IsConstant(term) || term == WildcardToken {
		return term, nil
	}
	i := sort.Search(len(g.env), func(i int) bool { return g.env[i].Var >= term })
	if i < len(g.env) && g.env[i].Var == term {
		return g.env[i].Const, nil
	}
	return "", fmt.Errorf("%w: variable %s not grounded", internalerr.ErrLookup, term)
}

// GroundLiteral returns a copy of lit with every argument mapped through
// Value. The literal's value is kept.
func (g Grounding) GroundLiteral(lit Literal) (Literal, error) {
	args := make([]string, len(lit.Args))
	for i, a := range lit.Args {
		c, err := g.Value(a)
		if err != nil {
			return Literal{}, fmt.Errorf("ground %s: %w", lit, err)
		}
		args[i] = c
	}
	return Literal{Functor: lit.Functor, Args: args, Value: lit.Value}, nil
}

// Extended returns the union of g and o. The variable sets must be disjoint.
func (g Grounding) Extended(o Grounding) (Grounding, error) {
	env := make([]Binding, 0, len(g.env)+len(o.env))
	env = append(env, g.env...)
	for _, b := range o.env {
		if _, err := g.Value(b.Var); err == nil {
			return Grounding{}, fmt.Errorf("%w: variable %s already grounded in %s", internalerr.ErrContract, b.Var, g)
		}
		env = append(env, b)
	}
	return NewGrounding(env...), nil
}

// SortedEntries returns the bindings ordered by variable name.
func (g Grounding) SortedEntries() []Binding {
	return append([]Binding(nil), g.env...)
}

// Equal reports whether g and o bind the same variables to the same
// constants.
func (g Grounding) Equal(o Grounding) bool {
	if len(g.env) != len(o.env) {
		return false
	}
	for i := range g.env {
		if g.env[i] != o.env[i] {
			return false
		}
	}
	return true
}

// Less orders groundings by their sorted entries.
func (g Grounding) Less(o Grounding) bool {
	for i := 0; i < len(g.env) && i < len(o.env); i++ {
		a, b := g.env[i], o.env[i]
		if a.Var != b.Var {
			return a.Var < b.Var
		}
		if a.Const != b.Const {
			return a.Const < b.Const
		}
	}
	return len(g.env) < len(o.env)
}

func (g Grounding) String() string {
	parts := make([]string, len(g.env))
	for i, b := range g.env {
		parts[i] = b.Var + "=" + b.Const
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
