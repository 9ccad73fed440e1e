// Package literal implements the atomic terms of a relational Bayes net:
// functors applied to constants or population variables, optionally carrying
// a value, and groundings that map variables to constants.
package literal

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
)

// Marker tokens used in the textual form of literals.
const (
	UnboundToken  = "-"
	QueryToken    = "?"
	WildcardToken = "*"
)

// Kind discriminates the states a literal's value can be in.
type Kind uint8

const (
	// Unbound is the value of a node inside a net: no value assigned.
	Unbound Kind = iota
	// Query marks a literal whose value is being asked for.
	Query
	// Wildcard matches any value.
	Wildcard
	// Bound is a concrete value from the functor's range.
	Bound
)

// Value is the value slot of a literal.
type Value struct {
	kind Kind
	v    string
}

var (
	NoValue    = Value{kind: Unbound}
	QueryValue = Value{kind: Query}
	AnyValue   = Value{kind: Wildcard}
)

// Val returns the value for a token. Marker tokens map to their kinds, any
// other string is a concrete value.
func Val(s string) Value {
	switch s {
	case UnboundToken, "":
		return NoValue
	case QueryToken:
		return QueryValue
	case WildcardToken:
		return AnyValue
	}
	return Value{kind: Bound, v: s}
}

// Kind reports the value's state.
func (v Value) Kind() Kind { return v.kind }

// Get returns the concrete value, if any.
func (v Value) Get() (string, bool) {
	return v.v, v.kind == Bound
}

// IsBound reports whether v carries a concrete value.
func (v Value) IsBound() bool { return v.kind == Bound }

func (v Value) String() string {
	switch v.kind {
	case Unbound:
		return UnboundToken
	case Query:
		return QueryToken
	case Wildcard:
		return WildcardToken
	}
	return v.v
}

func (v Value) matches(o Value) bool {
	return v.kind == Wildcard || o.kind == Wildcard || v == o
}

// Literal is a functor applied to an ordered argument list, with a value.
// Arguments starting with a lowercase letter are constants, the others are
// population variables.
type Literal struct {
	Functor string
	Args    []string
	Value   Value
}

// New returns an unbound literal.
func New(functor string, args ...string) Literal {
	return Literal{Functor: functor, Args: append([]string(nil), args...), Value: NoValue}
}

// With returns a copy of l holding value v. No range check is made; use
// WithValue when the value must belong to the functor's range.
func (l Literal) With(v string) Literal {
	c := l.clone()
	c.Value = Val(v)
	return c
}

// Ranges resolves a functor's declared value domain.
type Ranges interface {
	FunctorRange(functor string) ([]string, error)
}

// WithValue returns a copy of l with its value set to v, which must be a
// member of the functor's range.
func (l Literal) WithValue(v string, r Ranges) (Literal, error) {
	rng, err := r.FunctorRange(l.Functor)
	if err != nil {
		return Literal{}, err
	}
	for _, x := range rng {
		if x == v {
			c := l.clone()
			c.Value = Value{kind: Bound, v: v}
			return c, nil
		}
	}
	return Literal{}, fmt.Errorf("%w: value %q not in functor range of %s", internalerr.ErrLookup, v, l.Functor)
}

// AsTerm returns a copy of l with the value reset to unbound.
func (l Literal) AsTerm() Literal {
	c := l.clone()
	c.Value = NoValue
	return c
}

// IsGround reports whether the value is neither the query nor the unbound
// marker.
func (l Literal) IsGround() bool {
	return l.Value.kind != Query && l.Value.kind != Unbound
}

// IsQuery reports whether l carries the query marker.
func (l Literal) IsQuery() bool { return l.Value.kind == Query }

// PopVariables returns the arguments that are population variables, in
// argument order. Repeated variables are reported once.
func (l Literal) PopVariables() []string {
	var out []string
	seen := make(map[string]struct{}, len(l.Args))
	for _, a := range l.Args {
		if !IsVariable(a) {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// HasVariables reports whether any argument is a population variable.
func (l Literal) HasVariables() bool {
	for _, a := range l.Args {
		if IsVariable(a) {
			return true
		}
	}
	return false
}

// Equal reports exact structural equality. Wildcards only equal wildcards.
func (l Literal) Equal(o Literal) bool {
	if l.Functor != o.Functor || l.Value != o.Value || len(l.Args) != len(o.Args) {
		return false
	}
	for i := range l.Args {
		if l.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}

// Matches compares functor, each argument and the value independently,
// treating a wildcard on either side as matching anything. Literals of
// different arity never match.
func (l Literal) Matches(o Literal) bool {
	if !matchToken(l.Functor, o.Functor) || len(l.Args) != len(o.Args) {
		return false
	}
	for i := range l.Args {
		if !matchToken(l.Args[i], o.Args[i]) {
			return false
		}
	}
	return l.Value.matches(o.Value)
}

// SameTerm reports whether l and o agree on functor and arguments,
// ignoring values.
func (l Literal) SameTerm(o Literal) bool {
	return l.AsTerm().Equal(o.AsTerm())
}

func matchToken(a, b string) bool {
	return a == WildcardToken || b == WildcardToken || a == b
}

// Less orders literals by functor, then arguments, then value.
func (l Literal) Less(o Literal) bool {
	if c := l.CompareTerm(o); c != 0 {
		return c < 0
	}
	return l.Value.String() < o.Value.String()
}

// CompareTerm orders literals by functor, then arguments, ignoring values.
// It returns -1, 0 or +1.
func (l Literal) CompareTerm(o Literal) int {
	if l.Functor != o.Functor {
		if l.Functor < o.Functor {
			return -1
		}
		return 1
	}
	return compareArgs(l.Args, o.Args)
}

func compareArgs(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// TermKey is the canonical name of l's term: functor and arguments with the
// value stripped, e.g. "F(X,Y)".
func (l Literal) TermKey() string {
	return l.Functor + "(" + strings.Join(l.Args, ",") + ")"
}

// Key is a canonical string consistent with Equal, usable as a map key.
func (l Literal) Key() string {
	return l.TermKey() + "=" + l.Value.String()
}

func (l Literal) String() string { return l.Key() }

func (l Literal) clone() Literal {
	return Literal{Functor: l.Functor, Args: append([]string(nil), l.Args...), Value: l.Value}
}

// IsConstant reports whether a term names a constant: its first character is
// lowercase.
func IsConstant(term string) bool {
	r, _ := utf8.DecodeRuneInString(term)
	return r != utf8.RuneError && unicode.IsLower(r)
}

// IsVariable reports whether a term names a population variable.
func IsVariable(term string) bool {
	return term != "" && term != WildcardToken && !IsConstant(term)
}

// SameLiterals reports whether two lists hold the same literals regardless of
// order.
func SameLiterals(a, b []Literal) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, l := range a {
		counts[l.Key()]++
	}
	for _, l := range b {
		k := l.Key()
		if counts[k] == 0 {
			return false
		}
		counts[k]--
	}
	return true
}
