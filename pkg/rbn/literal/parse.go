package literal

import (
	"fmt"
	"strings"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
)

// Parse reads the textual form of a literal:
//
//	g(anna)=W
//	F(X,Y)=T
//	F(X,Y)      (unbound)
//	cd(X)=?     (query)
//	rain        (nullary)
func Parse(s string) (Literal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Literal{}, fmt.Errorf("%w: empty literal", internalerr.ErrInvalidInput)
	}

	term, val := s, ""
	openParen := strings.Index(s, "(")
	if openParen == -1 {
		if eq := strings.Index(s, "="); eq != -1 {
			term, val = s[:eq], s[eq+1:]
		}
		functor := strings.TrimSpace(term)
		if functor == "" {
			return Literal{}, fmt.Errorf("%w: missing functor: %s", internalerr.ErrInvalidInput, s)
		}
		return Literal{Functor: functor, Value: Val(strings.TrimSpace(val))}, nil
	}

	closeParen := strings.Index(s, ")")
	if closeParen == -1 || closeParen < openParen {
		return Literal{}, fmt.Errorf("%w: missing ')': %s", internalerr.ErrInvalidInput, s)
	}

	functor := strings.TrimSpace(s[:openParen])
	if functor == "" {
		return Literal{}, fmt.Errorf("%w: missing functor: %s", internalerr.ErrInvalidInput, s)
	}

	var args []string
	if inner := strings.TrimSpace(s[openParen+1 : closeParen]); inner != "" {
		for _, a := range strings.Split(inner, ",") {
			a = strings.TrimSpace(a)
			if a == "" {
				return Literal{}, fmt.Errorf("%w: empty argument: %s", internalerr.ErrInvalidInput, s)
			}
			args = append(args, a)
		}
	}

	rest := strings.TrimSpace(s[closeParen+1:])
	switch {
	case rest == "":
	case strings.HasPrefix(rest, "="):
		val = strings.TrimSpace(rest[1:])
		if val == "" {
			return Literal{}, fmt.Errorf("%w: missing value after '=': %s", internalerr.ErrInvalidInput, s)
		}
	default:
		return Literal{}, fmt.Errorf("%w: unexpected %q after ')': %s", internalerr.ErrInvalidInput, rest, s)
	}

	return Literal{Functor: functor, Args: args, Value: Val(val)}, nil
}

// MustParse is Parse for literals known to be well formed, such as fixtures.
func MustParse(s string) Literal {
	l, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return l
}

// ParseTerm reads a literal and strips its value.
func ParseTerm(s string) (Literal, error) {
	l, err := Parse(s)
	if err != nil {
		return Literal{}, err
	}
	return l.AsTerm(), nil
}

// SplitList splits a comma separated list of literals, ignoring commas
// nested inside argument lists.
func SplitList(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(s[start:]); tail != "" || len(out) > 0 {
		out = append(out, tail)
	}
	return out
}

// ParseList parses a comma separated list of literals.
func ParseList(s string) ([]Literal, error) {
	var out []Literal
	for _, part := range SplitList(s) {
		l, err := Parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}
