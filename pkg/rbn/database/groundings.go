package database

import (
	"fmt"
	"math"
	"sort"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/stats"
)

// VarSpec names a variable to ground and the population its constants are
// drawn from. An empty Pop uses the database's default for the variable.
type VarSpec struct {
	Var string
	Pop string
}

func (s VarSpec) String() string {
	if s.Pop == "" {
		return s.Var
	}
	return s.Var + ":" + s.Pop
}

// Specs turns variable names into specs drawn from the default populations.
func Specs(vars ...string) []VarSpec {
	out := make([]VarSpec, len(vars))
	for i, v := range vars {
		out[i] = VarSpec{Var: v}
	}
	return out
}

// constantsFor resolves the constants a spec ranges over.
func (db *Database) constantsFor(s VarSpec) ([]string, error) {
	pop := s.Pop
	if pop == "" {
		pop = db.varPops[s.Var]
	}
	consts, err := db.pops.constants(pop)
	if err != nil {
		return nil, fmt.Errorf("ground %s: %w", s.Var, err)
	}
	return consts, nil
}

// EnumerationSize returns the number of groundings GenerateGroundings would
// produce for specs, capped just above the database limit. Without a limit,
// a count that overflows int is an error.
func (db *Database) EnumerationSize(specs []VarSpec) (int, error) {
	if len(specs) == 0 {
		return 0, nil
	}
	sizes := make([]int, len(specs))
	for i, s := range specs {
		consts, err := db.constantsFor(s)
		if err != nil {
			return 0, err
		}
		if len(consts) == 0 {
			return 0, nil
		}
		sizes[i] = len(consts)
	}
	n := 1
	for _, k := range sizes {
		if n > math.MaxInt/k {
			if db.limit > 0 {
				return db.limit + 1, nil
			}
			return 0, fmt.Errorf("%w: grounding %v has more than %d groundings", internalerr.ErrInvalidInput, specs, math.MaxInt)
		}
		n *= k
		if db.limit > 0 && n > db.limit {
			return n, nil
		}
	}
	return n, nil
}

// GenerateGroundings returns every grounding extending base with one
// constant for each spec's variable. The first spec varies slowest. Naming a
// variable twice, or a variable already bound by base, breaks the contract.
func (db *Database) GenerateGroundings(base literal.Grounding, specs []VarSpec) ([]literal.Grounding, error) {
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if !literal.IsVariable(s.Var) {
			return nil, fmt.Errorf("%w: %q is not a variable", internalerr.ErrContract, s.Var)
		}
		if _, dup := seen[s.Var]; dup {
			return nil, fmt.Errorf("%w: variable %s listed twice in %v", internalerr.ErrContract, s.Var, specs)
		}
		if _, err := base.Value(s.Var); err == nil {
			return nil, fmt.Errorf("%w: variable %s already grounded in %s", internalerr.ErrContract, s.Var, base)
		}
		seen[s.Var] = struct{}{}
	}

	if len(specs) == 0 {
		if base.Len() == 0 {
			return nil, nil
		}
		return []literal.Grounding{base}, nil
	}

	n, err := db.EnumerationSize(specs)
	if err != nil {
		return nil, err
	}
	if db.limit > 0 && n > db.limit {
		return nil, fmt.Errorf("%w: grounding %v exceeds limit of %d groundings", internalerr.ErrInvalidInput, specs, db.limit)
	}

	consts := make([][]string, len(specs))
	for i, s := range specs {
		if consts[i], err = db.constantsFor(s); err != nil {
			return nil, err
		}
	}

	out := make([]literal.Grounding, 0, n)
	var extend func(g literal.Grounding, i int) error
	extend = func(g literal.Grounding, i int) error {
		if i == len(specs) {
			out = append(out, g)
			return nil
		}
		for _, c := range consts[i] {
			gc, err := g.Extended(literal.Bind(specs[i].Var, c))
			if err != nil {
				return err
			}
			if err := extend(gc, i+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := extend(base, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// FreeVariables returns the population variables of a formula, sorted.
func FreeVariables(formula []literal.Literal) []string {
	set := make(map[string]struct{})
	for _, l := range formula {
		for _, v := range l.PopVariables() {
			set[v] = struct{}{}
		}
	}
	vars := make([]string, 0, len(set))
	for v := range set {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

// Domain returns every grounding of the formula's free variables.
func (db *Database) Domain(formula []literal.Literal) ([]literal.Grounding, error) {
	return db.GenerateGroundings(literal.Grounding{}, Specs(FreeVariables(formula)...))
}

// CountSatisfying tests the conjunction formula against every grounding of
// its free variables. Literals without a concrete value only constrain the
// shape of the groundings and are always satisfied. A formula without free
// variables is tested once, against the empty grounding. The empty formula
// counts as {0, 0}.
func (db *Database) CountSatisfying(formula []literal.Literal) (stats.Count, error) {
	if len(formula) == 0 {
		return stats.Count{}, nil
	}

	var groundings []literal.Grounding
	if vars := FreeVariables(formula); len(vars) == 0 {
		groundings = []literal.Grounding{{}}
	} else {
		var err error
		if groundings, err = db.GenerateGroundings(literal.Grounding{}, Specs(vars...)); err != nil {
			return stats.Count{}, err
		}
	}

	counter := stats.NewCounter()
	for _, g := range groundings {
		ok, err := db.satisfies(formula, g)
		if err != nil {
			return stats.Count{}, err
		}
		counter.Add(ok)
	}
	return counter.Count(), nil
}

func (db *Database) satisfies(formula []literal.Literal, g literal.Grounding) (bool, error) {
	for _, lit := range formula {
		want, ok := lit.Value.Get()
		if !ok {
			continue
		}
		got, err := db.Query(lit, g)
		if err != nil {
			return false, err
		}
		if got != want {
			return false, nil
		}
	}
	return true, nil
}

// Proportion returns the fraction of the formula's groundings that satisfy
// it. The empty formula has proportion 1. A non-empty formula over an empty
// domain fails with ErrNoGroundings.
func (db *Database) Proportion(formula []literal.Literal) (float64, error) {
	if len(formula) == 0 {
		return 1.0, nil
	}
	c, err := db.CountSatisfying(formula)
	if err != nil {
		return 0, err
	}
	p, ok := c.Proportion()
	if !ok {
		return 0, fmt.Errorf("%w: formula %v", internalerr.ErrNoGroundings, formula)
	}
	return p, nil
}
