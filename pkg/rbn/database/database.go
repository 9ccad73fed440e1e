// Package database holds the ground facts a relational Bayes net is evaluated
// against, together with the functor ranges and the populations the net's
// variables are drawn from. It answers point queries and counts the
// groundings that satisfy a conjunctive formula.
package database

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
)

// Values of the boolean range.
const (
	True  = "T"
	False = "F"
)

// BooleanRange is the range of predicates.
var BooleanRange = []string{True, False}

// ClosedWorldDefault is the value read for a predicate fact missing from the
// database: absent boolean facts are false. Missing facts of any other
// functor are lookup failures.
const ClosedWorldDefault = False

// FunctorRange declares a functor's value domain.
type FunctorRange struct {
	Functor string
	Values  []string
}

// Options configures a Database
type Options struct {
	Facts       []literal.Literal
	Ranges      []FunctorRange
	Populations Populations

	// VariablePopulations assigns variables to named populations for
	// formulas that do not say which population a variable is drawn from.
	VariablePopulations map[string]string

	// Empty skips the integrity check. Used for databases that only carry
	// ranges and populations, such as the ones built to ground a template.
	Empty bool

	// MaxGroundings bounds the size of any grounding enumeration. Zero
	// means unlimited.
	MaxGroundings int
}

// Database is an immutable collection of ground facts.
type Database struct {
	facts   *factIndex
	ranges  []FunctorRange
	byName  map[string][]string
	pops    Populations
	varPops map[string]string
	empty   bool
	limit   int
}

// New builds a database and checks its integrity unless opts.Empty is set.
func New(opts Options) (*Database, error) {
	db := &Database{
		facts:   newFactIndex(),
		byName:  make(map[string][]string, len(opts.Ranges)),
		pops:    opts.Populations,
		varPops: make(map[string]string, len(opts.VariablePopulations)),
		empty:   opts.Empty,
		limit:   opts.MaxGroundings,
	}

	for _, fr := range opts.Ranges {
		if fr.Functor == "" {
			return nil, fmt.Errorf("%w: functor range without a functor", internalerr.ErrInvalidInput)
		}
		if _, dup := db.byName[fr.Functor]; dup {
			return nil, fmt.Errorf("%w: functor %s declared twice", internalerr.ErrIntegrity, fr.Functor)
		}
		if len(fr.Values) == 0 {
			return nil, fmt.Errorf("%w: functor %s has an empty range", internalerr.ErrIntegrity, fr.Functor)
		}
		vals := append([]string(nil), fr.Values...)
		db.ranges = append(db.ranges, FunctorRange{Functor: fr.Functor, Values: vals})
		db.byName[fr.Functor] = vals
	}
	for v, p := range opts.VariablePopulations {
		db.varPops[v] = p
	}

	for _, f := range opts.Facts {
		if !f.Value.IsBound() {
			return nil, fmt.Errorf("%w: fact %s has no value", internalerr.ErrIntegrity, f)
		}
		for _, a := range f.Args {
			if !literal.IsConstant(a) {
				return nil, fmt.Errorf("%w: fact %s is not ground", internalerr.ErrIntegrity, f)
			}
		}
		if prev, dup := db.facts.insert(f); dup && prev.Value != f.Value {
			return nil, fmt.Errorf("%w: conflicting facts %s and %s", internalerr.ErrIntegrity, prev, f)
		}
	}

	if err := db.checkIntegrity(); err != nil {
		return nil, err
	}
	return db, nil
}

// checkIntegrity verifies that
//   - the constants used by facts are exactly the declared constants,
//   - the functors used by facts plus the predicates are exactly the
//     declared functors,
//   - every fact's value lies in its functor's range.
func (db *Database) checkIntegrity() error {
	if db.empty {
		return nil
	}

	constsUsed := make(map[string]struct{})
	functorsUsed := make(map[string]struct{})
	var err error
	db.facts.ascend(func(f literal.Literal) bool {
		functorsUsed[f.Functor] = struct{}{}
		for _, c := range f.Args {
			constsUsed[c] = struct{}{}
		}
		rng, ok := db.byName[f.Functor]
		if !ok {
			err = fmt.Errorf("%w: fact %s uses undeclared functor", internalerr.ErrIntegrity, f)
			return false
		}
		v, _ := f.Value.Get()
		if !contains(rng, v) {
			err = fmt.Errorf("%w: fact %s value not in range %v", internalerr.ErrIntegrity, f, rng)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}

	declared := db.pops.All()
	if missing, extra := diff(keys(constsUsed), declared); len(missing)+len(extra) > 0 {
		return fmt.Errorf("%w: constants used by facts %v not declared, declared constants %v not used",
			internalerr.ErrIntegrity, missing, extra)
	}

	for _, fr := range db.ranges {
		if IsBoolean(fr.Values) {
			functorsUsed[fr.Functor] = struct{}{}
		}
	}
	if _, extra := diff(keys(functorsUsed), db.FunctorSet()); len(extra) > 0 {
		return fmt.Errorf("%w: non-predicate functors %v have no facts", internalerr.ErrIntegrity, extra)
	}
	return nil
}

// IsBoolean reports whether a range is the predicate range {T, F}.
func IsBoolean(rng []string) bool {
	return len(rng) == 2 &&
		((rng[0] == True && rng[1] == False) || (rng[0] == False && rng[1] == True))
}

// IsEmpty reports whether the database was built without an integrity check.
func (db *Database) IsEmpty() bool { return db.empty }

// Len returns the number of stored facts.
func (db *Database) Len() int { return db.facts.len() }

// Facts returns the stored facts in term order.
func (db *Database) Facts() []literal.Literal {
	out := make([]literal.Literal, 0, db.facts.len())
	db.facts.ascend(func(f literal.Literal) bool {
		out = append(out, f)
		return true
	})
	return out
}

// FactsFor returns the stored facts of one functor in argument order.
func (db *Database) FactsFor(functor string) []literal.Literal {
	var out []literal.Literal
	db.facts.forFunctor(functor, func(f literal.Literal) bool {
		out = append(out, f)
		return true
	})
	return out
}

// Ranges returns the declared functor ranges in declaration order.
func (db *Database) Ranges() []FunctorRange {
	out := make([]FunctorRange, len(db.ranges))
	for i, fr := range db.ranges {
		out[i] = FunctorRange{Functor: fr.Functor, Values: append([]string(nil), fr.Values...)}
	}
	return out
}

// Populations returns the declared populations.
func (db *Database) Populations() Populations { return db.pops }

// VariablePopulations returns a copy of the variable to population
// assignments the database was built with.
func (db *Database) VariablePopulations() map[string]string {
	out := make(map[string]string, len(db.varPops))
	for v, p := range db.varPops {
		out[v] = p
	}
	return out
}

// FunctorRange returns the declared value domain of a functor.
func (db *Database) FunctorRange(functor string) ([]string, error) {
	rng, ok := db.byName[functor]
	if !ok {
		return nil, fmt.Errorf("%w: functor %s not declared", internalerr.ErrLookup, functor)
	}
	return append([]string(nil), rng...), nil
}

// FunctorSet returns the declared functors, sorted.
func (db *Database) FunctorSet() []string {
	out := make([]string, 0, len(db.ranges))
	for _, fr := range db.ranges {
		out = append(out, fr.Functor)
	}
	sort.Strings(out)
	return out
}

// HasFunctor reports whether a functor is declared.
func (db *Database) HasFunctor(functor string) bool {
	_, ok := db.byName[functor]
	return ok
}

// RangeSize returns the cardinality of a functor's range.
func (db *Database) RangeSize(functor string) (int, error) {
	rng, ok := db.byName[functor]
	if !ok {
		return 0, fmt.Errorf("%w: functor %s not declared", internalerr.ErrLookup, functor)
	}
	return len(rng), nil
}

// OtherValue returns the complement of v in a binary range.
func (db *Database) OtherValue(functor, v string) (string, error) {
	rng, ok := db.byName[functor]
	if !ok {
		return "", fmt.Errorf("%w: functor %s not declared", internalerr.ErrLookup, functor)
	}
	if len(rng) != 2 {
		return "", fmt.Errorf("%w: functor %s range %v is not binary", internalerr.ErrContract, functor, rng)
	}
	switch v {
	case rng[0]:
		return rng[1], nil
	case rng[1]:
		return rng[0], nil
	}
	return "", fmt.Errorf("%w: value %q not in functor range of %s", internalerr.ErrLookup, v, functor)
}

// DefaultProb is the probability of any one value under a uniform
// distribution over the functor's range.
func (db *Database) DefaultProb(functor string) (float64, error) {
	n, err := db.RangeSize(functor)
	if err != nil {
		return 0, err
	}
	return 1.0 / float64(n), nil
}

// LookupValue returns the stored value for a ground term. The value carried
// by the argument is ignored. Missing predicate facts read as
// ClosedWorldDefault.
func (db *Database) LookupValue(ground literal.Literal) (string, error) {
	if f, ok := db.facts.get(ground); ok {
		v, _ := f.Value.Get()
		return v, nil
	}
	rng, err := db.FunctorRange(ground.Functor)
	if err != nil {
		return "", err
	}
	if IsBoolean(rng) {
		return ClosedWorldDefault, nil
	}
	return "", fmt.Errorf("%w: functor not grounded in database: %s", internalerr.ErrLookup, ground.TermKey())
}

// Query returns the value of lit under grounding g.
func (db *Database) Query(lit literal.Literal, g literal.Grounding) (string, error) {
	gl, err := g.GroundLiteral(lit)
	if err != nil {
		return "", err
	}
	return db.LookupValue(gl)
}

// FillValue returns a copy of lit carrying the database value of its term
// under g. The arguments of the copy are those of lit.
func (db *Database) FillValue(lit literal.Literal, g literal.Grounding) (literal.Literal, error) {
	v, err := db.Query(lit, g)
	if err != nil {
		return literal.Literal{}, err
	}
	return lit.With(v), nil
}

func (db *Database) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Database(%d facts, functors %v", db.facts.len(), db.FunctorSet())
	if db.pops.IsNamed() {
		fmt.Fprintf(&b, ", populations %v)", db.pops.Names())
	} else {
		fmt.Fprintf(&b, ", constants %v)", db.pops.All())
	}
	return b.String()
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// diff compares two sorted sets, returning the members only in a and those
// only in b.
func diff(a, b []string) (onlyA, onlyB []string) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			i++
			j++
		case a[i] < b[j]:
			onlyA = append(onlyA, a[i])
			i++
		default:
			onlyB = append(onlyB, b[j])
			j++
		}
	}
	onlyA = append(onlyA, a[i:]...)
	onlyB = append(onlyB, b[j:]...)
	return onlyA, onlyB
}
