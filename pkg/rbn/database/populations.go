package database

import (
	"fmt"
	"sort"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
)

// Populations holds the constants that population variables range over:
// either one flat list used by every variable, or named populations.
type Populations struct {
	flat  []string
	named map[string][]string
}

// FlatPopulation returns a single implicit population.
func FlatPopulation(constants ...string) Populations {
	return Populations{flat: append([]string(nil), constants...)}
}

// NamedPopulations returns populations keyed by name.
func NamedPopulations(pops map[string][]string) Populations {
	named := make(map[string][]string, len(pops))
	for name, consts := range pops {
		named[name] = append([]string(nil), consts...)
	}
	return Populations{named: named}
}

// IsNamed reports whether the populations are keyed by name.
func (p Populations) IsNamed() bool { return p.named != nil }

// Names returns the population names in sorted order; nil for a flat
// population.
func (p Populations) Names() []string {
	if p.named == nil {
		return nil
	}
	names := make([]string, 0, len(p.named))
	for n := range p.named {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Flat returns the single implicit population.
func (p Populations) Flat() []string {
	return append([]string(nil), p.flat...)
}

// Named returns the constants of a named population.
func (p Populations) Named(name string) ([]string, error) {
	consts, ok := p.named[name]
	if !ok {
		return nil, fmt.Errorf("%w: population %q not declared", internalerr.ErrLookup, name)
	}
	return append([]string(nil), consts...), nil
}

// All returns the union of every population's constants, sorted.
func (p Populations) All() []string {
	if p.named == nil {
		out := p.Flat()
		sort.Strings(out)
		return dedup(out)
	}
	var out []string
	for _, consts := range p.named {
		out = append(out, consts...)
	}
	sort.Strings(out)
	return dedup(out)
}

// Size returns the number of constants a variable drawn from pop ranges
// over.
func (p Populations) Size(pop string) (int, error) {
	c, err := p.constants(pop)
	return len(c), err
}

// constants resolves a population reference. The empty name refers to the
// flat population, or to the only population when exactly one is named.
func (p Populations) constants(pop string) ([]string, error) {
	if pop != "" {
		if p.named == nil {
			return nil, fmt.Errorf("%w: population %q not declared (single flat population)", internalerr.ErrLookup, pop)
		}
		consts, ok := p.named[pop]
		if !ok {
			return nil, fmt.Errorf("%w: population %q not declared", internalerr.ErrLookup, pop)
		}
		return consts, nil
	}
	if p.named == nil {
		return p.flat, nil
	}
	if len(p.named) == 1 {
		for _, consts := range p.named {
			return consts, nil
		}
	}
	return nil, fmt.Errorf("%w: variable needs a population name, %d populations declared", internalerr.ErrLookup, len(p.named))
}

func dedup(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, s := range sorted[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
