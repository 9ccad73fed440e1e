// Package store persists the inputs of an evaluation: functor ranges,
// populations, facts, a template net and conditional probability rules.
// Load turns a store's contents into engine values; Save writes them back.
package store

import (
	"context"
	"fmt"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/bayesnet"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/cpt"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/database"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
)

// FlatPopulation is the population name under which a store keeps the
// single implicit population.
const FlatPopulation = ""

// Store is the interface for persisting and reading back a dataset.
type Store interface {
	Close() error

	// PutRange declares a functor range. Re-declaring a functor replaces
	// its values but keeps its declaration position.
	PutRange(ctx context.Context, fr database.FunctorRange) error
	// PutPopulation replaces the constants of a population. The name
	// FlatPopulation stores the single implicit population.
	PutPopulation(ctx context.Context, name string, constants []string) error
	// PutFact stores a ground fact, replacing any value stored for its term.
	PutFact(ctx context.Context, f literal.Literal) error
	// PutNode stores one template node under its name.
	PutNode(ctx context.Context, name string, adj bayesnet.Adjacency) error
	// PutRule appends a rule.
	PutRule(ctx context.Context, cp cpt.CP) error

	Ranges(ctx context.Context) ([]database.FunctorRange, error)
	Populations(ctx context.Context) (database.Populations, error)
	Facts(ctx context.Context) ([]literal.Literal, error)
	Template(ctx context.Context) (map[string]bayesnet.Adjacency, error)
	Rules(ctx context.Context) ([]cpt.CP, error)
}

// Dataset is a store's contents as engine values.
type Dataset struct {
	Database *database.Database
	Net      *bayesnet.Net
	Rules    []cpt.CP
}

// LoadOptions carries the database settings that are not stored.
type LoadOptions struct {
	VariablePopulations map[string]string
	MaxGroundings       int
}

// Load reads every part of s and builds a checked database, the template
// net and the rules. A store without template nodes yields an empty net.
func Load(ctx context.Context, s Store, opts LoadOptions) (*Dataset, error) {
	ranges, err := s.Ranges(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ranges: %w", err)
	}
	pops, err := s.Populations(ctx)
	if err != nil {
		return nil, fmt.Errorf("read populations: %w", err)
	}
	facts, err := s.Facts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read facts: %w", err)
	}
	db, err := database.New(database.Options{
		Facts:               facts,
		Ranges:              ranges,
		Populations:         pops,
		VariablePopulations: opts.VariablePopulations,
		MaxGroundings:       opts.MaxGroundings,
	})
	if err != nil {
		return nil, fmt.Errorf("build database: %w", err)
	}

	adj, err := s.Template(ctx)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	sg, err := bayesnet.FromAdjacency(adj)
	if err != nil {
		return nil, fmt.Errorf("build template: %w", err)
	}
	net, err := bayesnet.LoadNet(sg)
	if err != nil {
		return nil, fmt.Errorf("build template: %w", err)
	}

	rules, err := s.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return &Dataset{Database: db, Net: net, Rules: rules}, nil
}

// Save writes d into s. A nil net or database part is skipped.
func Save(ctx context.Context, s Store, d *Dataset) error {
	if d.Database != nil {
		for _, fr := range d.Database.Ranges() {
			if err := s.PutRange(ctx, fr); err != nil {
				return fmt.Errorf("write range %s: %w", fr.Functor, err)
			}
		}
		pops := d.Database.Populations()
		if pops.IsNamed() {
			for _, name := range pops.Names() {
				consts, _ := pops.Named(name)
				if err := s.PutPopulation(ctx, name, consts); err != nil {
					return fmt.Errorf("write population %s: %w", name, err)
				}
			}
		} else if err := s.PutPopulation(ctx, FlatPopulation, pops.Flat()); err != nil {
			return fmt.Errorf("write population: %w", err)
		}
		for _, f := range d.Database.Facts() {
			if err := s.PutFact(ctx, f); err != nil {
				return fmt.Errorf("write fact %s: %w", f, err)
			}
		}
	}
	if d.Net != nil {
		for name, adj := range d.Net.Serialize().Adjacency() {
			if err := s.PutNode(ctx, name, adj); err != nil {
				return fmt.Errorf("write node %s: %w", name, err)
			}
		}
	}
	for _, cp := range d.Rules {
		if err := s.PutRule(ctx, cp); err != nil {
			return fmt.Errorf("write rule %s: %w", cp, err)
		}
	}
	return nil
}

// BuildPopulations turns stored population rows into Populations. Mixing
// the flat population with named ones is an integrity violation.
func BuildPopulations(rows map[string][]string) (database.Populations, error) {
	flat, hasFlat := rows[FlatPopulation]
	if hasFlat && len(rows) > 1 {
		return database.Populations{}, fmt.Errorf("%w: flat population stored alongside named populations", internalerr.ErrIntegrity)
	}
	if hasFlat || len(rows) == 0 {
		return database.FlatPopulation(flat...), nil
	}
	return database.NamedPopulations(rows), nil
}

// ValidateFact checks a fact before it is stored.
func ValidateFact(f literal.Literal) error {
	if !f.Value.IsBound() {
		return fmt.Errorf("%w: fact %s has no value", internalerr.ErrInvalidInput, f)
	}
	for _, a := range f.Args {
		if !literal.IsConstant(a) {
			return fmt.Errorf("%w: fact %s is not ground", internalerr.ErrInvalidInput, f)
		}
	}
	return nil
}
