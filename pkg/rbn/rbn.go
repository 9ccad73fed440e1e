// Package rbn evaluates relational Bayes nets against relational databases
// under random-selection semantics.
//
// A Model bundles a checked database, a template net and optional rules for
// the batch computations: CPT estimation, joint probability tables, grounding
// and Gibbs evaluation of a Markov blanket. A Session holds the template a
// server grounds on request.
package rbn

import (
	"fmt"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/bayesnet"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/blanket"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/cpt"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/database"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/joint"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/stats"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/store"
)

// Error kinds, re-exported for callers of the facade.
var (
	ErrIntegrity          = internalerr.ErrIntegrity
	ErrLookup             = internalerr.ErrLookup
	ErrIncompatible       = internalerr.ErrIncompatible
	ErrMissingProbability = internalerr.ErrMissingProbability
	ErrNoGroundings       = internalerr.ErrNoGroundings
	ErrInvalidInput       = internalerr.ErrInvalidInput
	ErrNoSession          = internalerr.ErrNoSession
)

// Model is a template net bound to a database
type Model struct {
	db    *database.Database
	net   *bayesnet.Net
	rules []cpt.CP
	calc  *stats.Calculator
	opts  Options
}

// Options configures a Model
type Options struct {
	// Smoothing is the additive constant of CPT estimation. Zero gives
	// maximum likelihood estimates.
	Smoothing float64
	// UniformDefault lets the joint table fall back to 1/|range| for
	// nodes no rule covers.
	UniformDefault bool
}

// New binds a dataset's template to its database. Every functor of the
// template must have a declared range.
func New(ds *store.Dataset, opts Options) (*Model, error) {
	if ds == nil || ds.Database == nil || ds.Net == nil {
		return nil, fmt.Errorf("%w: dataset needs a database and a template", internalerr.ErrContract)
	}
	if missing := ds.Net.MissingFunctors(ds.Database); len(missing) > 0 {
		return nil, fmt.Errorf("%w: template functors %v have no declared range", internalerr.ErrIncompatible, missing)
	}
	return &Model{
		db:    ds.Database,
		net:   ds.Net,
		rules: ds.Rules,
		calc:  stats.NewCalculator(opts.Smoothing),
		opts:  opts,
	}, nil
}

// Database returns the model's database.
func (m *Model) Database() *database.Database { return m.db }

// Net returns the model's template.
func (m *Model) Net() *bayesnet.Net { return m.net }

// Rules returns the rules the model was given.
func (m *Model) Rules() []cpt.CP { return m.rules }

// Options returns the options the model was built with.
func (m *Model) Options() Options { return m.opts }

// Estimate returns every node's estimated CPT rows, node by node, parents in
// each node's parent order.
func (m *Model) Estimate() ([]cpt.CP, error) {
	var out []cpt.CP
	for _, n := range m.net.Nodes() {
		cps, err := n.EstimateCPT(m.db, m.calc)
		if err != nil {
			return nil, err
		}
		out = append(out, cps...)
	}
	return out, nil
}

// Thetas returns the estimated CPTs as one table.
func (m *Model) Thetas() (*cpt.Table, error) {
	return m.net.Thetas(m.db, m.calc)
}

// Joint computes the joint probability table. The model's rules are used
// when it has any, the estimated CPTs otherwise.
func (m *Model) Joint() (*joint.Report, error) {
	rules := m.rules
	if len(rules) == 0 {
		var err error
		if rules, err = m.Estimate(); err != nil {
			return nil, err
		}
	}
	return joint.Probabilities(m.db, rules, m.net, joint.Options{UniformDefault: m.opts.UniformDefault})
}

// Ground instantiates the template over the database's populations.
func (m *Model) Ground(specs []database.VarSpec) (*bayesnet.SerializedGraph, error) {
	return m.net.Ground(m.db, specs)
}

// Gibbs checks b against the template and returns the product of its
// estimated conditional probabilities.
func (m *Model) Gibbs(b blanket.Blanket) (float64, error) {
	if err := blanket.IsCompatible(m.net, b); err != nil {
		return 0, err
	}
	table, err := m.Thetas()
	if err != nil {
		return 0, err
	}
	return blanket.Gibbs(table, b)
}
