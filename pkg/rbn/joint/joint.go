// Package joint computes random-selection joint probabilities of a template
// net: for each grounding of the net's variables, the product of every
// node's conditional probability given the database values of its family.
package joint

import (
	"fmt"
	"math"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/bayesnet"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/cpt"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/database"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/stats"
)

// Options controls how missing rules are handled.
type Options struct {
	// UniformDefault substitutes 1/|range| for a node no rule covers.
	UniformDefault bool
}

// NodeProb is one node of a row: the node literal with its database value
// and the probability assigned to it.
type NodeProb struct {
	Literal literal.Literal
	Prob    float64
}

// Row is the joint probability of one grounding.
type Row struct {
	Grounding literal.Grounding
	Nodes     []NodeProb
	Joint     float64
	Log       float64
}

// Probability evaluates net under grounding g. Each node is filled with its
// database value, its parents likewise, and the pair is matched against
// rules.
func Probability(net *bayesnet.Net, db *database.Database, g literal.Grounding, rules []cpt.CP, opts Options) (Row, error) {
	row := Row{Grounding: g, Joint: 1.0}
	for _, n := range net.Nodes() {
		gn, err := db.FillValue(n.Literal(), g)
		if err != nil {
			return Row{}, fmt.Errorf("node %s: %w", n.Name(), err)
		}
		parents := n.ParentLiterals()
		gps := make([]literal.Literal, len(parents))
		for i, p := range parents {
			if gps[i], err = db.FillValue(p, g); err != nil {
				return Row{}, fmt.Errorf("node %s parent %s: %w", n.Name(), p.TermKey(), err)
			}
		}

		p, ok, err := cpt.Match(rules, db, gn, gps)
		if err != nil {
			return Row{}, err
		}
		if !ok {
			if !opts.UniformDefault {
				return Row{}, fmt.Errorf("%w: no rule for %s (grounded by %s)",
					internalerr.ErrMissingProbability, cpt.NewFormula(gn, gps...), g)
			}
			if p, err = db.DefaultProb(gn.Functor); err != nil {
				return Row{}, err
			}
		}
		row.Nodes = append(row.Nodes, NodeProb{Literal: gn, Prob: p})
		row.Joint *= p
	}
	row.Log = stats.Log(row.Joint)
	return row, nil
}

// Report is the joint probability table of a net: its variables, the atom
// names of the node columns and one row per grounding.
type Report struct {
	Variables []string
	Atoms     []string
	Rows      []Row
}

// Probabilities evaluates net under every grounding of its variables.
func Probabilities(db *database.Database, rules []cpt.CP, net *bayesnet.Net, opts Options) (*Report, error) {
	vars := net.VariableList()
	groundings, err := db.GenerateGroundings(literal.Grounding{}, database.Specs(vars...))
	if err != nil {
		return nil, err
	}

	r := &Report{Variables: vars}
	for _, g := range groundings {
		row, err := Probability(net, db, g, rules, opts)
		if err != nil {
			return nil, err
		}
		r.Rows = append(r.Rows, row)
	}
	if len(r.Rows) > 0 {
		for _, np := range r.Rows[0].Nodes {
			r.Atoms = append(r.Atoms, np.Literal.TermKey())
		}
	}
	return r, nil
}

// PseudoLogLikelihood is the mean of the rows' log probabilities.
func (r *Report) PseudoLogLikelihood() (float64, error) {
	logs := make([]float64, len(r.Rows))
	for i, row := range r.Rows {
		logs[i] = row.Log
	}
	m, ok := stats.MeanLog(logs)
	if !ok {
		return math.NaN(), fmt.Errorf("%w: empty joint table", internalerr.ErrNoGroundings)
	}
	return m, nil
}
