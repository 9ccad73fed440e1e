package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/bayesnet"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/cpt"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/database"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/store"
)

// Dataset represents a dataset file: ranges, populations, facts, a
// template net and rules
type Dataset struct {
	FunctorRanges       []RangeSpec                   `yaml:"functor_ranges"`
	Populations         PopulationSpec                `yaml:"populations"`
	VariablePopulations map[string]string             `yaml:"variable_populations"`
	Facts               []string                      `yaml:"facts"`
	Template            map[string]bayesnet.Adjacency `yaml:"template"`
	Rules               []string                      `yaml:"rules"`
}

// RangeSpec declares one functor range
type RangeSpec struct {
	Functor string   `yaml:"functor"`
	Values  []string `yaml:"values"`
}

// PopulationSpec is either a flat list of constants or a map from
// population name to constants.
type PopulationSpec struct {
	Flat  []string
	Named map[string][]string
}

// UnmarshalYAML accepts a sequence or a mapping.
func (p *PopulationSpec) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.SequenceNode:
		p.Named = nil
		return n.Decode(&p.Flat)
	case yaml.MappingNode:
		p.Flat = nil
		return n.Decode(&p.Named)
	}
	return fmt.Errorf("%w: line %d: populations must be a list or a map", internalerr.ErrInvalidInput, n.Line)
}

// UnmarshalJSON accepts an array or an object.
func (p *PopulationSpec) UnmarshalJSON(data []byte) error {
	var flat []string
	if err := json.Unmarshal(data, &flat); err == nil {
		p.Flat, p.Named = flat, nil
		return nil
	}
	var named map[string][]string
	if err := json.Unmarshal(data, &named); err != nil {
		return fmt.Errorf("%w: populations must be a list or an object", internalerr.ErrInvalidInput)
	}
	p.Flat, p.Named = nil, named
	return nil
}

// Populations converts the spec.
func (p PopulationSpec) Populations() database.Populations {
	if p.Named != nil {
		return database.NamedPopulations(p.Named)
	}
	return database.FlatPopulation(p.Flat...)
}

// LoadDataset loads a dataset from a YAML file
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Import parses the dataset's textual parts and writes everything into s.
func (d *Dataset) Import(ctx context.Context, s store.Store) error {
	for _, r := range d.FunctorRanges {
		if err := s.PutRange(ctx, database.FunctorRange{Functor: r.Functor, Values: r.Values}); err != nil {
			return fmt.Errorf("range %s: %w", r.Functor, err)
		}
	}

	if d.Populations.Named != nil {
		for name, consts := range d.Populations.Named {
			if name == store.FlatPopulation {
				return fmt.Errorf("%w: population without a name", internalerr.ErrInvalidInput)
			}
			if err := s.PutPopulation(ctx, name, consts); err != nil {
				return fmt.Errorf("population %s: %w", name, err)
			}
		}
	} else if err := s.PutPopulation(ctx, store.FlatPopulation, d.Populations.Flat); err != nil {
		return fmt.Errorf("population: %w", err)
	}

	for i, text := range d.Facts {
		f, err := literal.Parse(text)
		if err != nil {
			return fmt.Errorf("fact %d: %w", i+1, err)
		}
		if err := s.PutFact(ctx, f); err != nil {
			return fmt.Errorf("fact %d: %w", i+1, err)
		}
	}

	for name, adj := range d.Template {
		if err := s.PutNode(ctx, name, adj); err != nil {
			return fmt.Errorf("node %s: %w", name, err)
		}
	}

	rules, err := cpt.ParseRules(d.Rules)
	if err != nil {
		return err
	}
	for _, cp := range rules {
		if err := s.PutRule(ctx, cp); err != nil {
			return err
		}
	}
	return nil
}

// Server represents the server configuration
type Server struct {
	Addr           string  `yaml:"addr"`
	MetricsAddr    string  `yaml:"metrics_addr"`
	MaxConnections int     `yaml:"max_connections"`
	Limits         Limits  `yaml:"limits"`
	UniformDefault bool    `yaml:"uniform_default"`
	Smoothing      float64 `yaml:"smoothing"`

	// Dataset or SQLite optionally names a dataset whose template and
	// ranges are defined at startup.
	Dataset string `yaml:"dataset"`
	SQLite  string `yaml:"sqlite"`
}

// Limits bounds the work a single request may do
type Limits struct {
	MaxGroundings int `yaml:"max_groundings"`
}

// DefaultServer returns the settings used when no server file is given.
func DefaultServer() *Server {
	return &Server{
		Addr:           "0.0.0.0:2500",
		MaxConnections: 64,
		Limits:         Limits{MaxGroundings: 1 << 20},
	}
}

// LoadServer loads server settings from a YAML file. Unset fields keep
// their defaults.
func LoadServer(path string) (*Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	srv := DefaultServer()
	if err := yaml.Unmarshal(data, srv); err != nil {
		return nil, err
	}
	if srv.Smoothing < 0 {
		return nil, fmt.Errorf("%w: smoothing %v is negative", internalerr.ErrInvalidInput, srv.Smoothing)
	}
	if srv.MaxConnections < 0 || srv.Limits.MaxGroundings < 0 {
		return nil, fmt.Errorf("%w: limits must not be negative", internalerr.ErrInvalidInput)
	}
	return srv, nil
}
