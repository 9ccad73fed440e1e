package config

import (
	"context"
	"fmt"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/store"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/store/memstore"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/store/sqlite"
)

// Loader loads all configuration files and constructs components
type Loader struct {
	DatasetPath string
	SQLitePath  string
	ServerPath  string
}

// Components holds all loaded configuration components
type Components struct {
	Server  *Server
	Dataset *store.Dataset // nil when no dataset was named
}

// Load reads all configuration files and returns initialized components.
// A SQLite dataset takes precedence over a YAML one.
func (l *Loader) Load(ctx context.Context) (*Components, error) {
	comp := &Components{}

	// Load server settings
	if l.ServerPath != "" {
		srv, err := LoadServer(l.ServerPath)
		if err != nil {
			return nil, fmt.Errorf("load server config: %w", err)
		}
		comp.Server = srv
	} else {
		comp.Server = DefaultServer()
	}

	opts := store.LoadOptions{MaxGroundings: comp.Server.Limits.MaxGroundings}
	switch {
	case l.SQLitePath != "":
		ds, err := loadSQLite(ctx, l.SQLitePath, opts)
		if err != nil {
			return nil, fmt.Errorf("load sqlite dataset: %w", err)
		}
		comp.Dataset = ds

	case l.DatasetPath != "":
		d, err := LoadDataset(l.DatasetPath)
		if err != nil {
			return nil, fmt.Errorf("load dataset: %w", err)
		}
		ds, err := d.Build(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("load dataset: %w", err)
		}
		comp.Dataset = ds
	}

	return comp, nil
}

// Build imports d into an in-memory store and loads it back as engine
// values.
func (d *Dataset) Build(ctx context.Context, opts store.LoadOptions) (*store.Dataset, error) {
	s := memstore.New()
	if err := d.Import(ctx, s); err != nil {
		return nil, err
	}
	if opts.VariablePopulations == nil {
		opts.VariablePopulations = d.VariablePopulations
	}
	return store.Load(ctx, s, opts)
}

func loadSQLite(ctx context.Context, path string, opts store.LoadOptions) (*store.Dataset, error) {
	s, err := sqlite.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return store.Load(ctx, s, opts)
}
