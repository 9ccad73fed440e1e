package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/store/memstore"
)

const table1YAML = `functor_ranges:
  - functor: F
    values: [T, F]
  - functor: g
    values: [M, W]
  - functor: cd
    values: [T, F]

populations: [anna, bob]

facts:
  - F(anna,bob)=T
  - F(bob,anna)=T
  - g(bob)=M
  - g(anna)=W
  - cd(anna)=T

template:
  g(Y):   {functor: g, args: [Y]}
  F(X,Y): {functor: F, args: [X, Y]}
  g(X):   {functor: g, args: [X], parents: ["g(Y)", "F(X,Y)"]}
  cd(X):  {functor: cd, args: [X], parents: ["g(X)"]}

rules:
  - P(g(Y)=M) = 0.5
  - P(F(X,Y)=T) = 0.1
  - "# gender follows friends"
  - P(g(X)=W | g(Y)=W, F(X,Y)=T) = 0.7
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDataset(t *testing.T) {
	ds, err := LoadDataset(writeFile(t, "table1.yaml", table1YAML))
	if err != nil {
		t.Fatalf("Failed to load dataset: %v", err)
	}

	if len(ds.FunctorRanges) != 3 || ds.FunctorRanges[0].Functor != "F" {
		t.Errorf("Unexpected ranges: %v", ds.FunctorRanges)
	}
	if ds.FunctorRanges[0].Values[1] != "F" {
		t.Errorf("Expected the value F to stay a string, got %v", ds.FunctorRanges[0].Values)
	}
	if len(ds.Populations.Flat) != 2 || ds.Populations.Named != nil {
		t.Errorf("Expected flat population, got %+v", ds.Populations)
	}
	if len(ds.Facts) != 5 {
		t.Errorf("Expected 5 facts, got %d", len(ds.Facts))
	}
	if len(ds.Template) != 4 {
		t.Errorf("Expected 4 template nodes, got %d", len(ds.Template))
	}
	if p := ds.Template["g(X)"].Parents; len(p) != 2 || p[0] != "g(Y)" {
		t.Errorf("Unexpected parents of g(X): %v", p)
	}
	if len(ds.Rules) != 4 {
		t.Errorf("Expected 4 rule lines, got %d", len(ds.Rules))
	}
}

func TestLoadDatasetNamedPopulations(t *testing.T) {
	content := `populations:
  bands: [queen, abba]
  songs: [s1]
variable_populations:
  B: bands
`
	ds, err := LoadDataset(writeFile(t, "pops.yaml", content))
	if err != nil {
		t.Fatalf("Failed to load dataset: %v", err)
	}
	if ds.Populations.Flat != nil || len(ds.Populations.Named) != 2 {
		t.Fatalf("Expected named populations, got %+v", ds.Populations)
	}
	if ds.VariablePopulations["B"] != "bands" {
		t.Errorf("Unexpected variable populations: %v", ds.VariablePopulations)
	}
	pops := ds.Populations.Populations()
	if !pops.IsNamed() || len(pops.Names()) != 2 {
		t.Errorf("Unexpected populations: %v", pops.Names())
	}
}

func TestLoadDatasetBadPopulations(t *testing.T) {
	_, err := LoadDataset(writeFile(t, "bad.yaml", "populations: anna\n"))
	if !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestPopulationSpecJSON(t *testing.T) {
	var p PopulationSpec
	if err := json.Unmarshal([]byte(`["a","b"]`), &p); err != nil {
		t.Fatal(err)
	}
	if len(p.Flat) != 2 || p.Named != nil {
		t.Errorf("list: %+v", p)
	}

	if err := json.Unmarshal([]byte(`{"bands":["queen"],"songs":[]}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Flat != nil || len(p.Named) != 2 {
		t.Errorf("object: %+v", p)
	}

	if err := json.Unmarshal([]byte(`"anna"`), &p); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestImport(t *testing.T) {
	ds, err := LoadDataset(writeFile(t, "table1.yaml", table1YAML))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	s := memstore.New()
	if err := ds.Import(ctx, s); err != nil {
		t.Fatalf("Import: %v", err)
	}

	facts, _ := s.Facts(ctx)
	if len(facts) != 5 {
		t.Errorf("Expected 5 facts, got %d", len(facts))
	}
	rules, _ := s.Rules(ctx)
	if len(rules) != 3 {
		t.Errorf("Expected 3 rules, comment skipped, got %d", len(rules))
	}
	nodes, _ := s.Template(ctx)
	if len(nodes) != 4 {
		t.Errorf("Expected 4 nodes, got %d", len(nodes))
	}
}

func TestImportErrors(t *testing.T) {
	tests := []struct {
		name string
		ds   Dataset
	}{
		{"bad fact", Dataset{Facts: []string{"g(anna"}}},
		{"non-ground fact", Dataset{Facts: []string{"g(X)=W"}}},
		{"bad rule", Dataset{Rules: []string{"g(X)=W"}}},
		{"unnamed population", Dataset{Populations: PopulationSpec{Named: map[string][]string{"": {"a"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ds.Import(context.Background(), memstore.New())
			if !errors.Is(err, internalerr.ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestLoadServer(t *testing.T) {
	content := `addr: 127.0.0.1:9000
metrics_addr: 127.0.0.1:9100
limits:
  max_groundings: 1000
uniform_default: true
smoothing: 0.5
`
	srv, err := LoadServer(writeFile(t, "server.yaml", content))
	if err != nil {
		t.Fatalf("Failed to load server config: %v", err)
	}
	if srv.Addr != "127.0.0.1:9000" || srv.MetricsAddr != "127.0.0.1:9100" {
		t.Errorf("Unexpected addresses: %q %q", srv.Addr, srv.MetricsAddr)
	}
	if srv.Limits.MaxGroundings != 1000 {
		t.Errorf("Expected max_groundings 1000, got %d", srv.Limits.MaxGroundings)
	}
	if !srv.UniformDefault || srv.Smoothing != 0.5 {
		t.Errorf("Unexpected estimation settings: %+v", srv)
	}
	if srv.MaxConnections != DefaultServer().MaxConnections {
		t.Errorf("Expected default max_connections, got %d", srv.MaxConnections)
	}
}

func TestLoadServerNegative(t *testing.T) {
	for _, content := range []string{"smoothing: -1\n", "max_connections: -1\n", "limits: {max_groundings: -5}\n"} {
		if _, err := LoadServer(writeFile(t, "server.yaml", content)); !errors.Is(err, internalerr.ErrInvalidInput) {
			t.Errorf("%q: expected ErrInvalidInput, got %v", content, err)
		}
	}
}
