package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/bayesnet"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/cpt"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/database"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu       sync.RWMutex
	ranges   []database.FunctorRange
	rangeIdx map[string]int
	pops     map[string][]string
	facts    map[string]literal.Literal
	nodes    map[string]bayesnet.Adjacency
	rules    []cpt.CP
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		rangeIdx: make(map[string]int),
		pops:     make(map[string][]string),
		facts:    make(map[string]literal.Literal),
		nodes:    make(map[string]bayesnet.Adjacency),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// PutRange implements store.Store.
func (s *Store) PutRange(ctx context.Context, fr database.FunctorRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fr.Values = append([]string(nil), fr.Values...)
	if i, ok := s.rangeIdx[fr.Functor]; ok {
		s.ranges[i] = fr
		return nil
	}
	s.rangeIdx[fr.Functor] = len(s.ranges)
	s.ranges = append(s.ranges, fr)
	return nil
}

// PutPopulation implements store.Store.
func (s *Store) PutPopulation(ctx context.Context, name string, constants []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pops[name] = append([]string(nil), constants...)
	return nil
}

// PutFact implements store.Store.
func (s *Store) PutFact(ctx context.Context, f literal.Literal) error {
	if err := store.ValidateFact(f); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.facts[f.TermKey()] = f
	return nil
}

// PutNode implements store.Store.
func (s *Store) PutNode(ctx context.Context, name string, adj bayesnet.Adjacency) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes[name] = copyAdjacency(adj)
	return nil
}

// PutRule implements store.Store.
func (s *Store) PutRule(ctx context.Context, cp cpt.CP) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp.Parents = append([]literal.Literal(nil), cp.Parents...)
	s.rules = append(s.rules, cp)
	return nil
}

// Ranges returns the declared ranges in declaration order.
func (s *Store) Ranges(ctx context.Context) ([]database.FunctorRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]database.FunctorRange, len(s.ranges))
	for i, fr := range s.ranges {
		out[i] = database.FunctorRange{Functor: fr.Functor, Values: append([]string(nil), fr.Values...)}
	}
	return out, nil
}

// Populations implements store.Store.
func (s *Store) Populations(ctx context.Context) (database.Populations, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return store.BuildPopulations(s.pops)
}

// Facts returns the stored facts ordered by term.
func (s *Store) Facts(ctx context.Context) ([]literal.Literal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]literal.Literal, 0, len(s.facts))
	for _, f := range s.facts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

// Template implements store.Store.
func (s *Store) Template(ctx context.Context) (map[string]bayesnet.Adjacency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bayesnet.Adjacency, len(s.nodes))
	for name, adj := range s.nodes {
		out[name] = copyAdjacency(adj)
	}
	return out, nil
}

// Rules returns the rules in insertion order.
func (s *Store) Rules(ctx context.Context) ([]cpt.CP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]cpt.CP(nil), s.rules...), nil
}

func copyAdjacency(a bayesnet.Adjacency) bayesnet.Adjacency {
	return bayesnet.Adjacency{
		Functor: a.Functor,
		Args:    append([]string(nil), a.Args...),
		Parents: append([]string(nil), a.Parents...),
	}
}
