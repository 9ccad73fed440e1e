package rbn

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/bayesnet"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/database"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
)

// Observer is told about every completed grounding.
type Observer interface {
	Grounded(groundings, nodes int)
}

// SessionOptions configures a Session
type SessionOptions struct {
	Logger        *zap.Logger // nil disables logging
	MaxGroundings int         // zero means unlimited
	Observer      Observer
	IDs           *IDSource
}

// Session holds the currently defined template with the functor ranges and
// populations it was defined against. Define replaces them as a whole;
// Ground reads them. Both may be called concurrently.
type Session struct {
	mu      sync.RWMutex
	current *definition

	logger   *zap.Logger
	limit    int
	observer Observer
	ids      *IDSource
}

type definition struct {
	id     string
	net    *bayesnet.Net
	ranges []database.FunctorRange
	pops   database.Populations
	varPop map[string]string
}

// NewSession creates a session with no template defined.
func NewSession(opts SessionOptions) *Session {
	s := &Session{
		logger:   opts.Logger,
		limit:    opts.MaxGroundings,
		observer: opts.Observer,
		ids:      opts.IDs,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.ids == nil {
		s.ids = NewIDSource()
	}
	return s
}

// DefineRequest is a template with the ranges and populations it is defined
// against.
type DefineRequest struct {
	Template            *bayesnet.SerializedGraph
	Ranges              []database.FunctorRange
	Populations         database.Populations
	VariablePopulations map[string]string
}

// Define validates a template and makes it current, returning the ID of
// the new definition. The template must be coherent and every functor it
// uses must have a declared range. On error the current definition is kept.
func (s *Session) Define(ctx context.Context, req DefineRequest) (string, error) {
	if req.Template == nil {
		return "", fmt.Errorf("%w: no template", internalerr.ErrInvalidInput)
	}
	db, err := s.emptyDB(req.Ranges, req.Populations, req.VariablePopulations)
	if err != nil {
		return "", err
	}
	net, err := bayesnet.LoadNet(req.Template)
	if err != nil {
		return "", err
	}
	if !net.IsCoherent() {
		return "", fmt.Errorf("%w: template is not coherent", internalerr.ErrIncompatible)
	}
	if missing := net.MissingFunctors(db); len(missing) > 0 {
		return "", fmt.Errorf("%w: template functors %v have no declared range", internalerr.ErrIncompatible, missing)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	def := &definition{
		id:     s.ids.Next(),
		net:    net,
		ranges: db.Ranges(),
		pops:   req.Populations,
		varPop: req.VariablePopulations,
	}
	s.mu.Lock()
	s.current = def
	s.mu.Unlock()

	s.logger.Info("template defined",
		zap.String("session", def.id),
		zap.Int("nodes", net.Len()),
		zap.Strings("variables", net.VariableList()))
	return def.id, nil
}

// GroundRequest names the populations to ground the current template over.
// Nil Ranges keep the ranges of the definition; empty PopVars ground every
// template variable over its default population.
type GroundRequest struct {
	Populations database.Populations
	PopVars     []database.VarSpec
	Ranges      []database.FunctorRange
}

// GroundResult is a ground graph and the definition it came from.
type GroundResult struct {
	Session    string
	Groundings int
	Graph      *bayesnet.SerializedGraph
}

// Ground instantiates the current template.
func (s *Session) Ground(ctx context.Context, req GroundRequest) (*GroundResult, error) {
	s.mu.RLock()
	def := s.current
	s.mu.RUnlock()
	if def == nil {
		return nil, internalerr.ErrNoSession
	}

	ranges := req.Ranges
	if ranges == nil {
		ranges = def.ranges
	}
	db, err := s.emptyDB(ranges, req.Populations, def.varPop)
	if err != nil {
		return nil, err
	}
	if missing := def.net.MissingFunctors(db); len(missing) > 0 {
		return nil, fmt.Errorf("%w: template functors %v have no declared range", internalerr.ErrIncompatible, missing)
	}

	specs := req.PopVars
	if len(specs) == 0 {
		specs = database.Specs(def.net.VariableList()...)
	}
	n, err := db.EnumerationSize(specs)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sg, err := def.net.Ground(db, specs)
	if err != nil {
		return nil, err
	}

	if s.observer != nil {
		s.observer.Grounded(n, sg.Len())
	}
	s.logger.Debug("template grounded",
		zap.String("session", def.id),
		zap.Stringer("pop_vars", specList(specs)),
		zap.Int("groundings", n),
		zap.Int("nodes", sg.Len()))
	return &GroundResult{Session: def.id, Groundings: n, Graph: sg}, nil
}

// Current returns the ID and template of the current definition.
func (s *Session) Current() (string, *bayesnet.Net, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return "", nil, false
	}
	return s.current.id, s.current.net, true
}

func (s *Session) emptyDB(ranges []database.FunctorRange, pops database.Populations, varPops map[string]string) (*database.Database, error) {
	return database.New(database.Options{
		Ranges:              ranges,
		Populations:         pops,
		VariablePopulations: varPops,
		Empty:               true,
		MaxGroundings:       s.limit,
	})
}

type specList []database.VarSpec

func (l specList) String() string { return fmt.Sprint([]database.VarSpec(l)) }
