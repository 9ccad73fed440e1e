package rbn

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/bayesnet"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/database"
)

func twoLevelTemplate(t *testing.T) *bayesnet.SerializedGraph {
	t.Helper()
	sg, err := bayesnet.Load([]byte(`{
		"g(A)": [["g",["A"]],[]],
		"F(A,B)": [["F",["A","B"]],[]],
		"g(B)": [["g",["B"]],["g(A)","F(A,B)"]]
	}`))
	require.NoError(t, err)
	return sg
}

var sessionRanges = []database.FunctorRange{
	{Functor: "g", Values: []string{"M", "W"}},
	{Functor: "F", Values: database.BooleanRange},
}

type recorder struct {
	mu    sync.Mutex
	calls [][2]int
}

func (r *recorder) Grounded(groundings, nodes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, [2]int{groundings, nodes})
}

func TestGroundBeforeDefine(t *testing.T) {
	s := NewSession(SessionOptions{})
	_, err := s.Ground(context.Background(), GroundRequest{Populations: database.FlatPopulation("aa")})
	assert.ErrorIs(t, err, ErrNoSession)

	_, _, ok := s.Current()
	assert.False(t, ok)
}

func TestDefineAndGroundSelfReference(t *testing.T) {
	rec := &recorder{}
	s := NewSession(SessionOptions{Observer: rec})
	ctx := context.Background()

	id, err := s.Define(ctx, DefineRequest{
		Template:    twoLevelTemplate(t),
		Ranges:      sessionRanges,
		Populations: database.FlatPopulation(),
	})
	require.NoError(t, err)
	assert.Len(t, id, 26)

	res, err := s.Ground(ctx, GroundRequest{Populations: database.FlatPopulation("aa")})
	require.NoError(t, err)
	assert.Equal(t, id, res.Session)
	assert.Equal(t, 1, res.Groundings)

	b, err := json.Marshal(res.Graph)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"F(aa,aa)": [["F",["aa","aa"]],[]],
		"g(aa)": [["g",["aa"]],["F(aa,aa)","g(aa)"]]
	}`, string(b))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, [2]int{1, 2}, rec.calls[0])
}

func TestGroundNamedPopulations(t *testing.T) {
	s := NewSession(SessionOptions{})
	ctx := context.Background()
	_, err := s.Define(ctx, DefineRequest{Template: twoLevelTemplate(t), Ranges: sessionRanges})
	require.NoError(t, err)

	pops := database.NamedPopulations(map[string][]string{
		"bands": {"queen", "abba"},
		"fans":  {"ann"},
	})
	res, err := s.Ground(ctx, GroundRequest{
		Populations: pops,
		PopVars:     []database.VarSpec{{Var: "A", Pop: "fans"}, {Var: "B", Pop: "bands"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Groundings)
	// g(ann), g(queen), g(abba), F(ann,queen), F(ann,abba)
	assert.Equal(t, 5, res.Graph.Len())
	assert.Equal(t, []string{"F(ann,queen)", "g(ann)"}, res.Graph.ParentNames("g(queen)"))

	// several named populations and no pop_vars
	_, err = s.Ground(ctx, GroundRequest{Populations: pops})
	assert.ErrorIs(t, err, ErrLookup)
}

func TestGroundDefinedVariablePopulations(t *testing.T) {
	s := NewSession(SessionOptions{})
	ctx := context.Background()
	_, err := s.Define(ctx, DefineRequest{
		Template:            twoLevelTemplate(t),
		Ranges:              sessionRanges,
		VariablePopulations: map[string]string{"A": "fans", "B": "bands"},
	})
	require.NoError(t, err)

	res, err := s.Ground(ctx, GroundRequest{
		Populations: database.NamedPopulations(map[string][]string{
			"bands": {"queen", "abba"},
			"fans":  {"ann"},
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Groundings)
	assert.Equal(t, 5, res.Graph.Len())
}

func TestDefineRejects(t *testing.T) {
	ctx := context.Background()
	s := NewSession(SessionOptions{})
	first, err := s.Define(ctx, DefineRequest{Template: twoLevelTemplate(t), Ranges: sessionRanges})
	require.NoError(t, err)

	incoherent, err := bayesnet.Load([]byte(`{"g(A)": [["g",["A"]],[]], "g(B)": [["g",["B"]],[]]}`))
	require.NoError(t, err)

	tests := []struct {
		name string
		req  DefineRequest
		kind error
	}{
		{"no template", DefineRequest{Ranges: sessionRanges}, ErrInvalidInput},
		{"incoherent", DefineRequest{Template: incoherent, Ranges: sessionRanges}, ErrIncompatible},
		{"undeclared functor", DefineRequest{Template: twoLevelTemplate(t), Ranges: sessionRanges[:1]}, ErrIncompatible},
		{"duplicate range", DefineRequest{Template: twoLevelTemplate(t), Ranges: append(sessionRanges, sessionRanges[0])}, ErrIntegrity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Define(ctx, tt.req)
			assert.ErrorIs(t, err, tt.kind)

			id, _, ok := s.Current()
			require.True(t, ok)
			assert.Equal(t, first, id, "failed define must keep the current template")
		})
	}
}

func TestGroundRangesOverride(t *testing.T) {
	ctx := context.Background()
	s := NewSession(SessionOptions{})
	_, err := s.Define(ctx, DefineRequest{Template: twoLevelTemplate(t), Ranges: sessionRanges})
	require.NoError(t, err)

	_, err = s.Ground(ctx, GroundRequest{
		Populations: database.FlatPopulation("aa"),
		Ranges:      sessionRanges[1:],
	})
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestGroundLimit(t *testing.T) {
	ctx := context.Background()
	s := NewSession(SessionOptions{MaxGroundings: 8})
	_, err := s.Define(ctx, DefineRequest{Template: twoLevelTemplate(t), Ranges: sessionRanges})
	require.NoError(t, err)

	_, err = s.Ground(ctx, GroundRequest{Populations: database.FlatPopulation("a", "b")})
	require.NoError(t, err)

	_, err = s.Ground(ctx, GroundRequest{Populations: database.FlatPopulation("a", "b", "c")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGroundCanceled(t *testing.T) {
	s := NewSession(SessionOptions{})
	_, err := s.Define(context.Background(), DefineRequest{Template: twoLevelTemplate(t), Ranges: sessionRanges})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Ground(ctx, GroundRequest{Populations: database.FlatPopulation("aa")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentDefineAndGround(t *testing.T) {
	ctx := context.Background()
	s := NewSession(SessionOptions{})
	tmpl := twoLevelTemplate(t)
	_, err := s.Define(ctx, DefineRequest{Template: tmpl, Ranges: sessionRanges})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Define(ctx, DefineRequest{Template: tmpl, Ranges: sessionRanges})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			res, err := s.Ground(ctx, GroundRequest{Populations: database.FlatPopulation("a", "b")})
			if err == nil && res.Graph.Len() != 6 {
				t.Errorf("ground graph has %d nodes", res.Graph.Len())
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
