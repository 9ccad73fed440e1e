package bayesnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/cpt"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/database"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/stats"
)

func mustNet(t *testing.T, nodes ...*Node) *Net {
	t.Helper()
	bn := New()
	for _, n := range nodes {
		require.NoError(t, bn.Append(n))
	}
	return bn
}

// twoLevelNet is g(A); F(A,B); g(B) <- [g(A), F(A,B)].
func twoLevelNet(t *testing.T) *Net {
	gA := NewNode(term("g(A)"))
	fAB := NewNode(term("F(A,B)"))
	gB := NewNode(term("g(B)"), gA, fAB)
	return mustNet(t, gA, fAB, gB)
}

func TestAppendRequiresParents(t *testing.T) {
	parent := NewNode(term("F(X,Y)"))
	child := NewNode(term("g(X)"), parent)

	bn := New()
	err := bn.Append(child)
	assert.ErrorIs(t, err, internalerr.ErrContract)

	require.NoError(t, bn.Append(parent))
	require.NoError(t, bn.Append(child))
	assert.Equal(t, 2, bn.Len())

	assert.ErrorIs(t, bn.Append(child), internalerr.ErrContract)
	assert.NoError(t, bn.Append(NewSelfLoopNode(term("cd(X)"))))
	assert.ErrorIs(t, bn.Append(NewDeferredNode(term("h(X)"))), internalerr.ErrContract)
}

func TestNodeLookup(t *testing.T) {
	grandparent := NewNode(term("cd(X)"))
	parent := NewNode(term("F(X,Y)"), grandparent)
	child := NewNode(term("g(X)"), parent)
	bn := mustNet(t, grandparent, parent, child)

	got, err := bn.Node(term("F(X,Y)"))
	require.NoError(t, err)
	assert.Same(t, parent, got)

	got, err = bn.Node(literal.MustParse("g(X)=M"))
	require.NoError(t, err)
	assert.Same(t, child, got, "lookup ignores values")

	_, err = bn.Node(term("g(Y)"))
	assert.ErrorIs(t, err, internalerr.ErrNotFound)

	assert.Equal(t, []*Node{parent}, bn.Children(grandparent))
	assert.Empty(t, bn.Children(child))
}

func TestVariableAndFunctorLists(t *testing.T) {
	bn := twoLevelNet(t)
	assert.Equal(t, []string{"A", "B"}, bn.VariableList())
	assert.Equal(t, []string{"F", "g"}, bn.FunctorSet())
}

func TestIsCompatibleFR(t *testing.T) {
	bn := New()
	db, err := database.New(database.Options{Empty: true})
	require.NoError(t, err)
	assert.True(t, bn.IsCompatibleFR(db))

	bn = mustNet(t, NewNode(term("g(X)")))
	assert.False(t, bn.IsCompatibleFR(db))
	assert.Equal(t, []string{"g"}, bn.MissingFunctors(db))

	db, err = database.New(database.Options{
		Ranges: []database.FunctorRange{{Functor: "foo", Values: []string{"a"}}, {Functor: "g", Values: []string{"M", "W"}}},
		Empty:  true,
	})
	require.NoError(t, err)
	assert.True(t, bn.IsCompatibleFR(db))
}

func TestIsCoherent(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.True(t, New().IsCoherent())
	})
	t.Run("single", func(t *testing.T) {
		assert.True(t, mustNet(t, NewNode(term("g(X)"))).IsCoherent())
	})
	t.Run("shared variable", func(t *testing.T) {
		g := NewNode(term("g(X)"))
		assert.True(t, mustNet(t, g, NewNode(term("ses(X)"), g)).IsCoherent())
	})
	t.Run("disjoint variable", func(t *testing.T) {
		g := NewNode(term("g(X)"))
		assert.False(t, mustNet(t, g, NewNode(term("ses(Y)"), g)).IsCoherent())
	})
	t.Run("v-structure", func(t *testing.T) {
		gX := NewNode(term("g(X)"))
		fXY := NewNode(term("F(X,Y)"))
		assert.True(t, mustNet(t, gX, fXY, NewNode(term("g(Y)"), gX, fXY)).IsCoherent())
	})
	t.Run("broken v-structure", func(t *testing.T) {
		gX := NewNode(term("g(X)"))
		fZY := NewNode(term("F(Z,Y)"))
		assert.False(t, mustNet(t, gX, fZY, NewNode(term("g(Y)"), gX, fZY)).IsCoherent())
	})
	t.Run("long chain", func(t *testing.T) {
		gX := NewNode(term("g(X)"))
		sesZ1 := NewNode(term("ses(Z)"))
		fXY := NewNode(term("F(X,Y)"))
		fYZ := NewNode(term("F(Y,Z)"))
		sesZ2 := NewNode(term("ses(Z)"))
		fYW := NewNode(term("F(Y,W)"), gX, sesZ1, fXY, fYZ, sesZ2)
		assert.True(t, mustNet(t, gX, sesZ1, fXY, fYZ, sesZ2, fYW).IsCoherent())
	})
	t.Run("long chain with stray node", func(t *testing.T) {
		gX := NewNode(term("g(X)"))
		sesZ := NewNode(term("ses(Z)"))
		fXY := NewNode(term("F(X,Y)"))
		fYZ := NewNode(term("F(Y,Z)"))
		sesA := NewNode(term("ses(A)"))
		fYW := NewNode(term("F(Y,W)"), gX, sesZ, fXY, fYZ, sesA)
		assert.False(t, mustNet(t, gX, sesZ, fXY, fYZ, sesA, fYW).IsCoherent())
	})
}

func TestThetas(t *testing.T) {
	db := smallDB(t)
	calc := stats.NewCalculator(0)

	table, err := New().Thetas(db, calc)
	require.NoError(t, err)
	assert.Zero(t, table.Len())

	gY := NewNode(term("g(Y)"))
	fXY := NewNode(term("F(X,Y)"), gY)
	table, err = mustNet(t, gY, fXY).Thetas(db, calc)
	require.NoError(t, err)

	want := map[string]float64{
		"P(g(Y)=M)":          1.0 / 3,
		"P(g(Y)=W)":          2.0 / 3,
		"P(F(X,Y)=T|g(Y)=M)": 2.0 / 3,
		"P(F(X,Y)=T|g(Y)=W)": 0.5,
		"P(F(X,Y)=F|g(Y)=M)": 1.0 / 3,
		"P(F(X,Y)=F|g(Y)=W)": 0.5,
	}
	require.Equal(t, len(want), table.Len())
	for _, f := range table.Formulas() {
		p, _ := table.Get(f)
		w, ok := want[f.String()]
		require.True(t, ok, "unexpected formula %s", f)
		assert.InDelta(t, w, p, stats.Epsilon, f.String())
	}

	p, ok := table.Get(cpt.NewFormula(literal.MustParse("F(X,Y)=T"), literal.MustParse("g(Y)=M")))
	require.True(t, ok)
	assert.InDelta(t, 2.0/3, p, stats.Epsilon)
}

func TestThetasOmitsUnsupportedAssignments(t *testing.T) {
	db := smallDB(t)
	gX := NewNode(term("g(X)"))
	fXm := NewNode(term("F(X,mary)"))
	bn := mustNet(t, gX, fXm, NewNode(term("cd(X)"), gX, fXm))

	table, err := bn.Thetas(db, stats.NewCalculator(0))
	require.NoError(t, err)
	unsupported := cpt.NewFormula(literal.MustParse("cd(X)=T"),
		literal.MustParse("g(X)=M"), literal.MustParse("F(X,mary)=T"))
	_, ok := table.Get(unsupported)
	assert.False(t, ok)

	table, err = bn.Thetas(db, stats.NewCalculator(1))
	require.NoError(t, err)
	p, ok := table.Get(unsupported)
	require.True(t, ok)
	assert.InDelta(t, 0.5, p, stats.Epsilon)
}

func TestMerge(t *testing.T) {
	gX := NewNode(term("g(X)"))
	a := mustNet(t, gX, NewNode(term("cd(X)"), gX))
	gY := NewNode(term("g(Y)"))
	b := mustNet(t, gY)

	merged, err := a.Merge(b)
	require.NoError(t, err)
	assert.Equal(t, 3, merged.Len())
	assert.Equal(t, []string{"X", "Y"}, merged.VariableList())

	_, err = a.Merge(mustNet(t, NewNode(term("ses(X)"))))
	assert.ErrorIs(t, err, internalerr.ErrIncompatible)
}

func TestGroundEmpty(t *testing.T) {
	sg, err := New().Ground(emptyDB(t), nil)
	require.NoError(t, err)
	assert.Zero(t, sg.Len())

	sg, err = twoLevelNet(t).Ground(emptyDB(t), nil)
	require.NoError(t, err)
	assert.Zero(t, sg.Len())

	sg, err = New().Ground(emptyDB(t, "aa", "bb"), nil)
	require.NoError(t, err)
	assert.Zero(t, sg.Len())
}

func TestGroundSingleVariable(t *testing.T) {
	sg, err := mustNet(t, NewNode(term("g(A)"))).Ground(emptyDB(t, "aa"), nil)
	require.NoError(t, err)

	want := NewSerializedGraph()
	want.Add(NewNode(term("g(aa)")))
	assert.True(t, want.Equal(sg))
}

func TestGroundTwoLevelSingleConstant(t *testing.T) {
	sg, err := twoLevelNet(t).Ground(emptyDB(t, "aa"), nil)
	require.NoError(t, err)

	g := NewDeferredNode(term("g(aa)"))
	f := NewNode(term("F(aa,aa)"))
	require.NoError(t, g.SetParents(g, f))
	want := NewSerializedGraph()
	want.Add(g)
	want.Add(f)

	assert.True(t, want.Equal(sg), "got %v", sg.Adjacency())
	assert.Equal(t, []string{"F(aa,aa)", "g(aa)"}, sg.ParentNames("g(aa)"))
}

func TestGroundTwoLevelTwoConstants(t *testing.T) {
	sg, err := twoLevelNet(t).Ground(emptyDB(t, "aa", "bb"), nil)
	require.NoError(t, err)

	assert.Equal(t, 6, sg.Len())
	assert.Equal(t, []string{"F(aa,aa)", "F(bb,aa)", "g(aa)", "g(bb)"}, sg.ParentNames("g(aa)"))
	assert.Equal(t, []string{"F(aa,bb)", "F(bb,bb)", "g(aa)", "g(bb)"}, sg.ParentNames("g(bb)"))
	for _, f := range []string{"F(aa,aa)", "F(aa,bb)", "F(bb,aa)", "F(bb,bb)"} {
		assert.Empty(t, sg.ParentNames(f), f)
	}
}

var kpop = map[string][]string{
	"bigbang":        {"gdragon", "t.o.p.", "taeyang", "seungri", "daesung"},
	"browneyedgirls": {"jea", "miryo", "narsha", "ga_in"},
}

func kpopDB(t *testing.T) *database.Database {
	t.Helper()
	var fs []literal.Literal
	for _, s := range []string{
		"DuetWith(gdragon,t.o.p.)=T", "DuetWith(daesung,jea)=T", "DuetWith(miryo,narsha)=F",
		"DuetWith(ga_in,seungri)=T", "DuetWith(taeyang,gdragon)=T", "DoesEDM(gdragon)=T",
	} {
		fs = append(fs, literal.MustParse(s))
	}
	db, err := database.New(database.Options{
		Facts:       fs,
		Ranges:      []database.FunctorRange{{Functor: "DuetWith", Values: database.BooleanRange}, {Functor: "DoesEDM", Values: database.BooleanRange}},
		Populations: database.NamedPopulations(kpop),
	})
	require.NoError(t, err)
	return db
}

func TestGroundNamedPopulation(t *testing.T) {
	bn := mustNet(t, NewNode(term("DoesEDM(A)")))
	sg, err := bn.Ground(kpopDB(t), []database.VarSpec{{Var: "A", Pop: "browneyedgirls"}})
	require.NoError(t, err)

	want := NewSerializedGraph()
	for _, c := range kpop["browneyedgirls"] {
		want.Add(NewNode(literal.New("DoesEDM", c)))
	}
	assert.True(t, want.Equal(sg))
}

func TestGroundTwoPopulations(t *testing.T) {
	deA := NewNode(term("DoesEDM(A)"))
	dwAB := NewNode(term("DuetWith(A,B)"))
	deB := NewNode(term("DoesEDM(B)"), deA, dwAB)
	bn := mustNet(t, deA, dwAB, deB)

	sg, err := bn.Ground(kpopDB(t), []database.VarSpec{{Var: "A", Pop: "bigbang"}, {Var: "B", Pop: "browneyedgirls"}})
	require.NoError(t, err)

	want := NewSerializedGraph()
	for _, bb := range kpop["bigbang"] {
		bbn := NewNode(literal.New("DoesEDM", bb))
		want.Add(bbn)
		for _, beg := range kpop["browneyedgirls"] {
			dw := NewNode(literal.New("DuetWith", bb, beg))
			want.Add(dw)
			want.Add(NewNode(literal.New("DoesEDM", beg), bbn, dw))
		}
	}
	assert.True(t, want.Equal(sg))
	assert.Equal(t, 5+4+20, sg.Len())
}

func TestGroundLimit(t *testing.T) {
	db, err := database.New(database.Options{
		Ranges:        genderRanges,
		Populations:   database.FlatPopulation("a", "b", "c"),
		Empty:         true,
		MaxGroundings: 4,
	})
	require.NoError(t, err)
	_, err = twoLevelNet(t).Ground(db, nil)
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
}

func TestNetEqual(t *testing.T) {
	assert.True(t, twoLevelNet(t).Equal(twoLevelNet(t)))
	assert.False(t, twoLevelNet(t).Equal(New()))
	assert.False(t, mustNet(t, NewNode(term("g(A)"))).Equal(mustNet(t, NewNode(term("g(B)")))))
}
