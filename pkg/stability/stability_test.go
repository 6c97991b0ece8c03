package stability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/liaison"
	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/polyform"
)

var (
	tri = polyform.Type{Sides: 3}
	sq  = polyform.Type{Sides: 4}
)

func place(x float64) polyform.Placement {
	return polyform.Placement{Centroid: polyform.Vec3{X: x}}
}

// buildChain links n polygons of the given types into a path graph.
func buildChain(t *testing.T, types ...polyform.Type) *liaison.Graph {
	t.Helper()
	g := liaison.NewGraph(nil, nil)
	var prev liaison.NodeID
	for i, typ := range types {
		id, err := g.AddNode(typ, place(float64(i)))
		require.NoError(t, err)
		if i > 0 {
			_, err = g.AddEdge(prev, 1, id, 0, 0)
			require.NoError(t, err)
		}
		prev = id
	}
	return g
}

// buildTetrahedron closes four triangles into a fully attached cluster:
// six contacts, zero open edges.
func buildTetrahedron(t *testing.T, g *liaison.Graph) []liaison.NodeID {
	t.Helper()
	ids := make([]liaison.NodeID, 4)
	for i := range ids {
		id, err := g.AddNode(tri, place(float64(i)))
		require.NoError(t, err)
		ids[i] = id
	}
	attach := [][4]int{
		{0, 0, 1, 0},
		{0, 1, 2, 0},
		{0, 2, 3, 0},
		{1, 1, 2, 1},
		{1, 2, 3, 1},
		{2, 2, 3, 2},
	}
	for _, a := range attach {
		_, err := g.AddEdge(ids[a[0]], a[1], ids[a[2]], a[3], 0)
		require.NoError(t, err)
	}
	return ids
}

func TestAnalyzer_Ratio(t *testing.T) {
	analyzer := New(nil)

	t.Run("empty graph scores zero", func(t *testing.T) {
		g := liaison.NewGraph(nil, nil)
		assert.Equal(t, 0.0, analyzer.Ratio(g))
	})

	t.Run("sparse chain with 3 contacts and 7 open edges", func(t *testing.T) {
		// Chain of three triangles and a square: 3 contacts, 13 sides,
		// 13 - 6 = 7 open edges.
		g := buildChain(t, tri, tri, tri, sq)

		stats := g.Stats()
		require.Equal(t, 3, stats.Contacts)
		require.Equal(t, 7, stats.OpenEdges)

		ratio := analyzer.Ratio(g)
		assert.InDelta(t, 0.30, ratio, 0.01)
	})

	t.Run("closed assembly scores one", func(t *testing.T) {
		g := liaison.NewGraph(nil, nil)
		buildTetrahedron(t, g)
		assert.InDelta(t, 1.0, analyzer.Ratio(g), 1e-6)
	})

	t.Run("ratio always in bounds", func(t *testing.T) {
		for _, g := range []*liaison.Graph{
			liaison.NewGraph(nil, nil),
			buildChain(t, tri, tri),
			buildChain(t, sq, sq, sq, sq, sq),
		} {
			r := analyzer.Ratio(g)
			assert.GreaterOrEqual(t, r, 0.0)
			assert.LessOrEqual(t, r, 1.0)
		}
	})
}

func TestAnalyzer_DecayIfUnstable(t *testing.T) {
	t.Run("stable graph takes no action", func(t *testing.T) {
		g := liaison.NewGraph(nil, nil)
		buildTetrahedron(t, g)

		rs, ok := New(nil).DecayIfUnstable(g, 0.5)
		assert.False(t, ok)
		assert.Nil(t, rs)
	})

	t.Run("sparse chain triggers decay but offers no survivor", func(t *testing.T) {
		g := buildChain(t, tri, tri, tri, sq)
		analyzer := New(nil)

		require.Less(t, analyzer.Ratio(g), 0.5)

		// A sparse chain has no subassembly above the acceptance
		// threshold: decay triggers but finds no safe action.
		rs, ok := analyzer.DecayIfUnstable(g, 0.5)
		assert.False(t, ok)
		assert.Nil(t, rs)
	})

	t.Run("loose polygons around a closed core are shed", func(t *testing.T) {
		g := liaison.NewGraph(nil, nil)
		core := buildTetrahedron(t, g)

		var loose []liaison.NodeID
		for i := 0; i < 3; i++ {
			id, err := g.AddNode(sq, place(float64(10 + i)))
			require.NoError(t, err)
			loose = append(loose, id)
		}

		analyzer := New(nil)
		require.Less(t, analyzer.Ratio(g), 0.5, "loose squares drag the ratio down")

		rs, ok := analyzer.DecayIfUnstable(g, 0.5)
		require.True(t, ok)
		require.NotNil(t, rs)

		assert.ElementsMatch(t, loose, rs.Remove)
		assert.ElementsMatch(t, core, rs.Keep)
		assert.InDelta(t, 1.0, rs.Score, 1e-6)

		// Applying the removal set restores stability.
		require.NoError(t, g.RemoveNodes(rs.Remove))
		assert.GreaterOrEqual(t, analyzer.Ratio(g), 0.5)
	})
}

func TestAnalyzer_Decompose(t *testing.T) {
	g := liaison.NewGraph(nil, nil)
	buildTetrahedron(t, g)
	extra, err := g.AddNode(sq, place(99))
	require.NoError(t, err)

	analyzer := New(nil)
	root := analyzer.Decompose(g.Snapshot())

	assert.Equal(t, KindOr, root.Kind)
	require.NotEmpty(t, root.Children)

	var sawCore bool
	for _, cand := range root.Children {
		assert.Equal(t, KindAnd, cand.Kind)
		assert.GreaterOrEqual(t, cand.Score, 0.0)
		assert.LessOrEqual(t, cand.Score, 1.0)
		if len(cand.Members) == 4 {
			sawCore = true
			assert.Len(t, cand.Contacts, 6, "tetrahedron needs all six contacts")
			assert.NotContains(t, cand.Members, extra)
		}
	}
	assert.True(t, sawCore, "decomposition must offer the closed core")
}

func TestAnalyzer_MaxCandidates(t *testing.T) {
	g := buildChain(t, sq, sq, sq, sq, sq, sq)

	cfg := DefaultConfig()
	cfg.MaxCandidates = 2
	root := New(cfg).Decompose(g.Snapshot())

	assert.LessOrEqual(t, len(root.Children), 2)
}
