package constraint

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

func seedGraph(t *testing.T) *liaison.Graph {
	t.Helper()
	g := liaison.NewGraph(nil, nil)
	_, err := g.AddNode(sq, polyform.Placement{Orientation: polyform.IdentityQuat()})
	require.NoError(t, err)
	return g
}

func TestProposePlacements(t *testing.T) {
	t.Run("single square offers placements on every open edge", func(t *testing.T) {
		g := seedGraph(t)
		p := NewPropagator(g, nil)

		placements, err := p.ProposePlacements(tri, 16)
		require.NoError(t, err)
		assert.Len(t, placements, 4, "one candidate per open edge")

		// Sorted by descending score.
		for i := 1; i < len(placements); i++ {
			assert.GreaterOrEqual(t, placements[i-1].Score, placements[i].Score)
		}

		// Every candidate sits one apothem-sum away from the anchor.
		ideal := sq.Apothem() + tri.Apothem()
		for _, pl := range placements {
			anchor, err := g.Node(pl.Anchor)
			require.NoError(t, err)
			got := pl.Pose.Centroid.Sub(anchor.Centroid).Length()
			assert.InDelta(t, ideal, got, 1e-9)
		}
	})

	t.Run("budget bounds the candidate set", func(t *testing.T) {
		g := seedGraph(t)
		p := NewPropagator(g, nil)

		placements, err := p.ProposePlacements(tri, 2)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(placements), 2)
	})

	t.Run("empty graph has no open edges", func(t *testing.T) {
		g := liaison.NewGraph(nil, nil)
		p := NewPropagator(g, nil)

		_, err := p.ProposePlacements(tri, 8)
		assert.ErrorIs(t, err, ErrNoOpenEdges)
	})

	t.Run("impossible stability floor is infeasible", func(t *testing.T) {
		g := seedGraph(t)
		cfg := DefaultConfig()
		cfg.MinStability = 0.99
		p := NewPropagator(g, cfg)

		_, err := p.ProposePlacements(tri, 8)
		assert.ErrorIs(t, err, ErrPlacementInfeasible)
	})

	t.Run("invalid polygon type", func(t *testing.T) {
		g := seedGraph(t)
		p := NewPropagator(g, nil)

		_, err := p.ProposePlacements(polyform.Type{Sides: 25}, 8)
		assert.ErrorIs(t, err, polyform.ErrInvalidSides)
	})
}

func TestProposePlacements_NonOverlap(t *testing.T) {
	// Two squares side by side: candidates between them collide with the
	// non-anchor square and must be filtered.
	g := liaison.NewGraph(nil, nil)
	a, err := g.AddNode(sq, polyform.Placement{Orientation: polyform.IdentityQuat()})
	require.NoError(t, err)
	b, err := g.AddNode(sq, polyform.Placement{
		Centroid:    polyform.Vec3{X: 1},
		Orientation: polyform.IdentityQuat(),
	})
	require.NoError(t, err)
	_, err = g.AddEdge(a, 0, b, 2, 0)
	require.NoError(t, err)

	p := NewPropagator(g, nil)
	placements, err := p.ProposePlacements(sq, 32)
	require.NoError(t, err)

	// 6 open edges total, but the two candidates in the corridor between
	// the squares overlap the opposite node.
	assert.NotEmpty(t, placements)
	for _, pl := range placements {
		for _, id := range []liaison.NodeID{a, b} {
			if id == pl.Anchor {
				continue
			}
			node, err := g.Node(id)
			require.NoError(t, err)
			dist := pl.Pose.Centroid.Sub(node.Centroid).Length()
			limit := 0.8 * 2 * sq.Circumradius()
			assert.GreaterOrEqual(t, dist, limit, "placement overlaps non-anchor node")
		}
	}
}

func TestProposePlacements_CyclesConverge(t *testing.T) {
	g := seedGraph(t)

	// A single cycle must give the same answer as five: the constraint set
	// converges and the extra cycles are early-stopped.
	one := DefaultConfig()
	one.MaxCycles = 1
	five := DefaultConfig()
	five.MaxCycles = 5

	a, err := NewPropagator(g, one).ProposePlacements(tri, 16)
	require.NoError(t, err)
	b, err := NewPropagator(g, five).ProposePlacements(tri, 16)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestProposePlacements_Crowding(t *testing.T) {
	g := seedGraph(t)

	cfg := DefaultConfig()
	cfg.MinSeparation = 100 // everything is "too close" to a better candidate
	p := NewPropagator(g, cfg)

	placements, err := p.ProposePlacements(tri, 16)
	require.NoError(t, err)

	// Candidates share one score here, so crowding keeps all of them:
	// removal only applies against strictly better survivors.
	assert.Len(t, placements, 4)
}

func TestProjectedRatioInBounds(t *testing.T) {
	for contacts := 0; contacts <= 5; contacts++ {
		for open := 0; open <= 10; open++ {
			r := projectedRatio(contacts, open, tri)
			assert.GreaterOrEqual(t, r, 0.0)
			assert.LessOrEqual(t, r, 1.0)
		}
	}
}
