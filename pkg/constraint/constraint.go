// Package constraint filters candidate placements against the liaison graph.
//
// The propagator answers one question: where can a new polygon go? It
// generates a finite candidate set around the open edges of the assembly,
// builds the constraint list (non-overlap per existing node, edge alignment
// per open edge, a global stability constraint, and a crowding constraint
// between surviving candidates), then runs bounded propagation cycles that
// filter the set until it stops shrinking.
//
// The cycle bound (default 5) trades completeness for bounded latency. It is
// not claimed to reach a global fixed point, only a practically convergent
// one; callers needing more coverage raise the sampling budget instead.
//
// Example Usage:
//
//	p := constraint.NewPropagator(graph, nil)
//	placements, err := p.ProposePlacements(polyform.Type{Sides: 3}, 64)
//	if errors.Is(err, constraint.ErrPlacementInfeasible) {
//		// expected steady-state outcome: escalate with a larger budget
//	}
package constraint

import (
	"errors"
	"math"
	"sort"

	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/liaison"
	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/polyform"
)

// ErrPlacementInfeasible reports that every candidate was filtered out. This
// is an expected steady-state outcome, not a defect; callers escalate by
// raising the sampling budget or accepting the state for manual review.
var ErrPlacementInfeasible = errors.New("constraint: no feasible placement")

// ErrNoOpenEdges reports a graph with no attachment points at all.
var ErrNoOpenEdges = errors.New("constraint: graph has no open edges")

// Placement is one feasible way to attach a new polygon.
type Placement struct {
	// Anchor and AnchorEdge name the open edge the new polygon attaches to.
	Anchor     liaison.NodeID
	AnchorEdge int
	// NewEdge is the edge index of the new polygon used for the attachment.
	NewEdge int
	// Pose positions the new polygon.
	Pose polyform.Placement
	// Score is the projected stability ratio after the attachment.
	Score float64
}

// Config tunes the propagator. The cycle count and thresholds are policy
// defaults from the research notes, exposed as configuration rather than
// hard-coded invariants.
type Config struct {
	// MaxCycles bounds propagation iterations. Default 5.
	MaxCycles int
	// MinStability is the floor for the projected stability ratio after a
	// candidate attachment. Default 0 (disabled).
	MinStability float64
	// AlignmentTolerance bounds the relative deviation between a candidate's
	// centroid displacement and the ideal apothem spacing. Default 0.25.
	AlignmentTolerance float64
	// MinSeparation removes a candidate when a strictly better one sits
	// closer than this distance. Default 0.5.
	MinSeparation float64
	// OverlapFactor scales the circumradius-sum overlap test. Default 0.8.
	OverlapFactor float64
}

// DefaultConfig returns the policy defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxCycles:          5,
		MinStability:       0,
		AlignmentTolerance: 0.25,
		MinSeparation:      0.5,
		OverlapFactor:      0.8,
	}
}

// Propagator proposes placements for new polygons against a liaison graph.
type Propagator struct {
	graph *liaison.Graph
	cfg   *Config
}

// NewPropagator creates a propagator. A nil config uses DefaultConfig.
func NewPropagator(graph *liaison.Graph, cfg *Config) *Propagator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Propagator{graph: graph, cfg: cfg}
}

// candidate carries per-candidate state through the propagation cycles.
type candidate struct {
	Placement
	anchorNode liaison.Node
}

// constraintFn filters one candidate against the graph snapshot and the
// surviving candidate set.
type constraintFn struct {
	name string
	keep func(c *candidate, survivors []*candidate, snap *liaison.Snapshot) bool
}

// ProposePlacements generates up to budget candidates for the polygon and
// filters them through the constraint list.
//
// Returns the surviving placements sorted by descending score, or
// ErrPlacementInfeasible when the set empties.
func (p *Propagator) ProposePlacements(t polyform.Type, budget int) ([]Placement, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if budget <= 0 {
		budget = 1
	}

	snap := p.graph.Snapshot()
	candidates := p.generate(snap, t, budget)
	if len(candidates) == 0 {
		return nil, ErrNoOpenEdges
	}

	constraints := p.buildConstraints(t)

	maxCycles := p.cfg.MaxCycles
	if maxCycles <= 0 {
		maxCycles = 1
	}
	for cycle := 0; cycle < maxCycles; cycle++ {
		removed := 0
		for _, cons := range constraints {
			kept := make([]*candidate, 0, len(candidates))
			for _, c := range candidates {
				if cons.keep(c, candidates, snap) {
					kept = append(kept, c)
				} else {
					removed++
				}
			}
			candidates = kept
		}
		if removed == 0 {
			break // practically convergent: a full cycle removed nothing
		}
		if len(candidates) == 0 {
			return nil, ErrPlacementInfeasible
		}
	}
	if len(candidates) == 0 {
		return nil, ErrPlacementInfeasible
	}

	out := make([]Placement, len(candidates))
	for i, c := range candidates {
		out[i] = c.Placement
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// generate builds the bounded candidate set: one candidate per open edge,
// cycling the new polygon's own edge index to diversify, until the budget is
// exhausted.
func (p *Propagator) generate(snap *liaison.Snapshot, t polyform.Type, budget int) []*candidate {
	contacts := len(snap.Edges)
	openTotal := snap.OpenEdgeCount()

	// Deterministic node order keeps proposals reproducible.
	ids := make([]liaison.NodeID, 0, len(snap.Nodes))
	for id := range snap.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []*candidate
	newEdge := 0
	for _, id := range ids {
		node := snap.Nodes[id]
		for _, edge := range node.OpenEdges() {
			if len(out) >= budget {
				return out
			}
			pose := attachPose(node, edge, t)
			out = append(out, &candidate{
				Placement: Placement{
					Anchor:     id,
					AnchorEdge: edge,
					NewEdge:    newEdge % t.Sides,
					Pose:       pose,
					Score:      projectedRatio(contacts, openTotal, t),
				},
				anchorNode: node,
			})
			newEdge++
		}
	}
	return out
}

// attachPose positions the new polygon across the anchor's open edge: out
// from the anchor centroid through the edge midpoint by the sum of the two
// apothems.
func attachPose(anchor liaison.Node, edge int, t polyform.Type) polyform.Placement {
	theta := 2 * math.Pi * (float64(edge) + 0.5) / float64(anchor.Type.Sides)
	dir := polyform.Vec3{X: math.Cos(theta), Y: math.Sin(theta)}
	dist := anchor.Type.Apothem() + t.Apothem()
	return polyform.Placement{
		Centroid:    anchor.Centroid.Add(dir.Scale(dist)),
		Orientation: polyform.IdentityQuat(),
	}
}

// projectedRatio estimates the stability ratio after attaching the polygon:
// one more contact, the anchor edge and one new-polygon edge consumed, the
// rest of the new polygon's edges opened.
func projectedRatio(contacts, openTotal int, t polyform.Type) float64 {
	c := float64(contacts + 1)
	open := float64(openTotal - 1 + t.Sides - 1)
	if open < 0 {
		open = 0
	}
	return c / (c + open + liaison.StabilityDenominatorEpsilon)
}

func (p *Propagator) buildConstraints(t polyform.Type) []constraintFn {
	return []constraintFn{
		{
			name: "non-overlap",
			keep: func(c *candidate, _ []*candidate, snap *liaison.Snapshot) bool {
				for id, node := range snap.Nodes {
					if id == c.Anchor {
						continue
					}
					limit := p.cfg.OverlapFactor * (node.Type.Circumradius() + t.Circumradius())
					if c.Pose.Centroid.Sub(node.Centroid).Length() < limit {
						return false
					}
				}
				return true
			},
		},
		{
			name: "edge-alignment",
			keep: func(c *candidate, _ []*candidate, _ *liaison.Snapshot) bool {
				ideal := c.anchorNode.Type.Apothem() + t.Apothem()
				got := c.Pose.Centroid.Sub(c.anchorNode.Centroid).Length()
				return math.Abs(got-ideal) <= p.cfg.AlignmentTolerance*ideal
			},
		},
		{
			name: "stability",
			keep: func(c *candidate, _ []*candidate, _ *liaison.Snapshot) bool {
				return c.Score >= p.cfg.MinStability
			},
		},
		{
			name: "crowding",
			keep: func(c *candidate, survivors []*candidate, _ *liaison.Snapshot) bool {
				if p.cfg.MinSeparation <= 0 {
					return true
				}
				for _, other := range survivors {
					if other == c || other.Score <= c.Score {
						continue
					}
					if other.Pose.Centroid.Sub(c.Pose.Centroid).Length() < p.cfg.MinSeparation {
						return false
					}
				}
				return true
			},
		},
	}
}
