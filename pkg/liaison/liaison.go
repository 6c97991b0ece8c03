// Package liaison implements the mutable graph of placed polygons.
//
// Nodes are placed polygons (centroid, orientation, open-edge set); edges are
// edge-to-edge contacts between them. The graph owns the open-edge registry:
// attaching two polygons consumes one open edge index on each side, removing
// a polygon re-opens the surviving endpoints' indices. Edge creation consults
// the fold sequence cache for the attachment's topology signature and
// annotates the contact with its fold code and scaler factor.
//
// The graph is the single shared mutable resource in the engine. Every
// structural mutation (AddNode, AddEdge, RemoveNode, batch removal) executes
// as one atomic unit under the graph lock: either all of a mutation's
// node/edge/open-edge-set updates are visible, or none are. Readers observe
// a consistent snapshot; concurrent writers are serialized.
//
// Example Usage:
//
//	folds := foldcache.New()
//	g := liaison.NewGraph(folds, liaison.AlwaysFeasible{})
//
//	x := g.AddNode(polyform.Type{Sides: 4}, polyform.Placement{})
//	y := g.AddNode(polyform.Type{Sides: 4}, polyform.Placement{
//		Centroid: polyform.Vec3{X: 1},
//	})
//
//	_, err := g.AddEdge(x, 0, y, 0, math.Pi/2)
package liaison

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/foldcache"
	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/polyform"
	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/topology"
)

// Common errors
var (
	ErrNodeNotFound        = errors.New("liaison: node not found")
	ErrEdgeNotFound        = errors.New("liaison: edge not found")
	ErrEdgeAlreadyAttached = errors.New("liaison: edge index already attached")
	ErrGeometricInfeasible = errors.New("liaison: placement rejected by geometry check")
	ErrSelfAttachment      = errors.New("liaison: cannot attach a polygon to itself")

	// ErrInternal marks invariant violations inside the graph. These are
	// programming errors, distinct from caller-input errors; the triggering
	// operation aborts without partial effects.
	ErrInternal = errors.New("liaison: internal invariant violation")
)

// NodeID identifies a placed polygon. IDs are stable arena indices assigned
// on placement and never reused within a graph's lifetime.
type NodeID uint64

// EdgeID identifies a contact between two placed polygons.
type EdgeID uint64

// Node is a placed polygon.
//
// The open-edge set is a bitset over edge indices 0..Sides-1; bit i set means
// edge i is open (unattached). Node values returned by graph accessors are
// copies; mutating them does not affect the graph.
type Node struct {
	ID          NodeID
	Type        polyform.Type
	Centroid    polyform.Vec3
	Orientation polyform.Quat

	openEdges uint32
}

// OpenEdges returns the open edge indices in ascending order.
func (n *Node) OpenEdges() []int {
	out := make([]int, 0, n.Type.Sides)
	for i := 0; i < n.Type.Sides; i++ {
		if n.openEdges&(1<<uint(i)) != 0 {
			out = append(out, i)
		}
	}
	return out
}

// EdgeOpen reports whether edge index i is open.
func (n *Node) EdgeOpen(i int) bool {
	return i >= 0 && i < n.Type.Sides && n.openEdges&(1<<uint(i)) != 0
}

// OpenEdgeCount returns the number of open edges.
func (n *Node) OpenEdgeCount() int {
	count := 0
	for i := 0; i < n.Type.Sides; i++ {
		if n.openEdges&(1<<uint(i)) != 0 {
			count++
		}
	}
	return count
}

// Edge is a contact between two placed polygons.
type Edge struct {
	ID       EdgeID
	From     NodeID
	To       NodeID
	FromEdge int
	ToEdge   int

	// Displacement is the centroid displacement vector from From to To.
	Displacement polyform.Vec3
	// Fold is the cached terminal fold code for the attachment topology.
	Fold foldcache.FoldCode
	// FoldAngle is the dihedral angle the attachment was made at.
	FoldAngle float64
	// Scaler is the displacement-length to edge-length ratio.
	Scaler float64
}

// FeasibilityOracle is the external geometry collaborator. The graph treats
// it as an opaque collision/alignment validator.
type FeasibilityOracle interface {
	CheckFeasible(a *Node, edgeA int, b *Node, edgeB int) bool
}

// AlwaysFeasible is an oracle that accepts every placement. Useful in tests
// and for purely topological experiments.
type AlwaysFeasible struct{}

// CheckFeasible always returns true.
func (AlwaysFeasible) CheckFeasible(*Node, int, *Node, int) bool { return true }

// Graph is the liaison graph: an arena of nodes and contacts indexed by
// stable integer ids.
//
// Thread Safety: all methods are safe for concurrent use. Structural
// mutations serialize on the graph lock and are atomic; readers see either
// the full effect of a mutation or none of it.
type Graph struct {
	mu sync.RWMutex

	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge

	// incident indexes the edges touching each node.
	incident map[NodeID]map[EdgeID]struct{}

	nextNode NodeID
	nextEdge EdgeID

	folds  *foldcache.Cache
	oracle FeasibilityOracle

	// foldStepDegrees parameterizes on-demand fold computation on cache miss.
	foldStepDegrees float64
}

// NewGraph creates an empty liaison graph.
//
// folds may be nil, in which case a private cache is created. oracle may be
// nil, in which case every placement is geometrically accepted.
func NewGraph(folds *foldcache.Cache, oracle FeasibilityOracle) *Graph {
	if folds == nil {
		folds = foldcache.New()
	}
	if oracle == nil {
		oracle = AlwaysFeasible{}
	}
	return &Graph{
		nodes:           make(map[NodeID]*Node),
		edges:           make(map[EdgeID]*Edge),
		incident:        make(map[NodeID]map[EdgeID]struct{}),
		folds:           folds,
		oracle:          oracle,
		foldStepDegrees: foldcache.DefaultStepDegrees,
	}
}

// AddNode places a polygon and returns its id. All edge indices start open.
func (g *Graph) AddNode(t polyform.Type, placement polyform.Placement) (NodeID, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextNode++
	id := g.nextNode
	g.nodes[id] = &Node{
		ID:          id,
		Type:        t,
		Centroid:    placement.Centroid,
		Orientation: placement.Orientation,
		openEdges:   uint32(1<<uint(t.Sides)) - 1,
	}
	g.incident[id] = make(map[EdgeID]struct{})
	return id, nil
}

// AddEdge attaches edge edgeA of node a to edge edgeB of node b at the given
// fold angle.
//
// Fails with ErrEdgeAlreadyAttached when either edge index is not in the
// corresponding node's open set, and with ErrGeometricInfeasible when the
// geometry oracle rejects the placement. On success both open-edge sets lose
// the attached index atomically with edge creation; no partial application is
// observable by a concurrent reader.
//
// The attachment topology is looked up in the fold sequence cache; a miss
// triggers synchronous on-demand computation and insertion, not an error.
func (g *Graph) AddEdge(a NodeID, edgeA int, b NodeID, edgeB int, foldAngle float64) (EdgeID, error) {
	if a == b {
		return 0, ErrSelfAttachment
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	na, ok := g.nodes[a]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNodeNotFound, a)
	}
	nb, ok := g.nodes[b]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNodeNotFound, b)
	}

	sig, err := topology.Compute(na.Type, edgeA, nb.Type, edgeB)
	if err != nil {
		return 0, err
	}

	if !na.EdgeOpen(edgeA) {
		return 0, fmt.Errorf("%w: node %d edge %d", ErrEdgeAlreadyAttached, a, edgeA)
	}
	if !nb.EdgeOpen(edgeB) {
		return 0, fmt.Errorf("%w: node %d edge %d", ErrEdgeAlreadyAttached, b, edgeB)
	}

	if !g.oracle.CheckFeasible(na, edgeA, nb, edgeB) {
		return 0, fmt.Errorf("%w: %s", ErrGeometricInfeasible, sig)
	}

	seq := g.folds.GetOrCompute(sig, g.foldStepDegrees)
	if seq == nil {
		return 0, fmt.Errorf("%w: fold cache returned nil for %s", ErrInternal, sig)
	}

	displacement := nb.Centroid.Sub(na.Centroid)

	// All checks passed; apply every update of the transaction under the
	// lock already held so readers never see a half-applied attachment.
	g.nextEdge++
	id := g.nextEdge
	g.edges[id] = &Edge{
		ID:           id,
		From:         a,
		To:           b,
		FromEdge:     edgeA,
		ToEdge:       edgeB,
		Displacement: displacement,
		Fold:         seq.Final(),
		FoldAngle:    foldAngle,
		Scaler:       displacement.Length(), // unit edge length
	}
	na.openEdges &^= 1 << uint(edgeA)
	nb.openEdges &^= 1 << uint(edgeB)
	g.incident[a][id] = struct{}{}
	g.incident[b][id] = struct{}{}
	return id, nil
}

// RemoveNode removes a polygon, its incident contacts, and re-opens the
// surviving endpoints' edge indices, all in one transaction.
func (g *Graph) RemoveNode(id NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeNodeLocked(id)
}

// RemoveNodes removes a batch of polygons in one transaction. Used by the
// decay engine to apply a removal set atomically.
func (g *Graph) RemoveNodes(ids []NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range ids {
		if _, ok := g.nodes[id]; !ok {
			return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
		}
	}
	for _, id := range ids {
		if err := g.removeNodeLocked(id); err != nil {
			return fmt.Errorf("%w: batch removal of %d: %v", ErrInternal, id, err)
		}
	}
	return nil
}

func (g *Graph) removeNodeLocked(id NodeID) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}

	for eid := range g.incident[id] {
		edge, ok := g.edges[eid]
		if !ok {
			return fmt.Errorf("%w: incident edge %d missing", ErrInternal, eid)
		}

		// Re-open the surviving endpoint's edge index.
		other, otherEdge := edge.To, edge.ToEdge
		if other == id {
			other, otherEdge = edge.From, edge.FromEdge
		}
		if surv, ok := g.nodes[other]; ok {
			if surv.EdgeOpen(otherEdge) {
				return fmt.Errorf("%w: edge %d of node %d open while attached", ErrInternal, otherEdge, other)
			}
			surv.openEdges |= 1 << uint(otherEdge)
			delete(g.incident[other], eid)
		}
		delete(g.edges, eid)
	}

	delete(g.incident, id)
	delete(g.nodes, id)
	return nil
}

// Node returns a copy of the node.
func (g *Graph) Node(id NodeID) (Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	return *node, nil
}

// Edge returns a copy of the edge.
func (g *Graph) Edge(id EdgeID) (Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edge, ok := g.edges[id]
	if !ok {
		return Edge{}, fmt.Errorf("%w: %d", ErrEdgeNotFound, id)
	}
	return *edge, nil
}

// OpenEdges returns the open edge indices of a node in ascending order.
func (g *Graph) OpenEdges(id NodeID) ([]int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	return node.OpenEdges(), nil
}

// Stats holds aggregate graph counters.
type Stats struct {
	Nodes     int
	Contacts  int
	OpenEdges int
}

// Stats returns the node, contact, and open-edge counts as one consistent
// snapshot.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	open := 0
	for _, node := range g.nodes {
		open += node.OpenEdgeCount()
	}
	return Stats{Nodes: len(g.nodes), Contacts: len(g.edges), OpenEdges: open}
}

// Snapshot is a consistent read-only copy of the graph for analysis passes
// (constraint evaluation, stability scoring). It shares nothing with the
// live graph.
type Snapshot struct {
	Nodes map[NodeID]Node
	Edges map[EdgeID]Edge

	// Incident maps each node to its incident edge ids.
	Incident map[NodeID][]EdgeID
}

// Snapshot copies the graph under a shared lock.
func (g *Graph) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := &Snapshot{
		Nodes:    make(map[NodeID]Node, len(g.nodes)),
		Edges:    make(map[EdgeID]Edge, len(g.edges)),
		Incident: make(map[NodeID][]EdgeID, len(g.nodes)),
	}
	for id, node := range g.nodes {
		snap.Nodes[id] = *node
	}
	for id, edge := range g.edges {
		snap.Edges[id] = *edge
	}
	for id, set := range g.incident {
		ids := make([]EdgeID, 0, len(set))
		for eid := range set {
			ids = append(ids, eid)
		}
		snap.Incident[id] = ids
	}
	return snap
}

// Neighbors returns the node ids adjacent to id in the snapshot.
func (s *Snapshot) Neighbors(id NodeID) []NodeID {
	var out []NodeID
	for _, eid := range s.Incident[id] {
		edge := s.Edges[eid]
		if edge.From == id {
			out = append(out, edge.To)
		} else {
			out = append(out, edge.From)
		}
	}
	return out
}

// OpenEdgeCount sums open edges across the snapshot.
func (s *Snapshot) OpenEdgeCount() int {
	open := 0
	for _, node := range s.Nodes {
		open += node.OpenEdgeCount()
	}
	return open
}

// checkInvariants verifies the no-double-attachment invariant: every closed
// edge index is covered by exactly one incident edge. Exposed for tests.
func (g *Graph) checkInvariants() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, node := range g.nodes {
		attached := make(map[int]int)
		for eid := range g.incident[id] {
			edge := g.edges[eid]
			if edge.From == id {
				attached[edge.FromEdge]++
			}
			if edge.To == id {
				attached[edge.ToEdge]++
			}
		}
		for idx, count := range attached {
			if count > 1 {
				return fmt.Errorf("%w: edge index %d of node %d attached %d times", ErrInternal, idx, id, count)
			}
			if node.EdgeOpen(idx) {
				return fmt.Errorf("%w: edge index %d of node %d both open and attached", ErrInternal, idx, id)
			}
		}
		if node.OpenEdgeCount()+len(attached) != node.Type.Sides {
			return fmt.Errorf("%w: node %d open+attached != sides", ErrInternal, id)
		}
	}
	return nil
}

// StabilityDenominatorEpsilon guards the stability ratio against an empty
// graph. Kept here so graph consumers agree on one epsilon.
const StabilityDenominatorEpsilon = 1e-9

// StabilityRatio computes contacts / (contacts + open edges + epsilon) for
// the current graph state. Always in [0, 1].
func (g *Graph) StabilityRatio() float64 {
	stats := g.Stats()
	return float64(stats.Contacts) / (float64(stats.Contacts) + float64(stats.OpenEdges) + StabilityDenominatorEpsilon)
}
