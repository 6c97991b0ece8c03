// Offline fold-sequence precomputation.
//
// The configuration space of a single attachment is the discretized dihedral
// angle between the two polygons: nodes are fold intermediates, edges are
// single-fold operations moving the dihedral by one or two steps. Each move
// costs more the further it strays from the target dihedral, so the
// shortest path from the flat configuration to the target is the most
// stable (geodesic) fold sequence. The search is Dijkstra with a lazy
// decrease-key min-heap.
package foldcache

import (
	"container/heap"
	"math"

	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/polyform"
	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/topology"
)

// DefaultStepDegrees is the default configuration-space discretization.
const DefaultStepDegrees = 5.0

// PrecomputeConfig bounds the offline batch job.
type PrecomputeConfig struct {
	// StepDegrees is the dihedral discretization step. Default 5.
	StepDegrees float64
	// MaxEdgePairs caps the signatures enumerated per type pair; 0 means all
	// edge combinations.
	MaxEdgePairs int
}

// Precompute enumerates attachment topologies across the type catalog and
// computes the geodesic fold sequence for each. It is a pure function from
// the catalog to cache contents; run it once offline and Load the result.
func Precompute(catalog []polyform.Type, cfg *PrecomputeConfig) map[topology.Signature]*ParametricFoldSequence {
	step := DefaultStepDegrees
	maxPairs := 0
	if cfg != nil {
		if cfg.StepDegrees > 0 {
			step = cfg.StepDegrees
		}
		maxPairs = cfg.MaxEdgePairs
	}

	out := make(map[topology.Signature]*ParametricFoldSequence)
	for i, ta := range catalog {
		for _, tb := range catalog[i:] {
			pairs := 0
			for ea := 0; ea < ta.Sides; ea++ {
				for eb := 0; eb < tb.Sides; eb++ {
					if maxPairs > 0 && pairs >= maxPairs {
						break
					}
					sig, err := topology.Compute(ta, ea, tb, eb)
					if err != nil {
						continue
					}
					if _, ok := out[sig]; ok {
						continue
					}
					out[sig] = ComputeSequence(sig, step)
					pairs++
				}
			}
		}
	}
	return out
}

// TargetDihedral returns the heuristic target dihedral angle for an
// attachment, in radians. Two squares fold to pi/2 (the cube junction); the
// flatter the polygons' exterior angles, the wider the target.
func TargetDihedral(sig topology.Signature) float64 {
	exteriorA := math.Pi - sig.TypeA.InteriorAngle()
	exteriorB := math.Pi - sig.TypeB.InteriorAngle()
	target := math.Pi - exteriorA/2 - exteriorB/2
	if target < 0 {
		target = 0
	}
	return target
}

// ComputeSequence computes the geodesic fold sequence for one signature.
//
// Used both by the offline batch job and as the synchronous on-demand
// fallback when the online engine misses the cache.
func ComputeSequence(sig topology.Signature, stepDegrees float64) *ParametricFoldSequence {
	if stepDegrees <= 0 {
		stepDegrees = DefaultStepDegrees
	}
	stepRad := stepDegrees * math.Pi / 180

	cs := newConfigSpace(TargetDihedral(sig), stepRad)
	path := cs.geodesic()

	codes := make([]FoldCode, 0, len(path))
	for _, node := range path {
		codes = append(codes, FoldCode{
			Angle:     cs.angle(node),
			Tolerance: stepRad / 2,
		})
	}
	return &ParametricFoldSequence{Signature: sig, Codes: codes}
}

// configSpace is the discrete dihedral-angle line graph for one attachment.
//
// Node i corresponds to dihedral angle pi - i*step; node 0 is the flat start
// configuration and goal is the node closest to the target dihedral.
type configSpace struct {
	step  float64
	count int
	goal  int
}

func newConfigSpace(target, step float64) *configSpace {
	count := int(math.Round(math.Pi/step)) + 1
	if count < 2 {
		count = 2
	}
	goal := int(math.Round((math.Pi - target) / step))
	if goal < 0 {
		goal = 0
	}
	if goal >= count {
		goal = count - 1
	}
	return &configSpace{step: step, count: count, goal: goal}
}

func (cs *configSpace) angle(node int) float64 {
	a := math.Pi - float64(node)*cs.step
	if a < 0 {
		a = 0
	}
	return a
}

// moveCost prices a single-fold operation landing on node: a base cost plus
// strain growing with distance from the target dihedral. Wide jumps pay a
// surcharge, keeping the geodesic on small stable steps near the target.
func (cs *configSpace) moveCost(node, width int) float64 {
	strain := math.Abs(cs.angle(node)-cs.angle(cs.goal)) / math.Pi
	return float64(width) * (1 + strain)
}

type foldMove struct {
	to   int
	cost float64
}

func (cs *configSpace) neighbors(node int) []foldMove {
	moves := make([]foldMove, 0, 4)
	for _, d := range []int{-2, -1, 1, 2} {
		to := node + d
		if to < 0 || to >= cs.count {
			continue
		}
		width := d
		if width < 0 {
			width = -width
		}
		moves = append(moves, foldMove{to: to, cost: cs.moveCost(to, width)})
	}
	return moves
}

// geodesic runs Dijkstra from the flat configuration to the goal and returns
// the node path excluding the start.
func (cs *configSpace) geodesic() []int {
	const unreached = math.MaxFloat64

	dist := make([]float64, cs.count)
	prev := make([]int, cs.count)
	for i := range dist {
		dist[i] = unreached
		prev[i] = -1
	}
	dist[0] = 0

	pq := &movePQ{{node: 0, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*pqItem)
		if item.dist > dist[item.node] {
			continue // stale lazy-decrease-key entry
		}
		if item.node == cs.goal {
			break
		}
		for _, mv := range cs.neighbors(item.node) {
			next := item.dist + mv.cost
			if next < dist[mv.to] {
				dist[mv.to] = next
				prev[mv.to] = item.node
				heap.Push(pq, &pqItem{node: mv.to, dist: next})
			}
		}
	}

	if dist[cs.goal] == unreached {
		return nil
	}

	var path []int
	for node := cs.goal; node != 0 && node != -1; node = prev[node] {
		path = append(path, node)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// pqItem is a lazy-decrease-key heap entry.
type pqItem struct {
	node int
	dist float64
}

type movePQ []*pqItem

func (pq movePQ) Len() int            { return len(pq) }
func (pq movePQ) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq movePQ) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *movePQ) Push(x interface{}) { *pq = append(*pq, x.(*pqItem)) }
func (pq *movePQ) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
