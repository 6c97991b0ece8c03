// Package stability scores assembly rigidity and drives structural decay.
//
// The stability ratio is a heuristic proxy for rigidity: contacts divided by
// contacts plus open edges. A fully closed assembly (no open edges) scores
// 1.0; a freshly placed polygon with no contacts scores 0.0.
//
// When an assembly falls below a decay threshold, the decay engine builds an
// AND/OR decomposition of the liaison graph: each OR branch is an alternative
// stable subassembly, each AND node the set of contacts that subassembly
// requires. The engine enumerates candidate subassemblies, scores their
// internal ratios, and selects the maximum-scoring one above the acceptance
// threshold. The complement is the minimal removal set, returned for the
// caller to apply as one batch removal. If no subassembly qualifies there is
// no safe decay action and the caller must escalate.
//
// Example Usage:
//
//	analyzer := stability.New(nil)
//
//	if rs, ok := analyzer.DecayIfUnstable(graph, 0.5); ok {
//		graph.RemoveNodes(rs.Remove)
//	}
package stability

import (
	"sort"

	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/liaison"
)

// Config tunes the decay engine. Thresholds are policy defaults from the
// research planning notes, exposed as configuration rather than hard-coded
// invariants.
type Config struct {
	// DecayThreshold is the stability ratio below which decay triggers.
	// Default 0.5.
	DecayThreshold float64
	// AcceptThreshold is the minimum internal ratio a subassembly must score
	// to be selected as the survivor. Default 0.6.
	AcceptThreshold float64
	// MaxCandidates bounds the number of enumerated subassemblies.
	// Default 64.
	MaxCandidates int
}

// DefaultConfig returns the policy defaults.
func DefaultConfig() *Config {
	return &Config{
		DecayThreshold:  0.5,
		AcceptThreshold: 0.6,
		MaxCandidates:   64,
	}
}

// Analyzer computes stability ratios and decay decisions.
type Analyzer struct {
	cfg *Config
}

// New creates an analyzer. A nil config uses DefaultConfig.
func New(cfg *Config) *Analyzer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Analyzer{cfg: cfg}
}

// Ratio returns contacts / (contacts + open edges + epsilon) for the graph.
// Always in [0, 1].
func (a *Analyzer) Ratio(g *liaison.Graph) float64 {
	return g.StabilityRatio()
}

// RemovalSet is the decay engine's verdict: remove these nodes, keep those.
type RemovalSet struct {
	// Remove is the minimal node set whose removal restores stability.
	Remove []liaison.NodeID
	// Keep is the selected maximal stable subassembly.
	Keep []liaison.NodeID
	// Score is the internal stability ratio of the kept subassembly.
	Score float64
}

// Kind tags AND/OR decomposition nodes.
type Kind int

const (
	// KindOr marks a choice between alternative stable subassemblies.
	KindOr Kind = iota
	// KindAnd marks a subassembly with its required contact set.
	KindAnd
)

// DecompNode is one node of the AND/OR decomposition.
type DecompNode struct {
	Kind Kind
	// Members are the liaison nodes of the subassembly (AND nodes only).
	Members []liaison.NodeID
	// Contacts are the required internal edges (AND nodes only).
	Contacts []liaison.EdgeID
	// Score is the subassembly's internal stability ratio (AND nodes only).
	Score float64
	// Children are the alternative subassemblies (OR root only).
	Children []*DecompNode
}

// DecayIfUnstable checks the graph against the threshold and, when unstable,
// selects the maximal stable subassembly.
//
// Returns (removal set, true) when a qualifying subassembly exists, and
// (nil, false) when the graph is already stable or no subassembly clears the
// acceptance threshold.
func (a *Analyzer) DecayIfUnstable(g *liaison.Graph, threshold float64) (*RemovalSet, bool) {
	if a.Ratio(g) >= threshold {
		return nil, false
	}

	snap := g.Snapshot()
	root := a.Decompose(snap)

	var best *DecompNode
	for _, cand := range root.Children {
		if cand.Score < a.cfg.AcceptThreshold {
			continue
		}
		if best == nil || cand.Score > best.Score ||
			(cand.Score == best.Score && len(cand.Members) > len(best.Members)) {
			best = cand
		}
	}
	if best == nil {
		return nil, false
	}

	keep := make(map[liaison.NodeID]bool, len(best.Members))
	for _, id := range best.Members {
		keep[id] = true
	}

	var remove []liaison.NodeID
	for id := range snap.Nodes {
		if !keep[id] {
			remove = append(remove, id)
		}
	}
	if len(remove) == 0 {
		// The whole graph is the best subassembly; nothing to decay.
		return nil, false
	}
	sort.Slice(remove, func(i, j int) bool { return remove[i] < remove[j] })

	return &RemovalSet{
		Remove: remove,
		Keep:   append([]liaison.NodeID(nil), best.Members...),
		Score:  best.Score,
	}, true
}

// Decompose builds the AND/OR decomposition of a graph snapshot: an OR root
// whose children are candidate subassemblies (AND nodes), each carrying its
// member nodes, required contacts, and internal stability ratio.
//
// Candidates are grown greedily from each seed node, adding the neighbor
// that most improves the internal ratio until no neighbor improves it.
// Duplicate member sets collapse to one candidate.
func (a *Analyzer) Decompose(snap *liaison.Snapshot) *DecompNode {
	root := &DecompNode{Kind: KindOr}

	seeds := make([]liaison.NodeID, 0, len(snap.Nodes))
	for id := range snap.Nodes {
		seeds = append(seeds, id)
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i] < seeds[j] })

	seen := make(map[string]bool)
	for _, seed := range seeds {
		if len(root.Children) >= a.cfg.MaxCandidates {
			break
		}
		cand := growSubassembly(snap, seed)
		key := memberKey(cand.Members)
		if seen[key] {
			continue
		}
		seen[key] = true
		root.Children = append(root.Children, cand)
	}
	return root
}

// growSubassembly expands a member set from seed, one neighbor at a time,
// as long as the internal stability ratio improves.
func growSubassembly(snap *liaison.Snapshot, seed liaison.NodeID) *DecompNode {
	members := map[liaison.NodeID]bool{seed: true}
	score := internalRatio(snap, members)

	for {
		var bestNeighbor liaison.NodeID
		bestScore := score
		found := false

		for id := range members {
			for _, nb := range snap.Neighbors(id) {
				if members[nb] {
					continue
				}
				members[nb] = true
				if s := internalRatio(snap, members); s > bestScore {
					bestScore, bestNeighbor, found = s, nb, true
				}
				delete(members, nb)
			}
		}
		if !found {
			break
		}
		members[bestNeighbor] = true
		score = bestScore
	}

	node := &DecompNode{Kind: KindAnd, Score: score}
	for id := range members {
		node.Members = append(node.Members, id)
	}
	sort.Slice(node.Members, func(i, j int) bool { return node.Members[i] < node.Members[j] })
	for eid, edge := range snap.Edges {
		if members[edge.From] && members[edge.To] {
			node.Contacts = append(node.Contacts, eid)
		}
	}
	sort.Slice(node.Contacts, func(i, j int) bool { return node.Contacts[i] < node.Contacts[j] })
	return node
}

// internalRatio scores a member set: internal contacts over internal
// contacts plus the members' edges left open or leaving the set.
func internalRatio(snap *liaison.Snapshot, members map[liaison.NodeID]bool) float64 {
	contacts := 0
	for _, edge := range snap.Edges {
		if members[edge.From] && members[edge.To] {
			contacts++
		}
	}
	sides := 0
	for id := range members {
		sides += snap.Nodes[id].Type.Sides
	}
	open := sides - 2*contacts
	if open < 0 {
		open = 0
	}
	return float64(contacts) / (float64(contacts) + float64(open) + liaison.StabilityDenominatorEpsilon)
}

func memberKey(members []liaison.NodeID) string {
	key := make([]byte, 0, len(members)*3)
	for _, id := range members {
		key = append(key, byte(id), byte(id>>8), ',')
	}
	return string(key)
}
