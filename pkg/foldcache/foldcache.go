// Package foldcache memoizes validated dihedral-angle fold paths.
//
// A fold sequence describes how two attached polygons fold relative to each
// other: an ordered list of fold codes (dihedral angle plus tolerance range)
// leading from the flat configuration to the target dihedral. Sequences are
// keyed by topology signature, so every attachment with the same topology
// reuses the same precomputed path.
//
// The cache is read-mostly and insert-only: entries are never mutated in
// place, so concurrent readers never observe a half-written sequence. The
// only replacement mechanism is whole-cache invalidation (schema bumps).
//
// Precomputation runs offline as a batch job: for each polyform type pair the
// discrete configuration-space graph (nodes = fold intermediates, edges =
// single-fold operations) is searched for the most stable (geodesic) path,
// see Precompute. The online engine only reads the cache and falls back to
// synchronous on-demand computation on a miss.
//
// Example Usage:
//
//	cache := foldcache.New()
//	sig, _ := topology.Compute(tri, 0, sq, 2)
//
//	seq, ok := cache.Get(sig)
//	if !ok {
//		seq = foldcache.ComputeSequence(sig, 5.0)
//		cache.PutIfAbsent(sig, seq)
//	}
package foldcache

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/topology"
)

// FoldCode is one fold operation: a target dihedral angle with the feasible
// tolerance band around it, both in radians.
type FoldCode struct {
	Angle     float64 `json:"angle"`
	Tolerance float64 `json:"tolerance"`
}

// ParametricFoldSequence is an immutable, validated fold path for one
// attachment topology. Once cached it is never mutated; replacement is
// whole-entry via cache invalidation.
type ParametricFoldSequence struct {
	Signature topology.Signature `json:"signature"`
	Codes     []FoldCode         `json:"codes"`
}

// Final returns the terminal fold code of the sequence.
func (s *ParametricFoldSequence) Final() FoldCode {
	if len(s.Codes) == 0 {
		return FoldCode{Angle: math.Pi}
	}
	return s.Codes[len(s.Codes)-1]
}

// InRange reports whether angle lies within the tolerance band of the
// terminal fold code.
func (s *ParametricFoldSequence) InRange(angle float64) bool {
	f := s.Final()
	return math.Abs(angle-f.Angle) <= f.Tolerance
}

// Cache stores fold sequences keyed by topology signature.
//
// Thread Safety: safe for many concurrent readers; writes are insert-only.
type Cache struct {
	mu      sync.RWMutex
	entries map[topology.Signature]*ParametricFoldSequence

	// Statistics
	hits   uint64
	misses uint64
}

// New creates an empty fold sequence cache.
func New() *Cache {
	return &Cache{entries: make(map[topology.Signature]*ParametricFoldSequence)}
}

// Get returns the cached sequence for the signature, if present.
func (c *Cache) Get(sig topology.Signature) (*ParametricFoldSequence, bool) {
	c.mu.RLock()
	seq, ok := c.entries[sig]
	c.mu.RUnlock()

	if ok {
		atomic.AddUint64(&c.hits, 1)
	} else {
		atomic.AddUint64(&c.misses, 1)
	}
	return seq, ok
}

// PutIfAbsent inserts the sequence unless the signature is already cached.
// Returns true when the insert happened. An existing entry always wins, so a
// second PutIfAbsent with a different sequence leaves the original
// retrievable.
func (c *Cache) PutIfAbsent(sig topology.Signature, seq *ParametricFoldSequence) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[sig]; ok {
		return false
	}
	c.entries[sig] = seq
	return true
}

// GetOrCompute returns the cached sequence, computing and inserting it on a
// miss. A miss is not an error; the on-demand computation is synchronous.
func (c *Cache) GetOrCompute(sig topology.Signature, stepDegrees float64) *ParametricFoldSequence {
	if seq, ok := c.Get(sig); ok {
		return seq
	}
	seq := ComputeSequence(sig, stepDegrees)
	c.PutIfAbsent(sig, seq)
	// Reread so concurrent inserters converge on a single entry.
	cached, _ := c.Get(sig)
	return cached
}

// InvalidateAll drops every entry. This is the only replacement mechanism;
// use it on schema version bumps.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[topology.Signature]*ParametricFoldSequence)
}

// Load bulk-inserts precomputed entries, skipping signatures already present.
func (c *Cache) Load(entries map[topology.Signature]*ParametricFoldSequence) int {
	loaded := 0
	for sig, seq := range entries {
		if c.PutIfAbsent(sig, seq) {
			loaded++
		}
	}
	return loaded
}

// RangeQuery returns the cached sequences whose terminal dihedral angle lies
// in [minAngle, maxAngle] radians.
func (c *Cache) RangeQuery(minAngle, maxAngle float64) []*ParametricFoldSequence {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*ParametricFoldSequence
	for _, seq := range c.entries {
		final := seq.Final().Angle
		if final >= minAngle && final <= maxAngle {
			out = append(out, seq)
		}
	}
	return out
}

// Len returns the number of cached sequences.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats holds cache hit/miss counters.
type Stats struct {
	Size    int     // Current number of entries
	Hits    uint64  // Number of cache hits
	Misses  uint64  // Number of cache misses
	HitRate float64 // Hit rate percentage (0-100)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)

	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return Stats{Size: size, Hits: hits, Misses: misses, HitRate: hitRate}
}
