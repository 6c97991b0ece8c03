// Package symbol implements the tiered symbol codec for the Polylog catalog.
//
// A symbol is the compact code assigned to a polyform descriptor. The codec
// guarantees a bijection: every registered descriptor maps to exactly one
// symbol and decode(encode(d)) == d for all valid descriptors.
//
// Symbol forms:
//
//   - Canonical primitives (tier 1) use direct series/position lookup across
//     4 series x 9 positions = 36 base slots. Series A position 1 is the
//     triangle, so a triangle encodes as "A1". Each series starts one side
//     higher than the previous (B1 = square, C1 = pentagon, D1 = hexagon).
//   - Atomic chains (tier 0) pack additional digits positionally. Each extra
//     digit selects a position in a secondary series chosen by the fixed
//     cyclic map A->B->C->D->A. "A11" is the triangle-square chain [3, 4].
//   - Candidates and promoted assemblies (tiers 2-4) use index symbols of the
//     form "T2-17"; the index is monotonic per tier and never reused.
//
// Example Usage:
//
//	codec := symbol.NewCodec()
//	sym, err := codec.Encode(&polyform.Descriptor{Composition: []int{3}}, 1)
//	// sym.String() == "A1"
//
//	desc, err := codec.Decode(sym)
//	// desc.Composition == []int{3}
package symbol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/polyform"
)

// Tier bounds for the catalog.
const (
	TierAtomic    = 0 // atomic chains
	TierPrimitive = 1 // canonical primitives and solids
	TierCandidate = 2 // ingested candidates
	TierPromoted  = 3 // promoted stable assemblies
	TierArchival  = 4 // long-lived promoted assemblies
)

// Common errors
var (
	ErrDuplicateComposition = errors.New("symbol: composition already registered")
	ErrUnknownSymbol        = errors.New("symbol: unknown symbol")
	ErrMalformedSymbol      = errors.New("symbol: malformed symbol")
	ErrInvalidTier          = errors.New("symbol: tier out of range")
)

// maxSubscriptDigits bounds the packed digit run after the base position.
const maxSubscriptDigits = 3

// Series identifies one of the four base series, or none for index symbols.
type Series byte

const (
	SeriesNone Series = 0
	SeriesA    Series = 'A'
	SeriesB    Series = 'B'
	SeriesC    Series = 'C'
	SeriesD    Series = 'D'
)

var seriesOrder = [4]Series{SeriesA, SeriesB, SeriesC, SeriesD}

// base returns the side count of position 1 in the series.
func (s Series) base() int {
	switch s {
	case SeriesA:
		return 3
	case SeriesB:
		return 4
	case SeriesC:
		return 5
	case SeriesD:
		return 6
	}
	return 0
}

// next returns the series selected by the cyclic map for the following digit.
func (s Series) next() Series {
	switch s {
	case SeriesA:
		return SeriesB
	case SeriesB:
		return SeriesC
	case SeriesC:
		return SeriesD
	case SeriesD:
		return SeriesA
	}
	return SeriesNone
}

func (s Series) String() string {
	if s == SeriesNone {
		return ""
	}
	return string(rune(s))
}

// Symbol is a compact tiered code for a polyform descriptor.
//
// Symbol is a comparable value and is safe to use as a map key. Once assigned
// by a codec, a symbol is immutable; it is retired only by explicit tier
// demotion and never silently reused.
type Symbol struct {
	// Tier is the catalog tier, 0..4.
	Tier int `json:"tier"`
	// Series is A..D for series-coded symbols, SeriesNone for index symbols.
	Series Series `json:"series,omitempty"`
	// Index is the series position (1..9) for series symbols, or the
	// monotonic per-tier counter for index symbols.
	Index uint `json:"index"`
	// Subscript packs the extension digits of an atomic chain (0 when none).
	Subscript uint `json:"subscript,omitempty"`
}

// Zero reports whether the symbol is the zero value (no symbol).
func (s Symbol) Zero() bool { return s == Symbol{} }

// String renders the canonical text form: "A1", "A11", "T2-17".
func (s Symbol) String() string {
	if s.Series == SeriesNone {
		return fmt.Sprintf("T%d-%d", s.Tier, s.Index)
	}
	if s.Subscript == 0 {
		return fmt.Sprintf("%s%d", s.Series, s.Index)
	}
	return fmt.Sprintf("%s%d%d", s.Series, s.Index, s.Subscript)
}

// Parse parses the canonical text form of a symbol.
//
// Rejects non-digit characters in the subscript and digit runs longer than
// maxSubscriptDigits with ErrMalformedSymbol.
func Parse(text string) (Symbol, error) {
	if text == "" {
		return Symbol{}, fmt.Errorf("%w: empty", ErrMalformedSymbol)
	}

	// Index symbol: T<tier>-<index>
	if text[0] == 'T' {
		rest := text[1:]
		dash := strings.IndexByte(rest, '-')
		if dash <= 0 {
			return Symbol{}, fmt.Errorf("%w: %q", ErrMalformedSymbol, text)
		}
		tier, err := strconv.Atoi(rest[:dash])
		if err != nil || tier < TierAtomic || tier > TierArchival {
			return Symbol{}, fmt.Errorf("%w: %q", ErrMalformedSymbol, text)
		}
		idx, err := strconv.ParseUint(rest[dash+1:], 10, 64)
		if err != nil || idx == 0 {
			return Symbol{}, fmt.Errorf("%w: %q", ErrMalformedSymbol, text)
		}
		return Symbol{Tier: tier, Series: SeriesNone, Index: uint(idx)}, nil
	}

	// Series symbol: <letter><position digit><subscript digits>
	series := Series(text[0])
	if series.base() == 0 {
		return Symbol{}, fmt.Errorf("%w: %q", ErrMalformedSymbol, text)
	}
	digits := text[1:]
	if len(digits) == 0 || len(digits) > 1+maxSubscriptDigits {
		return Symbol{}, fmt.Errorf("%w: %q", ErrMalformedSymbol, text)
	}
	for _, r := range digits {
		if r < '1' || r > '9' {
			return Symbol{}, fmt.Errorf("%w: %q", ErrMalformedSymbol, text)
		}
	}

	pos := uint(digits[0] - '0')
	var sub uint
	for _, r := range digits[1:] {
		sub = sub*10 + uint(r-'0')
	}

	tier := TierPrimitive
	if sub != 0 {
		tier = TierAtomic
	}
	return Symbol{Tier: tier, Series: series, Index: pos, Subscript: sub}, nil
}

// Composition derives the side-count sequence encoded by a series symbol.
//
// Index symbols carry no composition in the code itself; decoding them
// requires the codec table.
func (s Symbol) Composition() ([]int, error) {
	if s.Series == SeriesNone {
		return nil, fmt.Errorf("%w: index symbol %s carries no composition", ErrMalformedSymbol, s)
	}
	if s.Index < 1 || s.Index > 9 {
		return nil, fmt.Errorf("%w: position %d", ErrMalformedSymbol, s.Index)
	}

	comp := []int{s.Series.base() + int(s.Index) - 1}

	sub := s.Subscript
	if sub == 0 {
		return comp, nil
	}
	digits := strconv.FormatUint(uint64(sub), 10)
	if len(digits) > maxSubscriptDigits {
		return nil, fmt.Errorf("%w: subscript %d", ErrMalformedSymbol, sub)
	}
	series := s.Series
	for _, r := range digits {
		if r < '1' || r > '9' {
			return nil, fmt.Errorf("%w: subscript digit %q", ErrMalformedSymbol, r)
		}
		series = series.next()
		comp = append(comp, series.base()+int(r-'0')-1)
	}
	return comp, nil
}

// seriesSymbolFor attempts to express a composition as a series symbol for
// the given tier. Returns the zero Symbol when the composition does not fit
// the series slots.
func seriesSymbolFor(comp []int, tier int) Symbol {
	if len(comp) == 0 || len(comp) > 1+maxSubscriptDigits {
		return Symbol{}
	}
	// Tier 1 holds single primitives, tier 0 holds chains.
	if tier == TierPrimitive && len(comp) != 1 {
		return Symbol{}
	}
	if tier == TierAtomic && len(comp) < 2 {
		return Symbol{}
	}
	if tier != TierPrimitive && tier != TierAtomic {
		return Symbol{}
	}

	// First polygon: the lowest series whose nine positions cover the side
	// count wins, so triangles through 11-gons land in series A.
	var first Series
	var pos int
	for _, series := range seriesOrder {
		p := comp[0] - series.base() + 1
		if p >= 1 && p <= 9 {
			first, pos = series, p
			break
		}
	}
	if first == SeriesNone {
		return Symbol{}
	}

	// Remaining polygons must fit the cyclically selected secondary series.
	var sub uint
	series := first
	for _, sides := range comp[1:] {
		series = series.next()
		d := sides - series.base() + 1
		if d < 1 || d > 9 {
			return Symbol{}
		}
		sub = sub*10 + uint(d)
	}

	return Symbol{Tier: tier, Series: first, Index: uint(pos), Subscript: sub}
}

// Codec is the symbol table mapping symbols to descriptors and back.
//
// Thread Safety: all methods are safe for concurrent use. Reads take a
// shared lock; Encode serializes writers.
type Codec struct {
	mu            sync.RWMutex
	bySymbol      map[Symbol]*polyform.Descriptor
	byComposition map[string]map[int]Symbol // composition key -> tier -> symbol
	nextIndex     [TierArchival + 1]uint
}

// NewCodec creates an empty symbol table.
func NewCodec() *Codec {
	return &Codec{
		bySymbol:      make(map[Symbol]*polyform.Descriptor),
		byComposition: make(map[string]map[int]Symbol),
	}
}

// Encode assigns a symbol to the descriptor at the given tier.
//
// Fails with ErrDuplicateComposition when an equivalent composition already
// holds a symbol at the same tier; re-registering the composition under a
// different tier is allowed (promotion relies on this).
func (c *Codec) Encode(d *polyform.Descriptor, tier int) (Symbol, error) {
	if tier < TierAtomic || tier > TierArchival {
		return Symbol{}, fmt.Errorf("%w: %d", ErrInvalidTier, tier)
	}
	if err := d.Validate(); err != nil {
		return Symbol{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := d.CompositionKey()
	if tiers, ok := c.byComposition[key]; ok {
		if existing, ok := tiers[tier]; ok {
			return Symbol{}, fmt.Errorf("%w: %s already %s", ErrDuplicateComposition, key, existing)
		}
	}

	sym := seriesSymbolFor(d.Composition, tier)
	if sym.Zero() {
		c.nextIndex[tier]++
		sym = Symbol{Tier: tier, Series: SeriesNone, Index: c.nextIndex[tier]}
	}
	if _, taken := c.bySymbol[sym]; taken {
		// A series slot can only collide through a composition collision,
		// which the duplicate check above already rejects.
		return Symbol{}, fmt.Errorf("symbol: internal: slot %s already taken", sym)
	}

	c.bySymbol[sym] = d.Clone()
	if c.byComposition[key] == nil {
		c.byComposition[key] = make(map[int]Symbol)
	}
	c.byComposition[key][tier] = sym
	return sym, nil
}

// Decode returns the descriptor registered for the symbol.
//
// Fails with ErrUnknownSymbol when the symbol is absent.
func (c *Codec) Decode(sym Symbol) (*polyform.Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.bySymbol[sym]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, sym)
	}
	return d.Clone(), nil
}

// Lookup returns the symbol registered for a composition at a tier.
func (c *Codec) Lookup(compositionKey string, tier int) (Symbol, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sym, ok := c.byComposition[compositionKey][tier]
	return sym, ok
}

// Restore inserts an exact symbol/descriptor pair, used when loading a
// serialized registry. Index counters advance past restored index symbols so
// future Encode calls never reuse a symbol.
func (c *Codec) Restore(sym Symbol, d *polyform.Descriptor) error {
	if sym.Tier < TierAtomic || sym.Tier > TierArchival {
		return fmt.Errorf("%w: %d", ErrInvalidTier, sym.Tier)
	}
	if err := d.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, taken := c.bySymbol[sym]; taken {
		return fmt.Errorf("%w: %s", ErrDuplicateComposition, sym)
	}
	c.bySymbol[sym] = d.Clone()

	key := d.CompositionKey()
	if c.byComposition[key] == nil {
		c.byComposition[key] = make(map[int]Symbol)
	}
	c.byComposition[key][sym.Tier] = sym

	if sym.Series == SeriesNone && sym.Index > c.nextIndex[sym.Tier] {
		c.nextIndex[sym.Tier] = sym.Index
	}
	return nil
}

// Len returns the number of registered symbols.
func (c *Codec) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bySymbol)
}

// Range calls fn for every symbol/descriptor pair until fn returns false.
// The descriptor passed to fn is a clone; mutation does not affect the table.
func (c *Codec) Range(fn func(Symbol, *polyform.Descriptor) bool) {
	c.mu.RLock()
	pairs := make(map[Symbol]*polyform.Descriptor, len(c.bySymbol))
	for sym, d := range c.bySymbol {
		pairs[sym] = d.Clone()
	}
	c.mu.RUnlock()

	for sym, d := range pairs {
		if !fn(sym, d) {
			return
		}
	}
}
