package symbol

import (
	"errors"
	"testing"

	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/polyform"
)

func desc(comp ...int) *polyform.Descriptor {
	return &polyform.Descriptor{Composition: comp}
}

// =============================================================================
// Parse / String Tests
// =============================================================================

func TestParse(t *testing.T) {
	t.Run("single primitive", func(t *testing.T) {
		sym, err := Parse("A1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := Symbol{Tier: TierPrimitive, Series: SeriesA, Index: 1}
		if sym != want {
			t.Errorf("sym = %+v, want %+v", sym, want)
		}
	})

	t.Run("atomic chain", func(t *testing.T) {
		sym, err := Parse("A11")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := Symbol{Tier: TierAtomic, Series: SeriesA, Index: 1, Subscript: 1}
		if sym != want {
			t.Errorf("sym = %+v, want %+v", sym, want)
		}
	})

	t.Run("index symbol", func(t *testing.T) {
		sym, err := Parse("T2-17")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := Symbol{Tier: TierCandidate, Series: SeriesNone, Index: 17}
		if sym != want {
			t.Errorf("sym = %+v, want %+v", sym, want)
		}
	})

	t.Run("malformed inputs", func(t *testing.T) {
		for _, text := range []string{
			"",       // empty
			"E1",     // unknown series
			"A",      // missing position
			"A0",     // zero digit
			"A1x",    // non-digit subscript
			"A12345", // subscript run longer than 3
			"T9-1",   // tier out of range
			"T2-0",   // zero index
			"T2-",    // missing index
		} {
			if _, err := Parse(text); !errors.Is(err, ErrMalformedSymbol) {
				t.Errorf("Parse(%q) err = %v, want ErrMalformedSymbol", text, err)
			}
		}
	})
}

func TestSymbol_StringRoundTrip(t *testing.T) {
	for _, text := range []string{"A1", "B9", "A11", "C234", "T2-1", "T4-99"} {
		sym, err := Parse(text)
		if err != nil {
			t.Fatalf("Parse(%q): %v", text, err)
		}
		if got := sym.String(); got != text {
			t.Errorf("String() = %q, want %q", got, text)
		}
	}
}

// =============================================================================
// Composition Tests
// =============================================================================

func TestSymbol_Composition(t *testing.T) {
	t.Run("A1 is the triangle", func(t *testing.T) {
		sym := Symbol{Tier: TierPrimitive, Series: SeriesA, Index: 1}
		comp, err := sym.Composition()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(comp) != 1 || comp[0] != 3 {
			t.Errorf("composition = %v, want [3]", comp)
		}
	})

	t.Run("A11 is triangle-square", func(t *testing.T) {
		sym := Symbol{Tier: TierAtomic, Series: SeriesA, Index: 1, Subscript: 1}
		comp, err := sym.Composition()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(comp) != 2 || comp[0] != 3 || comp[1] != 4 {
			t.Errorf("composition = %v, want [3 4]", comp)
		}
	})

	t.Run("cyclic series map wraps D back to A", func(t *testing.T) {
		// D1 = hexagon; the three subscript digits walk A, B, C.
		sym := Symbol{Tier: TierAtomic, Series: SeriesD, Index: 1, Subscript: 111}
		comp, err := sym.Composition()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []int{6, 3, 4, 5}
		for i := range want {
			if comp[i] != want[i] {
				t.Fatalf("composition = %v, want %v", comp, want)
			}
		}
	})

	t.Run("index symbols carry no composition", func(t *testing.T) {
		sym := Symbol{Tier: TierCandidate, Index: 5}
		if _, err := sym.Composition(); !errors.Is(err, ErrMalformedSymbol) {
			t.Errorf("err = %v, want ErrMalformedSymbol", err)
		}
	})
}

// =============================================================================
// Codec Tests
// =============================================================================

func TestCodec_EncodeDecode(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		codec := NewCodec()

		for _, d := range []*polyform.Descriptor{
			desc(3),
			desc(4),
			desc(20), // no series slot, index symbol
		} {
			sym, err := codec.Encode(d, TierPrimitive)
			if err != nil {
				t.Fatalf("Encode(%v): %v", d.Composition, err)
			}
			got, err := codec.Decode(sym)
			if err != nil {
				t.Fatalf("Decode(%s): %v", sym, err)
			}
			if !got.Equal(d) {
				t.Errorf("Decode(%s) = %+v, want %+v", sym, got, d)
			}
		}
	})

	t.Run("triangle encodes as A1", func(t *testing.T) {
		codec := NewCodec()
		sym, err := codec.Encode(desc(3), TierPrimitive)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sym.String() != "A1" {
			t.Errorf("symbol = %s, want A1", sym)
		}
	})

	t.Run("triangle-square chain encodes as A11", func(t *testing.T) {
		codec := NewCodec()
		sym, err := codec.Encode(desc(3, 4), TierAtomic)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sym.String() != "A11" {
			t.Errorf("symbol = %s, want A11", sym)
		}

		got, err := codec.Decode(sym)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if len(got.Composition) != 2 || got.Composition[0] != 3 || got.Composition[1] != 4 {
			t.Errorf("composition = %v, want [3 4]", got.Composition)
		}
	})

	t.Run("duplicate composition same tier rejected", func(t *testing.T) {
		codec := NewCodec()
		if _, err := codec.Encode(desc(3), TierPrimitive); err != nil {
			t.Fatal(err)
		}
		_, err := codec.Encode(desc(3), TierPrimitive)
		if !errors.Is(err, ErrDuplicateComposition) {
			t.Errorf("err = %v, want ErrDuplicateComposition", err)
		}
	})

	t.Run("re-registering under a new tier allowed", func(t *testing.T) {
		codec := NewCodec()
		if _, err := codec.Encode(desc(3, 4), TierCandidate); err != nil {
			t.Fatal(err)
		}
		sym, err := codec.Encode(desc(3, 4), TierPromoted)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sym.Tier != TierPromoted {
			t.Errorf("tier = %d, want %d", sym.Tier, TierPromoted)
		}
	})

	t.Run("decode unknown symbol", func(t *testing.T) {
		codec := NewCodec()
		_, err := codec.Decode(Symbol{Tier: TierCandidate, Index: 99})
		if !errors.Is(err, ErrUnknownSymbol) {
			t.Errorf("err = %v, want ErrUnknownSymbol", err)
		}
	})

	t.Run("invalid tier", func(t *testing.T) {
		codec := NewCodec()
		if _, err := codec.Encode(desc(3), 5); !errors.Is(err, ErrInvalidTier) {
			t.Errorf("err = %v, want ErrInvalidTier", err)
		}
	})

	t.Run("index symbols are monotonic", func(t *testing.T) {
		codec := NewCodec()
		a, _ := codec.Encode(desc(15), TierCandidate)
		b, _ := codec.Encode(desc(16), TierCandidate)
		if b.Index != a.Index+1 {
			t.Errorf("indices %d, %d not monotonic", a.Index, b.Index)
		}
	})
}

func TestCodec_Restore(t *testing.T) {
	codec := NewCodec()
	sym := Symbol{Tier: TierCandidate, Series: SeriesNone, Index: 7}
	if err := codec.Restore(sym, desc(5, 5)); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, err := codec.Decode(sym)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.CompositionKey() != "5-5" {
		t.Errorf("composition key = %q, want 5-5", got.CompositionKey())
	}

	// New encodes must not reuse the restored index.
	next, err := codec.Encode(desc(6, 7, 8, 9), TierCandidate)
	if err != nil {
		t.Fatal(err)
	}
	if next.Index <= 7 {
		t.Errorf("next index = %d, want > 7", next.Index)
	}

	// Restoring the same symbol twice is a duplicate.
	if err := codec.Restore(sym, desc(5, 5)); !errors.Is(err, ErrDuplicateComposition) {
		t.Errorf("err = %v, want ErrDuplicateComposition", err)
	}
}
