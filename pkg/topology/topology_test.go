package topology

import (
	"errors"
	"testing"

	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/polyform"
)

var (
	tri = polyform.Type{Sides: 3}
	sq  = polyform.Type{Sides: 4}
)

func TestCompute_OrderIndependent(t *testing.T) {
	a, err := Compute(tri, 0, sq, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Compute(sq, 2, tri, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a != b {
		t.Errorf("signatures differ: %v vs %v", a, b)
	}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %d vs %d", a.Key(), b.Key())
	}
}

func TestCompute_SameTypeOrdersByEdge(t *testing.T) {
	a, _ := Compute(sq, 3, sq, 1)
	if a.EdgeA != 1 || a.EdgeB != 3 {
		t.Errorf("edges = (%d, %d), want (1, 3)", a.EdgeA, a.EdgeB)
	}

	b, _ := Compute(sq, 1, sq, 3)
	if a != b {
		t.Errorf("signatures differ: %v vs %v", a, b)
	}
}

func TestCompute_InvalidEdgeIndex(t *testing.T) {
	if _, err := Compute(tri, 3, sq, 0); !errors.Is(err, polyform.ErrInvalidEdgeIndex) {
		t.Errorf("err = %v, want ErrInvalidEdgeIndex", err)
	}
	if _, err := Compute(tri, 0, sq, 4); !errors.Is(err, polyform.ErrInvalidEdgeIndex) {
		t.Errorf("err = %v, want ErrInvalidEdgeIndex", err)
	}
}

func TestSignature_KeyDistinguishes(t *testing.T) {
	seen := make(map[uint64]Signature)
	for _, ta := range []polyform.Type{tri, sq, {Sides: 4, Symmetry: "C2"}} {
		for ea := 0; ea < ta.Sides; ea++ {
			for _, tb := range []polyform.Type{tri, sq} {
				for eb := 0; eb < tb.Sides; eb++ {
					sig, err := Compute(ta, ea, tb, eb)
					if err != nil {
						t.Fatal(err)
					}
					if prev, ok := seen[sig.Key()]; ok && prev != sig {
						t.Fatalf("key collision: %v and %v", prev, sig)
					}
					seen[sig.Key()] = sig
				}
			}
		}
	}
}

func TestSignature_KeyStable(t *testing.T) {
	sig, _ := Compute(tri, 1, sq, 2)
	k1 := sig.Key()
	k2 := sig.Key()
	if k1 != k2 {
		t.Errorf("key not stable: %d vs %d", k1, k2)
	}
}
