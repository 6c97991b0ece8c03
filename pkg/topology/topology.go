// Package topology canonicalizes polygon-pair attachments into hashable keys.
//
// A topology signature identifies an attachment pattern (which polygon types
// touch along which edge indices) independent of which side is source and
// which is target. Signatures key the fold sequence cache, so the same
// attachment topology always resolves to the same precomputed fold path.
//
// Example Usage:
//
//	tri := polyform.Type{Sides: 3}
//	sq := polyform.Type{Sides: 4}
//
//	a, _ := topology.Compute(tri, 0, sq, 2)
//	b, _ := topology.Compute(sq, 2, tri, 0)
//	// a == b: signatures are order-independent
package topology

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/polyform"
)

// Signature is the canonical tuple for a polygon-pair attachment.
//
// The tuple is normalized under a fixed ordering rule so that
// Compute(A, ea, B, eb) == Compute(B, eb, A, ea). Signature is a comparable
// value type with no lifecycle and is safe to use as a map key.
type Signature struct {
	TypeA polyform.Type `json:"typeA"`
	TypeB polyform.Type `json:"typeB"`
	EdgeA int           `json:"edgeA"`
	EdgeB int           `json:"edgeB"`
}

// Compute builds the canonical signature for an attachment.
//
// Edge indices are validated against the polygon side counts; an index at or
// past the side count fails with polyform.ErrInvalidEdgeIndex. Ordering rule:
// the side with the lexicographically smaller (sides, symmetry, edge) triple
// becomes side A.
func Compute(typeA polyform.Type, edgeA int, typeB polyform.Type, edgeB int) (Signature, error) {
	if err := typeA.CheckEdge(edgeA); err != nil {
		return Signature{}, err
	}
	if err := typeB.CheckEdge(edgeB); err != nil {
		return Signature{}, err
	}

	if less(typeB, edgeB, typeA, edgeA) {
		typeA, typeB = typeB, typeA
		edgeA, edgeB = edgeB, edgeA
	}
	return Signature{TypeA: typeA, TypeB: typeB, EdgeA: edgeA, EdgeB: edgeB}, nil
}

// less orders attachment sides by (sides, symmetry, edge).
func less(ta polyform.Type, ea int, tb polyform.Type, eb int) bool {
	if ta.Sides != tb.Sides {
		return ta.Sides < tb.Sides
	}
	if ta.Symmetry != tb.Symmetry {
		return ta.Symmetry < tb.Symmetry
	}
	return ea < eb
}

// Key returns a stable 64-bit hash of the signature, suitable for compact
// map keys and on-disk cache addressing. The hash is a truncated BLAKE2b
// digest over the canonical tuple, so it is identical across processes.
func (s Signature) Key() uint64 {
	var buf [16]byte
	binary.BigEndian.PutUint16(buf[0:], uint16(s.TypeA.Sides))
	binary.BigEndian.PutUint16(buf[2:], uint16(s.TypeB.Sides))
	binary.BigEndian.PutUint16(buf[4:], uint16(s.EdgeA))
	binary.BigEndian.PutUint16(buf[6:], uint16(s.EdgeB))

	h, err := blake2b.New(8, nil)
	if err != nil {
		// blake2b.New only fails on invalid key material; none is passed.
		panic(err)
	}
	h.Write(buf[:8])
	h.Write([]byte(s.TypeA.Symmetry))
	h.Write([]byte{0})
	h.Write([]byte(s.TypeB.Symmetry))
	return binary.BigEndian.Uint64(h.Sum(buf[8:8]))
}

func (s Signature) String() string {
	return fmt.Sprintf("%s[%d]~%s[%d]", s.TypeA, s.EdgeA, s.TypeB, s.EdgeB)
}
