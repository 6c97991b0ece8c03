// Package polyform defines the value types shared across the Polylog engine.
//
// A polyform is an assembly of regular polygons (3-20 sides) connected along
// edges, possibly folded into 3D. This package holds the closed polygon type
// variant, the descriptor that catalogs an assembly, and the small geometric
// value types (3-vectors, quaternions, placements) the liaison graph needs.
// It has no dependencies on the rest of the engine.
//
// Example Usage:
//
//	tri := polyform.Type{Sides: 3}
//	desc := &polyform.Descriptor{
//		Composition: []int{3, 4},
//		GeometryRef: "arena/tri-square",
//		Metadata: polyform.Metadata{
//			Stability:        0.92,
//			SymmetryGroup:    "C2",
//			CompressionRatio: 4.5,
//		},
//	}
//	if err := desc.Validate(); err != nil {
//		log.Fatal(err)
//	}
package polyform

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Side count bounds for regular polygons handled by the engine.
const (
	MinSides = 3
	MaxSides = 20
)

// Common errors
var (
	ErrInvalidSides     = errors.New("polyform: side count out of range")
	ErrEmptyComposition = errors.New("polyform: empty composition")
	ErrInvalidMetadata  = errors.New("polyform: invalid metadata")
	ErrInvalidEdgeIndex = errors.New("polyform: edge index out of range")
	ErrZeroQuaternion   = errors.New("polyform: zero quaternion")
)

// Type is the closed tagged variant describing a polygon kind.
//
// The engine dispatches on side count plus an optional symmetry tag; there is
// no open type hierarchy. Type is a comparable value and is safe to use as a
// map key.
type Type struct {
	// Sides is the regular polygon side count, MinSides..MaxSides.
	Sides int
	// Symmetry optionally names a symmetry subgroup restriction ("", "C2",
	// "D4", ...). Empty means the full dihedral symmetry of the polygon.
	Symmetry string
}

// Validate checks the side count bounds.
func (t Type) Validate() error {
	if t.Sides < MinSides || t.Sides > MaxSides {
		return fmt.Errorf("%w: %d (want %d..%d)", ErrInvalidSides, t.Sides, MinSides, MaxSides)
	}
	return nil
}

// CheckEdge validates an edge index against the polygon's side count.
func (t Type) CheckEdge(edge int) error {
	if edge < 0 || edge >= t.Sides {
		return fmt.Errorf("%w: edge %d on %d-gon", ErrInvalidEdgeIndex, edge, t.Sides)
	}
	return nil
}

// InteriorAngle returns the interior angle of the regular polygon in radians.
func (t Type) InteriorAngle() float64 {
	return math.Pi * float64(t.Sides-2) / float64(t.Sides)
}

// Circumradius returns the circumradius of the unit-edge regular polygon.
func (t Type) Circumradius() float64 {
	return 0.5 / math.Sin(math.Pi/float64(t.Sides))
}

// Apothem returns the inradius (centroid-to-edge-midpoint distance) of the
// unit-edge regular polygon.
func (t Type) Apothem() float64 {
	return 0.5 / math.Tan(math.Pi/float64(t.Sides))
}

func (t Type) String() string {
	if t.Symmetry == "" {
		return fmt.Sprintf("%d-gon", t.Sides)
	}
	return fmt.Sprintf("%d-gon/%s", t.Sides, t.Symmetry)
}

// Metadata carries the catalog annotations attached to a descriptor.
type Metadata struct {
	// Stability is the observed stability ratio for the assembly, 0..1.
	Stability float64 `json:"stability"`
	// SymmetryGroup names the assembly's symmetry group ("C1" when trivial).
	SymmetryGroup string `json:"symmetryGroup,omitempty"`
	// CompressionRatio is expanded-size / symbol-size for the assembly.
	CompressionRatio float64 `json:"compressionRatio,omitempty"`
	// Frequency counts how often the assembly has been observed.
	Frequency int64 `json:"frequency,omitempty"`
}

// Descriptor is the canonical expanded definition of a polyform.
//
// Descriptors are owned by the tier registry. Liaison graph nodes reference
// the polygon types a descriptor names; they never copy the descriptor.
type Descriptor struct {
	// Composition is the ordered sequence of polygon side counts.
	Composition []int `json:"composition"`
	// GeometryRef keys the vertex/face arena entry for the expanded geometry.
	GeometryRef string `json:"geometryRef,omitempty"`
	// Metadata holds stability, symmetry and compression annotations.
	Metadata Metadata `json:"metadata"`
}

// Validate checks composition bounds and metadata ranges.
func (d *Descriptor) Validate() error {
	if len(d.Composition) == 0 {
		return ErrEmptyComposition
	}
	for i, sides := range d.Composition {
		if sides < MinSides || sides > MaxSides {
			return fmt.Errorf("%w: composition[%d]=%d", ErrInvalidSides, i, sides)
		}
	}
	if d.Metadata.Stability < 0 || d.Metadata.Stability > 1 {
		return fmt.Errorf("%w: stability %v outside [0,1]", ErrInvalidMetadata, d.Metadata.Stability)
	}
	if d.Metadata.CompressionRatio < 0 {
		return fmt.Errorf("%w: negative compression ratio", ErrInvalidMetadata)
	}
	if d.Metadata.Frequency < 0 {
		return fmt.Errorf("%w: negative frequency", ErrInvalidMetadata)
	}
	return nil
}

// CompositionKey returns the canonical string form of the composition,
// e.g. "3-4-4". Two descriptors with the same key are equivalent for
// duplicate detection in the symbol codec.
func (d *Descriptor) CompositionKey() string {
	parts := make([]string, len(d.Composition))
	for i, sides := range d.Composition {
		parts[i] = strconv.Itoa(sides)
	}
	return strings.Join(parts, "-")
}

// Clone returns a deep copy. Registry readers receive clones so callers can
// never mutate catalog state through a returned descriptor.
func (d *Descriptor) Clone() *Descriptor {
	out := &Descriptor{
		Composition: append([]int(nil), d.Composition...),
		GeometryRef: d.GeometryRef,
		Metadata:    d.Metadata,
	}
	return out
}

// Equal reports whether two descriptors describe the same polyform.
func (d *Descriptor) Equal(other *Descriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	if len(d.Composition) != len(other.Composition) {
		return false
	}
	for i := range d.Composition {
		if d.Composition[i] != other.Composition[i] {
			return false
		}
	}
	return d.GeometryRef == other.GeometryRef && d.Metadata == other.Metadata
}

// Vec3 is a 3-component vector.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 { return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z} }

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 { return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z} }

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Length returns the Euclidean norm.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Quat is a rotation quaternion (W + Xi + Yj + Zk).
type Quat struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IdentityQuat returns the no-rotation quaternion.
func IdentityQuat() Quat { return Quat{W: 1} }

// Normalize returns the unit quaternion, or an error for a zero quaternion.
func (q Quat) Normalize() (Quat, error) {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n == 0 {
		return Quat{}, ErrZeroQuaternion
	}
	return Quat{q.W / n, q.X / n, q.Y / n, q.Z / n}, nil
}

// Placement positions a polygon in space: centroid plus orientation.
type Placement struct {
	Centroid    Vec3 `json:"centroid"`
	Orientation Quat `json:"orientation"`
}
