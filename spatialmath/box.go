package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// Box is an axis-aligned bounding box given by its minimum and maximum corners.
type Box struct {
	Min r3.Vector `json:"min"`
	Max r3.Vector `json:"max"`
}

// NewBoxAround returns the smallest axis-aligned box containing a and b, grown by margin on
// every side.
func NewBoxAround(a, b r3.Vector, margin float64) Box {
	grow := r3.Vector{X: margin, Y: margin, Z: margin}
	return Box{
		Min: minVector(a, b).Sub(grow),
		Max: maxVector(a, b).Add(grow),
	}
}

// Clamp returns the intersection of the box with bounds. An empty intersection collapses to a
// degenerate box on the bounds' faces.
func (b Box) Clamp(bounds Box) Box {
	out := Box{Min: maxVector(b.Min, bounds.Min), Max: minVector(b.Max, bounds.Max)}
	out.Max = maxVector(out.Max, out.Min)
	return out
}

// Contains returns whether p is inside the box or on its faces.
func (b Box) Contains(p r3.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// StrictlyContains returns whether p is in the interior of the box.
func (b Box) StrictlyContains(p r3.Vector) bool {
	return p.X > b.Min.X && p.X < b.Max.X &&
		p.Y > b.Min.Y && p.Y < b.Max.Y &&
		p.Z > b.Min.Z && p.Z < b.Max.Z
}

// Center returns the midpoint of the box.
func (b Box) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Dims returns the side lengths of the box.
func (b Box) Dims() r3.Vector {
	return b.Max.Sub(b.Min)
}

// HalfSpaces returns the six faces of the box as outward-facing unit half-spaces.
func (b Box) HalfSpaces() []HalfSpace {
	return []HalfSpace{
		{Normal: r3.Vector{X: 1}, Offset: -b.Max.X},
		{Normal: r3.Vector{X: -1}, Offset: b.Min.X},
		{Normal: r3.Vector{Y: 1}, Offset: -b.Max.Y},
		{Normal: r3.Vector{Y: -1}, Offset: b.Min.Y},
		{Normal: r3.Vector{Z: 1}, Offset: -b.Max.Z},
		{Normal: r3.Vector{Z: -1}, Offset: b.Min.Z},
	}
}

// Polytope returns the box as a six-faced polytope.
func (b Box) Polytope() *Polytope {
	p, _ := NewPolytope(b.HalfSpaces()) //nolint:errcheck
	return p
}

func minVector(a, b r3.Vector) r3.Vector {
	return r3.Vector{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)}
}

func maxVector(a, b r3.Vector) r3.Vector {
	return r3.Vector{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)}
}
