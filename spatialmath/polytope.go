package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// HalfSpace is the set of points x with Normal·x + Offset <= 0.
type HalfSpace struct {
	Normal r3.Vector `json:"normal"`
	Offset float64   `json:"offset"`
}

// NewHalfSpaceThrough returns the half-space bounded by the plane through point with the given
// outward normal.
func NewHalfSpaceThrough(normal, point r3.Vector) HalfSpace {
	return HalfSpace{Normal: normal, Offset: -normal.Dot(point)}
}

// Eval returns Normal·p + Offset; non-positive values are inside.
func (hs HalfSpace) Eval(p r3.Vector) float64 {
	return hs.Normal.Dot(p) + hs.Offset
}

// SignedDistance returns the Euclidean signed distance from p to the boundary plane, positive
// outside.
func (hs HalfSpace) SignedDistance(p r3.Vector) float64 {
	return hs.Eval(p) / hs.Normal.Norm()
}

func (hs HalfSpace) String() string {
	return fmt.Sprintf("%.4f*x + %.4f*y + %.4f*z + %.4f <= 0", hs.Normal.X, hs.Normal.Y, hs.Normal.Z, hs.Offset)
}

// Polytope is a convex region in H-representation: the intersection of a finite set of
// half-spaces. It is stored as an n x 4 matrix whose rows are [a b c d]. A Polytope is
// immutable once built.
type Polytope struct {
	h *mat.Dense
}

// NewPolytope builds a polytope from half-spaces. It returns an error if no half-spaces are
// given.
func NewPolytope(halfSpaces []HalfSpace) (*Polytope, error) {
	if len(halfSpaces) == 0 {
		return nil, errors.New("polytope needs at least one half-space")
	}
	data := make([]float64, 0, 4*len(halfSpaces))
	for _, hs := range halfSpaces {
		data = append(data, hs.Normal.X, hs.Normal.Y, hs.Normal.Z, hs.Offset)
	}
	return &Polytope{h: mat.NewDense(len(halfSpaces), 4, data)}, nil
}

// NewPolytopeFromMatrix copies an n x 4 H-representation matrix.
func NewPolytopeFromMatrix(m mat.Matrix) (*Polytope, error) {
	r, c := m.Dims()
	if c != 4 {
		return nil, errors.Errorf("polytope matrix needs 4 columns, got %d", c)
	}
	if r == 0 {
		return nil, errors.New("polytope needs at least one half-space")
	}
	return &Polytope{h: mat.DenseCopyOf(m)}, nil
}

// NumHalfSpaces returns the number of rows of the H-representation.
func (p *Polytope) NumHalfSpaces() int {
	r, _ := p.h.Dims()
	return r
}

// HalfSpace returns the i-th half-space.
func (p *Polytope) HalfSpace(i int) HalfSpace {
	return HalfSpace{
		Normal: r3.Vector{X: p.h.At(i, 0), Y: p.h.At(i, 1), Z: p.h.At(i, 2)},
		Offset: p.h.At(i, 3),
	}
}

// HalfSpaces returns every half-space of the polytope.
func (p *Polytope) HalfSpaces() []HalfSpace {
	out := make([]HalfSpace, p.NumHalfSpaces())
	for i := range out {
		out[i] = p.HalfSpace(i)
	}
	return out
}

// Matrix returns a copy of the n x 4 H-representation.
func (p *Polytope) Matrix() *mat.Dense {
	return mat.DenseCopyOf(p.h)
}

// evaluate returns H * [pt; 1].
func (p *Polytope) evaluate(pt r3.Vector) *mat.VecDense {
	out := mat.NewVecDense(p.NumHalfSpaces(), nil)
	out.MulVec(p.h, mat.NewVecDense(4, []float64{pt.X, pt.Y, pt.Z, 1}))
	return out
}

// MaxViolation returns max_i h_i·[pt, 1]. Negative values mean pt is strictly inside.
func (p *Polytope) MaxViolation(pt r3.Vector) float64 {
	return mat.Max(p.evaluate(pt))
}

// Contains returns whether pt satisfies every half-space within tol.
func (p *Polytope) Contains(pt r3.Vector, tol float64) bool {
	return p.MaxViolation(pt) <= tol
}

// BoundaryHits counts the half-spaces for which h·[pt, 1] > -eps, i.e. the faces pt lies on (or
// outside of) up to eps.
func (p *Polytope) BoundaryHits(pt r3.Vector, eps float64) int {
	vals := p.evaluate(pt)
	hits := 0
	for i := 0; i < vals.Len(); i++ {
		if vals.AtVec(i) > -eps {
			hits++
		}
	}
	return hits
}

// Normalized returns a copy of the polytope whose normals have unit length. Rows with a zero
// normal are dropped.
func (p *Polytope) Normalized() *Polytope {
	var rows []HalfSpace
	for _, hs := range p.HalfSpaces() {
		norm := hs.Normal.Norm()
		if norm < floatEpsilon {
			continue
		}
		rows = append(rows, HalfSpace{Normal: hs.Normal.Mul(1 / norm), Offset: hs.Offset / norm})
	}
	if len(rows) == 0 {
		return p
	}
	out, _ := NewPolytope(rows) //nolint:errcheck
	return out
}

func (p *Polytope) String() string {
	return fmt.Sprintf("Polytope(%d half-spaces)", p.NumHalfSpaces())
}

const floatEpsilon = 1e-12

// ClosestPointOnSegment returns the point of segment [a, b] closest to p.
func ClosestPointOnSegment(a, b, p r3.Vector) r3.Vector {
	ab := b.Sub(a)
	lenSq := ab.Norm2()
	if lenSq < floatEpsilon {
		return a
	}
	t := p.Sub(a).Dot(ab) / lenSq
	t = math.Max(0, math.Min(1, t))
	return a.Add(ab.Mul(t))
}
