package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	// inscribedBound caps both the margin and every coordinate so the LP stays bounded even for
	// open intersections.
	inscribedBound = 1e4
	simplexTol     = 1e-10
)

// ErrEmptyIntersection is returned when the polytopes share no point at all.
var ErrEmptyIntersection = errors.New("polytopes do not intersect")

// InscribedCenter finds the point x deepest inside the intersection of the given polytopes by
// solving
//
//	max s  s.t.  a_k·x + |a_k| s <= -d_k  for every row k of every polytope.
//
// It returns x and the optimal s, the Euclidean distance from x to the closest face. A negative
// margin means the polytopes do not share an interior point; the returned center is then the
// least-violating point.
func InscribedCenter(polytopes ...*Polytope) (r3.Vector, float64, error) {
	var rows []HalfSpace
	for _, p := range polytopes {
		for _, hs := range p.HalfSpaces() {
			if hs.Normal.Norm() < floatEpsilon {
				if hs.Offset > 0 {
					return r3.Vector{}, math.Inf(-1), ErrEmptyIntersection
				}
				continue
			}
			rows = append(rows, hs)
		}
	}

	// Variables are [x y z s]; extra rows bound each coordinate and the margin.
	const nVar = 4
	nIneq := len(rows) + 2*3 + 1
	g := mat.NewDense(nIneq, nVar, nil)
	h := make([]float64, nIneq)
	for k, hs := range rows {
		g.SetRow(k, []float64{hs.Normal.X, hs.Normal.Y, hs.Normal.Z, hs.Normal.Norm()})
		h[k] = -hs.Offset
	}
	k := len(rows)
	for axis := 0; axis < 3; axis++ {
		g.Set(k, axis, 1)
		h[k] = inscribedBound
		k++
		g.Set(k, axis, -1)
		h[k] = inscribedBound
		k++
	}
	g.Set(k, 3, 1)
	h[k] = inscribedBound

	c := []float64{0, 0, 0, -1}
	cNew, aNew, bNew := lp.Convert(c, g, h, nil, nil)
	_, optX, err := lp.Simplex(cNew, aNew, bNew, simplexTol, nil)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return r3.Vector{}, math.Inf(-1), ErrEmptyIntersection
		}
		return r3.Vector{}, math.Inf(-1), errors.Wrap(err, "inscribed center linear program")
	}

	// Convert splits every free variable into positive and negative parts.
	x := make([]float64, nVar)
	for i := range x {
		x[i] = optX[i] - optX[nVar+i]
	}
	return r3.Vector{X: x[0], Y: x[1], Z: x[2]}, x[3], nil
}

// Overlap reports whether the two polytopes share a ball of radius greater than eps.
func Overlap(p, q *Polytope, eps float64) bool {
	_, margin, err := InscribedCenter(p, q)
	if err != nil {
		return false
	}
	return margin > eps
}
