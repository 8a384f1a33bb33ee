// Package corridor covers a waypoint path with a chain of overlapping obstacle-free convex
// polytopes.
package corridor

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/rhplanner/spatialmath"
)

// FreeSpaceSolver computes an obstacle-free convex polytope around a segment. The result must
// contain the segment, exclude every candidate obstacle from its interior and lie within the
// given bounding half-spaces.
type FreeSpaceSolver interface {
	Solve(bounds []spatialmath.HalfSpace, obstacles []r3.Vector, a, b r3.Vector) (*spatialmath.Polytope, error)
}

// ErrObstacleOnSegment is returned when an obstacle lies on the segment to be covered.
var ErrObstacleOnSegment = errors.New("obstacle lies on the segment")

// SeparatingSolver greedily adds one separating plane per obstacle, nearest obstacle first. Each
// plane is orthogonal to the line from the obstacle to its closest point on the segment and
// passes through the obstacle, shifted toward the segment by at most Margin and never by more
// than half the clearance. Obstacles already cut off by an earlier plane add nothing.
type SeparatingSolver struct {
	Margin float64
}

type candidate struct {
	point     r3.Vector
	closest   r3.Vector
	clearance float64
}

// Solve implements FreeSpaceSolver.
func (s SeparatingSolver) Solve(bounds []spatialmath.HalfSpace, obstacles []r3.Vector, a, b r3.Vector) (*spatialmath.Polytope, error) {
	candidates := make([]candidate, 0, len(obstacles))
	for _, p := range obstacles {
		q := spatialmath.ClosestPointOnSegment(a, b, p)
		dist := p.Distance(q)
		if dist < 1e-9 {
			return nil, errors.Wrapf(ErrObstacleOnSegment, "obstacle %v on segment %v -> %v", p, a, b)
		}
		candidates = append(candidates, candidate{point: p, closest: q, clearance: dist})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].clearance < candidates[j].clearance
	})

	halfSpaces := append([]spatialmath.HalfSpace(nil), bounds...)
	var planes []spatialmath.HalfSpace
	for _, c := range candidates {
		if excluded(planes, c.point) {
			continue
		}
		normal := c.point.Sub(c.closest).Mul(1 / c.clearance)
		shift := math.Min(math.Max(s.Margin, 0), 0.5*c.clearance)
		plane := spatialmath.NewHalfSpaceThrough(normal, c.point.Sub(normal.Mul(shift)))
		planes = append(planes, plane)
	}
	halfSpaces = append(halfSpaces, planes...)
	return spatialmath.NewPolytope(halfSpaces)
}

// excluded reports whether p is on or outside one of the planes.
func excluded(planes []spatialmath.HalfSpace, p r3.Vector) bool {
	for _, hs := range planes {
		if hs.Eval(p) >= -1e-12 {
			return true
		}
	}
	return false
}
