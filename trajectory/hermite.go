package trajectory

import (
	"github.com/golang/geo/r3"
)

// NewQuinticHermite returns the quintic piece of the given duration matching position, velocity
// and acceleration at both ends.
func NewQuinticHermite(p0, v0, a0, p1, v1, a1 r3.Vector, duration float64) Piece {
	piece := Piece{Duration: duration}
	start := [3][3]float64{
		{p0.X, v0.X, a0.X},
		{p0.Y, v0.Y, a0.Y},
		{p0.Z, v0.Z, a0.Z},
	}
	end := [3][3]float64{
		{p1.X, v1.X, a1.X},
		{p1.Y, v1.Y, a1.Y},
		{p1.Z, v1.Z, a1.Z},
	}
	t := duration
	t2 := t * t
	t3 := t2 * t
	t4 := t3 * t
	t5 := t4 * t
	for axis := 0; axis < 3; axis++ {
		p, v, a := start[axis][0], start[axis][1], start[axis][2]
		dp := end[axis][0] - (p + v*t + 0.5*a*t2)
		dv := end[axis][1] - (v + a*t)
		da := end[axis][2] - a
		piece.Coeffs[axis] = [CoeffsPerAxis]float64{
			(6*dp - 3*dv*t + 0.5*da*t2) / t5,
			(-15*dp + 7*dv*t - da*t2) / t4,
			(10*dp - 4*dv*t + 0.5*da*t2) / t3,
			0.5 * a,
			v,
			p,
		}
	}
	return piece
}
