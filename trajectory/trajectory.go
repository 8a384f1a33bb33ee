// Package trajectory implements piecewise quintic polynomial trajectories in three dimensions.
package trajectory

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Order is the polynomial degree of every piece.
const Order = 5

// CoeffsPerAxis is the number of coefficients of one axis of one piece.
const CoeffsPerAxis = Order + 1

// Piece is one polynomial segment. Coeffs[axis] holds the coefficients of that axis from the
// highest order term to the constant term, evaluated on local time t in [0, Duration].
type Piece struct {
	Duration float64
	Coeffs   [3][CoeffsPerAxis]float64
}

// Trajectory is a time-parameterized sequence of pieces. A zero Trajectory is empty.
type Trajectory struct {
	pieces []Piece
	total  float64
}

// New returns a trajectory made of the given pieces.
func New(pieces []Piece) (*Trajectory, error) {
	traj := &Trajectory{}
	if err := traj.SetPieces(pieces); err != nil {
		return nil, err
	}
	return traj, nil
}

// SetSegments replaces the trajectory contents from per-piece durations and coefficients.
func (traj *Trajectory) SetSegments(durations []float64, coeffs [][3][CoeffsPerAxis]float64) error {
	if len(durations) != len(coeffs) {
		return errors.Errorf("got %d durations for %d coefficient blocks", len(durations), len(coeffs))
	}
	pieces := make([]Piece, len(durations))
	for i := range durations {
		pieces[i] = Piece{Duration: durations[i], Coeffs: coeffs[i]}
	}
	return traj.SetPieces(pieces)
}

// SetPieces replaces the trajectory contents. Every duration must be positive and finite.
func (traj *Trajectory) SetPieces(pieces []Piece) error {
	total := 0.
	for i, p := range pieces {
		if !(p.Duration > 0) || math.IsInf(p.Duration, 0) {
			return errors.Errorf("piece %d has invalid duration %v", i, p.Duration)
		}
		total += p.Duration
	}
	traj.pieces = append(traj.pieces[:0], pieces...)
	traj.total = total
	return nil
}

// Clear empties the trajectory.
func (traj *Trajectory) Clear() {
	traj.pieces = traj.pieces[:0]
	traj.total = 0
}

// SegmentCount returns the number of pieces.
func (traj *Trajectory) SegmentCount() int {
	return len(traj.pieces)
}

// TotalDuration returns the sum of all piece durations.
func (traj *Trajectory) TotalDuration() float64 {
	return traj.total
}

// Durations returns a copy of the piece durations.
func (traj *Trajectory) Durations() []float64 {
	out := make([]float64, len(traj.pieces))
	for i, p := range traj.pieces {
		out[i] = p.Duration
	}
	return out
}

// Pieces returns a copy of the pieces.
func (traj *Trajectory) Pieces() []Piece {
	out := make([]Piece, len(traj.pieces))
	copy(out, traj.pieces)
	return out
}

// Position returns the position at time t, clamped to [0, TotalDuration].
func (traj *Trajectory) Position(t float64) r3.Vector {
	return traj.eval(t, 0)
}

// Velocity returns the first derivative at time t.
func (traj *Trajectory) Velocity(t float64) r3.Vector {
	return traj.eval(t, 1)
}

// Acceleration returns the second derivative at time t.
func (traj *Trajectory) Acceleration(t float64) r3.Vector {
	return traj.eval(t, 2)
}

// Jerk returns the third derivative at time t.
func (traj *Trajectory) Jerk(t float64) r3.Vector {
	return traj.eval(t, 3)
}

// Sample returns positions every dt seconds including both ends.
func (traj *Trajectory) Sample(dt float64) []r3.Vector {
	if len(traj.pieces) == 0 || dt <= 0 {
		return nil
	}
	n := int(math.Ceil(traj.total / dt))
	out := make([]r3.Vector, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, traj.Position(float64(i)*dt))
	}
	return append(out, traj.Position(traj.total))
}

func (traj *Trajectory) locate(t float64) (int, float64) {
	if t <= 0 {
		return 0, 0
	}
	for i, p := range traj.pieces {
		if t <= p.Duration {
			return i, t
		}
		t -= p.Duration
	}
	last := len(traj.pieces) - 1
	return last, traj.pieces[last].Duration
}

func (traj *Trajectory) eval(t float64, derivative int) r3.Vector {
	if len(traj.pieces) == 0 {
		return r3.Vector{}
	}
	idx, local := traj.locate(t)
	return traj.pieces[idx].eval(local, derivative)
}

func (p *Piece) eval(t float64, derivative int) r3.Vector {
	var out [3]float64
	for axis := 0; axis < 3; axis++ {
		out[axis] = evalPolynomial(p.Coeffs[axis][:], t, derivative)
	}
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}
}

// evalPolynomial evaluates the derivative-th derivative of a highest-order-first polynomial
// using Horner's scheme.
func evalPolynomial(coeffs []float64, t float64, derivative int) float64 {
	degree := len(coeffs) - 1
	val := 0.
	for i := 0; i <= degree-derivative; i++ {
		power := degree - i
		factor := 1.
		for k := 0; k < derivative; k++ {
			factor *= float64(power - k)
		}
		val = val*t + factor*coeffs[i]
	}
	return val
}

// Position returns the position of the piece at local time t.
func (p *Piece) Position(t float64) r3.Vector {
	return p.eval(t, 0)
}

// Velocity returns the velocity of the piece at local time t.
func (p *Piece) Velocity(t float64) r3.Vector {
	return p.eval(t, 1)
}

// Acceleration returns the acceleration of the piece at local time t.
func (p *Piece) Acceleration(t float64) r3.Vector {
	return p.eval(t, 2)
}

// Jerk returns the jerk of the piece at local time t.
func (p *Piece) Jerk(t float64) r3.Vector {
	return p.eval(t, 3)
}
