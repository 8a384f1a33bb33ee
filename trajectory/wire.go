package trajectory

import (
	"github.com/pkg/errors"
)

// FlatCoefficients returns the coefficients of every piece as consecutive row-major 3 x 6
// blocks (x row, y row, z row; highest order first).
func (traj *Trajectory) FlatCoefficients() []float64 {
	out := make([]float64, 0, len(traj.pieces)*3*CoeffsPerAxis)
	for _, p := range traj.pieces {
		for axis := 0; axis < 3; axis++ {
			out = append(out, p.Coeffs[axis][:]...)
		}
	}
	return out
}

// FromFlat rebuilds a trajectory from durations and row-major coefficient blocks as produced
// by FlatCoefficients.
func FromFlat(durations, flat []float64) (*Trajectory, error) {
	const block = 3 * CoeffsPerAxis
	if len(flat) != block*len(durations) {
		return nil, errors.Errorf("expected %d coefficients for %d pieces, got %d",
			block*len(durations), len(durations), len(flat))
	}
	pieces := make([]Piece, len(durations))
	for i := range durations {
		pieces[i].Duration = durations[i]
		for axis := 0; axis < 3; axis++ {
			copy(pieces[i].Coeffs[axis][:], flat[i*block+axis*CoeffsPerAxis:])
		}
	}
	return New(pieces)
}
