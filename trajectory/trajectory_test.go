package trajectory

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func vectorsAlmostEqual(t *testing.T, got, want r3.Vector) {
	t.Helper()
	test.That(t, got.X, test.ShouldAlmostEqual, want.X, 1e-9)
	test.That(t, got.Y, test.ShouldAlmostEqual, want.Y, 1e-9)
	test.That(t, got.Z, test.ShouldAlmostEqual, want.Z, 1e-9)
}

func TestQuinticHermiteBoundaryConditions(t *testing.T) {
	p0, v0, a0 := r3.Vector{X: 1, Y: 2, Z: 3}, r3.Vector{X: 0.5, Y: -1}, r3.Vector{Z: 0.2}
	p1, v1, a1 := r3.Vector{X: 4, Y: -2, Z: 1}, r3.Vector{Y: 0.3}, r3.Vector{X: -0.1}
	const duration = 2.5

	traj, err := New([]Piece{NewQuinticHermite(p0, v0, a0, p1, v1, a1, duration)})
	test.That(t, err, test.ShouldBeNil)

	vectorsAlmostEqual(t, traj.Position(0), p0)
	vectorsAlmostEqual(t, traj.Velocity(0), v0)
	vectorsAlmostEqual(t, traj.Acceleration(0), a0)
	vectorsAlmostEqual(t, traj.Position(duration), p1)
	vectorsAlmostEqual(t, traj.Velocity(duration), v1)
	vectorsAlmostEqual(t, traj.Acceleration(duration), a1)
}

func TestRestToRestIsMinimumJerk(t *testing.T) {
	piece := NewQuinticHermite(r3.Vector{}, r3.Vector{}, r3.Vector{}, r3.Vector{X: 1}, r3.Vector{}, r3.Vector{}, 1)
	test.That(t, piece.Coeffs[0], test.ShouldResemble, [CoeffsPerAxis]float64{6, -15, 10, 0, 0, 0})

	traj, err := New([]Piece{piece})
	test.That(t, err, test.ShouldBeNil)
	// Peak speed of the minimum-jerk profile is 1.875 D / T at the midpoint.
	test.That(t, traj.Velocity(0.5).X, test.ShouldAlmostEqual, 1.875)
	test.That(t, traj.Jerk(0).X, test.ShouldAlmostEqual, 60)
}

func TestMultiPieceEvaluation(t *testing.T) {
	mid := r3.Vector{X: 1, Y: 1}
	midVel := r3.Vector{X: 0.5}
	first := NewQuinticHermite(r3.Vector{}, r3.Vector{}, r3.Vector{}, mid, midVel, r3.Vector{}, 1)
	second := NewQuinticHermite(mid, midVel, r3.Vector{}, r3.Vector{X: 3, Y: 1}, r3.Vector{}, r3.Vector{}, 2)

	traj := &Trajectory{}
	test.That(t, traj.SegmentCount(), test.ShouldEqual, 0)
	test.That(t, traj.Position(1), test.ShouldResemble, r3.Vector{})

	err := traj.SetSegments([]float64{1, 2}, [][3][CoeffsPerAxis]float64{first.Coeffs, second.Coeffs})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, traj.SegmentCount(), test.ShouldEqual, 2)
	test.That(t, traj.TotalDuration(), test.ShouldEqual, 3.)
	test.That(t, traj.Durations(), test.ShouldResemble, []float64{1, 2})

	vectorsAlmostEqual(t, traj.Position(1), mid)
	vectorsAlmostEqual(t, traj.Velocity(1+1e-12), midVel)
	// Out of range times clamp to the ends.
	vectorsAlmostEqual(t, traj.Position(-1), r3.Vector{})
	vectorsAlmostEqual(t, traj.Position(10), r3.Vector{X: 3, Y: 1})

	samples := traj.Sample(0.5)
	test.That(t, len(samples), test.ShouldEqual, 7)
	vectorsAlmostEqual(t, samples[len(samples)-1], r3.Vector{X: 3, Y: 1})

	traj.Clear()
	test.That(t, traj.SegmentCount(), test.ShouldEqual, 0)
	test.That(t, traj.TotalDuration(), test.ShouldEqual, 0.)
}

func TestInvalidSegments(t *testing.T) {
	traj := &Trajectory{}
	test.That(t, traj.SetSegments([]float64{1}, nil), test.ShouldNotBeNil)
	test.That(t, traj.SetPieces([]Piece{{Duration: 0}}), test.ShouldNotBeNil)
	test.That(t, traj.SetPieces([]Piece{{Duration: -1}}), test.ShouldNotBeNil)
}

func TestFlatCoefficientsLayout(t *testing.T) {
	piece := NewQuinticHermite(r3.Vector{}, r3.Vector{}, r3.Vector{}, r3.Vector{X: 1, Y: 2, Z: 3}, r3.Vector{}, r3.Vector{}, 1)
	traj, err := New([]Piece{piece, piece})
	test.That(t, err, test.ShouldBeNil)

	flat := traj.FlatCoefficients()
	test.That(t, len(flat), test.ShouldEqual, 36)
	// Row-major: the y row of the first piece starts at index 6.
	test.That(t, flat[6], test.ShouldAlmostEqual, 12)
	test.That(t, flat[12], test.ShouldAlmostEqual, 18)

	rebuilt, err := FromFlat(traj.Durations(), flat)
	test.That(t, err, test.ShouldBeNil)
	vectorsAlmostEqual(t, rebuilt.Position(1.5), traj.Position(1.5))

	_, err = FromFlat([]float64{1}, flat)
	test.That(t, err, test.ShouldNotBeNil)
}
