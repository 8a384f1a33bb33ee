package corridor

import (
	"context"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/rhplanner/logging"
	"go.viam.com/rhplanner/pointcloud"
	"go.viam.com/rhplanner/spatialmath"
)

var workspace = spatialmath.Box{
	Min: r3.Vector{X: -20, Y: -20, Z: -20},
	Max: r3.Vector{X: 20, Y: 20, Z: 20},
}

func testParams() CoverParams {
	return CoverParams{Workspace: workspace, Progress: 3, Range: 1.5, Epsilon: 1e-6}
}

// sharesPoint reports whether both polytopes contain p up to tol.
func sharesPoint(a, b *spatialmath.Polytope, p r3.Vector) bool {
	const tol = 1e-9
	return a.Contains(p, tol) && b.Contains(p, tol)
}

func TestConvexCoverOpenField(t *testing.T) {
	b := NewBuilder(logging.NewTestLogger(t), SeparatingSolver{})
	path := []r3.Vector{{}, {X: 10}}
	corridor, err := b.ConvexCover(context.Background(), path, pointcloud.NewSnapshot(nil), testParams())
	test.That(t, err, test.ShouldBeNil)

	// Windows of length 3 cover [0,3] [3,6] [6,9] [9,10]; empty space never needs connectors.
	test.That(t, len(corridor), test.ShouldEqual, 4)
	ends := []float64{3, 6, 9, 10}
	for i, region := range corridor {
		test.That(t, region.Connector, test.ShouldBeFalse)
		test.That(t, region.End.X, test.ShouldAlmostEqual, ends[i])
		test.That(t, region.Polytope.NumHalfSpaces(), test.ShouldEqual, 6)
		test.That(t, region.Polytope.Contains(region.Start, 0), test.ShouldBeTrue)
		test.That(t, region.Polytope.Contains(region.End, 0), test.ShouldBeTrue)
	}
	for i := 1; i < len(corridor); i++ {
		test.That(t, sharesPoint(corridor[i-1].Polytope, corridor[i].Polytope, corridor[i].Start), test.ShouldBeTrue)
	}
}

func TestConvexCoverExcludesObstacles(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var obstacles []r3.Vector
	for len(obstacles) < 400 {
		p := r3.Vector{X: rng.Float64()*14 - 2, Y: rng.Float64()*6 - 3, Z: rng.Float64()*6 - 3}
		// Keep a tube of radius 0.6 around the path free.
		if spatialmath.ClosestPointOnSegment(r3.Vector{}, r3.Vector{X: 5, Y: 1}, p).Distance(p) < 0.6 ||
			spatialmath.ClosestPointOnSegment(r3.Vector{X: 5, Y: 1}, r3.Vector{X: 10}, p).Distance(p) < 0.6 {
			continue
		}
		obstacles = append(obstacles, p)
	}
	snapshot := pointcloud.NewSnapshot(obstacles)
	path := []r3.Vector{{}, {X: 5, Y: 1}, {X: 10}}

	b := NewBuilder(logging.NewTestLogger(t), SeparatingSolver{Margin: 0.1})
	corridor, err := b.ConvexCover(context.Background(), path, snapshot, testParams())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(corridor), test.ShouldBeGreaterThanOrEqualTo, 4)

	for _, region := range corridor {
		test.That(t, region.Polytope.Contains(region.Start, 1e-9), test.ShouldBeTrue)
		test.That(t, region.Polytope.Contains(region.End, 1e-9), test.ShouldBeTrue)
		for _, obs := range obstacles {
			// No obstacle strictly inside any polytope.
			test.That(t, region.Polytope.MaxViolation(obs), test.ShouldBeGreaterThanOrEqualTo, -1e-9)
		}
	}
	for i := 1; i < len(corridor); i++ {
		test.That(t, sharesPoint(corridor[i-1].Polytope, corridor[i].Polytope, corridor[i].Start), test.ShouldBeTrue)
	}
}

// randomScene returns a 4-segment polyline and an obstacle cloud that keeps a tube of the given
// radius around it free.
func randomScene(rng *rand.Rand, numObstacles int, tube float64) ([]r3.Vector, []r3.Vector) {
	point := func(extent float64) r3.Vector {
		return r3.Vector{
			X: (rng.Float64()*2 - 1) * extent,
			Y: (rng.Float64()*2 - 1) * extent,
			Z: (rng.Float64()*2 - 1) * extent,
		}
	}
	path := []r3.Vector{point(8)}
	for len(path) < 5 {
		next := point(8)
		if next.Distance(path[len(path)-1]) < 1 {
			continue
		}
		path = append(path, next)
	}

	var obstacles []r3.Vector
	for len(obstacles) < numObstacles {
		p := point(10)
		free := true
		for i := 1; i < len(path) && free; i++ {
			free = spatialmath.ClosestPointOnSegment(path[i-1], path[i], p).Distance(p) >= tube
		}
		if free {
			obstacles = append(obstacles, p)
		}
	}
	return path, obstacles
}

// checkCorridor asserts that c starts and ends on the path, that every region is free of
// obstacles and that consecutive regions share volume.
func checkCorridor(t *testing.T, c Corridor, path, obstacles []r3.Vector) {
	t.Helper()
	test.That(t, len(c), test.ShouldBeGreaterThan, 0)
	test.That(t, c[0].Polytope.Contains(path[0], 1e-9), test.ShouldBeTrue)
	test.That(t, c[len(c)-1].Polytope.Contains(path[len(path)-1], 1e-9), test.ShouldBeTrue)
	for _, region := range c {
		for _, obs := range obstacles {
			test.That(t, region.Polytope.MaxViolation(obs), test.ShouldBeGreaterThanOrEqualTo, -1e-9)
		}
	}
	for i := 1; i < len(c); i++ {
		test.That(t, spatialmath.Overlap(c[i-1].Polytope, c[i].Polytope, 0), test.ShouldBeTrue)
	}
}

func TestCorridorInvariantsRandomScenes(t *testing.T) {
	b := NewBuilder(logging.NewTestLogger(t), SeparatingSolver{Margin: 0.1})
	for seed := int64(0); seed < 60; seed++ {
		rng := rand.New(rand.NewSource(seed))
		path, obstacles := randomScene(rng, 600, 0.6)

		corridor, err := b.ConvexCover(context.Background(), path, pointcloud.NewSnapshot(obstacles), testParams())
		test.That(t, err, test.ShouldBeNil)
		checkCorridor(t, corridor, path, obstacles)

		short := ShortCut(corridor, 1e-6)
		test.That(t, len(short), test.ShouldBeLessThanOrEqualTo, len(corridor))
		checkCorridor(t, short, path, obstacles)
	}
}

// tightSolver returns the segment's bounding box grown by margin, so with a zero margin every
// window start sits on several faces.
type tightSolver struct {
	margin float64
	calls  int
}

func (s *tightSolver) Solve(_ []spatialmath.HalfSpace, _ []r3.Vector, a, b r3.Vector) (*spatialmath.Polytope, error) {
	s.calls++
	if a == b {
		return spatialmath.NewBoxAround(a, a, 0.5).Polytope(), nil
	}
	return spatialmath.NewBoxAround(a, b, s.margin).Polytope(), nil
}

func TestConnectorInsertion(t *testing.T) {
	path := []r3.Vector{{}, {X: 2}, {X: 2, Y: 2}}
	params := testParams()

	for _, tc := range []struct {
		name       string
		margin     float64
		connectors int
	}{
		{"tight windows need connectors", 0, 1},
		{"loose windows do not", 0.5, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			solver := &tightSolver{margin: tc.margin}
			b := NewBuilder(logging.NewTestLogger(t), solver)
			corridor, err := b.ConvexCover(context.Background(), path, nil, params)
			test.That(t, err, test.ShouldBeNil)

			connectors := 0
			for i, region := range corridor {
				if !region.Connector {
					continue
				}
				connectors++
				test.That(t, region.Start, test.ShouldResemble, region.End)
				// A connector sits right before the window starting at its anchor.
				test.That(t, corridor[i+1].Start, test.ShouldResemble, region.Start)
				test.That(t, corridor[i-1].Connector, test.ShouldBeFalse)
			}
			test.That(t, connectors, test.ShouldEqual, tc.connectors)
			test.That(t, len(corridor), test.ShouldEqual, 2+tc.connectors)
			test.That(t, solver.calls, test.ShouldEqual, len(corridor))
		})
	}
}

type failingSolver struct{}

func (failingSolver) Solve([]spatialmath.HalfSpace, []r3.Vector, r3.Vector, r3.Vector) (*spatialmath.Polytope, error) {
	return nil, errors.New("no region")
}

func TestConvexCoverErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	b := NewBuilder(logger, SeparatingSolver{})

	_, err := b.ConvexCover(context.Background(), []r3.Vector{{}}, nil, testParams())
	test.That(t, err, test.ShouldNotBeNil)

	bad := testParams()
	bad.Progress = 0
	_, err = b.ConvexCover(context.Background(), []r3.Vector{{}, {X: 1}}, nil, bad)
	test.That(t, err, test.ShouldNotBeNil)

	blocked := pointcloud.NewSnapshot([]r3.Vector{{X: 0.5}})
	_, err = b.ConvexCover(context.Background(), []r3.Vector{{}, {X: 1}}, blocked, testParams())
	test.That(t, errors.Is(err, ErrCorridorGapUnresolved), test.ShouldBeTrue)

	_, err = NewBuilder(logger, failingSolver{}).ConvexCover(context.Background(), []r3.Vector{{}, {X: 1}}, nil, testParams())
	test.That(t, errors.Is(err, ErrCorridorGapUnresolved), test.ShouldBeTrue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.ConvexCover(ctx, []r3.Vector{{}, {X: 1}}, nil, testParams())
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestSeparatingSolver(t *testing.T) {
	bounds := spatialmath.NewBoxAround(r3.Vector{}, r3.Vector{X: 4}, 2).HalfSpaces()

	poly, err := SeparatingSolver{}.Solve(bounds, nil, r3.Vector{}, r3.Vector{X: 4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poly.NumHalfSpaces(), test.ShouldEqual, 6)

	// The nearer obstacle shadows the one behind it.
	obstacles := []r3.Vector{{X: 2, Y: 3}, {X: 2, Y: 1}}
	poly, err = SeparatingSolver{Margin: 0.2}.Solve(bounds, obstacles, r3.Vector{}, r3.Vector{X: 4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poly.NumHalfSpaces(), test.ShouldEqual, 7)
	test.That(t, poly.Contains(r3.Vector{X: 2, Y: 0.79}, 0), test.ShouldBeTrue)
	test.That(t, poly.Contains(r3.Vector{X: 2, Y: 0.81}, 0), test.ShouldBeFalse)

	// The shift never exceeds half the clearance.
	poly, err = SeparatingSolver{Margin: 5}.Solve(bounds, []r3.Vector{{X: 2, Y: 1}}, r3.Vector{}, r3.Vector{X: 4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poly.Contains(r3.Vector{X: 2, Y: 0.49}, 0), test.ShouldBeTrue)
	test.That(t, poly.Contains(r3.Vector{X: 2, Y: 0.51}, 0), test.ShouldBeFalse)

	_, err = SeparatingSolver{}.Solve(bounds, []r3.Vector{{X: 1}}, r3.Vector{}, r3.Vector{X: 4})
	test.That(t, errors.Is(err, ErrObstacleOnSegment), test.ShouldBeTrue)
}

func slab(minX, maxX float64) *spatialmath.Polytope {
	return spatialmath.Box{Min: r3.Vector{X: minX}, Max: r3.Vector{X: maxX, Y: 1, Z: 1}}.Polytope()
}

func TestShortCut(t *testing.T) {
	for _, tc := range []struct {
		name     string
		polys    []*spatialmath.Polytope
		expected []int
	}{
		{"empty", nil, nil},
		{"single is duplicated", []*spatialmath.Polytope{slab(0, 1)}, []int{0, 0}},
		{"adjacent pair kept even without overlap", []*spatialmath.Polytope{slab(0, 1), slab(5, 6)}, []int{0, 1}},
		{"bypassed middle dropped", []*spatialmath.Polytope{slab(0, 2), slab(1, 3), slab(1.5, 3.5), slab(3, 5)}, []int{0, 2, 3}},
		{"chain without shortcuts", []*spatialmath.Polytope{slab(0, 2), slab(1.5, 3.5), slab(3, 5)}, []int{0, 1, 2}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			test.That(t, ShortCutIndices(tc.polys, 0.01), test.ShouldResemble, tc.expected)
		})
	}

	c := Corridor{{Polytope: slab(0, 2)}, {Polytope: slab(1, 3)}, {Polytope: slab(1.5, 3.5)}, {Polytope: slab(3, 5)}}
	short := ShortCut(c, 0)
	test.That(t, len(short), test.ShouldEqual, 3)
	test.That(t, short[1].Polytope, test.ShouldEqual, c[2].Polytope)
}
