package motionplan

import (
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/rhplanner/logging"
	"go.viam.com/rhplanner/pointcloud"
	"go.viam.com/rhplanner/spatialmath"
)

var openField = spatialmath.Box{
	Min: r3.Vector{X: -20, Y: -20, Z: -20},
	Max: r3.Vector{X: 20, Y: 20, Z: 20},
}

func newTestPlanner(t *testing.T, opts Options, obstacles []r3.Vector, goal r3.Vector) *SafeRegionRRTStar {
	t.Helper()
	p, err := NewSafeRegionRRTStar(logging.NewTestLogger(t), opts)
	test.That(t, err, test.ShouldBeNil)
	p.SetObstacles(pointcloud.NewSnapshot(obstacles))
	err = p.SetEndpoints(Endpoints{
		Start:          r3.Vector{},
		Goal:           goal,
		Bounds:         openField,
		MaxSamples:     3000,
		SampleFraction: 0.1,
		GoalFraction:   0.05,
	})
	test.That(t, err, test.ShouldBeNil)
	return p
}

// wall returns a grid of points on the plane x = at covering the whole open field cross
// section with the given spacing.
func wall(at, spacing float64) []r3.Vector {
	var pts []r3.Vector
	for y := openField.Min.Y; y <= openField.Max.Y+1e-9; y += spacing {
		for z := openField.Min.Z; z <= openField.Max.Z+1e-9; z += spacing {
			pts = append(pts, r3.Vector{X: at, Y: y, Z: z})
		}
	}
	return pts
}

func TestOpenFieldPath(t *testing.T) {
	goal := r3.Vector{X: 10}
	p := newTestPlanner(t, NewDefaultOptions(), nil, goal)

	err := p.Expand(context.Background(), Budget{Duration: 10 * time.Second, Iterations: 20000, UntilPathFound: true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.PathExists(), test.ShouldBeTrue)

	path, ok := p.BestPath()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, path.Len(), test.ShouldBeGreaterThanOrEqualTo, 2)
	test.That(t, path.Waypoints[0], test.ShouldResemble, r3.Vector{})
	test.That(t, path.Waypoints[path.Len()-1], test.ShouldResemble, goal)
	test.That(t, len(path.Radii), test.ShouldEqual, path.Len())
	// Consecutive waypoints are covered by their spheres.
	for i := 1; i < path.Len(); i++ {
		gap := path.Waypoints[i].Distance(path.Waypoints[i-1])
		test.That(t, gap, test.ShouldBeLessThanOrEqualTo, path.Radii[i]+path.Radii[i-1])
	}
	test.That(t, path.Cost, test.ShouldBeGreaterThanOrEqualTo, 10-1e-9)
	test.That(t, p.GoalRegionFullyExplored(), test.ShouldBeFalse)
}

func TestBlockedCorridorHasNoPath(t *testing.T) {
	opts := NewDefaultOptions()
	opts.SensingRange = 0
	p := newTestPlanner(t, opts, wall(5, 0.5), r3.Vector{X: 10})

	err := p.Expand(context.Background(), Budget{Duration: 20 * time.Second, Iterations: 3000})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.PathExists(), test.ShouldBeFalse)
	_, ok := p.BestPath()
	test.That(t, ok, test.ShouldBeFalse)
	for _, n := range p.Tree() {
		test.That(t, n.Center.X, test.ShouldBeLessThan, 5)
	}
}

func TestExpandUntilPathFoundFailsBehindWall(t *testing.T) {
	opts := NewDefaultOptions()
	opts.SensingRange = 0
	p := newTestPlanner(t, opts, wall(5, 0.5), r3.Vector{X: 10})

	err := p.Expand(context.Background(), Budget{Iterations: 500, UntilPathFound: true})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, IsPlannerFailed(err), test.ShouldBeTrue)
	test.That(t, IsStartInCollision(err), test.ShouldBeFalse)
	test.That(t, p.PathExists(), test.ShouldBeFalse)
}

func TestDeterministicWithSeed(t *testing.T) {
	run := func() Path {
		p := newTestPlanner(t, NewDefaultOptions(), nil, r3.Vector{X: 8, Y: 3})
		test.That(t, p.Expand(context.Background(), Budget{Iterations: 5000, UntilPathFound: true}), test.ShouldBeNil)
		path, ok := p.BestPath()
		test.That(t, ok, test.ShouldBeTrue)
		return path
	}
	first, second := run(), run()
	test.That(t, first.AlmostEqual(second, 0), test.ShouldBeTrue)
}

func TestRerootPreservesSubtree(t *testing.T) {
	p := newTestPlanner(t, NewDefaultOptions(), nil, r3.Vector{X: 10})
	test.That(t, p.Expand(context.Background(), Budget{Iterations: 1500}), test.ShouldBeNil)
	path, ok := p.BestPath()
	test.That(t, ok, test.ShouldBeTrue)

	parentsBefore := map[int]int{}
	children := map[int][]int{}
	for _, n := range p.Tree() {
		parentsBefore[n.Index] = n.Parent
		children[n.Parent] = append(children[n.Parent], n.Index)
	}

	commit := path.Waypoints[path.Len()/2]
	test.That(t, p.Reroot(commit), test.ShouldBeNil)
	newRoot := p.root

	// Count the descendants of the new root in the tree as it was before.
	expected := 0
	stack := []int{newRoot}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		expected++
		stack = append(stack, children[cur]...)
	}

	after := p.Tree()
	test.That(t, len(after), test.ShouldEqual, expected)
	for _, n := range after {
		if n.Index == newRoot {
			test.That(t, n.Parent, test.ShouldEqual, -1)
			continue
		}
		test.That(t, n.Parent, test.ShouldEqual, parentsBefore[n.Index])
	}
	test.That(t, p.tree.nodes[newRoot].cost, test.ShouldEqual, 0.)

	// The path now starts at the commit point and still reaches the goal.
	rerooted, ok := p.BestPath()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rerooted.Waypoints[0], test.ShouldResemble, commit)
	test.That(t, rerooted.Waypoints[rerooted.Len()-1], test.ShouldResemble, r3.Vector{X: 10})
}

func TestRerootInsideGoalSphereCompletesNavigation(t *testing.T) {
	goal := r3.Vector{X: 4}
	p := newTestPlanner(t, NewDefaultOptions(), nil, goal)
	test.That(t, p.Expand(context.Background(), Budget{Iterations: 5000, UntilPathFound: true}), test.ShouldBeNil)
	test.That(t, p.PathExists(), test.ShouldBeTrue)

	test.That(t, p.Reroot(goal), test.ShouldBeNil)
	test.That(t, p.GoalRegionFullyExplored(), test.ShouldBeTrue)
}

func TestEvaluatePrunesBlockedNodes(t *testing.T) {
	opts := NewDefaultOptions()
	opts.SensingRange = 0
	p := newTestPlanner(t, opts, nil, r3.Vector{X: 10})
	test.That(t, p.Expand(context.Background(), Budget{Iterations: 5000, UntilPathFound: true}), test.ShouldBeNil)
	path, ok := p.BestPath()
	test.That(t, ok, test.ShouldBeTrue)

	obstacle := path.Waypoints[path.Len()-2]
	test.That(t, obstacle.Norm(), test.ShouldBeGreaterThan, 1)
	p.SetObstacles(pointcloud.NewSnapshot([]r3.Vector{obstacle}))
	test.That(t, p.Evaluate(context.Background(), 1), test.ShouldBeNil)

	for _, n := range p.Tree() {
		if n.Index == p.root {
			continue
		}
		test.That(t, n.Center.Distance(obstacle), test.ShouldBeGreaterThanOrEqualTo, opts.SafetyMargin+opts.SearchMargin)
		test.That(t, n.Radius, test.ShouldBeGreaterThanOrEqualTo, opts.SafetyMargin)
	}
	if repaired, ok := p.BestPath(); ok {
		for _, wp := range repaired.Waypoints[1:] {
			test.That(t, wp.Distance(obstacle), test.ShouldBeGreaterThan, 0)
		}
	}
}

func TestPlannerErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)

	bad := NewDefaultOptions()
	bad.MaxRadius = 0.4
	_, err := NewSafeRegionRRTStar(logger, bad)
	test.That(t, err, test.ShouldNotBeNil)

	p, err := NewSafeRegionRRTStar(logger, NewDefaultOptions())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Expand(context.Background(), Budget{Iterations: 1}), test.ShouldBeError, errNotSeeded)
	test.That(t, p.Reroot(r3.Vector{}), test.ShouldBeError, errNotSeeded)

	p.SetObstacles(pointcloud.NewSnapshot([]r3.Vector{{X: 0.1}}))
	err = p.SetEndpoints(Endpoints{Goal: r3.Vector{X: 3}, Bounds: openField, MaxSamples: 10})
	test.That(t, IsStartInCollision(err), test.ShouldBeTrue)

	err = p.SetEndpoints(Endpoints{Goal: r3.Vector{X: 3}, Bounds: openField, MaxSamples: 10, GoalFraction: 0.7, SampleFraction: 0.5})
	test.That(t, err, test.ShouldNotBeNil)

	p.SetObstacles(pointcloud.NewSnapshot(nil))
	test.That(t, p.SetEndpoints(Endpoints{Goal: r3.Vector{X: 3}, Bounds: openField, MaxSamples: 10}), test.ShouldBeNil)
	test.That(t, p.Expand(context.Background(), Budget{}), test.ShouldNotBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	test.That(t, p.Expand(ctx, Budget{Iterations: 10}), test.ShouldBeError, context.Canceled)
}

func TestArenaReuseAfterDestroy(t *testing.T) {
	var a arena
	root := a.add(r3.Vector{}, 1, -1, 0)
	child := a.add(r3.Vector{X: 1}, 1, root, 1)
	grandchild := a.add(r3.Vector{X: 2}, 1, child, 2)
	test.That(t, a.chain(grandchild), test.ShouldResemble, []int{root, child, grandchild})

	a.destroy(child)
	test.That(t, a.live, test.ShouldEqual, 1)
	test.That(t, a.isValid(grandchild), test.ShouldBeFalse)
	test.That(t, a.nodes[root].children, test.ShouldBeEmpty)

	reused := a.add(r3.Vector{Y: 1}, 1, root, 1)
	test.That(t, reused == child || reused == grandchild, test.ShouldBeTrue)
	test.That(t, a.nearestNeighbor(r3.Vector{Y: 2}), test.ShouldEqual, reused)
}
