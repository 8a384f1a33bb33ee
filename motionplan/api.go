// Package motionplan grows sampling trees of obstacle-free spheres through a workspace and
// extracts collision-free waypoint paths from them.
package motionplan

import (
	"context"
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/rhplanner/pointcloud"
	"go.viam.com/rhplanner/spatialmath"
)

// TreePlanner is a sampling tree planner that can be grown incrementally, re-rooted while the
// robot moves, and queried for its best path to the goal.
type TreePlanner interface {
	// Configure sets the clearance parameters. It resets the tree.
	Configure(opts Options) error
	// Reset discards the tree but keeps the configuration and obstacles.
	Reset()
	// SetObstacles replaces the obstacle snapshot used for clearance queries.
	SetObstacles(snapshot *pointcloud.Snapshot)
	// SetEndpoints seeds the tree at the start and sets the goal and sampling domain.
	SetEndpoints(endpoints Endpoints) error
	// Expand samples until the budget is exhausted. With UntilPathFound it fails if no path
	// exists at the end.
	Expand(ctx context.Context, budget Budget) error
	// Refine spends a fraction of the refinement effort sampling around the current best path.
	Refine(ctx context.Context, fraction float64) error
	// Evaluate re-validates a fraction of the tree against the current obstacles.
	Evaluate(ctx context.Context, fraction float64) error
	// BestPath returns the lowest cost path from the root to the goal.
	BestPath() (Path, bool)
	// PathExists reports whether some node reaches the goal.
	PathExists() bool
	// GoalRegionFullyExplored reports whether the root has reached the goal region, after which
	// no further planning is needed.
	GoalRegionFullyExplored() bool
	// Tree returns the live nodes for visualization.
	Tree() []TreeNode
	// Reroot makes the node nearest to point the new root, keeping only its descendants.
	Reroot(point r3.Vector) error
}

// Endpoints describe a planning query.
type Endpoints struct {
	Start  r3.Vector
	Goal   r3.Vector
	Bounds spatialmath.Box
	// LocalRange grows the box spanned by start and goal to form the uniform sampling domain.
	// Non-positive values sample the whole workspace.
	LocalRange float64
	// MaxSamples caps the number of live tree nodes.
	MaxSamples int
	// SampleFraction is the probability of sampling around the current best path.
	SampleFraction float64
	// GoalFraction is the probability of sampling the goal itself.
	GoalFraction float64
}

// Budget bounds one call to Expand. Zero fields are unlimited, but at least one of Duration and
// Iterations must be set.
type Budget struct {
	Duration       time.Duration
	Iterations     int
	UntilPathFound bool
}

// Path is an ordered list of waypoints from the root to the goal. Radii[i] is the clearance
// radius of the sphere Waypoints[i] belongs to.
type Path struct {
	Waypoints []r3.Vector
	Radii     []float64
	Cost      float64
}

// Len returns the number of waypoints.
func (p Path) Len() int {
	return len(p.Waypoints)
}

// AlmostEqual reports whether both paths visit the same waypoints within tol.
func (p Path) AlmostEqual(other Path, tol float64) bool {
	if len(p.Waypoints) != len(other.Waypoints) {
		return false
	}
	for i := range p.Waypoints {
		if p.Waypoints[i].Sub(other.Waypoints[i]).Norm() > tol {
			return false
		}
	}
	return true
}

// TreeNode is a read-only view of one live node. Parent is -1 for the root.
type TreeNode struct {
	Index  int
	Parent int
	Center r3.Vector
	Radius float64
}
