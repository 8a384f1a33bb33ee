package corridor

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/rhplanner/logging"
	"go.viam.com/rhplanner/pointcloud"
	"go.viam.com/rhplanner/spatialmath"
)

// ErrCorridorGapUnresolved is returned when a window or connector polytope cannot be built.
var ErrCorridorGapUnresolved = errors.New("corridor gap could not be resolved")

// default cover parameters.
const (
	defaultProgress = 2.0
	defaultRange    = 1.5
	defaultEpsilon  = 1e-6
)

// CoverParams control the corridor sweep.
type CoverParams struct {
	// Workspace clips every window's bounding box.
	Workspace spatialmath.Box `json:"workspace"`
	// Progress is the longest stretch of path one window covers.
	Progress float64 `json:"progress"`
	// Range grows the window's bounding box on every side.
	Range float64 `json:"range"`
	// Epsilon is the tolerance used when counting the faces a window start lies on.
	Epsilon float64 `json:"epsilon"`
}

// DefaultCoverParams returns cover parameters for the given workspace.
func DefaultCoverParams(workspace spatialmath.Box) CoverParams {
	return CoverParams{Workspace: workspace, Progress: defaultProgress, Range: defaultRange, Epsilon: defaultEpsilon}
}

// Region is one polytope of a corridor together with the stretch of path it was built for.
// Connector regions are built around a single point and have Start == End.
type Region struct {
	Polytope  *spatialmath.Polytope
	Start     r3.Vector
	End       r3.Vector
	Connector bool
}

// Corridor is an ordered chain of regions from the start of a path to its end.
type Corridor []Region

// Polytopes returns the polytopes of the corridor in order.
func (c Corridor) Polytopes() []*spatialmath.Polytope {
	out := make([]*spatialmath.Polytope, len(c))
	for i, r := range c {
		out[i] = r.Polytope
	}
	return out
}

// Builder sweeps paths into corridors.
type Builder struct {
	logger logging.Logger
	solver FreeSpaceSolver
}

// NewBuilder returns a Builder using solver for every window.
func NewBuilder(logger logging.Logger, solver FreeSpaceSolver) *Builder {
	return &Builder{logger: logger, solver: solver}
}

// ConvexCover walks the path in windows of at most params.Progress, builds a free-space polytope
// per window from the obstacles inside the window's bounding box, and inserts a connector
// polytope around the window start whenever that point sits on three or more faces of the
// previous and the new polytope combined.
func (b *Builder) ConvexCover(
	ctx context.Context,
	path []r3.Vector,
	obstacles *pointcloud.Snapshot,
	params CoverParams,
) (Corridor, error) {
	if len(path) < 2 {
		return nil, errors.Errorf("corridor needs at least 2 waypoints, got %d", len(path))
	}
	if params.Progress <= 0 {
		return nil, errors.Errorf("corridor progress must be positive, got %v", params.Progress)
	}
	if obstacles == nil {
		obstacles = pointcloud.NewSnapshot(nil)
	}

	var corridor Corridor
	end := path[0]
	for i := 1; i < len(path); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := end
		if start.Distance(path[i]) > params.Progress {
			end = start.Add(path[i].Sub(start).Normalize().Mul(params.Progress))
		} else {
			end = path[i]
			i++
		}

		box := spatialmath.NewBoxAround(start, end, params.Range).Clamp(params.Workspace)
		candidates := obstacles.InBox(box)
		poly, err := b.solver.Solve(box.HalfSpaces(), candidates, start, end)
		if err != nil {
			return nil, errors.Wrapf(ErrCorridorGapUnresolved, "window %v -> %v: %v", start, end, err)
		}

		if n := len(corridor); n > 0 {
			hits := poly.BoundaryHits(start, params.Epsilon) + corridor[n-1].Polytope.BoundaryHits(start, params.Epsilon)
			if hits >= 3 {
				gap, err := b.solver.Solve(box.HalfSpaces(), candidates, start, start)
				if err != nil {
					return nil, errors.Wrapf(ErrCorridorGapUnresolved, "connector at %v: %v", start, err)
				}
				b.logger.CDebugw(ctx, "inserted corridor connector", "at", start, "boundary_hits", hits)
				corridor = append(corridor, Region{Polytope: gap, Start: start, End: start, Connector: true})
			}
		}
		corridor = append(corridor, Region{Polytope: poly, Start: start, End: end})
	}
	return corridor, nil
}
