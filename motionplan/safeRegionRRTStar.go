package motionplan

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/rhplanner/logging"
	"go.viam.com/rhplanner/pointcloud"
	"go.viam.com/rhplanner/spatialmath"
)

// SafeRegionRRTStar is an RRT* whose nodes are obstacle-free spheres. A child's center always
// starts inside its parent's sphere and two nodes are connected when their spheres overlap, so
// the straight segments between connected centers are collision free by construction.
//
// It is not safe for concurrent use; the replanning loop owns it.
type SafeRegionRRTStar struct {
	logger logging.Logger
	opts   Options
	rng    *rand.Rand

	tree   arena
	root   int
	anchor r3.Vector // the point the root stands for, start or last commit target

	endpoints   Endpoints
	samplingBox spatialmath.Box
	seeded      bool
	obstacles   *pointcloud.Snapshot

	best        int
	bestCost    float64
	navComplete bool
	evalCursor  int
}

// NewSafeRegionRRTStar returns an unseeded planner.
func NewSafeRegionRRTStar(logger logging.Logger, opts Options) (*SafeRegionRRTStar, error) {
	p := &SafeRegionRRTStar{logger: logger, root: -1, best: -1}
	if err := p.Configure(opts); err != nil {
		return nil, err
	}
	return p, nil
}

// Configure sets the clearance parameters and reseeds the sampler. The tree is discarded.
func (p *SafeRegionRRTStar) Configure(opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	p.opts = opts
	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}
	//nolint:gosec
	p.rng = rand.New(rand.NewSource(seed))
	p.Reset()
	return nil
}

// Reset discards the tree.
func (p *SafeRegionRRTStar) Reset() {
	p.tree.reset()
	p.root = -1
	p.best = -1
	p.bestCost = math.Inf(1)
	p.seeded = false
	p.navComplete = false
	p.evalCursor = 0
}

// SetObstacles replaces the obstacle snapshot. Existing nodes are not re-checked until Evaluate.
func (p *SafeRegionRRTStar) SetObstacles(snapshot *pointcloud.Snapshot) {
	p.obstacles = snapshot
}

// SetEndpoints discards the tree and seeds a new one at the start.
func (p *SafeRegionRRTStar) SetEndpoints(endpoints Endpoints) error {
	if endpoints.MaxSamples <= 0 {
		return errors.Errorf("max samples must be positive, got %d", endpoints.MaxSamples)
	}
	if endpoints.SampleFraction < 0 || endpoints.GoalFraction < 0 || endpoints.SampleFraction+endpoints.GoalFraction > 1 {
		return errors.Errorf("sample fraction %v and goal fraction %v must be non-negative and sum to at most 1",
			endpoints.SampleFraction, endpoints.GoalFraction)
	}
	dims := endpoints.Bounds.Dims()
	if dims.X < 0 || dims.Y < 0 || dims.Z < 0 {
		return errors.New("workspace bounds are inverted")
	}

	p.Reset()
	p.endpoints = endpoints
	p.anchor = endpoints.Start
	p.samplingBox = endpoints.Bounds
	if endpoints.LocalRange > 0 {
		p.samplingBox = spatialmath.NewBoxAround(endpoints.Start, endpoints.Goal, endpoints.LocalRange).Clamp(endpoints.Bounds)
	}

	radius := p.clearanceRadius(endpoints.Start)
	if radius < p.opts.SafetyMargin {
		return errors.Wrapf(errStartInCollision, "clearance radius %.3f at %v", radius, endpoints.Start)
	}
	p.root = p.tree.add(endpoints.Start, radius, -1, 0)
	p.seeded = true
	p.updateBest()
	return nil
}

// Expand grows the tree until the budget runs out, the node cap is reached, or, if requested,
// a path to the goal exists. When a path was requested and none exists afterwards the error
// satisfies IsPlannerFailed.
func (p *SafeRegionRRTStar) Expand(ctx context.Context, budget Budget) error {
	if !p.seeded {
		return errNotSeeded
	}
	if budget.Duration <= 0 && budget.Iterations <= 0 {
		return errors.New("expansion budget needs a duration or an iteration count")
	}

	start := time.Now()
	iterations, added := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if budget.Iterations > 0 && iterations >= budget.Iterations {
			break
		}
		if budget.Duration > 0 && time.Since(start) >= budget.Duration {
			break
		}
		if budget.UntilPathFound && p.best >= 0 {
			break
		}
		if p.tree.live >= p.endpoints.MaxSamples {
			break
		}
		iterations++
		if p.grow(p.sample()) {
			added++
		}
	}
	p.logger.CDebugw(ctx, "tree expanded",
		"iterations", iterations,
		"added", added,
		"nodes", p.tree.live,
		"path_exists", p.best >= 0,
		"elapsed", time.Since(start).String(),
	)
	if budget.UntilPathFound && p.best < 0 {
		return NewPlannerFailedError(iterations, p.tree.live)
	}
	return nil
}

// Refine spends ceil(fraction * RefineIterations) samples, biased toward the current best path.
func (p *SafeRegionRRTStar) Refine(ctx context.Context, fraction float64) error {
	if !p.seeded {
		return errNotSeeded
	}
	n := int(math.Ceil(math.Max(0, math.Min(1, fraction)) * float64(p.opts.RefineIterations)))
	for i := 0; i < n && p.tree.live < p.endpoints.MaxSamples; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.grow(p.sample())
	}
	return nil
}

// Evaluate re-checks the best path and ceil(fraction * nodes) other nodes against the current
// obstacles. Nodes that lost their clearance, or their connection to their parent, are removed
// together with their subtree.
func (p *SafeRegionRRTStar) Evaluate(ctx context.Context, fraction float64) error {
	if !p.seeded {
		return errNotSeeded
	}

	var toCheck []int
	if p.best >= 0 {
		toCheck = append(toCheck, p.tree.chain(p.best)...)
	}
	if n := len(p.tree.nodes); n > 0 {
		count := int(math.Ceil(math.Max(0, math.Min(1, fraction)) * float64(p.tree.live)))
		for visited := 0; count > 0 && visited < n; visited++ {
			idx := p.evalCursor % n
			p.evalCursor = (p.evalCursor + 1) % n
			if p.tree.nodes[idx].valid {
				toCheck = append(toCheck, idx)
				count--
			}
		}
	}

	removed := 0
	for _, idx := range toCheck {
		if idx == p.root || !p.tree.isValid(idx) {
			continue
		}
		n := &p.tree.nodes[idx]
		radius := p.clearanceRadius(n.center)
		if radius < p.opts.SafetyMargin {
			p.tree.destroy(idx)
			removed++
			continue
		}
		n.radius = radius
		if parent := n.parent; parent >= 0 && !p.tree.connected(idx, parent) {
			p.tree.destroy(idx)
			removed++
		}
	}

	hadPath := p.best >= 0
	p.updateBest()
	if removed > 0 {
		p.logger.CDebugw(ctx, "evaluation pruned nodes", "removed", removed, "nodes", p.tree.live)
	}
	if hadPath && p.best < 0 {
		p.logger.Infow("best path invalidated by new obstacles")
	}
	return nil
}

// BestPath returns the cheapest path from the root anchor to the goal.
func (p *SafeRegionRRTStar) BestPath() (Path, bool) {
	if p.best < 0 {
		return Path{}, false
	}
	chain := p.tree.chain(p.best)
	path := Path{Cost: p.bestCost}
	rootNode := &p.tree.nodes[p.root]
	if p.anchor.Distance(rootNode.center) > duplicateTolerance {
		path.Waypoints = append(path.Waypoints, p.anchor)
		path.Radii = append(path.Radii, rootNode.radius)
		path.Cost += p.anchor.Distance(rootNode.center)
	}
	for _, idx := range chain {
		path.Waypoints = append(path.Waypoints, p.tree.nodes[idx].center)
		path.Radii = append(path.Radii, p.tree.nodes[idx].radius)
	}
	last := p.tree.nodes[p.best]
	if p.endpoints.Goal.Distance(last.center) > duplicateTolerance {
		path.Waypoints = append(path.Waypoints, p.endpoints.Goal)
		path.Radii = append(path.Radii, last.radius)
	}
	return path, true
}

// PathExists reports whether some live node contains the goal.
func (p *SafeRegionRRTStar) PathExists() bool {
	return p.best >= 0
}

// GoalRegionFullyExplored reports whether a re-root landed in a sphere that contains the goal.
func (p *SafeRegionRRTStar) GoalRegionFullyExplored() bool {
	return p.navComplete
}

// Tree returns every live node.
func (p *SafeRegionRRTStar) Tree() []TreeNode {
	out := make([]TreeNode, 0, p.tree.live)
	for i, n := range p.tree.nodes {
		if !n.valid {
			continue
		}
		out = append(out, TreeNode{Index: i, Parent: n.parent, Center: n.center, Radius: n.radius})
	}
	return out
}

// Reroot moves the root to the node that best represents point: the deepest best-path node
// containing it, else the nearest best-path node, else the nearest node. Only the new root's
// descendants survive; their indices and parent links are unchanged. If the goal-side end of the
// best path already contains point the navigation is complete and the tree is left untouched.
func (p *SafeRegionRRTStar) Reroot(point r3.Vector) error {
	if !p.seeded {
		return errNotSeeded
	}
	if p.best >= 0 && p.tree.contains(p.best, point) {
		p.navComplete = true
		return nil
	}

	newRoot := -1
	if p.best >= 0 {
		chain := p.tree.chain(p.best)
		for i := len(chain) - 1; i >= 0; i-- {
			if p.tree.contains(chain[i], point) {
				newRoot = chain[i]
				break
			}
		}
		// the trajectory may leave the spheres; stay on the best path so it survives.
		if newRoot < 0 {
			closest := math.Inf(1)
			for _, idx := range chain {
				if d := p.tree.nodes[idx].center.Distance(point); d < closest {
					closest, newRoot = d, idx
				}
			}
		}
	}
	if newRoot < 0 {
		newRoot = p.tree.nearestNeighbor(point)
	}
	if newRoot < 0 {
		return errNotSeeded
	}

	if newRoot != p.root {
		costOffset := p.tree.nodes[newRoot].cost
		p.tree.detach(newRoot)
		p.tree.destroy(p.root)
		p.tree.shiftCost(newRoot, -costOffset)
		p.root = newRoot
	}
	p.anchor = point
	if p.tree.contains(p.root, p.endpoints.Goal) {
		p.navComplete = true
	}
	p.updateBest()
	return nil
}

// clearanceRadius is min(distance to nearest obstacle, MaxRadius) - SearchMargin. Space beyond
// the sensing range is assumed free.
func (p *SafeRegionRRTStar) clearanceRadius(center r3.Vector) float64 {
	if p.opts.SensingRange > 0 && center.Distance(p.anchor) > p.opts.SensingRange {
		return p.opts.MaxRadius - p.opts.SearchMargin
	}
	dist := math.Inf(1)
	if p.obstacles != nil {
		if _, d, ok := p.obstacles.Nearest(center); ok {
			dist = d
		}
	}
	return math.Min(dist, p.opts.MaxRadius) - p.opts.SearchMargin
}

func (p *SafeRegionRRTStar) sample() r3.Vector {
	r := p.rng.Float64()
	if r < p.endpoints.GoalFraction {
		return p.endpoints.Goal
	}
	if p.best >= 0 && r < p.endpoints.GoalFraction+p.endpoints.SampleFraction {
		chain := p.tree.chain(p.best)
		n := &p.tree.nodes[chain[p.rng.Intn(len(chain))]]
		return n.center.Add(p.unitBallSample().Mul(2 * n.radius))
	}
	lo, dims := p.samplingBox.Min, p.samplingBox.Dims()
	return r3.Vector{
		X: lo.X + p.rng.Float64()*dims.X,
		Y: lo.Y + p.rng.Float64()*dims.Y,
		Z: lo.Z + p.rng.Float64()*dims.Z,
	}
}

// unitBallSample draws uniformly from the unit ball.
func (p *SafeRegionRRTStar) unitBallSample() r3.Vector {
	dir := r3.Vector{X: p.rng.NormFloat64(), Y: p.rng.NormFloat64(), Z: p.rng.NormFloat64()}
	norm := dir.Norm()
	if norm < duplicateTolerance {
		return r3.Vector{}
	}
	return dir.Mul(math.Cbrt(p.rng.Float64()) / norm)
}

// grow steers toward pt from the nearest node and inserts the resulting sphere with RRT*
// parent selection and rewiring. It reports whether a node was added.
func (p *SafeRegionRRTStar) grow(pt r3.Vector) bool {
	nearIdx := p.tree.nearestNeighbor(pt)
	if nearIdx < 0 {
		return false
	}
	near := p.tree.nodes[nearIdx]
	dist := near.center.Distance(pt)
	center := pt
	if dist > near.radius {
		center = near.center.Add(pt.Sub(near.center).Mul(near.radius / dist))
	}
	if center.Distance(near.center) < duplicateTolerance || !p.endpoints.Bounds.Contains(center) {
		return false
	}
	radius := p.clearanceRadius(center)
	if radius < p.opts.SafetyMargin {
		return false
	}

	neighbors := p.tree.neighborsOf(center, radius)
	parent, parentCost := -1, math.Inf(1)
	for _, nb := range neighbors {
		n := &p.tree.nodes[nb.idx]
		if sphereInside(center, radius, n) {
			return false
		}
		if cost := n.cost + nb.dist; cost < parentCost {
			parent, parentCost = nb.idx, cost
		}
	}
	if parent < 0 {
		return false
	}

	idx := p.tree.add(center, radius, parent, parentCost)
	for _, nb := range neighbors {
		if nb.idx == parent || nb.idx == p.root {
			continue
		}
		if cost := parentCost + nb.dist; cost < p.tree.nodes[nb.idx].cost {
			p.tree.reparent(nb.idx, idx, cost)
		}
	}

	if p.tree.contains(idx, p.endpoints.Goal) || p.best >= 0 {
		p.updateBest()
	}
	return true
}

func (p *SafeRegionRRTStar) updateBest() {
	p.best, p.bestCost = -1, math.Inf(1)
	if !p.seeded {
		return
	}
	goal := p.endpoints.Goal
	for i := range p.tree.nodes {
		n := &p.tree.nodes[i]
		if !n.valid {
			continue
		}
		if dist := n.center.Distance(goal); dist < n.radius {
			if cost := n.cost + dist; cost < p.bestCost {
				p.best, p.bestCost = i, cost
			}
		}
	}
}
