package trajopt

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/optimize"

	"go.viam.com/rhplanner/logging"
	"go.viam.com/rhplanner/spatialmath"
	"go.viam.com/rhplanner/trajectory"
	"go.viam.com/rhplanner/utils"
)

const (
	// containment tolerance for endpoints and the final feasibility check.
	containTol = 1e-6
	// waypoints closer than this are merged.
	mergeTol = 1e-6

	minDuration = 1e-3
	maxDuration = 1e3

	// slack on magnitude bounds when deciding whether the optimized result is usable.
	boundSlack = 1.1

	// rest-to-rest quintic peak velocity and acceleration factors: v = k_v·D/T, a = k_a·D/T².
	restPeakVel = 1.875
	restPeakAcc = 5.7735

	initialVelocityScale = 0.5
	maxIterations        = 20
	maxFuncEvaluations   = 4000
)

// segment is one straight leg of the reference polyline with the corridor polytopes it may use.
type segment struct {
	from, to  r3.Vector
	polytopes []*spatialmath.Polytope
}

func (s segment) length() float64 {
	return s.to.Sub(s.from).Norm()
}

// CorridorMinJerk allocates time over a polyline of inscribed waypoints and fits quintic pieces
// that trade total time against jerk energy while staying inside the corridor.
type CorridorMinJerk struct {
	logger logging.Logger

	ready      bool
	timeWeight float64
	initial    State
	final      State
	params     Params
	segments   []segment
}

// NewCorridorMinJerk returns an optimizer with no problem set up.
func NewCorridorMinJerk(logger logging.Logger) *CorridorMinJerk {
	return &CorridorMinJerk{logger: logger.Sublogger("trajopt")}
}

// Setup implements Optimizer.
func (cm *CorridorMinJerk) Setup(
	timeWeight float64,
	initial, final State,
	corridor []*spatialmath.Polytope,
	params Params,
) bool {
	cm.ready = false
	cm.segments = nil
	if len(corridor) == 0 || timeWeight < 0 {
		return false
	}
	polys := make([]*spatialmath.Polytope, len(corridor))
	for i, p := range corridor {
		if p == nil {
			return false
		}
		polys[i] = p.Normalized()
	}
	if !polys[0].Contains(initial.Pos, containTol) || !polys[len(polys)-1].Contains(final.Pos, containTol) {
		cm.logger.Debugw("endpoints outside corridor", "start", initial.Pos, "goal", final.Pos)
		return false
	}

	// Interior waypoint k lies in polys[owners[k]-1] ∩ polys[owners[k]], so the leg leaving it
	// stays inside polys[owners[k]] unless merging skipped a polytope.
	waypoints := []r3.Vector{initial.Pos}
	owners := []int{0}
	for i := 0; i+1 < len(polys); i++ {
		center, margin, err := spatialmath.InscribedCenter(polys[i], polys[i+1])
		if err != nil || margin < -1e-9 {
			cm.logger.Debugw("consecutive polytopes do not overlap", "index", i, "margin", margin, "err", err)
			return false
		}
		if center.Sub(waypoints[len(waypoints)-1]).Norm() < mergeTol {
			continue
		}
		waypoints = append(waypoints, center)
		owners = append(owners, i+1)
	}
	if final.Pos.Sub(waypoints[len(waypoints)-1]).Norm() < mergeTol && len(waypoints) > 1 {
		waypoints = waypoints[:len(waypoints)-1]
		owners = owners[:len(owners)-1]
	}
	waypoints = append(waypoints, final.Pos)
	owners = append(owners, len(polys)-1)
	if len(waypoints) == 2 && final.Pos.Sub(initial.Pos).Norm() < mergeTol {
		return false
	}

	last := len(waypoints) - 1
	for k := 0; k < last; k++ {
		lo, hi := owners[k], owners[k+1]
		if k+1 < last {
			hi--
		}
		if hi < lo {
			hi = lo
		}
		cm.segments = append(cm.segments, segment{
			from:      waypoints[k],
			to:        waypoints[k+1],
			polytopes: polys[lo : hi+1],
		})
	}
	cm.timeWeight = timeWeight
	cm.initial = initial
	cm.final = final
	cm.params = params
	if cm.params.QuadratureResolution <= 0 {
		cm.params.QuadratureResolution = defaultQuadratureResolution
	}
	if cm.params.SmoothingEps <= 0 {
		cm.params.SmoothingEps = defaultSmoothingEps
	}
	cm.ready = true
	return true
}

// Optimize implements Optimizer.
func (cm *CorridorMinJerk) Optimize(out *trajectory.Trajectory, relCostTol float64) float64 {
	if !cm.ready {
		out.Clear()
		return math.Inf(1)
	}

	x0 := cm.initialGuess()
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return cm.cost(cm.pieces(x))
		},
	}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Relative:   relCostTol,
			Iterations: maxIterations,
		},
		Runtime:         cm.params.TimeLimit,
		FuncEvaluations: maxFuncEvaluations,
	}
	best := x0
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		cm.logger.Debugw("duration search failed, using initial allocation", "err", err)
	}
	if result != nil && utils.IsFinite(result.F) && len(result.X) == len(x0) {
		best = result.X
	}

	pieces := cm.pieces(best)
	if !cm.feasible(pieces, true) {
		cm.logger.Debug("optimized trajectory infeasible, falling back to rest-to-rest pieces")
		pieces = cm.restToRest()
		if !cm.feasible(pieces, false) {
			out.Clear()
			return math.Inf(1)
		}
	}
	if err := out.SetPieces(pieces); err != nil {
		out.Clear()
		return math.Inf(1)
	}
	return cm.cost(pieces)
}

// initialGuess encodes per-segment log-durations followed by the logit of the velocity scale.
func (cm *CorridorMinJerk) initialGuess() []float64 {
	x := make([]float64, len(cm.segments)+1)
	for i, seg := range cm.segments {
		x[i] = math.Log(cm.restDuration(seg.length()))
	}
	x[len(cm.segments)] = logit(initialVelocityScale)
	return x
}

func (cm *CorridorMinJerk) restDuration(dist float64) float64 {
	vmax := cm.params.Bounds.MaxVel
	amax := cm.params.Bounds.MaxAcc
	t := minDuration
	if vmax > 0 {
		t = math.Max(t, restPeakVel*dist/vmax)
	}
	if amax > 0 {
		t = math.Max(t, math.Sqrt(restPeakAcc*dist/amax))
	}
	return math.Min(t, maxDuration)
}

func (cm *CorridorMinJerk) pieces(x []float64) []trajectory.Piece {
	n := len(cm.segments)
	durations := make([]float64, n)
	for i := range durations {
		durations[i] = utils.Clamp(math.Exp(x[i]), minDuration, maxDuration)
	}
	scale := sigmoid(x[n])

	vel := make([]r3.Vector, n+1)
	acc := make([]r3.Vector, n+1)
	vel[0], acc[0] = cm.initial.Vel, cm.initial.Acc
	vel[n], acc[n] = cm.final.Vel, cm.final.Acc
	for j := 1; j < n; j++ {
		in := cm.segments[j-1].to.Sub(cm.segments[j-1].from).Mul(1 / durations[j-1])
		out := cm.segments[j].to.Sub(cm.segments[j].from).Mul(1 / durations[j])
		vel[j] = in.Add(out).Mul(0.5 * scale)
	}

	pieces := make([]trajectory.Piece, n)
	for i, seg := range cm.segments {
		pieces[i] = trajectory.NewQuinticHermite(seg.from, vel[i], acc[i], seg.to, vel[i+1], acc[i+1], durations[i])
	}
	return pieces
}

func (cm *CorridorMinJerk) restToRest() []trajectory.Piece {
	n := len(cm.segments)
	pieces := make([]trajectory.Piece, n)
	for i, seg := range cm.segments {
		v0, a0 := r3.Vector{}, r3.Vector{}
		v1, a1 := r3.Vector{}, r3.Vector{}
		if i == 0 {
			v0, a0 = cm.initial.Vel, cm.initial.Acc
		}
		if i == n-1 {
			v1, a1 = cm.final.Vel, cm.final.Acc
		}
		pieces[i] = trajectory.NewQuinticHermite(seg.from, v0, a0, seg.to, v1, a1, cm.restDuration(seg.length()))
	}
	return pieces
}

// cost is timeWeight·ΣT + Σ∫‖j‖² + smoothed penalty integrals.
func (cm *CorridorMinJerk) cost(pieces []trajectory.Piece) float64 {
	res := cm.params.QuadratureResolution
	durations := make([]float64, len(pieces))
	total := 0.
	for i := range pieces {
		piece := &pieces[i]
		durations[i] = piece.Duration
		total += quad.Fixed(func(t float64) float64 {
			return piece.Jerk(t).Norm2()
		}, 0, piece.Duration, res, nil, 0)

		step := piece.Duration / float64(res)
		for k := 0; k <= res; k++ {
			weight := step
			if k == 0 || k == res {
				weight = step / 2
			}
			total += weight * cm.penalty(i, piece, float64(k)*step)
		}
	}
	return cm.timeWeight*floats.Sum(durations) + total
}

func (cm *CorridorMinJerk) penalty(segIdx int, piece *trajectory.Piece, t float64) float64 {
	eps := cm.params.SmoothingEps
	bounds := cm.params.Bounds
	weights := cm.params.Penalties

	pen := weights.Pos * smoothedL1(cm.violation(segIdx, piece.Position(t)), eps)
	vel := piece.Velocity(t)
	acc := piece.Acceleration(t)
	if bounds.MaxVel > 0 {
		pen += weights.Vel * smoothedL1(vel.Norm2()-bounds.MaxVel*bounds.MaxVel, eps)
	}
	if bounds.MaxAcc > 0 {
		pen += weights.Acc * smoothedL1(acc.Norm2()-bounds.MaxAcc*bounds.MaxAcc, eps)
	}
	if cm.params.Physical.Mass > 0 {
		thrust := cm.thrust(acc)
		if bounds.MaxThrust > 0 {
			pen += weights.Thrust * smoothedL1(thrust-bounds.MaxThrust, eps)
		}
		pen += weights.Thrust * smoothedL1(bounds.MinThrust-thrust, eps)
	}
	return pen
}

func (cm *CorridorMinJerk) thrust(acc r3.Vector) float64 {
	return cm.params.Physical.Mass * acc.Add(r3.Vector{Z: cm.params.Physical.Gravity}).Norm()
}

// violation is the smallest worst-face violation over the polytopes the segment may use.
func (cm *CorridorMinJerk) violation(segIdx int, p r3.Vector) float64 {
	best := math.Inf(1)
	for _, poly := range cm.segments[segIdx].polytopes {
		best = math.Min(best, poly.MaxViolation(p))
	}
	return best
}

func (cm *CorridorMinJerk) feasible(pieces []trajectory.Piece, checkBounds bool) bool {
	samples := 4 * cm.params.QuadratureResolution
	bounds := cm.params.Bounds
	for i := range pieces {
		piece := &pieces[i]
		for k := 0; k <= samples; k++ {
			t := piece.Duration * float64(k) / float64(samples)
			if cm.violation(i, piece.Position(t)) > containTol {
				return false
			}
			if !checkBounds {
				continue
			}
			if bounds.MaxVel > 0 && piece.Velocity(t).Norm() > boundSlack*bounds.MaxVel {
				return false
			}
			if bounds.MaxAcc > 0 && piece.Acceleration(t).Norm() > boundSlack*bounds.MaxAcc {
				return false
			}
		}
	}
	return true
}

// smoothedL1 is zero for x <= 0, linear for x >= mu and a C² cubic blend in between.
func smoothedL1(x, mu float64) float64 {
	switch {
	case x <= 0:
		return 0
	case x < mu:
		r := x / mu
		return (mu - x/2) * r * r * r
	default:
		return x - mu/2
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}
