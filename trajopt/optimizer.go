// Package trajopt turns a corridor of convex polytopes into a smooth, time-allocated trajectory.
package trajopt

import (
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/rhplanner/spatialmath"
	"go.viam.com/rhplanner/trajectory"
)

// State is a position with its first two derivatives.
type State struct {
	Pos r3.Vector
	Vel r3.Vector
	Acc r3.Vector
}

// Bounds are the magnitude limits enforced through penalties.
type Bounds struct {
	MaxVel    float64 `json:"max_vel"`
	MaxAcc    float64 `json:"max_acc"`
	MinThrust float64 `json:"min_thrust"`
	MaxThrust float64 `json:"max_thrust"`
}

// Penalties weight each constraint violation in the cost.
type Penalties struct {
	Pos    float64 `json:"pos"`
	Vel    float64 `json:"vel"`
	Acc    float64 `json:"acc"`
	Thrust float64 `json:"thrust"`
}

// Physical describes the vehicle for the thrust penalty.
type Physical struct {
	Mass    float64 `json:"mass"`
	Gravity float64 `json:"gravity"`
}

// Params configure one optimization.
type Params struct {
	TimeLimit            time.Duration
	SmoothingEps         float64
	QuadratureResolution int
	Bounds               Bounds
	Penalties            Penalties
	Physical             Physical
}

// default optimization parameters.
const (
	defaultTimeLimit            = 50 * time.Millisecond
	defaultSmoothingEps         = 1e-2
	defaultQuadratureResolution = 16
	defaultMaxVel               = 2.0
	defaultMaxAcc               = 3.0
	defaultMinThrust            = 2.0
	defaultMaxThrust            = 12.0
	defaultPenaltyPos           = 1e4
	defaultPenaltyVel           = 1e4
	defaultPenaltyAcc           = 1e4
	defaultPenaltyThrust        = 1e5
	defaultMass                 = 0.98
	defaultGravity              = 9.81
)

// NewDefaultParams returns parameters suited to a small quadrotor.
func NewDefaultParams() Params {
	return Params{
		TimeLimit:            defaultTimeLimit,
		SmoothingEps:         defaultSmoothingEps,
		QuadratureResolution: defaultQuadratureResolution,
		Bounds: Bounds{
			MaxVel:    defaultMaxVel,
			MaxAcc:    defaultMaxAcc,
			MinThrust: defaultMinThrust,
			MaxThrust: defaultMaxThrust,
		},
		Penalties: Penalties{
			Pos:    defaultPenaltyPos,
			Vel:    defaultPenaltyVel,
			Acc:    defaultPenaltyAcc,
			Thrust: defaultPenaltyThrust,
		},
		Physical: Physical{Mass: defaultMass, Gravity: defaultGravity},
	}
}

// Optimizer fits a trajectory through a corridor.
type Optimizer interface {
	// Setup prepares a problem. It returns false when the problem is ill-posed: an empty
	// corridor, endpoints outside their polytopes, or consecutive polytopes that do not meet.
	Setup(timeWeight float64, initial, final State, corridor []*spatialmath.Polytope, params Params) bool
	// Optimize writes the result into out and returns its cost, or +Inf on failure.
	Optimize(out *trajectory.Trajectory, relCostTol float64) float64
}
