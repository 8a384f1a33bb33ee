package replan

import (
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/rhplanner/corridor"
	"go.viam.com/rhplanner/spatialmath"
	"go.viam.com/rhplanner/trajopt"
)

// default orchestrator parameters.
const (
	defaultPlanPeriod       = 100 * time.Millisecond
	defaultPathFindLimit    = 5 * time.Second
	defaultMaxSamples       = 3000
	defaultSampleFraction   = 0.1
	defaultGoalFraction     = 0.05
	defaultRefinePortion    = 0.8
	defaultCommitHorizon    = 1.0
	defaultArrivalThreshold = 0.25
	defaultShortCutEpsilon  = 0.01
	defaultSolverMargin     = 0.1
	defaultTimeWeight       = 20.
	defaultRelCostTol       = 1e-4
	defaultViewSampleStep   = 0.1

	// waypoints moving less than this do not count as a path change.
	pathChangeTolerance = 1e-6
)

// Config holds every tunable of the planning loop.
type Config struct {
	PlanPeriod time.Duration

	Workspace      spatialmath.Box
	LocalRange     float64
	MaxSamples     int
	SampleFraction float64
	GoalFraction   float64
	RefinePortion  float64
	PathFindLimit  time.Duration

	// CommitHorizon is the lookahead along the current trajectory, in seconds, that becomes the
	// next tree root.
	CommitHorizon    float64
	ArrivalThreshold float64

	Cover           corridor.CoverParams
	SolverMargin    float64
	ShortCutEpsilon float64

	TimeWeight float64
	RelCostTol float64
	Trajectory trajopt.Params

	ViewSampleStep float64
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	workspace := spatialmath.Box{
		Min: r3.Vector{X: -5, Y: -5, Z: 0},
		Max: r3.Vector{X: 15, Y: 15, Z: 1},
	}
	return Config{
		PlanPeriod:       defaultPlanPeriod,
		Workspace:        workspace,
		MaxSamples:       defaultMaxSamples,
		SampleFraction:   defaultSampleFraction,
		GoalFraction:     defaultGoalFraction,
		RefinePortion:    defaultRefinePortion,
		PathFindLimit:    defaultPathFindLimit,
		CommitHorizon:    defaultCommitHorizon,
		ArrivalThreshold: defaultArrivalThreshold,
		Cover:            corridor.DefaultCoverParams(workspace),
		SolverMargin:     defaultSolverMargin,
		ShortCutEpsilon:  defaultShortCutEpsilon,
		TimeWeight:       defaultTimeWeight,
		RelCostTol:       defaultRelCostTol,
		Trajectory:       trajopt.NewDefaultParams(),
		ViewSampleStep:   defaultViewSampleStep,
	}
}
