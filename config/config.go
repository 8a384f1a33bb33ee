// Package config defines the file format of the planner and converts it to the runtime
// parameters of each component.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/rhplanner/corridor"
	"go.viam.com/rhplanner/follower"
	"go.viam.com/rhplanner/motionplan"
	"go.viam.com/rhplanner/replan"
	"go.viam.com/rhplanner/spatialmath"
	"go.viam.com/rhplanner/trajopt"
)

// default file-level parameters that have no counterpart in a component default.
const (
	defaultCommandRate   = 100.
	defaultGoalTolerance = 0.3
	defaultCloudRate     = 10.
	defaultOdometryRate  = 100.
	defaultPointSpacing  = 0.2
	defaultMaxDuration   = 120.
)

// Config describes a complete planning setup.
type Config struct {
	ConfigFilePath string `json:"-"`

	Debug      bool               `json:"debug,omitempty"`
	Planner    Planner            `json:"planner"`
	Tree       motionplan.Options `json:"tree"`
	Corridor   Corridor           `json:"corridor"`
	Trajectory Trajectory         `json:"trajectory"`
	Follower   Follower           `json:"follower"`
	Mission    Mission            `json:"mission"`
	Simulation Simulation         `json:"simulation"`
}

// Planner configures the planning loop. Times are in seconds and rates in hertz.
type Planner struct {
	PlanRate         float64         `json:"plan_rate"`
	Workspace        spatialmath.Box `json:"workspace"`
	LocalRange       float64         `json:"local_range"`
	MaxSamples       int             `json:"max_samples"`
	SamplePortion    float64         `json:"sample_portion"`
	GoalPortion      float64         `json:"goal_portion"`
	RefinePortion    float64         `json:"refine_portion"`
	PathFindLimit    float64         `json:"path_find_limit"`
	CommitTime       float64         `json:"commit_time"`
	ArrivalThreshold float64         `json:"arrival_threshold"`
	TimeWeight       float64         `json:"time_weight"`
	RelCostTol       float64         `json:"rel_cost_tol"`
	ViewSampleStep   float64         `json:"view_sample_step"`
}

// Corridor configures the convex cover and its pruning.
type Corridor struct {
	Progress        float64 `json:"progress"`
	Range           float64 `json:"range"`
	Epsilon         float64 `json:"epsilon"`
	SolverMargin    float64 `json:"solver_margin"`
	ShortCutEpsilon float64 `json:"short_cut_epsilon"`
}

// Trajectory configures the trajectory optimizer.
type Trajectory struct {
	TimeLimit            float64           `json:"time_limit"`
	SmoothingEps         float64           `json:"smoothing_eps"`
	QuadratureResolution int               `json:"quadrature_resolution"`
	Bounds               trajopt.Bounds    `json:"bounds"`
	Penalties            trajopt.Penalties `json:"penalties"`
	Physical             trajopt.Physical  `json:"physical"`
}

// Follower configures the setpoint stream.
type Follower struct {
	CommandRate    float64 `json:"command_rate"`
	FaceGoal       *bool   `json:"face_goal,omitempty"`
	MaxYawRate     float64 `json:"max_yaw_rate"`
	YawFilterAlpha float64 `json:"yaw_filter_alpha"`
}

// Mission is the query the simulator and the one-shot planner run.
type Mission struct {
	Start         r3.Vector `json:"start"`
	Goal          r3.Vector `json:"goal"`
	GoalTolerance float64   `json:"goal_tolerance"`
}

// Obstacle is an axis aligned box whose surface the simulated sensor sees.
type Obstacle struct {
	Name string    `json:"name,omitempty"`
	Min  r3.Vector `json:"min"`
	Max  r3.Vector `json:"max"`
}

// Simulation configures the closed-loop simulator.
type Simulation struct {
	Obstacles    []Obstacle `json:"obstacles"`
	PointSpacing float64    `json:"point_spacing"`
	CloudRate    float64    `json:"cloud_rate"`
	OdometryRate float64    `json:"odometry_rate"`
	MaxDuration  float64    `json:"max_duration"`
}

// Ensure fills defaults and validates the whole config.
func (c *Config) Ensure() error {
	c.fillDefaults()
	return c.Validate()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Planner.Validate("planner"); err != nil {
		return err
	}
	if err := validateTree(&c.Tree, "tree"); err != nil {
		return err
	}
	if err := c.Corridor.Validate("corridor"); err != nil {
		return err
	}
	if err := c.Trajectory.Validate("trajectory"); err != nil {
		return err
	}
	if err := c.Follower.Validate("follower"); err != nil {
		return err
	}
	if err := c.Mission.Validate("mission", c.Planner.Workspace); err != nil {
		return err
	}
	return c.Simulation.Validate("simulation")
}

func (c *Config) fillDefaults() {
	loop := replan.DefaultConfig()
	p := &c.Planner
	setDefault(&p.PlanRate, 1/loop.PlanPeriod.Seconds())
	if p.Workspace == (spatialmath.Box{}) {
		p.Workspace = loop.Workspace
	}
	if p.MaxSamples == 0 {
		p.MaxSamples = loop.MaxSamples
	}
	setDefault(&p.SamplePortion, loop.SampleFraction)
	setDefault(&p.GoalPortion, loop.GoalFraction)
	setDefault(&p.RefinePortion, loop.RefinePortion)
	setDefault(&p.PathFindLimit, loop.PathFindLimit.Seconds())
	setDefault(&p.CommitTime, loop.CommitHorizon)
	setDefault(&p.ArrivalThreshold, loop.ArrivalThreshold)
	setDefault(&p.TimeWeight, loop.TimeWeight)
	setDefault(&p.RelCostTol, loop.RelCostTol)
	setDefault(&p.ViewSampleStep, loop.ViewSampleStep)

	tree := motionplan.NewDefaultOptions()
	setDefault(&c.Tree.SafetyMargin, tree.SafetyMargin)
	setDefault(&c.Tree.SearchMargin, tree.SearchMargin)
	setDefault(&c.Tree.MaxRadius, tree.MaxRadius)
	// a negative sensing range considers every obstacle.
	setDefault(&c.Tree.SensingRange, tree.SensingRange)
	if c.Tree.RefineIterations == 0 {
		c.Tree.RefineIterations = tree.RefineIterations
	}
	if c.Tree.Seed == 0 {
		c.Tree.Seed = tree.Seed
	}

	cover := corridor.DefaultCoverParams(p.Workspace)
	setDefault(&c.Corridor.Progress, cover.Progress)
	setDefault(&c.Corridor.Range, cover.Range)
	setDefault(&c.Corridor.Epsilon, cover.Epsilon)
	setDefault(&c.Corridor.SolverMargin, loop.SolverMargin)
	setDefault(&c.Corridor.ShortCutEpsilon, loop.ShortCutEpsilon)

	traj := trajopt.NewDefaultParams()
	t := &c.Trajectory
	setDefault(&t.TimeLimit, traj.TimeLimit.Seconds())
	setDefault(&t.SmoothingEps, traj.SmoothingEps)
	if t.QuadratureResolution == 0 {
		t.QuadratureResolution = traj.QuadratureResolution
	}
	setDefault(&t.Bounds.MaxVel, traj.Bounds.MaxVel)
	setDefault(&t.Bounds.MaxAcc, traj.Bounds.MaxAcc)
	setDefault(&t.Bounds.MinThrust, traj.Bounds.MinThrust)
	setDefault(&t.Bounds.MaxThrust, traj.Bounds.MaxThrust)
	setDefault(&t.Penalties.Pos, traj.Penalties.Pos)
	setDefault(&t.Penalties.Vel, traj.Penalties.Vel)
	setDefault(&t.Penalties.Acc, traj.Penalties.Acc)
	setDefault(&t.Penalties.Thrust, traj.Penalties.Thrust)
	setDefault(&t.Physical.Mass, traj.Physical.Mass)
	setDefault(&t.Physical.Gravity, traj.Physical.Gravity)

	fol := follower.DefaultConfig()
	setDefault(&c.Follower.CommandRate, defaultCommandRate)
	if c.Follower.FaceGoal == nil {
		faceGoal := fol.FaceGoal
		c.Follower.FaceGoal = &faceGoal
	}
	setDefault(&c.Follower.MaxYawRate, fol.MaxYawRate)
	setDefault(&c.Follower.YawFilterAlpha, fol.YawFilterAlpha)

	setDefault(&c.Mission.GoalTolerance, defaultGoalTolerance)

	s := &c.Simulation
	setDefault(&s.PointSpacing, defaultPointSpacing)
	setDefault(&s.CloudRate, defaultCloudRate)
	setDefault(&s.OdometryRate, defaultOdometryRate)
	setDefault(&s.MaxDuration, defaultMaxDuration)
}

func setDefault(field *float64, value float64) {
	if *field == 0 {
		*field = value
	}
}

// Validate ensures all parts of the planner section are valid.
func (p *Planner) Validate(path string) error {
	if p.PlanRate <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "plan_rate")
	}
	if err := validateBox(p.Workspace, fmt.Sprintf("%s.workspace", path)); err != nil {
		return err
	}
	if p.MaxSamples <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "max_samples")
	}
	for name, v := range map[string]float64{
		"sample_portion": p.SamplePortion,
		"goal_portion":   p.GoalPortion,
		"refine_portion": p.RefinePortion,
	} {
		if v < 0 || v > 1 {
			return utils.NewConfigValidationError(path, errors.Errorf("%s must be in [0, 1], got %v", name, v))
		}
	}
	if p.SamplePortion+p.GoalPortion > 1 {
		return utils.NewConfigValidationError(path, errors.New("sample_portion and goal_portion add up to more than 1"))
	}
	if p.PathFindLimit <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "path_find_limit")
	}
	if p.CommitTime < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("commit_time must not be negative, got %v", p.CommitTime))
	}
	if p.ArrivalThreshold <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "arrival_threshold")
	}
	return nil
}

func validateTree(opts *motionplan.Options, path string) error {
	if opts.SafetyMargin <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "safety_margin")
	}
	if opts.SearchMargin < 0 {
		return utils.NewConfigValidationError(path, errors.New("search_margin must not be negative"))
	}
	if opts.MaxRadius-opts.SearchMargin < opts.SafetyMargin {
		return utils.NewConfigValidationError(path,
			errors.Errorf("max_radius %v minus search_margin %v is below safety_margin %v",
				opts.MaxRadius, opts.SearchMargin, opts.SafetyMargin))
	}
	return nil
}

// Validate ensures all parts of the corridor section are valid.
func (c *Corridor) Validate(path string) error {
	if c.Progress <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "progress")
	}
	if c.Range <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "range")
	}
	if c.Epsilon <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "epsilon")
	}
	if c.SolverMargin < 0 || c.ShortCutEpsilon < 0 {
		return utils.NewConfigValidationError(path, errors.New("solver_margin and short_cut_epsilon must not be negative"))
	}
	return nil
}

// Validate ensures all parts of the trajectory section are valid.
func (t *Trajectory) Validate(path string) error {
	if t.TimeLimit <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "time_limit")
	}
	if t.Bounds.MaxVel <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "bounds.max_vel")
	}
	if t.Bounds.MaxAcc <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "bounds.max_acc")
	}
	if t.Bounds.MinThrust >= t.Bounds.MaxThrust {
		return utils.NewConfigValidationError(path,
			errors.Errorf("bounds.min_thrust %v must be below bounds.max_thrust %v", t.Bounds.MinThrust, t.Bounds.MaxThrust))
	}
	if t.Physical.Mass <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "physical.mass")
	}
	return nil
}

// Validate ensures all parts of the follower section are valid.
func (f *Follower) Validate(path string) error {
	if f.CommandRate <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "command_rate")
	}
	if f.MaxYawRate <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "max_yaw_rate")
	}
	if f.YawFilterAlpha < 0 || f.YawFilterAlpha >= 1 {
		return utils.NewConfigValidationError(path, errors.Errorf("yaw_filter_alpha must be in [0, 1), got %v", f.YawFilterAlpha))
	}
	return nil
}

// Validate ensures the mission lies inside the workspace.
func (m *Mission) Validate(path string, workspace spatialmath.Box) error {
	if !workspace.Contains(m.Start) {
		return utils.NewConfigValidationError(path, errors.Errorf("start %v is outside the workspace", m.Start))
	}
	if !workspace.Contains(m.Goal) {
		return utils.NewConfigValidationError(path, errors.Errorf("goal %v is outside the workspace", m.Goal))
	}
	if m.Goal.Z < 0 {
		return utils.NewConfigValidationError(path, errors.New("goal must not be below the ground"))
	}
	if m.GoalTolerance <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "goal_tolerance")
	}
	return nil
}

// Validate ensures all parts of the simulation section are valid.
func (s *Simulation) Validate(path string) error {
	for idx, obs := range s.Obstacles {
		if err := validateBox(spatialmath.Box{Min: obs.Min, Max: obs.Max}, fmt.Sprintf("%s.obstacles.%d", path, idx)); err != nil {
			return err
		}
	}
	if s.PointSpacing <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "point_spacing")
	}
	if s.CloudRate <= 0 || s.OdometryRate <= 0 {
		return utils.NewConfigValidationError(path, errors.New("cloud_rate and odometry_rate must be positive"))
	}
	return nil
}

func validateBox(box spatialmath.Box, path string) error {
	for _, v := range []float64{box.Min.X, box.Min.Y, box.Min.Z, box.Max.X, box.Max.Y, box.Max.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return utils.NewConfigValidationError(path, errors.New("bounds must be finite"))
		}
	}
	if box.Min.X > box.Max.X || box.Min.Y > box.Max.Y || box.Min.Z > box.Max.Z {
		return utils.NewConfigValidationError(path, errors.Errorf("min %v exceeds max %v", box.Min, box.Max))
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ReplanConfig returns the planning loop parameters.
func (c *Config) ReplanConfig() replan.Config {
	cfg := replan.DefaultConfig()
	p := c.Planner
	cfg.PlanPeriod = seconds(1 / p.PlanRate)
	cfg.Workspace = p.Workspace
	cfg.LocalRange = p.LocalRange
	cfg.MaxSamples = p.MaxSamples
	cfg.SampleFraction = p.SamplePortion
	cfg.GoalFraction = p.GoalPortion
	cfg.RefinePortion = p.RefinePortion
	cfg.PathFindLimit = seconds(p.PathFindLimit)
	cfg.CommitHorizon = p.CommitTime
	cfg.ArrivalThreshold = p.ArrivalThreshold
	cfg.TimeWeight = p.TimeWeight
	cfg.RelCostTol = p.RelCostTol
	cfg.ViewSampleStep = p.ViewSampleStep

	cfg.Cover = corridor.CoverParams{
		Workspace: p.Workspace,
		Progress:  c.Corridor.Progress,
		Range:     c.Corridor.Range,
		Epsilon:   c.Corridor.Epsilon,
	}
	cfg.SolverMargin = c.Corridor.SolverMargin
	cfg.ShortCutEpsilon = c.Corridor.ShortCutEpsilon
	cfg.Trajectory = c.TrajectoryParams()
	return cfg
}

// TrajectoryParams returns the optimizer parameters.
func (c *Config) TrajectoryParams() trajopt.Params {
	t := c.Trajectory
	return trajopt.Params{
		TimeLimit:            seconds(t.TimeLimit),
		SmoothingEps:         t.SmoothingEps,
		QuadratureResolution: t.QuadratureResolution,
		Bounds:               t.Bounds,
		Penalties:            t.Penalties,
		Physical:             t.Physical,
	}
}

// FollowerConfig returns the follower parameters.
func (c *Config) FollowerConfig() follower.Config {
	cfg := follower.DefaultConfig()
	cfg.Period = seconds(1 / c.Follower.CommandRate)
	if c.Follower.FaceGoal != nil {
		cfg.FaceGoal = *c.Follower.FaceGoal
	}
	cfg.MaxYawRate = c.Follower.MaxYawRate
	cfg.YawFilterAlpha = c.Follower.YawFilterAlpha
	return cfg
}
