// Package follower samples the committed trajectory into controller setpoints at a fixed rate and
// falls back to hovering whenever no trajectory is available.
package follower

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/rhplanner/logging"
	"go.viam.com/rhplanner/messages"
	"go.viam.com/rhplanner/trajectory"
	"go.viam.com/rhplanner/utils"
)

// default follower parameters.
const (
	defaultPeriod         = 10 * time.Millisecond
	defaultMaxYawRate     = 1.0
	defaultYawFilterAlpha = 0.5

	// below this horizontal speed the direction of travel is undefined and yaw is held.
	minHeadingSpeed = 1e-3
)

// ErrBackwardTrajectory is returned for an add whose id is older than the last accepted one.
var ErrBackwardTrajectory = errors.New("trajectory id goes backwards")

// Config tunes the follower.
type Config struct {
	Period time.Duration `json:"period"`
	// FaceGoal points the robot at the goal; otherwise it faces its direction of travel.
	FaceGoal       bool    `json:"face_goal"`
	MaxYawRate     float64 `json:"max_yaw_rate"`
	YawFilterAlpha float64 `json:"yaw_filter_alpha"`
}

// DefaultConfig returns the default follower configuration.
func DefaultConfig() Config {
	return Config{
		Period:         defaultPeriod,
		FaceGoal:       true,
		MaxYawRate:     defaultMaxYawRate,
		YawFilterAlpha: defaultYawFilterAlpha,
	}
}

// Inputs are the streams consumed by Run. Nil channels are never read. Pose comes from Odometry
// or, for simulators that only publish a state vector, from ObstacleState.
type Inputs struct {
	Trajectory    <-chan messages.TrajectoryMsg
	Odometry      <-chan messages.Odometry
	ObstacleState <-chan messages.ObstacleState
	Goal          <-chan messages.GoalPath
}

// InputsFromBus subscribes to the follower's topics. The returned function unsubscribes.
func InputsFromBus(bus *messages.Bus) (Inputs, func()) {
	trajID, traj := bus.Trajectory.Subscribe(messages.DefaultBuffer)
	odomID, odom := bus.Odometry.Subscribe(messages.DefaultBuffer)
	stateID, state := bus.ObstacleState.Subscribe(messages.DefaultBuffer)
	goalID, goal := bus.Goal.Subscribe(messages.DefaultBuffer)
	return Inputs{Trajectory: traj, Odometry: odom, ObstacleState: state, Goal: goal}, func() {
		bus.Trajectory.Unsubscribe(trajID)
		bus.Odometry.Unsubscribe(odomID)
		bus.ObstacleState.Unsubscribe(stateID)
		bus.Goal.Unsubscribe(goalID)
	}
}

type scheduled struct {
	id    int64
	start time.Time
	traj  *trajectory.Trajectory
}

func (s *scheduled) elapsed(now time.Time) float64 {
	return now.Sub(s.start).Seconds()
}

// Follower turns trajectories into setpoints. Handle* and Step must be called from one goroutine;
// Run does that.
type Follower struct {
	logger logging.Logger
	clk    clock.Clock
	cfg    Config
	pub    messages.CommandPublisher

	current *scheduled
	pending *scheduled
	lastID  int64

	final    bool
	finalPos r3.Vector

	pose    r3.Vector
	goal    r3.Vector
	hasGoal bool

	hoverSent *atomic.Bool
	yaw       float64
	yawRate   float64
}

// New returns a follower that hovers until it receives a trajectory. A nil clock uses the wall
// clock.
func New(logger logging.Logger, cfg Config, pub messages.CommandPublisher, clk clock.Clock) *Follower {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Period <= 0 {
		cfg.Period = defaultPeriod
	}
	return &Follower{
		logger:    logger.Sublogger("follower"),
		clk:       clk,
		cfg:       cfg,
		pub:       pub,
		hoverSent: atomic.NewBool(false),
	}
}

// HoverSent reports whether the hover command for the current no-trajectory stretch went out.
func (f *Follower) HoverSent() bool {
	return f.hoverSent.Load()
}

// HandlePose records the robot position used for hovering and yaw.
func (f *Follower) HandlePose(msg messages.Odometry) error {
	odom, err := messages.ParseOdometry(msg)
	if err != nil {
		return err
	}
	f.pose = odom.Position
	return nil
}

// HandleObstacleState records the robot position from a simulator state vector.
func (f *Follower) HandleObstacleState(msg messages.ObstacleState) error {
	pos, err := messages.ParseObstacleState(msg)
	if err != nil {
		return err
	}
	f.pose = pos
	return nil
}

// HandleGoal records the goal the robot faces.
func (f *Follower) HandleGoal(msg messages.GoalPath) error {
	goal, err := messages.ParseGoal(msg)
	if err != nil {
		return err
	}
	f.goal, f.hasGoal = goal, true
	f.final = false
	return nil
}

// HandleTrajectory applies an add, abort or final action.
func (f *Follower) HandleTrajectory(msg messages.TrajectoryMsg) error {
	switch msg.Action {
	case messages.ActionAdd:
		return f.add(msg)
	case messages.ActionFinal:
		f.final = true
		f.finalPos = f.endPosition()
		f.logger.Infow("final trajectory", "id", msg.ID, "hover_at", f.finalPos)
		return nil
	case messages.ActionAbort:
		f.abort()
		f.logger.Warnw("trajectory aborted", "id", msg.ID)
		return nil
	default:
		f.abort()
		return errors.Errorf("unknown trajectory action %d, aborted", msg.Action)
	}
}

func (f *Follower) add(msg messages.TrajectoryMsg) error {
	if msg.ID < f.lastID {
		return errors.Wrapf(ErrBackwardTrajectory, "got %d after %d", msg.ID, f.lastID)
	}
	traj, err := msg.Trajectory()
	if err != nil {
		return err
	}
	f.lastID = msg.ID
	f.hoverSent.Store(false)
	next := &scheduled{id: msg.ID, start: msg.Start, traj: traj}
	if f.current != nil && msg.Start.After(f.clk.Now()) {
		f.pending = next
		return nil
	}
	f.current, f.pending = next, nil
	return nil
}

func (f *Follower) abort() {
	f.current, f.pending = nil, nil
	f.final = false
}

func (f *Follower) endPosition() r3.Vector {
	switch {
	case f.pending != nil:
		return f.pending.traj.Position(f.pending.traj.TotalDuration())
	case f.current != nil:
		return f.current.traj.Position(f.current.traj.TotalDuration())
	case f.hasGoal:
		return f.goal
	default:
		return f.pose
	}
}

// Step computes the setpoint for time now. The second result is false when nothing needs to be
// published.
func (f *Follower) Step(now time.Time) (messages.Command, bool) {
	if f.pending != nil && !now.Before(f.pending.start) {
		f.current, f.pending = f.pending, nil
	}
	if f.current != nil && f.current.elapsed(now) > f.current.traj.TotalDuration() {
		if f.pending == nil {
			f.logger.Debugw("trajectory completed", "id", f.current.id)
			f.current = nil
		}
	}

	if f.current == nil {
		if f.final {
			return messages.Command{Stamp: now, Position: f.finalPos, Yaw: f.yaw, Hover: true}, true
		}
		if f.hoverSent.Load() {
			return messages.Command{}, false
		}
		f.hoverSent.Store(true)
		return messages.Command{Stamp: now, Position: f.pose, Yaw: f.yaw, Hover: true}, true
	}

	t := math.Max(0, f.current.elapsed(now))
	traj := f.current.traj
	cmd := messages.Command{
		Stamp:        now,
		Position:     traj.Position(t),
		Velocity:     traj.Velocity(t),
		Acceleration: traj.Acceleration(t),
		Jerk:         traj.Jerk(t),
	}
	cmd.Yaw = f.updateYaw(cmd.Velocity)
	return cmd, true
}

// updateYaw moves the heading toward the desired one at a rate limited and low-pass filtered
// turn rate.
func (f *Follower) updateYaw(velocity r3.Vector) float64 {
	desired, ok := f.desiredYaw(velocity)
	if !ok {
		return f.yaw
	}
	dt := f.cfg.Period.Seconds()
	diff := utils.WrapAngle(desired - f.yaw)
	diff = utils.Saturate(diff, dt*f.cfg.MaxYawRate)
	rate := utils.Sign(diff) * f.cfg.MaxYawRate
	alpha := f.cfg.YawFilterAlpha
	f.yawRate = (1-alpha)*rate + alpha*f.yawRate
	f.yaw = utils.WrapAngle(f.yaw + f.yawRate*dt)
	return f.yaw
}

func (f *Follower) desiredYaw(velocity r3.Vector) (float64, bool) {
	if f.cfg.FaceGoal && f.hasGoal {
		d := f.goal.Sub(f.pose)
		if math.Hypot(d.X, d.Y) < minHeadingSpeed {
			return 0, false
		}
		return math.Atan2(d.Y, d.X), true
	}
	if math.Hypot(velocity.X, velocity.Y) < minHeadingSpeed {
		return 0, false
	}
	return math.Atan2(velocity.Y, velocity.X), true
}

// Run publishes setpoints every period and serves inbound messages until ctx is done.
func (f *Follower) Run(ctx context.Context, in Inputs) error {
	ticker := f.clk.Ticker(f.cfg.Period)
	defer ticker.Stop()
	for {
		var err error
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in.Trajectory:
			if !ok {
				in.Trajectory = nil
				continue
			}
			err = f.HandleTrajectory(msg)
		case msg, ok := <-in.Odometry:
			if !ok {
				in.Odometry = nil
				continue
			}
			err = f.HandlePose(msg)
		case msg, ok := <-in.ObstacleState:
			if !ok {
				in.ObstacleState = nil
				continue
			}
			err = f.HandleObstacleState(msg)
		case msg, ok := <-in.Goal:
			if !ok {
				in.Goal = nil
				continue
			}
			err = f.HandleGoal(msg)
		case now := <-ticker.C:
			if cmd, publish := f.Step(now); publish {
				f.pub.PublishCommand(cmd)
			}
		}
		if err != nil {
			f.logger.Warnw("follower input rejected", "err", err)
		}
	}
}
