package main

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/rhplanner/config"
	"go.viam.com/rhplanner/logging"
	"go.viam.com/rhplanner/messages"
	"go.viam.com/rhplanner/utils"
)

// errGoalReached ends a simulated mission.
var errGoalReached = errors.New("goal reached")

// simulator stands in for the robot and its depth sensor. The robot tracks every command
// exactly and the sensor sees the surface of every configured obstacle box.
type simulator struct {
	logger logging.Logger
	clk    clock.Clock
	bus    *messages.Bus
	sim    config.Simulation
	goal   r3.Vector
	tol    float64
	cloud  []float32

	commandsID string
	commands   <-chan messages.Command

	pose      r3.Vector
	vel       r3.Vector
	acc       r3.Vector
	commanded bool
}

func newSimulator(cfg *config.Config, bus *messages.Bus, clk clock.Clock, logger logging.Logger) (*simulator, error) {
	if clk == nil {
		clk = clock.New()
	}
	points := obstaclePoints(cfg.Simulation)
	if len(points) == 0 {
		// the planner only starts with an obstacle snapshot; one far-away point stands in for an
		// empty world.
		ws := cfg.Planner.Workspace
		points = append(points, r3.Vector{X: ws.Max.X + 1e3, Y: ws.Max.Y + 1e3, Z: ws.Max.Z + 1e3})
	}
	id, commands := bus.Command.Subscribe(messages.DefaultBuffer)
	return &simulator{
		logger:     logger.Sublogger("sim"),
		clk:        clk,
		bus:        bus,
		sim:        cfg.Simulation,
		goal:       cfg.Mission.Goal,
		tol:        cfg.Mission.GoalTolerance,
		cloud:      cloudXYZ(points),
		commandsID: id,
		commands:   commands,
		pose:       cfg.Mission.Start,
	}, nil
}

func period(rate float64) time.Duration {
	return time.Duration(float64(time.Second) / rate)
}

// Run publishes the goal, then odometry and clouds at their rates, until the robot is within the
// goal tolerance, the mission times out or ctx is done.
func (s *simulator) Run(ctx context.Context) error {
	defer s.bus.Command.Unsubscribe(s.commandsID)

	odomTicker := s.clk.Ticker(period(s.sim.OdometryRate))
	defer odomTicker.Stop()
	timeout := s.clk.Timer(time.Duration(s.sim.MaxDuration * float64(time.Second)))
	defer timeout.Stop()

	now := s.clk.Now()
	s.publishOdometry(now)
	s.publishCloud(ctx, now)
	s.bus.Goal.Publish(messages.GoalPath{Stamp: now, Waypoints: []r3.Vector{s.goal}})
	// the cloud never changes, so it is republished off the robot loop.
	cloudWorker := utils.NewTickerWorker(s.clk, period(s.sim.CloudRate), s.publishCloud)
	defer cloudWorker.Stop()
	s.logger.Infow("mission started", "start", s.pose, "goal", s.goal, "obstacle_points", len(s.cloud)/3)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return errors.Errorf("goal not reached within %vs, robot at %v", s.sim.MaxDuration, s.pose)
		case cmd, ok := <-s.commands:
			if !ok {
				s.commands = nil
				continue
			}
			s.track(cmd)
		case now := <-odomTicker.C:
			s.publishOdometry(now)
			if s.commanded && s.pose.Sub(s.goal).Norm() <= s.tol {
				s.logger.Infow("goal reached", "position", s.pose)
				return errGoalReached
			}
		}
	}
}

func (s *simulator) track(cmd messages.Command) {
	s.commanded = true
	s.pose = cmd.Position
	if cmd.Hover {
		s.vel, s.acc = r3.Vector{}, r3.Vector{}
		return
	}
	s.vel, s.acc = cmd.Velocity, cmd.Acceleration
}

func (s *simulator) publishCloud(_ context.Context, now time.Time) {
	s.bus.Cloud.Publish(messages.PointCloud{Stamp: now, Frame: "world", XYZ: s.cloud})
}

func (s *simulator) publishOdometry(now time.Time) {
	s.bus.Odometry.Publish(messages.Odometry{Stamp: now, Position: s.pose, Velocity: s.vel, Acceleration: s.acc})
}

// obstaclePoints samples the surface of every obstacle box on a grid of the configured spacing.
func obstaclePoints(sim config.Simulation) []r3.Vector {
	var points []r3.Vector
	for _, obs := range sim.Obstacles {
		points = append(points, boxSurface(obs.Min, obs.Max, sim.PointSpacing)...)
	}
	return points
}

// cloudXYZ packs points the way PointCloud carries them.
func cloudXYZ(points []r3.Vector) []float32 {
	xyz := make([]float32, 0, 3*len(points))
	for _, p := range points {
		xyz = append(xyz, float32(p.X), float32(p.Y), float32(p.Z))
	}
	return xyz
}

func boxSurface(lo, hi r3.Vector, spacing float64) []r3.Vector {
	steps := func(a, b float64) int {
		return int(math.Ceil((b-a)/spacing-1e-9)) + 1
	}
	at := func(a, b float64, i, n int) float64 {
		if n == 1 {
			return a
		}
		return a + (b-a)*float64(i)/float64(n-1)
	}
	nx, ny, nz := steps(lo.X, hi.X), steps(lo.Y, hi.Y), steps(lo.Z, hi.Z)
	var out []r3.Vector
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				onFace := i == 0 || i == nx-1 || j == 0 || j == ny-1 || k == 0 || k == nz-1
				if !onFace {
					continue
				}
				out = append(out, r3.Vector{X: at(lo.X, hi.X, i, nx), Y: at(lo.Y, hi.Y, j, ny), Z: at(lo.Z, hi.Z, k, nz)})
			}
		}
	}
	return out
}
