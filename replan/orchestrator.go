// Package replan drives the receding-horizon planning loop: it grows a sampling tree toward the
// goal, sweeps the best path into a corridor, fits a trajectory through it and commits to a point
// one horizon ahead on that trajectory while planning continues beyond it.
package replan

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/rhplanner/corridor"
	"go.viam.com/rhplanner/logging"
	"go.viam.com/rhplanner/messages"
	"go.viam.com/rhplanner/motionplan"
	"go.viam.com/rhplanner/pointcloud"
	"go.viam.com/rhplanner/spatialmath"
	"go.viam.com/rhplanner/trajectory"
	"go.viam.com/rhplanner/trajopt"
)

// Inputs are the inbound streams consumed by Run. Nil channels are never read.
type Inputs struct {
	Odometry      <-chan messages.Odometry
	Goal          <-chan messages.GoalPath
	Cloud         <-chan messages.PointCloud
	ObstacleState <-chan messages.ObstacleState
}

// InputsFromBus subscribes to the inbound topics of bus. The returned function unsubscribes.
func InputsFromBus(bus *messages.Bus) (Inputs, func()) {
	odomID, odom := bus.Odometry.Subscribe(messages.DefaultBuffer)
	goalID, goal := bus.Goal.Subscribe(messages.DefaultBuffer)
	cloudID, cloud := bus.Cloud.Subscribe(messages.DefaultBuffer)
	stateID, state := bus.ObstacleState.Subscribe(messages.DefaultBuffer)
	return Inputs{Odometry: odom, Goal: goal, Cloud: cloud, ObstacleState: state}, func() {
		bus.Odometry.Unsubscribe(odomID)
		bus.Goal.Unsubscribe(goalID)
		bus.Cloud.Unsubscribe(cloudID)
		bus.ObstacleState.Unsubscribe(stateID)
	}
}

// Orchestrator owns all planning state. It is driven either by Run, which serializes inbound
// messages and ticks on one goroutine, or by direct calls from a single goroutine.
type Orchestrator struct {
	logger    logging.Logger
	clk       clock.Clock
	cfg       Config
	planner   motionplan.TreePlanner
	builder   *corridor.Builder
	optimizer trajopt.Optimizer
	pub       messages.Publisher
	metrics   *Metrics
	runID     string

	state     PlannerState
	pose      messages.Odometry
	goal      r3.Vector
	hasGoal   bool
	obstacles *pointcloud.Snapshot

	path          motionplan.Path
	corridor      corridor.Corridor
	traj          *trajectory.Trajectory
	trajStart     time.Time
	trajID        int64
	published     bool
	commitTarget  r3.Vector
	commitHorizon float64
	arrival       ArrivalTrigger
	navComplete   bool
}

// NewOrchestrator returns an orchestrator in StateNoTarget. A nil clock uses the wall clock and
// nil metrics are created unregistered.
func NewOrchestrator(
	logger logging.Logger,
	cfg Config,
	planner motionplan.TreePlanner,
	optimizer trajopt.Optimizer,
	pub messages.Publisher,
	clk clock.Clock,
	metrics *Metrics,
) *Orchestrator {
	if clk == nil {
		clk = clock.New()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.Cover.Workspace == (spatialmath.Box{}) {
		cfg.Cover.Workspace = cfg.Workspace
	}
	logger = logger.Sublogger("replan")
	return &Orchestrator{
		logger:    logger,
		clk:       clk,
		cfg:       cfg,
		planner:   planner,
		builder:   corridor.NewBuilder(logger, corridor.SeparatingSolver{Margin: cfg.SolverMargin}),
		optimizer: optimizer,
		pub:       pub,
		metrics:   metrics,
		runID:     uuid.NewString(),
		state:     StateNoTarget,
	}
}

// State returns the current planner state.
func (o *Orchestrator) State() PlannerState {
	return o.state
}

// RunID identifies this orchestrator in logs and telemetry.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Trajectory returns the trajectory being followed and its start time.
func (o *Orchestrator) Trajectory() (*trajectory.Trajectory, time.Time, bool) {
	return o.traj, o.trajStart, o.traj != nil
}

// CommitTarget returns the current commit target. It is only meaningful while a trajectory exists.
func (o *Orchestrator) CommitTarget() r3.Vector {
	return o.commitTarget
}

// Path returns the path the current trajectory was built from.
func (o *Orchestrator) Path() motionplan.Path {
	return o.path
}

// Corridor returns the pruned corridor of the current trajectory.
func (o *Orchestrator) Corridor() corridor.Corridor {
	return o.corridor
}

// NavigationComplete reports whether the tree root reached the goal region.
func (o *Orchestrator) NavigationComplete() bool {
	return o.navComplete
}

// HandlePose records the robot state and checks arrival at the commit target.
func (o *Orchestrator) HandlePose(msg messages.Odometry) error {
	odom, err := messages.ParseOdometry(msg)
	if err != nil {
		return err
	}
	o.pose = odom
	o.observeArrival()
	return nil
}

// HandleObstacleState updates the robot position from a simulator state vector.
func (o *Orchestrator) HandleObstacleState(msg messages.ObstacleState) error {
	pos, err := messages.ParseObstacleState(msg)
	if err != nil {
		return err
	}
	o.pose.Position = pos
	o.observeArrival()
	return nil
}

func (o *Orchestrator) observeArrival() {
	if o.traj == nil {
		return
	}
	if o.arrival.Observe(o.pose.Position, o.commitTarget, o.cfg.ArrivalThreshold) && o.state == StateTracking {
		o.state = StateReplanPending
	}
}

// HandleGoal sets a new goal. A trajectory toward the previous goal is dropped and, if the
// follower had it, aborted so the robot hovers until the next plan.
func (o *Orchestrator) HandleGoal(msg messages.GoalPath) error {
	goal, err := messages.ParseGoal(msg)
	if err != nil {
		return err
	}
	o.goal = goal
	o.hasGoal = true
	o.clearTrajectory()
	o.abortPublished(o.clk.Now())
	o.navComplete = false
	o.state = StateNoTarget
	if o.obstacles != nil {
		o.state = StateInitialPlan
	}
	o.logger.Infow("goal received", "goal", goal, "run", o.runID)
	return nil
}

// HandlePointCloud replaces the obstacle snapshot.
func (o *Orchestrator) HandlePointCloud(msg messages.PointCloud) error {
	snap, err := messages.ParsePointCloud(msg)
	if err != nil {
		return err
	}
	o.SetObstacles(snap)
	return nil
}

// SetObstacles replaces the obstacle snapshot with an already parsed one.
func (o *Orchestrator) SetObstacles(snap *pointcloud.Snapshot) {
	o.obstacles = snap
	o.planner.SetObstacles(snap)
	if o.state == StateNoTarget && o.hasGoal {
		o.state = StateInitialPlan
	}
}

// Run serves inbound messages and planning ticks until ctx is done.
func (o *Orchestrator) Run(ctx context.Context, in Inputs) error {
	ticker := o.clk.Ticker(o.cfg.PlanPeriod)
	defer ticker.Stop()
	for {
		var err error
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in.Odometry:
			if !ok {
				in.Odometry = nil
				continue
			}
			err = o.HandlePose(msg)
		case msg, ok := <-in.ObstacleState:
			if !ok {
				in.ObstacleState = nil
				continue
			}
			err = o.HandleObstacleState(msg)
		case msg, ok := <-in.Goal:
			if !ok {
				in.Goal = nil
				continue
			}
			err = o.HandleGoal(msg)
		case msg, ok := <-in.Cloud:
			if !ok {
				in.Cloud = nil
				continue
			}
			err = o.HandlePointCloud(msg)
		case <-ticker.C:
			err = o.Tick(ctx)
			if errors.Is(err, ErrNotReady) {
				o.logger.CDebugw(ctx, "planning tick skipped", "err", err)
				err = nil
			}
		}
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, messages.ErrPerceptionDropped):
			o.logger.CDebugw(ctx, "inbound message dropped", "err", err)
		default:
			o.logger.Warnw("planning degraded", "err", err, "state", o.state.String())
		}
	}
}

// Tick runs one planning cycle. The returned error describes a degraded outcome; the orchestrator
// stays usable after any of them.
func (o *Orchestrator) Tick(ctx context.Context) error {
	wallStart := time.Now()
	stateAtStart := o.state
	defer func() {
		o.metrics.observeTick(stateAtStart, time.Since(wallStart))
	}()

	if !o.hasGoal || o.obstacles == nil {
		return ErrNotReady
	}
	if o.state == StateNoTarget {
		o.state = StateInitialPlan
	}

	now := o.clk.Now()
	var err error
	if o.traj == nil {
		err = o.planInitial(ctx, now)
	} else {
		err = o.planIncremental(ctx, now)
	}
	if err != nil {
		o.metrics.observeFailure(err)
	}
	o.publishViews(now)
	return err
}

func (o *Orchestrator) planInitial(ctx context.Context, now time.Time) error {
	o.planner.Reset()
	err := o.planner.SetEndpoints(motionplan.Endpoints{
		Start:          o.pose.Position,
		Goal:           o.goal,
		Bounds:         o.cfg.Workspace,
		LocalRange:     o.cfg.LocalRange,
		MaxSamples:     o.cfg.MaxSamples,
		SampleFraction: o.cfg.SampleFraction,
		GoalFraction:   o.cfg.GoalFraction,
	})
	if err != nil {
		return o.fail(now, errors.Wrap(ErrPathNotFound, err.Error()))
	}
	if err := o.planner.Expand(ctx, motionplan.Budget{Duration: o.cfg.PathFindLimit, UntilPathFound: true}); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return o.fail(now, errors.Wrap(ErrPathNotFound, err.Error()))
	}
	path, ok := o.planner.BestPath()
	if !ok {
		return o.fail(now, ErrPathNotFound)
	}

	initial := trajopt.State{Pos: o.pose.Position, Vel: o.pose.Velocity, Acc: o.pose.Acceleration}
	corr, traj, err := o.generate(ctx, path, initial)
	if err != nil {
		return o.fail(now, err)
	}
	o.install(now, now, path, corr, traj)
	o.logger.CDebugw(ctx, "initial trajectory committed",
		"waypoints", path.Len(), "polytopes", len(corr), "duration", traj.TotalDuration())
	return nil
}

func (o *Orchestrator) planIncremental(ctx context.Context, now time.Time) error {
	if o.navComplete || o.planner.GoalRegionFullyExplored() {
		if !o.navComplete {
			o.navComplete = true
			o.logger.Infow("navigation complete, following final trajectory", "goal", o.goal, "run", o.runID)
			o.pub.PublishTrajectory(messages.TrajectoryMsg{ID: o.trajID, Action: messages.ActionFinal, Start: now})
		}
		o.arrival.Consume()
		o.state = StateTracking
		return nil
	}

	if o.arrival.Consume() {
		o.metrics.replans.Inc()
		if !o.planner.PathExists() {
			return o.fail(now, errors.Wrap(ErrPathNotFound, "reached commit target"))
		}
		path, _ := o.planner.BestPath()
		start := o.commitTime()
		corr, traj, err := o.generate(ctx, path, o.stateAt(o.commitHorizon))
		if err != nil {
			return o.fail(now, err)
		}
		o.install(now, start, path, corr, traj)
		o.logger.CDebugw(ctx, "replanned at commit target",
			"commit_target", o.commitTarget, "duration", traj.TotalDuration())
		return nil
	}

	if err := o.planner.Refine(ctx, o.cfg.RefinePortion); err != nil {
		return err
	}
	if err := o.planner.Evaluate(ctx, o.cfg.GoalFraction); err != nil {
		return err
	}
	path, ok := o.planner.BestPath()
	if !ok {
		o.logger.CDebugw(ctx, "no path behind commit target, continuing on current trajectory")
		return nil
	}
	if path.AlmostEqual(o.path, pathChangeTolerance) {
		return nil
	}

	// The follow-on trajectory starts where the robot will be at the commit time, so it joins
	// the current one without a jump.
	corr, traj, err := o.generate(ctx, path, o.stateAt(o.commitHorizon))
	if err != nil {
		return o.fail(now, err)
	}
	o.path = path
	o.corridor = corr
	o.publishTrajectory(now, o.commitTime(), path, traj)
	return nil
}

// generate sweeps path into a pruned corridor and fits a trajectory from initial to the end of
// the path through it.
func (o *Orchestrator) generate(
	ctx context.Context,
	path motionplan.Path,
	initial trajopt.State,
) (corridor.Corridor, *trajectory.Trajectory, error) {
	cover, err := o.builder.ConvexCover(ctx, path.Waypoints, o.obstacles, o.cfg.Cover)
	if err != nil {
		if errors.Is(err, corridor.ErrCorridorGapUnresolved) {
			return nil, nil, errors.Wrap(ErrPathNotFound, err.Error())
		}
		return nil, nil, err
	}
	pruned := corridor.ShortCut(cover, o.cfg.ShortCutEpsilon)

	final := trajopt.State{Pos: path.Waypoints[len(path.Waypoints)-1]}
	if !o.optimizer.Setup(o.cfg.TimeWeight, initial, final, pruned.Polytopes(), o.cfg.Trajectory) {
		return nil, nil, errors.Wrapf(ErrTrajectorySetupRejected, "%d polytopes", len(pruned))
	}
	traj := &trajectory.Trajectory{}
	cost := o.optimizer.Optimize(traj, o.cfg.RelCostTol)
	if math.IsInf(cost, 0) || math.IsNaN(cost) {
		return nil, nil, ErrTrajectoryDiverged
	}
	o.logger.CDebugw(ctx, "trajectory generated",
		"swept", len(cover), "pruned", len(pruned), "cost", cost, "pieces", traj.SegmentCount())
	return pruned, traj, nil
}

// install makes traj the trajectory being followed, commits one horizon ahead and publishes it.
func (o *Orchestrator) install(
	now, start time.Time,
	path motionplan.Path,
	corr corridor.Corridor,
	traj *trajectory.Trajectory,
) {
	o.traj = traj
	o.trajStart = start
	o.path = path
	o.corridor = corr
	o.commitTarget, o.commitHorizon = ComputeCommitTarget(traj, o.cfg.CommitHorizon)
	if err := o.planner.Reroot(o.commitTarget); err != nil {
		o.logger.Warnw("failed to re-root tree at commit target", "target", o.commitTarget, "err", err)
	}
	o.arrival.Arm()
	o.state = StateTracking
	o.publishTrajectory(now, start, path, traj)
}

func (o *Orchestrator) publishTrajectory(now, start time.Time, path motionplan.Path, traj *trajectory.Trajectory) {
	o.trajID++
	o.pub.PublishTrajectory(messages.NewTrajectoryMsg(o.trajID, start, traj))
	o.pub.PublishPath(messages.PathMsg{Stamp: now, Waypoints: path.Waypoints})
	o.published = true
	o.metrics.trajectories.Inc()
}

// fail drops the trajectory, tells the follower to hover if it was following one, and returns err.
func (o *Orchestrator) fail(now time.Time, err error) error {
	o.clearTrajectory()
	o.state = StateInitialPlan
	o.abortPublished(now)
	return err
}

func (o *Orchestrator) abortPublished(now time.Time) {
	if !o.published {
		return
	}
	o.trajID++
	o.pub.PublishTrajectory(messages.TrajectoryMsg{ID: o.trajID, Action: messages.ActionAbort, Start: now})
	o.published = false
}

func (o *Orchestrator) clearTrajectory() {
	o.traj = nil
	o.corridor = nil
	o.path = motionplan.Path{}
	o.arrival.Disarm()
}

func (o *Orchestrator) commitTime() time.Time {
	return o.trajStart.Add(time.Duration(o.commitHorizon * float64(time.Second)))
}

func (o *Orchestrator) stateAt(t float64) trajopt.State {
	return trajopt.State{
		Pos: o.traj.Position(t),
		Vel: o.traj.Velocity(t),
		Acc: o.traj.Acceleration(t),
	}
}

func (o *Orchestrator) publishViews(now time.Time) {
	nodes := o.planner.Tree()
	position := make(map[int]int, len(nodes))
	for i, n := range nodes {
		position[n.Index] = i
	}
	tree := messages.TreeView{Stamp: now, Nodes: make([]messages.TreeNodeView, len(nodes))}
	for i, n := range nodes {
		parent := -1
		if p, ok := position[n.Parent]; ok && n.Parent >= 0 {
			parent = p
		}
		tree.Nodes[i] = messages.TreeNodeView{Center: n.Center, Radius: n.Radius, Parent: parent}
	}
	o.pub.PublishTree(tree)

	view := messages.CorridorView{Stamp: now, Regions: make([]messages.CorridorRegionView, len(o.corridor))}
	for i, r := range o.corridor {
		view.Regions[i] = messages.CorridorRegionView{HalfSpaces: r.Polytope.HalfSpaces(), Connector: r.Connector}
	}
	o.pub.PublishCorridor(view)

	trajView := messages.TrajectoryView{Stamp: now, ID: o.trajID}
	if o.traj != nil {
		trajView.Samples = o.traj.Sample(o.cfg.ViewSampleStep)
	}
	o.pub.PublishTrajectoryView(trajView)
}
