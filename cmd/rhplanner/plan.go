package main

import (
	"context"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/rhplanner/config"
	"go.viam.com/rhplanner/logging"
	"go.viam.com/rhplanner/messages"
	"go.viam.com/rhplanner/pointcloud"
)

// planSummary is what the plan command prints.
type planSummary struct {
	RunID     string                        `json:"run_id"`
	Path      []r3.Vector                   `json:"path"`
	PathCost  float64                       `json:"path_cost"`
	Corridor  []messages.CorridorRegionView `json:"corridor"`
	Pieces    int                           `json:"pieces"`
	Duration  float64                       `json:"duration"`
	Durations []float64                     `json:"durations"`
	Samples   []r3.Vector                   `json:"samples"`
}

// planOnce runs a single planning tick against the full simulated obstacle cloud.
func planOnce(ctx context.Context, cfg *config.Config, logger logging.Logger) (*planSummary, error) {
	p, err := newPipeline(cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	defer p.bus.Close()

	orch := p.orchestrator
	if err := orch.HandlePose(messages.Odometry{Stamp: time.Now(), Position: cfg.Mission.Start}); err != nil {
		return nil, err
	}
	if err := orch.HandleGoal(messages.GoalPath{Stamp: time.Now(), Waypoints: []r3.Vector{cfg.Mission.Goal}}); err != nil {
		return nil, err
	}
	orch.SetObstacles(pointcloud.NewSnapshot(obstaclePoints(cfg.Simulation)))
	if err := orch.Tick(ctx); err != nil {
		return nil, errors.Wrap(err, "planning failed")
	}

	traj, _, ok := orch.Trajectory()
	if !ok {
		return nil, errors.New("planning produced no trajectory")
	}
	path := orch.Path()
	corr := orch.Corridor()
	summary := &planSummary{
		RunID:     orch.RunID(),
		Path:      path.Waypoints,
		PathCost:  path.Cost,
		Corridor:  make([]messages.CorridorRegionView, len(corr)),
		Pieces:    traj.SegmentCount(),
		Duration:  traj.TotalDuration(),
		Durations: traj.Durations(),
		Samples:   traj.Sample(cfg.Planner.ViewSampleStep),
	}
	for i, r := range corr {
		summary.Corridor[i] = messages.CorridorRegionView{HalfSpaces: r.Polytope.HalfSpaces(), Connector: r.Connector}
	}
	return summary, nil
}
