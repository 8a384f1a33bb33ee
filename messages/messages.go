// Package messages defines the transport-agnostic message boundary of the planner: inbound
// perception and goal messages, outbound commands, trajectories and visualization views.
package messages

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/rhplanner/spatialmath"
	"go.viam.com/rhplanner/trajectory"
)

// Odometry is the robot state estimate.
type Odometry struct {
	Stamp        time.Time `json:"stamp"`
	Position     r3.Vector `json:"position"`
	Velocity     r3.Vector `json:"velocity"`
	Acceleration r3.Vector `json:"acceleration"`
}

// GoalPath carries goal waypoints. Only the first waypoint is used.
type GoalPath struct {
	Stamp     time.Time   `json:"stamp"`
	Waypoints []r3.Vector `json:"waypoints"`
}

// PointCloud is a raw obstacle cloud as a flat x,y,z buffer already in the world frame.
type PointCloud struct {
	Stamp time.Time `json:"stamp"`
	Frame string    `json:"frame"`
	XYZ   []float32 `json:"xyz"`
}

// ObstacleState is the simulator's direct state vector. The first three entries are the robot
// position.
type ObstacleState struct {
	Data []float32 `json:"data"`
}

// Action tells the follower what to do with a TrajectoryMsg.
type Action uint8

// Trajectory actions.
const (
	ActionAdd Action = iota
	ActionAbort
	ActionFinal
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionAbort:
		return "abort"
	case ActionFinal:
		return "final"
	default:
		return "unknown"
	}
}

// TrajectoryMsg is a trajectory on the wire. Coefficients are row-major 3×6 blocks, one per piece.
type TrajectoryMsg struct {
	ID           int64     `json:"id"`
	Action       Action    `json:"action"`
	Start        time.Time `json:"start"`
	Order        int       `json:"order"`
	Durations    []float64 `json:"durations"`
	Coefficients []float64 `json:"coefficients"`
}

// NewTrajectoryMsg packs traj into an add message.
func NewTrajectoryMsg(id int64, start time.Time, traj *trajectory.Trajectory) TrajectoryMsg {
	return TrajectoryMsg{
		ID:           id,
		Action:       ActionAdd,
		Start:        start,
		Order:        trajectory.Order,
		Durations:    traj.Durations(),
		Coefficients: traj.FlatCoefficients(),
	}
}

// Trajectory unpacks the message.
func (m TrajectoryMsg) Trajectory() (*trajectory.Trajectory, error) {
	if m.Order != trajectory.Order {
		return nil, errors.Errorf("unsupported polynomial order %d", m.Order)
	}
	return trajectory.FromFlat(m.Durations, m.Coefficients)
}

// Duration is the total duration of the carried trajectory.
func (m TrajectoryMsg) Duration() time.Duration {
	total := 0.
	for _, d := range m.Durations {
		total += d
	}
	return time.Duration(total * float64(time.Second))
}

// Command is one setpoint for the low-level controller.
type Command struct {
	Stamp        time.Time `json:"stamp"`
	Position     r3.Vector `json:"position"`
	Velocity     r3.Vector `json:"velocity"`
	Acceleration r3.Vector `json:"acceleration"`
	Jerk         r3.Vector `json:"jerk"`
	Yaw          float64   `json:"yaw"`
	Hover        bool      `json:"hover"`
}

// PathMsg is the committed waypoint path.
type PathMsg struct {
	Stamp     time.Time   `json:"stamp"`
	Waypoints []r3.Vector `json:"waypoints"`
}

// TreeNodeView is one sphere of the sampling tree. Parent is -1 for the root.
type TreeNodeView struct {
	Center r3.Vector `json:"center"`
	Radius float64   `json:"radius"`
	Parent int       `json:"parent"`
}

// TreeView is a snapshot of the sampling tree.
type TreeView struct {
	Stamp time.Time      `json:"stamp"`
	Nodes []TreeNodeView `json:"nodes"`
}

// CorridorRegionView is one corridor polytope.
type CorridorRegionView struct {
	HalfSpaces []spatialmath.HalfSpace `json:"half_spaces"`
	Connector  bool                    `json:"connector"`
}

// CorridorView is a snapshot of the pruned corridor.
type CorridorView struct {
	Stamp   time.Time            `json:"stamp"`
	Regions []CorridorRegionView `json:"regions"`
}

// TrajectoryView is the current trajectory sampled for display.
type TrajectoryView struct {
	Stamp   time.Time   `json:"stamp"`
	ID      int64       `json:"id"`
	Samples []r3.Vector `json:"samples"`
}
