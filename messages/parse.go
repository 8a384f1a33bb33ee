package messages

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/rhplanner/pointcloud"
	"go.viam.com/rhplanner/utils"
)

// ErrPerceptionDropped marks an inbound message that was discarded. The previous valid state
// stays in effect.
var ErrPerceptionDropped = errors.New("perception message dropped")

func finite(v r3.Vector) bool {
	return utils.IsFinite(v.X, v.Y, v.Z)
}

// ParseGoal returns the goal carried by msg. Empty paths and a negative altitude on the first
// waypoint are rejected.
func ParseGoal(msg GoalPath) (r3.Vector, error) {
	if len(msg.Waypoints) == 0 {
		return r3.Vector{}, errors.Wrap(ErrPerceptionDropped, "empty waypoint list")
	}
	goal := msg.Waypoints[0]
	if !finite(goal) {
		return r3.Vector{}, errors.Wrap(ErrPerceptionDropped, "non-finite goal")
	}
	if goal.Z < 0 {
		return r3.Vector{}, errors.Wrapf(ErrPerceptionDropped, "negative goal altitude %v", goal.Z)
	}
	return goal, nil
}

// ParseOdometry validates msg.
func ParseOdometry(msg Odometry) (Odometry, error) {
	if !finite(msg.Position) || !finite(msg.Velocity) || !finite(msg.Acceleration) {
		return Odometry{}, errors.Wrap(ErrPerceptionDropped, "non-finite odometry")
	}
	return msg, nil
}

// ParsePointCloud turns msg into an obstacle snapshot.
func ParsePointCloud(msg PointCloud) (*pointcloud.Snapshot, error) {
	if len(msg.XYZ) == 0 {
		return nil, errors.Wrap(ErrPerceptionDropped, "empty point cloud")
	}
	snap, err := pointcloud.NewSnapshotFromXYZ(msg.XYZ)
	if err != nil {
		return nil, errors.Wrap(ErrPerceptionDropped, err.Error())
	}
	if snap.Size() == 0 {
		return nil, errors.Wrap(ErrPerceptionDropped, "empty point cloud")
	}
	return snap.WithStamp(msg.Stamp), nil
}

// ParseObstacleState returns the robot position carried by a simulator state vector.
func ParseObstacleState(msg ObstacleState) (r3.Vector, error) {
	if len(msg.Data) < 3 {
		return r3.Vector{}, errors.Wrapf(ErrPerceptionDropped, "state vector has %d entries", len(msg.Data))
	}
	pos := r3.Vector{X: float64(msg.Data[0]), Y: float64(msg.Data[1]), Z: float64(msg.Data[2])}
	if !finite(pos) {
		return r3.Vector{}, errors.Wrap(ErrPerceptionDropped, "non-finite state vector")
	}
	return pos, nil
}
