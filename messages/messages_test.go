package messages

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/rhplanner/logging"
	"go.viam.com/rhplanner/trajectory"
)

func TestParseGoal(t *testing.T) {
	for _, tc := range []struct {
		name    string
		msg     GoalPath
		want    r3.Vector
		dropped bool
	}{
		{"first waypoint wins", GoalPath{Waypoints: []r3.Vector{{X: 1, Y: 2, Z: 3}, {X: 9}}}, r3.Vector{X: 1, Y: 2, Z: 3}, false},
		{"ground level", GoalPath{Waypoints: []r3.Vector{{X: 4}}}, r3.Vector{X: 4}, false},
		{"empty", GoalPath{}, r3.Vector{}, true},
		{"negative altitude", GoalPath{Waypoints: []r3.Vector{{X: 1, Z: -0.5}}}, r3.Vector{}, true},
		{"nan", GoalPath{Waypoints: []r3.Vector{{X: math.NaN()}}}, r3.Vector{}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			goal, err := ParseGoal(tc.msg)
			if tc.dropped {
				test.That(t, errors.Is(err, ErrPerceptionDropped), test.ShouldBeTrue)
				return
			}
			test.That(t, err, test.ShouldBeNil)
			test.That(t, goal, test.ShouldResemble, tc.want)
		})
	}
}

func TestParsePointCloud(t *testing.T) {
	stamp := time.Unix(100, 0)
	snap, err := ParsePointCloud(PointCloud{Stamp: stamp, XYZ: []float32{1, 2, 3, 4, 5, 6}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, snap.Size(), test.ShouldEqual, 2)
	test.That(t, snap.Stamp(), test.ShouldEqual, stamp)

	for _, buf := range [][]float32{nil, {1, 2}, {1, 2, float32(math.Inf(1))}} {
		_, err := ParsePointCloud(PointCloud{XYZ: buf})
		test.That(t, errors.Is(err, ErrPerceptionDropped), test.ShouldBeTrue)
	}
}

func TestParseOdometryAndState(t *testing.T) {
	odom := Odometry{Position: r3.Vector{X: 1}, Velocity: r3.Vector{Y: 2}}
	got, err := ParseOdometry(odom)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, odom)

	_, err = ParseOdometry(Odometry{Velocity: r3.Vector{Z: math.Inf(-1)}})
	test.That(t, errors.Is(err, ErrPerceptionDropped), test.ShouldBeTrue)

	pos, err := ParseObstacleState(ObstacleState{Data: []float32{1, 2, 3, 7, 7}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})

	_, err = ParseObstacleState(ObstacleState{Data: []float32{1, 2}})
	test.That(t, errors.Is(err, ErrPerceptionDropped), test.ShouldBeTrue)
}

func TestTrajectoryMsg(t *testing.T) {
	piece := trajectory.NewQuinticHermite(r3.Vector{}, r3.Vector{}, r3.Vector{}, r3.Vector{X: 2}, r3.Vector{}, r3.Vector{}, 2)
	traj, err := trajectory.New([]trajectory.Piece{piece, piece})
	test.That(t, err, test.ShouldBeNil)

	msg := NewTrajectoryMsg(7, time.Unix(5, 0), traj)
	test.That(t, msg.Action, test.ShouldEqual, ActionAdd)
	test.That(t, msg.Duration(), test.ShouldEqual, 4*time.Second)
	test.That(t, len(msg.Coefficients), test.ShouldEqual, 2*3*trajectory.CoeffsPerAxis)

	back, err := msg.Trajectory()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Position(1).Sub(traj.Position(1)).Norm(), test.ShouldBeLessThan, 1e-12)

	msg.Order = 7
	_, err = msg.Trajectory()
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTopicDropsOldest(t *testing.T) {
	topic := NewTopic[int]()
	id, ch := topic.Subscribe(2)
	for i := 1; i <= 4; i++ {
		topic.Publish(i)
	}
	test.That(t, <-ch, test.ShouldEqual, 3)
	test.That(t, <-ch, test.ShouldEqual, 4)
	test.That(t, topic.Dropped(), test.ShouldEqual, 2)

	last, ok := topic.Last()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, last, test.ShouldEqual, 4)

	topic.Unsubscribe(id)
	_, open := <-ch
	test.That(t, open, test.ShouldBeFalse)
	topic.Publish(5)
}

func TestJSONLinesSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLinesSink(&buf, logging.NewTestLogger(t))
	test.That(t, sink.Write("path", PathMsg{Waypoints: []r3.Vector{{X: 1}}}), test.ShouldBeNil)
	test.That(t, sink.Write("command", Command{Hover: true}), test.ShouldBeNil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	test.That(t, len(lines), test.ShouldEqual, 2)
	var rec struct {
		Kind string          `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	test.That(t, json.Unmarshal([]byte(lines[1]), &rec), test.ShouldBeNil)
	test.That(t, rec.Kind, test.ShouldEqual, "command")
	var cmd Command
	test.That(t, json.Unmarshal(rec.Data, &cmd), test.ShouldBeNil)
	test.That(t, cmd.Hover, test.ShouldBeTrue)
}
