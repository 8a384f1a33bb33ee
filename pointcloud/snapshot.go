package pointcloud

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/kdtree"

	"go.viam.com/rhplanner/spatialmath"
)

// Snapshot is an immutable set of obstacle points indexed by a k-d tree.
type Snapshot struct {
	points []r3.Vector
	tree   *kdtree.Tree
	meta   MetaData
	stamp  time.Time
}

// NewSnapshot indexes a copy of points. An empty input gives an empty snapshot, which means
// "no known obstacles".
func NewSnapshot(points []r3.Vector) *Snapshot {
	snap := &Snapshot{
		points: make([]r3.Vector, len(points)),
		meta:   NewMetaData(),
	}
	copy(snap.points, points)
	if len(points) == 0 {
		return snap
	}

	kdPoints := make(kdtree.Points, 0, len(points))
	for _, p := range points {
		kdPoints = append(kdPoints, kdtree.Point{p.X, p.Y, p.Z})
		snap.meta.Merge(p)
	}
	snap.tree = kdtree.New(kdPoints, false)
	return snap
}

// NewSnapshotFromXYZ builds a snapshot from a flat x,y,z buffer as carried by point cloud
// messages.
func NewSnapshotFromXYZ(buf []float32) (*Snapshot, error) {
	if len(buf)%3 != 0 {
		return nil, errors.Errorf("point buffer length %d is not a multiple of 3", len(buf))
	}
	points := make([]r3.Vector, 0, len(buf)/3)
	for i := 0; i < len(buf); i += 3 {
		p := r3.Vector{X: float64(buf[i]), Y: float64(buf[i+1]), Z: float64(buf[i+2])}
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) ||
			math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) || math.IsInf(p.Z, 0) {
			return nil, errors.Errorf("point %d is not finite", i/3)
		}
		points = append(points, p)
	}
	return NewSnapshot(points), nil
}

// WithStamp returns a shallow copy of the snapshot carrying the given acquisition time.
func (s *Snapshot) WithStamp(stamp time.Time) *Snapshot {
	out := *s
	out.stamp = stamp
	return &out
}

// Stamp returns the acquisition time, zero if unknown.
func (s *Snapshot) Stamp() time.Time {
	return s.stamp
}

// Size returns the number of points in the snapshot.
func (s *Snapshot) Size() int {
	return len(s.points)
}

// MetaData returns the bounds of the snapshot.
func (s *Snapshot) MetaData() MetaData {
	return s.meta
}

// Points returns a copy of the obstacle points.
func (s *Snapshot) Points() []r3.Vector {
	out := make([]r3.Vector, len(s.points))
	copy(out, s.points)
	return out
}

// Nearest returns the obstacle closest to p and its distance. ok is false for an empty
// snapshot.
func (s *Snapshot) Nearest(p r3.Vector) (nearest r3.Vector, dist float64, ok bool) {
	if s.tree == nil {
		return r3.Vector{}, math.Inf(1), false
	}
	c, distSq := s.tree.Nearest(kdtree.Point{p.X, p.Y, p.Z})
	kp := c.(kdtree.Point)
	return r3.Vector{X: kp[0], Y: kp[1], Z: kp[2]}, math.Sqrt(distSq), true
}

// InBox returns every obstacle strictly inside the box.
func (s *Snapshot) InBox(box spatialmath.Box) []r3.Vector {
	if s.tree == nil {
		return nil
	}
	var out []r3.Vector
	bounds := &kdtree.Bounding{
		Min: kdtree.Point{box.Min.X, box.Min.Y, box.Min.Z},
		Max: kdtree.Point{box.Max.X, box.Max.Y, box.Max.Z},
	}
	s.tree.DoBounded(bounds, func(c kdtree.Comparable, _ *kdtree.Bounding, _ int) bool {
		kp := c.(kdtree.Point)
		p := r3.Vector{X: kp[0], Y: kp[1], Z: kp[2]}
		if box.StrictlyContains(p) {
			out = append(out, p)
		}
		return false
	})
	return out
}
