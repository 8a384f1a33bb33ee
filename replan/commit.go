package replan

import (
	"github.com/golang/geo/r3"

	"go.viam.com/rhplanner/trajectory"
	"go.viam.com/rhplanner/utils"
)

// ComputeCommitTarget returns the trajectory position at horizon seconds together with the
// horizon actually used. Horizons past the end clamp to the final position.
func ComputeCommitTarget(traj *trajectory.Trajectory, horizon float64) (r3.Vector, float64) {
	h := utils.Clamp(horizon, 0, traj.TotalDuration())
	return traj.Position(h), h
}

// ArrivalTrigger turns "robot is near the commit target" into a single event. Once it fires it
// stays quiet until armed again, no matter how long the robot stays near the target.
type ArrivalTrigger struct {
	armed bool
	fired bool
}

// Arm enables the trigger for a new target and clears any unconsumed event.
func (a *ArrivalTrigger) Arm() {
	a.armed = true
	a.fired = false
}

// Disarm disables the trigger.
func (a *ArrivalTrigger) Disarm() {
	a.armed = false
	a.fired = false
}

// Observe checks pos against target and reports whether an event is waiting to be consumed.
func (a *ArrivalTrigger) Observe(pos, target r3.Vector, threshold float64) bool {
	if a.armed && pos.Distance(target) <= threshold {
		a.armed = false
		a.fired = true
	}
	return a.fired
}

// Consume returns the pending event, if any, and clears it.
func (a *ArrivalTrigger) Consume() bool {
	fired := a.fired
	a.fired = false
	return fired
}
