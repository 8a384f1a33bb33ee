package replan

// PlannerState is the orchestrator's mode.
type PlannerState int

const (
	// StateNoTarget waits for a goal and a first obstacle snapshot.
	StateNoTarget PlannerState = iota
	// StateInitialPlan has no trajectory and plans from the robot pose.
	StateInitialPlan
	// StateTracking follows a trajectory while refining the tree behind the commit target.
	StateTracking
	// StateReplanPending has reached the commit target; the next tick commits a new trajectory.
	StateReplanPending
)

func (s PlannerState) String() string {
	switch s {
	case StateNoTarget:
		return "no_target"
	case StateInitialPlan:
		return "initial_plan"
	case StateTracking:
		return "tracking"
	case StateReplanPending:
		return "replan_pending"
	default:
		return "unknown"
	}
}
