package replan

import "github.com/pkg/errors"

// Failure kinds of a planning tick. None of them is fatal: the orchestrator degrades to having no
// trajectory and the follower hovers.
var (
	// ErrNotReady is returned while the goal or the obstacle snapshot is missing.
	ErrNotReady = errors.New("waiting for goal and obstacle data")
	// ErrPathNotFound is returned when the tree has no feasible path to the goal.
	ErrPathNotFound = errors.New("no feasible path to goal")
	// ErrTrajectorySetupRejected is returned when the optimizer refuses the corridor.
	ErrTrajectorySetupRejected = errors.New("trajectory optimizer rejected the corridor")
	// ErrTrajectoryDiverged is returned when the optimizer reports an infinite cost.
	ErrTrajectoryDiverged = errors.New("trajectory optimization diverged")
)

// failureKind labels err for metrics.
func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, ErrPathNotFound):
		return "path_not_found"
	case errors.Is(err, ErrTrajectorySetupRejected):
		return "setup_rejected"
	case errors.Is(err, ErrTrajectoryDiverged):
		return "diverged"
	default:
		return "other"
	}
}
