package motionplan

import "github.com/pkg/errors"

var (
	// errNotSeeded is returned when the tree is used before SetEndpoints.
	errNotSeeded = errors.New("planner has no root, call SetEndpoints first")

	// errStartInCollision is returned when the start has no usable clearance.
	errStartInCollision = errors.New("start position has less clearance than the safety margin")

	errPlannerFailed = errors.New("motion planner failed to find path")
)

// NewPlannerFailedError returns an error which indicates that the planner could not reach the
// goal within its budget.
func NewPlannerFailedError(iterations, nodes int) error {
	return errors.Wrapf(errPlannerFailed, "%d iterations, %d nodes", iterations, nodes)
}

// IsPlannerFailed reports whether err was caused by an expansion that ended without a path.
func IsPlannerFailed(err error) bool {
	return errors.Is(err, errPlannerFailed)
}

// IsStartInCollision reports whether err was caused by a start without clearance.
func IsStartInCollision(err error) bool {
	return errors.Is(err, errStartInCollision)
}
