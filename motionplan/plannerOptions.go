package motionplan

import (
	"github.com/pkg/errors"
)

// default values for planning options.
const (
	// Minimum clearance radius for a node to be accepted, in meters.
	defaultSafetyMargin = 0.3

	// Subtracted from the obstacle distance when sizing a node.
	defaultSearchMargin = 0.2

	// Node radii never exceed this, in meters.
	defaultMaxRadius = 1.5

	// Obstacles farther than this from the root are ignored.
	defaultSensingRange = 10.

	// Samples spent by Refine(1.0).
	defaultRefineIterations = 200

	// Two spheres are connected when their centers are closer than this fraction of the sum of
	// their radii.
	connectRatio = 0.95

	// Nodes within this distance of an existing center are not worth adding.
	duplicateTolerance = 1e-6
)

// Options configure the clearance rules of the safe-region planner.
type Options struct {
	SafetyMargin float64 `json:"safety_margin"`
	SearchMargin float64 `json:"search_margin"`
	MaxRadius    float64 `json:"max_radius"`

	// Non-positive means every obstacle is considered regardless of distance.
	SensingRange float64 `json:"sensing_range"`

	RefineIterations int `json:"refine_iterations"`

	// Seed for the sampler. Zero uses a fixed default so runs are reproducible.
	Seed int64 `json:"seed"`
}

// NewDefaultOptions returns the default clearance rules.
func NewDefaultOptions() Options {
	return Options{
		SafetyMargin:     defaultSafetyMargin,
		SearchMargin:     defaultSearchMargin,
		MaxRadius:        defaultMaxRadius,
		SensingRange:     defaultSensingRange,
		RefineIterations: defaultRefineIterations,
		Seed:             1,
	}
}

func (opts *Options) validate() error {
	if opts.SafetyMargin <= 0 {
		return errors.Errorf("safety margin must be positive, got %v", opts.SafetyMargin)
	}
	if opts.SearchMargin < 0 {
		return errors.Errorf("search margin must not be negative, got %v", opts.SearchMargin)
	}
	if opts.MaxRadius-opts.SearchMargin < opts.SafetyMargin {
		return errors.Errorf("max radius %v minus search margin %v is below the safety margin %v, no node could be accepted",
			opts.MaxRadius, opts.SearchMargin, opts.SafetyMargin)
	}
	if opts.RefineIterations <= 0 {
		opts.RefineIterations = defaultRefineIterations
	}
	return nil
}
