package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestWrapAngle(t *testing.T) {
	for _, tc := range []struct {
		name     string
		input    float64
		expected float64
	}{
		{"zero", 0, 0},
		{"pi stays", math.Pi, math.Pi},
		{"minus pi wraps to pi", -math.Pi, math.Pi},
		{"just over pi", math.Pi + 0.1, -math.Pi + 0.1},
		{"full turn", 2 * math.Pi, 0},
		{"negative small", -0.5, -0.5},
		{"many turns", 7*math.Pi + 0.25, -math.Pi + 0.25},
	} {
		t.Run(tc.name, func(t *testing.T) {
			test.That(t, WrapAngle(tc.input), test.ShouldAlmostEqual, tc.expected, 1e-9)
		})
	}
}

func TestClampSaturate(t *testing.T) {
	test.That(t, Clamp(5, 0, 1), test.ShouldEqual, 1.)
	test.That(t, Clamp(-5, 0, 1), test.ShouldEqual, 0.)
	test.That(t, Clamp(0.5, 0, 1), test.ShouldEqual, 0.5)
	test.That(t, Saturate(-3, 0.1), test.ShouldEqual, -0.1)
	test.That(t, Sign(0), test.ShouldEqual, 1.)
	test.That(t, Sign(-2), test.ShouldEqual, -1.)
	test.That(t, IsFinite(1, 2, math.NaN()), test.ShouldBeFalse)
	test.That(t, IsFinite(1, 2), test.ShouldBeTrue)
}
