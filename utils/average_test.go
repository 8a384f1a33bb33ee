package utils

import (
	"testing"

	"go.viam.com/test"
)

func TestRollingAverage(t *testing.T) {
	ra := NewRollingAverage(3)
	test.That(t, ra.NumSamples(), test.ShouldEqual, 3)
	test.That(t, ra.Average(), test.ShouldEqual, 0.)

	ra.Add(2)
	test.That(t, ra.Average(), test.ShouldEqual, 2.)
	ra.Add(4)
	test.That(t, ra.Average(), test.ShouldEqual, 3.)
	ra.Add(6)
	ra.Add(8)
	test.That(t, ra.Average(), test.ShouldEqual, 6.)

	test.That(t, NewRollingAverage(0).NumSamples(), test.ShouldEqual, 1)
}
