package utils

import (
	"math"
)

// Clamp limits value to the closed interval [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// Saturate limits value to [-limit, limit]. limit must be non-negative.
func Saturate(value, limit float64) float64 {
	return Clamp(value, -limit, limit)
}

// WrapAngle maps an angle in radians onto (-pi, pi].
func WrapAngle(angle float64) float64 {
	wrapped := math.Mod(angle+math.Pi, 2*math.Pi)
	if wrapped <= 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped - math.Pi
}

// Sign returns -1 for negative inputs and 1 otherwise.
func Sign(value float64) float64 {
	if value < 0 {
		return -1
	}
	return 1
}

// Square returns n * n.
func Square(n float64) float64 {
	return n * n
}

// IsFinite reports whether every value is neither NaN nor infinite.
func IsFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
