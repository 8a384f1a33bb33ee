package utils

// RollingAverage is the mean of the last NumSamples values added. Slots not yet filled do not count.
type RollingAverage struct {
	data   []float64
	pos    int
	filled int
}

// NewRollingAverage returns an average over a window of numSamples values.
func NewRollingAverage(numSamples int) *RollingAverage {
	if numSamples < 1 {
		numSamples = 1
	}
	return &RollingAverage{data: make([]float64, numSamples)}
}

// NumSamples returns the window size.
func (ra *RollingAverage) NumSamples() int {
	return len(ra.data)
}

// Add pushes x into the window, evicting the oldest value once full.
func (ra *RollingAverage) Add(x float64) {
	ra.data[ra.pos] = x
	ra.pos++
	if ra.pos >= len(ra.data) {
		ra.pos = 0
	}
	if ra.filled < len(ra.data) {
		ra.filled++
	}
}

// Average returns the mean of the values in the window, or 0 before the first Add.
func (ra *RollingAverage) Average() float64 {
	if ra.filled == 0 {
		return 0
	}
	sum := 0.
	for _, d := range ra.data[:ra.filled] {
		sum += d
	}
	return sum / float64(ra.filled)
}
