package corridor

import (
	"go.viam.com/rhplanner/spatialmath"
)

// defaultOverlapEpsilon is the inscribed-ball radius two non-adjacent polytopes must share to be
// considered overlapping when shortcutting.
const defaultOverlapEpsilon = 0.01

// ShortCutIndices returns the indices of a reduced chain of polytopes. Scanning backward from the
// last polytope, each kept polytope is linked to the lowest-indexed earlier polytope that
// overlaps it by more than eps; the immediate predecessor always counts as overlapping so the
// chain is never broken. A single polytope is duplicated.
func ShortCutIndices(polytopes []*spatialmath.Polytope, eps float64) []int {
	switch len(polytopes) {
	case 0:
		return nil
	case 1:
		return []int{0, 0}
	}

	m := len(polytopes)
	reversed := []int{m - 1}
	for i := m - 1; i > 0; {
		next := i - 1
		for j := 0; j < i-1; j++ {
			if spatialmath.Overlap(polytopes[i], polytopes[j], eps) {
				next = j
				break
			}
		}
		reversed = append(reversed, next)
		i = next
	}

	out := make([]int, len(reversed))
	for k, idx := range reversed {
		out[len(reversed)-1-k] = idx
	}
	return out
}

// ShortCut drops corridor regions that are bypassed by an overlap between their neighbors.
func ShortCut(c Corridor, eps float64) Corridor {
	if eps <= 0 {
		eps = defaultOverlapEpsilon
	}
	indices := ShortCutIndices(c.Polytopes(), eps)
	out := make(Corridor, len(indices))
	for k, idx := range indices {
		out[k] = c[idx]
	}
	return out
}
