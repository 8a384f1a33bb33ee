package motionplan

import (
	"math"
	"runtime"
	"sync"

	"github.com/golang/geo/r3"
)

const neighborsBeforeParallelization = 1000

type neighbor struct {
	dist float64
	idx  int
}

// nearestNeighbor returns the live node whose center is closest to target, or -1 if the arena
// is empty.
func (a *arena) nearestNeighbor(target r3.Vector) int {
	if len(a.nodes) > neighborsBeforeParallelization {
		return a.parallelNearestNeighbor(target)
	}
	return a.nearestInRange(target, 0, len(a.nodes)).idx
}

func (a *arena) nearestInRange(target r3.Vector, from, to int) neighbor {
	best := neighbor{dist: math.Inf(1), idx: -1}
	for i := from; i < to; i++ {
		if !a.nodes[i].valid {
			continue
		}
		if dist := a.nodes[i].center.Distance(target); dist < best.dist {
			best = neighbor{dist: dist, idx: i}
		}
	}
	return best
}

func (a *arena) parallelNearestNeighbor(target r3.Vector) int {
	nCPU := runtime.NumCPU()
	chunk := (len(a.nodes) + nCPU - 1) / nCPU
	results := make([]neighbor, nCPU)
	var wg sync.WaitGroup
	for w := 0; w < nCPU; w++ {
		from := w * chunk
		to := min(from+chunk, len(a.nodes))
		results[w] = neighbor{dist: math.Inf(1), idx: -1}
		if from >= to {
			continue
		}
		wg.Add(1)
		go func(w, from, to int) {
			defer wg.Done()
			results[w] = a.nearestInRange(target, from, to)
		}(w, from, to)
	}
	wg.Wait()

	best := neighbor{dist: math.Inf(1), idx: -1}
	for _, r := range results {
		if r.dist < best.dist {
			best = r
		}
	}
	return best.idx
}

// neighborsOf returns every live node whose sphere connects with a sphere at center with the
// given radius.
func (a *arena) neighborsOf(center r3.Vector, radius float64) []neighbor {
	var out []neighbor
	for i := range a.nodes {
		n := &a.nodes[i]
		if !n.valid {
			continue
		}
		dist := n.center.Distance(center)
		if dist < connectRatio*(n.radius+radius) {
			out = append(out, neighbor{dist: dist, idx: i})
		}
	}
	return out
}
