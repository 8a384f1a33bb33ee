package motionplan

import (
	"github.com/golang/geo/r3"
)

// node is one obstacle-free sphere of the tree. Nodes live in an arena and refer to each other by
// index so re-rooting and pruning never move or copy them.
type node struct {
	center   r3.Vector
	radius   float64
	parent   int
	children []int
	cost     float64 // path length from the root through the sphere centers
	valid    bool
}

type arena struct {
	nodes []node
	free  []int
	live  int
}

func (a *arena) add(center r3.Vector, radius float64, parent int, cost float64) int {
	n := node{center: center, radius: radius, parent: parent, cost: cost, valid: true}
	var idx int
	if len(a.free) > 0 {
		idx = a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		a.nodes[idx] = n
	} else {
		idx = len(a.nodes)
		a.nodes = append(a.nodes, n)
	}
	if parent >= 0 {
		a.nodes[parent].children = append(a.nodes[parent].children, idx)
	}
	a.live++
	return idx
}

func (a *arena) reset() {
	a.nodes = a.nodes[:0]
	a.free = a.free[:0]
	a.live = 0
}

func (a *arena) isValid(idx int) bool {
	return idx >= 0 && idx < len(a.nodes) && a.nodes[idx].valid
}

// detach removes child from its parent's child list.
func (a *arena) detach(child int) {
	parent := a.nodes[child].parent
	if parent < 0 {
		return
	}
	siblings := a.nodes[parent].children
	for i, c := range siblings {
		if c == child {
			a.nodes[parent].children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	a.nodes[child].parent = -1
}

// reparent moves child under newParent and shifts the cost of its whole subtree.
func (a *arena) reparent(child, newParent int, newCost float64) {
	a.detach(child)
	a.nodes[child].parent = newParent
	a.nodes[newParent].children = append(a.nodes[newParent].children, child)
	a.shiftCost(child, newCost-a.nodes[child].cost)
}

func (a *arena) shiftCost(root int, delta float64) {
	stack := []int{root}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		a.nodes[idx].cost += delta
		stack = append(stack, a.nodes[idx].children...)
	}
}

// destroy tombstones idx and every descendant.
func (a *arena) destroy(idx int) {
	a.detach(idx)
	stack := []int{idx}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !a.nodes[cur].valid {
			continue
		}
		stack = append(stack, a.nodes[cur].children...)
		a.nodes[cur].valid = false
		a.nodes[cur].children = nil
		a.nodes[cur].parent = -1
		a.free = append(a.free, cur)
		a.live--
	}
}

// chain returns the indices from the root down to idx.
func (a *arena) chain(idx int) []int {
	var out []int
	for cur := idx; cur >= 0; cur = a.nodes[cur].parent {
		out = append(out, cur)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (a *arena) connected(i, j int) bool {
	ni, nj := &a.nodes[i], &a.nodes[j]
	return ni.center.Distance(nj.center) < connectRatio*(ni.radius+nj.radius)
}

// contains reports whether p lies strictly inside the sphere of idx.
func (a *arena) contains(idx int, p r3.Vector) bool {
	return a.nodes[idx].center.Distance(p) < a.nodes[idx].radius
}

func sphereInside(inner r3.Vector, innerRadius float64, outer *node) bool {
	return inner.Distance(outer.center)+innerRadius <= outer.radius
}
