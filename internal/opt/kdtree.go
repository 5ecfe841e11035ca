package opt

import (
	"math"

	"fleetsplit/internal/geo"
)

// Epsilon is the shared tolerance for distance comparisons in the optimizer.
const Epsilon = 1e-9

const noNode = -1

type kdNode struct {
	point     geo.Delivery
	left      int
	right     int
	parent    int
	axis      int // 0 splits on x, 1 on y
	visited   bool
	unvisited int // live points in this subtree, self included
}

// SpatialIndex is a 2-D tree answering repeated "nearest unvisited point" queries.
// Consumed points stay in the tree; subtree live counts let searches skip them.
type SpatialIndex struct {
	nodes     []kdNode
	root      int
	remaining int
}

// NewSpatialIndex builds a balanced index over points, ignoring the depot.
func NewSpatialIndex(points []geo.Delivery) *SpatialIndex {
	pts := make([]geo.Delivery, 0, len(points))
	for _, p := range points {
		if !p.IsDepot() {
			pts = append(pts, p)
		}
	}
	idx := &SpatialIndex{nodes: make([]kdNode, 0, len(pts)), root: noNode}
	if len(pts) == 0 {
		return idx
	}
	idx.root = idx.build(pts, 0, noNode)
	idx.remaining = len(pts)
	return idx
}

func (s *SpatialIndex) build(pts []geo.Delivery, depth, parent int) int {
	if len(pts) == 0 {
		return noNode
	}
	axis := depth % 2
	mid := len(pts) / 2
	selectKth(pts, mid, axis)

	id := len(s.nodes)
	s.nodes = append(s.nodes, kdNode{point: pts[mid], parent: parent, axis: axis})
	left := s.build(pts[:mid], depth+1, id)
	right := s.build(pts[mid+1:], depth+1, id)

	n := &s.nodes[id]
	n.left, n.right = left, right
	n.unvisited = 1 + s.count(left) + s.count(right)
	return id
}

func (s *SpatialIndex) count(i int) int {
	if i == noNode {
		return 0
	}
	return s.nodes[i].unvisited
}

// Len is the number of points the index was built over.
func (s *SpatialIndex) Len() int {
	if s == nil {
		return 0
	}
	return len(s.nodes)
}

// HasUnvisited reports whether any point is still available.
func (s *SpatialIndex) HasUnvisited() bool {
	return s != nil && s.remaining > 0
}

// PopNearest returns the unvisited point closest to q and marks it visited.
// Equidistant candidates resolve to the lowest ID. ok is false once the index is drained.
func (s *SpatialIndex) PopNearest(q geo.Delivery) (geo.Delivery, bool) {
	if !s.HasUnvisited() {
		return geo.Delivery{}, false
	}
	best, bestDist := noNode, math.Inf(1)
	s.search(s.root, q, &best, &bestDist)
	if best == noNode {
		return geo.Delivery{}, false
	}
	s.nodes[best].visited = true
	for i := best; i != noNode; i = s.nodes[i].parent {
		s.nodes[i].unvisited--
	}
	s.remaining--
	return s.nodes[best].point, true
}

func (s *SpatialIndex) search(i int, q geo.Delivery, best *int, bestDist *float64) {
	if i == noNode || s.nodes[i].unvisited == 0 {
		return
	}
	n := &s.nodes[i]
	if !n.visited {
		d := geo.SquaredDistance(n.point, q)
		switch {
		case *best == noNode, d < *bestDist-Epsilon:
			*best, *bestDist = i, d
		case math.Abs(d-*bestDist) <= Epsilon && n.point.ID < s.nodes[*best].point.ID:
			*best, *bestDist = i, d
		}
	}

	diff := float64(axisValue(q, n.axis) - axisValue(n.point, n.axis))
	near, far := n.left, n.right
	if diff >= 0 {
		near, far = n.right, n.left
	}
	s.search(near, q, best, bestDist)
	if diff*diff <= *bestDist+Epsilon {
		s.search(far, q, best, bestDist)
	}
}

func axisValue(p geo.Delivery, axis int) int {
	if axis == 0 {
		return p.X
	}
	return p.Y
}

// axisLess orders by the axis coordinate, then by ID, so every point has a unique rank.
func axisLess(a, b geo.Delivery, axis int) bool {
	av, bv := axisValue(a, axis), axisValue(b, axis)
	if av != bv {
		return av < bv
	}
	return a.ID < b.ID
}

// selectKth partially orders pts so pts[k] holds its sorted-rank element,
// smaller elements before it and larger after.
func selectKth(pts []geo.Delivery, k, axis int) {
	lo, hi := 0, len(pts)-1
	for lo < hi {
		p := partitionAround(pts, lo, hi, axis)
		switch {
		case k == p:
			return
		case k < p:
			hi = p - 1
		default:
			lo = p + 1
		}
	}
}

func partitionAround(pts []geo.Delivery, lo, hi, axis int) int {
	mid := lo + (hi-lo)/2
	// median of three ends up in pts[mid]
	if axisLess(pts[mid], pts[lo], axis) {
		pts[mid], pts[lo] = pts[lo], pts[mid]
	}
	if axisLess(pts[hi], pts[lo], axis) {
		pts[hi], pts[lo] = pts[lo], pts[hi]
	}
	if axisLess(pts[hi], pts[mid], axis) {
		pts[hi], pts[mid] = pts[mid], pts[hi]
	}
	pts[mid], pts[hi] = pts[hi], pts[mid]
	pivot := pts[hi]
	store := lo
	for i := lo; i < hi; i++ {
		if axisLess(pts[i], pivot, axis) {
			pts[i], pts[store] = pts[store], pts[i]
			store++
		}
	}
	pts[store], pts[hi] = pts[hi], pts[store]
	return store
}
