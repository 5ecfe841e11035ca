package opt

import (
	"cmp"
	"slices"

	"fleetsplit/internal/geo"
)

// saving is the distance saved by driving a->b directly instead of returning to the depot in between.
type saving struct {
	a, b  int // indices into the id-ordered point slice, a < b
	value float64
}

// ClarkeWright merges single-delivery routes along the largest savings first.
// It returns the route and the number of chains that were concatenated to build it;
// more than one chain means the merges never formed a single path.
func ClarkeWright(points []geo.Delivery) (geo.Route, int) {
	pts := make([]geo.Delivery, 0, len(points))
	for _, p := range points {
		if !p.IsDepot() {
			pts = append(pts, p)
		}
	}
	if len(pts) == 0 {
		return geo.Route{geo.Depot, geo.Depot}, 0
	}
	slices.SortFunc(pts, func(x, y geo.Delivery) int { return cmp.Compare(x.ID, y.ID) })

	n := len(pts)
	depot := make([]float64, n)
	for i, p := range pts {
		depot[i] = geo.Distance(geo.Depot, p)
	}
	dist := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := geo.Distance(pts[i], pts[j])
			dist[i*n+j] = d
			dist[j*n+i] = d
		}
	}

	savings := make([]saving, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if v := depot[i] + depot[j] - dist[i*n+j]; v > 0 {
				savings = append(savings, saving{a: i, b: j, value: v})
			}
		}
	}
	sortSavings(savings)

	chains := newChainSet(n)
	for _, s := range savings {
		chains.merge(s.a, s.b)
	}

	route := make(geo.Route, 0, n+2)
	route = append(route, geo.Depot)
	emitted := make([]bool, n)
	count := 0
	for i := 0; i < n; i++ {
		r := chains.find(i)
		if emitted[r] {
			continue
		}
		emitted[r] = true
		count++
		for k := chains.head[r]; k != noNode; k = chains.next[k] {
			route = append(route, pts[k])
		}
	}
	return append(route, geo.Depot), count
}

// sortSavings orders by value descending; equal values fall back to the ascending index pair.
func sortSavings(s []saving) {
	slices.SortFunc(s, func(x, y saving) int {
		if c := cmp.Compare(y.value, x.value); c != 0 {
			return c
		}
		if c := cmp.Compare(x.a, y.a); c != 0 {
			return c
		}
		return cmp.Compare(x.b, y.b)
	})
}

// chainSet is a union-find over path fragments. Each root tracks the head and tail of
// its chain; next links every point to its successor.
type chainSet struct {
	parent []int
	rank   []int
	head   []int
	tail   []int
	next   []int
}

func newChainSet(n int) *chainSet {
	c := &chainSet{
		parent: make([]int, n),
		rank:   make([]int, n),
		head:   make([]int, n),
		tail:   make([]int, n),
		next:   make([]int, n),
	}
	for i := 0; i < n; i++ {
		c.parent[i] = i
		c.head[i] = i
		c.tail[i] = i
		c.next[i] = noNode
	}
	return c
}

func (c *chainSet) find(i int) int {
	root := i
	for c.parent[root] != root {
		root = c.parent[root]
	}
	for c.parent[i] != root {
		c.parent[i], i = root, c.parent[i]
	}
	return root
}

// merge joins the chains of a and b when a is a tail and b a head, or the reverse.
// It reports whether the chains were joined.
func (c *chainSet) merge(a, b int) bool {
	ra, rb := c.find(a), c.find(b)
	if ra == rb {
		return false
	}
	var head, tail int
	switch {
	case c.tail[ra] == a && c.head[rb] == b:
		c.next[a] = b
		head, tail = c.head[ra], c.tail[rb]
	case c.tail[rb] == b && c.head[ra] == a:
		c.next[b] = a
		head, tail = c.head[rb], c.tail[ra]
	default:
		return false
	}
	root := c.union(ra, rb)
	c.head[root], c.tail[root] = head, tail
	return true
}

func (c *chainSet) union(ra, rb int) int {
	switch {
	case c.rank[ra] < c.rank[rb]:
		c.parent[ra] = rb
		return rb
	case c.rank[ra] > c.rank[rb]:
		c.parent[rb] = ra
		return ra
	default:
		c.parent[rb] = ra
		c.rank[ra]++
		return ra
	}
}
