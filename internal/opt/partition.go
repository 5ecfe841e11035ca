package opt

import (
	"math"
	"slices"

	"fleetsplit/internal/geo"
)

// DistanceCache answers sub-route round-trip queries over one route in O(1).
// Indices are 1-based positions of interior deliveries.
type DistanceCache struct {
	n      int
	out    []float64 // depot -> delivery k
	back   []float64 // delivery k -> depot
	prefix []float64 // prefix[k]: distance driven from delivery 1 to delivery k
}

// NewDistanceCache precomputes the per-delivery depot legs and the prefix sums of a route.
func NewDistanceCache(route geo.Route) *DistanceCache {
	interior := route.Interior()
	n := len(interior)
	c := &DistanceCache{
		n:      n,
		out:    make([]float64, n+1),
		back:   make([]float64, n+1),
		prefix: make([]float64, n+1),
	}
	for k := 1; k <= n; k++ {
		p := interior[k-1]
		c.out[k] = geo.Distance(geo.Depot, p)
		c.back[k] = geo.Distance(p, geo.Depot)
		if k > 1 {
			c.prefix[k] = c.prefix[k-1] + geo.Distance(interior[k-2], p)
		}
	}
	return c
}

// Len is the number of interior deliveries.
func (c *DistanceCache) Len() int { return c.n }

// SubRouteRoundTrip is depot -> start .. end -> depot. Empty ranges cost nothing.
func (c *DistanceCache) SubRouteRoundTrip(start, end int) float64 {
	if start > end || start < 1 || end > c.n {
		return 0
	}
	return c.out[start] + c.prefix[end] - c.prefix[start] + c.back[end]
}

// Feasible greedily packs deliveries left to right into at most k segments whose round
// trips stay within m. It returns the cut positions (segment ends) when m is achievable.
func (c *DistanceCache) Feasible(m float64, k int) ([]int, bool) {
	if c.n == 0 {
		return nil, true
	}
	if k < 1 {
		k = 1
	}
	limit := m + Epsilon
	if c.SubRouteRoundTrip(1, 1) > limit {
		return nil, false
	}
	cuts := make([]int, 0, k-1)
	start := 1
	for i := 2; i <= c.n; i++ {
		if c.SubRouteRoundTrip(start, i) <= limit {
			continue
		}
		if len(cuts)+1 >= k {
			return nil, false
		}
		cuts = append(cuts, i-1)
		start = i
		if c.SubRouteRoundTrip(i, i) > limit {
			return nil, false
		}
	}
	return cuts, true
}

// Makespan is the longest segment round trip implied by cuts.
func (c *DistanceCache) Makespan(cuts []int) float64 {
	worst, start := 0.0, 1
	for _, cut := range cuts {
		worst = math.Max(worst, c.SubRouteRoundTrip(start, cut))
		start = cut + 1
	}
	return math.Max(worst, c.SubRouteRoundTrip(start, c.n))
}

func (c *DistanceCache) longestSingle() float64 {
	worst := 0.0
	for k := 1; k <= c.n; k++ {
		worst = math.Max(worst, c.SubRouteRoundTrip(k, k))
	}
	return worst
}

// Partition is a split of a route's deliveries into contiguous driver segments.
type Partition struct {
	// Cuts are segment ends, strictly increasing, in [1, N-1]. There are exactly K-1
	// of them when K <= N. With more drivers than deliveries only N-1 positions
	// exist, so Cuts is [1..N-1] and drivers past the N-th get no deliveries.
	Cuts       []int
	Makespan   float64 // longest segment round trip
	Iterations int
	CapReached bool // binary search stopped on its iteration cap
	Fallback   bool // no candidate was accepted during the search
}

// Split finds the smallest makespan at which the route can be shared by k drivers.
// progress, if non-nil, receives the iteration counter after each search step.
func Split(route geo.Route, k int, progress func(iteration int)) Partition {
	c := NewDistanceCache(route)
	n := c.Len()
	switch {
	case n == 0:
		return Partition{Cuts: []int{}}
	case k <= 0:
		return Partition{Cuts: []int{}, Makespan: geo.TotalRouteDistance(route)}
	case k == 1:
		return Partition{Cuts: []int{}, Makespan: c.SubRouteRoundTrip(1, n)}
	case k >= n:
		cuts := make([]int, 0, n-1)
		for i := 1; i < n; i++ {
			cuts = append(cuts, i)
		}
		return Partition{Cuts: cuts, Makespan: c.longestSingle()}
	}

	return c.search(k, c.longestSingle(), c.SubRouteRoundTrip(1, n), progress)
}

// search binary-searches the makespan over [lower, upper] for k > 1 drivers.
func (c *DistanceCache) search(k int, lower, upper float64, progress func(iteration int)) Partition {
	n := c.Len()
	limit := int(math.Log2(math.Max(upper/Epsilon, 1))) + n + 100

	var p Partition
	best, found := upper, false
	var bestCuts []int
	for lower <= upper {
		if p.Iterations >= limit {
			p.CapReached = true
			break
		}
		mid := lower + (upper-lower)/2
		if cuts, ok := c.Feasible(mid, k); ok {
			best, bestCuts, found = mid, cuts, true
			upper = mid - Epsilon
		} else {
			lower = mid + Epsilon
		}
		p.Iterations++
		if progress != nil {
			progress(p.Iterations)
		}
	}
	if !found {
		p.Fallback = true
		bestCuts, _ = c.Feasible(best, k)
	}
	p.Cuts = padCuts(bestCuts, k-1, n)
	p.Makespan = c.Makespan(p.Cuts)
	return p
}

// padCuts tops cuts up to want entries with the smallest unused positions. Splitting a
// segment never lengthens either half, so the makespan cannot grow.
func padCuts(cuts []int, want, n int) []int {
	used := make(map[int]bool, want)
	out := make([]int, 0, want)
	for _, c := range cuts {
		if c >= 1 && c < n && !used[c] {
			used[c] = true
			out = append(out, c)
		}
	}
	for v := 1; len(out) < want && v < n; v++ {
		if !used[v] {
			used[v] = true
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}
