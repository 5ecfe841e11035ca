package opt

import "fleetsplit/internal/geo"

// DefaultMaxSweeps bounds 2-opt against floating-point cycling.
const DefaultMaxSweeps = 10000

// TwoOptStats describes one TwoOpt run.
type TwoOptStats struct {
	Sweeps     int
	Swaps      int
	CapReached bool
}

// TwoOpt shortens a depot-to-depot route by reversing segments between two
// non-adjacent edges. Swaps apply immediately within a sweep; the search stops after
// a sweep with no swap or after maxSweeps sweeps (DefaultMaxSweeps when <= 0).
// The input route is left untouched.
func TwoOpt(route geo.Route, maxSweeps int) (geo.Route, TwoOptStats) {
	if maxSweeps <= 0 {
		maxSweeps = DefaultMaxSweeps
	}
	best := append(geo.Route(nil), route...)
	var st TwoOptStats
	n := len(best)
	if n < 4 {
		return best, st
	}
	for st.Sweeps < maxSweeps {
		st.Sweeps++
		improved := false
		for i := 0; i < n-3; i++ {
			for j := i + 2; j < n-1; j++ {
				current := geo.Distance(best[i], best[i+1]) + geo.Distance(best[j], best[j+1])
				swapped := geo.Distance(best[i], best[j]) + geo.Distance(best[i+1], best[j+1])
				if swapped < current-Epsilon {
					reverse(best[i+1 : j+1])
					st.Swaps++
					improved = true
				}
			}
		}
		if !improved {
			return best, st
		}
	}
	st.CapReached = true
	return best, st
}

func reverse(seg geo.Route) {
	for a, b := 0, len(seg)-1; a < b; a, b = a+1, b-1 {
		seg[a], seg[b] = seg[b], seg[a]
	}
}
