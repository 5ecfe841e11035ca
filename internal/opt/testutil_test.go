package opt

import (
	"math/rand"

	"fleetsplit/internal/geo"
)

// randomDeliveries draws n points with unique coordinates in [-span, span]², never on the depot.
func randomDeliveries(rng *rand.Rand, n, span int) []geo.Delivery {
	seen := map[[2]int]bool{{0, 0}: true}
	out := make([]geo.Delivery, 0, n)
	for len(out) < n {
		x := rng.Intn(2*span+1) - span
		y := rng.Intn(2*span+1) - span
		if seen[[2]int{x, y}] {
			continue
		}
		seen[[2]int{x, y}] = true
		out = append(out, geo.Delivery{ID: len(out) + 1, X: x, Y: y})
	}
	return out
}

// randomRoute is a depot-bookended route over a shuffled delivery set.
func randomRoute(rng *rand.Rand, n, span int) geo.Route {
	pts := randomDeliveries(rng, n, span)
	rng.Shuffle(len(pts), func(i, j int) { pts[i], pts[j] = pts[j], pts[i] })
	r := geo.Route{geo.Depot}
	r = append(r, pts...)
	return append(r, geo.Depot)
}
