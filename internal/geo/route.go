// Package geo holds the planar delivery model shared by the optimizer and the API.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// Delivery is an immutable point on the integer grid. ID 0 is reserved for the depot.
type Delivery struct {
	ID int `json:"id"`
	X  int `json:"x"`
	Y  int `json:"y"`
}

// Depot is where every route starts and ends.
var Depot = Delivery{ID: 0, X: 0, Y: 0}

// IsDepot reports whether d is the reserved depot point.
func (d Delivery) IsDepot() bool { return d.ID == Depot.ID }

// Distance returns the Euclidean distance between two points.
func Distance(a, b Delivery) float64 {
	return math.Hypot(delta(a.X, b.X), delta(a.Y, b.Y))
}

// SquaredDistance avoids the square root for comparisons.
func SquaredDistance(a, b Delivery) float64 {
	dx := delta(a.X, b.X)
	dy := delta(a.Y, b.Y)
	return dx*dx + dy*dy
}

// delta subtracts in float64 so coordinates far apart cannot wrap around.
func delta(a, b int) float64 { return float64(a) - float64(b) }

// Route is depot, every delivery exactly once, depot.
type Route []Delivery

var ErrInvalidRoute = errors.New("invalid route")

// Interior returns the deliveries between the depot bookends.
func (r Route) Interior() []Delivery {
	if len(r) < 2 {
		return nil
	}
	return r[1 : len(r)-1]
}

// Validate checks the route shape for n deliveries.
func (r Route) Validate(n int) error {
	if len(r) != n+2 {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidRoute, len(r), n+2)
	}
	if !r[0].IsDepot() || !r[len(r)-1].IsDepot() {
		return fmt.Errorf("%w: route must start and end at the depot", ErrInvalidRoute)
	}
	seen := make(map[int]struct{}, n)
	for i, d := range r.Interior() {
		if d.IsDepot() {
			return fmt.Errorf("%w: depot at interior position %d", ErrInvalidRoute, i+1)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: delivery %d visited twice", ErrInvalidRoute, d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}

// IDs lists the point IDs in visiting order.
func (r Route) IDs() []int {
	out := make([]int, len(r))
	for i, d := range r {
		out[i] = d.ID
	}
	return out
}

// TotalRouteDistance sums every consecutive leg of the route.
func TotalRouteDistance(r Route) float64 {
	total := 0.0
	for i := 0; i+1 < len(r); i++ {
		total += Distance(r[i], r[i+1])
	}
	return total
}

// SubRouteRoundTrip is the depot -> r[start] .. r[end] -> depot distance, using 1-based
// interior indices. An empty range costs nothing.
func SubRouteRoundTrip(r Route, start, end int) float64 {
	if start > end || start < 1 || end > len(r)-2 {
		return 0
	}
	total := Distance(Depot, r[start])
	for i := start; i < end; i++ {
		total += Distance(r[i], r[i+1])
	}
	return total + Distance(r[end], Depot)
}
