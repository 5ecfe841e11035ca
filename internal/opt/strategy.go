// Package opt implements the route construction, improvement and driver partitioning
// heuristics behind the optimize endpoint.
package opt

import (
	"fmt"

	"fleetsplit/internal/geo"
)

// Strategy names a route construction heuristic.
type Strategy string

const (
	StrategyNearestNeighbor Strategy = "nearest_neighbor"
	StrategyClarkeWright    Strategy = "clarke_wright"
)

// Strategies lists every construction heuristic in preference order.
var Strategies = []Strategy{StrategyNearestNeighbor, StrategyClarkeWright}

// Construction carries diagnostics from building an initial route.
type Construction struct {
	Strategy Strategy
	// Chains is how many disjoint paths were joined end to end. Anything above one
	// means Clarke-Wright could not merge every delivery into a single path.
	Chains int
}

// Fragmented reports whether the route is a concatenation of unmerged chains.
func (c Construction) Fragmented() bool { return c.Chains > 1 }

// ConstructRoute builds the initial depot-to-depot route with the given strategy.
func ConstructRoute(s Strategy, points []geo.Delivery) (geo.Route, Construction, error) {
	switch s {
	case StrategyNearestNeighbor:
		r := NearestNeighbor(points)
		chains := 0
		if len(r) > 2 {
			chains = 1
		}
		return r, Construction{Strategy: s, Chains: chains}, nil
	case StrategyClarkeWright:
		r, chains := ClarkeWright(points)
		return r, Construction{Strategy: s, Chains: chains}, nil
	default:
		return nil, Construction{}, fmt.Errorf("construct route: unknown strategy %q", s)
	}
}

// ParseStrategy maps a request value onto a Strategy.
func ParseStrategy(v string) (Strategy, error) {
	for _, s := range Strategies {
		if string(s) == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q", v)
}
