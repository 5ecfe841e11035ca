package opt

import "fleetsplit/internal/geo"

// NearestNeighbor builds a depot-to-depot route by always driving to the closest
// remaining delivery. Ties go to the lowest ID so identical input gives identical output.
func NearestNeighbor(points []geo.Delivery) geo.Route {
	idx := NewSpatialIndex(points)
	route := make(geo.Route, 0, idx.Len()+2)
	route = append(route, geo.Depot)
	cur := geo.Depot
	for idx.HasUnvisited() {
		next, ok := idx.PopNearest(cur)
		if !ok {
			break
		}
		route = append(route, next)
		cur = next
	}
	return append(route, geo.Depot)
}
