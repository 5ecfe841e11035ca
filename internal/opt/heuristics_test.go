package opt

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetsplit/internal/geo"
)

func TestTwoOptShortRoutesUntouched(t *testing.T) {
	r := geo.Route{geo.Depot, {ID: 1, X: 3, Y: 4}, geo.Depot}
	got, st := TwoOpt(r, 0)
	assert.Equal(t, r, got)
	assert.Zero(t, st.Sweeps)
}

func TestTwoOptRemovesSquareCrossing(t *testing.T) {
	p1 := geo.Delivery{ID: 1, X: 1, Y: 1}
	p2 := geo.Delivery{ID: 2, X: 3, Y: 3}
	p3 := geo.Delivery{ID: 3, X: 3, Y: 1}
	p4 := geo.Delivery{ID: 4, X: 1, Y: 3}
	crossing := geo.Route{geo.Depot, p1, p2, p3, p4, geo.Depot}
	before := geo.TotalRouteDistance(crossing)

	got, st := TwoOpt(crossing, 0)
	require.NoError(t, got.Validate(4))
	after := geo.TotalRouteDistance(got)
	assert.Less(t, after, before)
	assert.InDelta(t, math.Sqrt2+6+math.Sqrt(10), after, 1e-9)
	assert.Equal(t, 1, st.Swaps)
	assert.False(t, st.CapReached)
	// input is not mutated
	assert.Equal(t, []int{0, 1, 2, 3, 4, 0}, crossing.IDs())
}

func TestTwoOptMonotoneAndIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 25; trial++ {
		n := rng.Intn(60)
		r := randomRoute(rng, n, 100)
		once, _ := TwoOpt(r, 0)
		require.NoError(t, once.Validate(n))
		assert.LessOrEqual(t, geo.TotalRouteDistance(once), geo.TotalRouteDistance(r)+1e-9)

		twice, st := TwoOpt(once, 0)
		assert.Equal(t, once.IDs(), twice.IDs())
		assert.Zero(t, st.Swaps)
	}
}

func TestTwoOptReportsCap(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	r := randomRoute(rng, 40, 100)
	_, st := TwoOpt(r, 1)
	assert.Equal(t, 1, st.Sweeps)
	assert.True(t, st.CapReached)
}
