// Package generate samples random delivery sets on the integer grid.
package generate

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"fleetsplit/internal/geo"
)

var (
	ErrInvalidBounds     = errors.New("invalid bounds")
	ErrInsufficientSpace = errors.New("bounds cannot hold the requested deliveries")
	ErrSamplerExhausted  = errors.New("sampler exhausted retries")
)

// Bounds is an inclusive coordinate box.
type Bounds struct {
	MinX, MaxX int
	MinY, MaxY int
}

// Validate rejects inverted boxes and boxes whose width or height does not fit in an int.
func (b Bounds) Validate() error {
	if b.MinX > b.MaxX || b.MinY > b.MaxY {
		return fmt.Errorf("%w: [%d,%d]x[%d,%d]", ErrInvalidBounds, b.MinX, b.MaxX, b.MinY, b.MaxY)
	}
	if _, ok := span(b.MinX, b.MaxX); !ok {
		return fmt.Errorf("%w: x span [%d,%d] overflows", ErrInvalidBounds, b.MinX, b.MaxX)
	}
	if _, ok := span(b.MinY, b.MaxY); !ok {
		return fmt.Errorf("%w: y span [%d,%d] overflows", ErrInvalidBounds, b.MinY, b.MaxY)
	}
	return nil
}

// span is the number of integers in [lo, hi]; ok is false when it exceeds math.MaxInt.
func span(lo, hi int) (int, bool) {
	d := hi - lo
	if d < 0 || d == math.MaxInt {
		return 0, false
	}
	return d + 1, true
}

// capacity counts usable cells, leaving out the depot coordinate. It saturates at
// math.MaxInt64. b must be valid.
func (b Bounds) capacity() int64 {
	w, _ := span(b.MinX, b.MaxX)
	h, _ := span(b.MinY, b.MaxY)
	if int64(w) > math.MaxInt64/int64(h) {
		return math.MaxInt64
	}
	c := int64(w) * int64(h)
	if b.MinX <= geo.Depot.X && geo.Depot.X <= b.MaxX && b.MinY <= geo.Depot.Y && geo.Depot.Y <= b.MaxY {
		c--
	}
	return c
}

// Deliveries draws n points with unique coordinates inside b. IDs run 1..n in draw order.
func Deliveries(rng *rand.Rand, n int, b Bounds) ([]geo.Delivery, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []geo.Delivery{}, nil
	}
	if int64(n) > b.capacity() {
		return nil, fmt.Errorf("%w: want %d, have %d cells", ErrInsufficientSpace, n, b.capacity())
	}
	seen := make(map[[2]int]struct{}, n+1)
	seen[[2]int{geo.Depot.X, geo.Depot.Y}] = struct{}{}
	out := make([]geo.Delivery, 0, n)
	attempts := n*32 + 1024
	w, _ := span(b.MinX, b.MaxX)
	h, _ := span(b.MinY, b.MaxY)
	for len(out) < n {
		if attempts == 0 {
			return nil, fmt.Errorf("%w: placed %d of %d", ErrSamplerExhausted, len(out), n)
		}
		attempts--
		x := b.MinX + rng.Intn(w)
		y := b.MinY + rng.Intn(h)
		key := [2]int{x, y}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, geo.Delivery{ID: len(out) + 1, X: x, Y: y})
	}
	return out, nil
}
