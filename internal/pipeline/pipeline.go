// Package pipeline runs every construction strategy through 2-opt and the driver
// partitioner and keeps the plan with the shortest makespan.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"fleetsplit/internal/geo"
	"fleetsplit/internal/metrics"
	"fleetsplit/internal/obs"
	"fleetsplit/internal/opt"
)

var ErrInvalidInput = errors.New("invalid optimization input")

// ProgressFunc receives human-readable status lines. It is called from several
// goroutines and must not block.
type ProgressFunc func(msg string)

// DriverRoute is one driver's depot-to-depot share of the plan.
type DriverRoute struct {
	Driver   int
	Route    geo.Route
	Distance float64
}

// Result is the outcome of one strategy.
type Result struct {
	Strategy          opt.Strategy
	Route             geo.Route
	InitialDistance   float64
	OptimizedDistance float64
	Makespan          float64
	Cuts              []int
	Drivers           []DriverRoute
	Construction      opt.Construction
	TwoOpt            opt.TwoOptStats
	Partition         opt.Partition
	Warnings          []string
	Elapsed           time.Duration
}

// Plan holds the chosen result and every candidate that was computed.
type Plan struct {
	Best       Result
	Candidates []Result
}

// Warnings collects the warnings of every candidate, prefixed by strategy.
func (p Plan) Warnings() []string {
	var out []string
	for _, c := range p.Candidates {
		for _, w := range c.Warnings {
			out = append(out, fmt.Sprintf("%s: %s", c.Strategy, w))
		}
	}
	return out
}

// Runner executes the optimization pipeline. The zero value uses every strategy and
// the default 2-opt sweep cap.
type Runner struct {
	MaxSweeps  int
	Strategies []opt.Strategy
}

// Run optimizes deliveries for the given number of drivers. Strategies run
// concurrently; ties on makespan go to the earlier strategy in the list.
func (r *Runner) Run(ctx context.Context, deliveries []geo.Delivery, drivers int, progress ProgressFunc) (Plan, error) {
	if err := validateInput(deliveries, drivers); err != nil {
		return Plan{}, err
	}
	if progress == nil {
		progress = func(string) {}
	}
	strategies := r.Strategies
	if len(strategies) == 0 {
		strategies = opt.Strategies
	}

	results := make([]Result, len(strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range strategies {
		g.Go(func() error {
			res, err := r.runStrategy(gctx, s, deliveries, drivers, progress)
			if err != nil {
				return fmt.Errorf("%s: %w", s, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Plan{}, err
	}

	best := 0
	for i := 1; i < len(results); i++ {
		if results[i].Makespan < results[best].Makespan-opt.Epsilon {
			best = i
		}
	}
	progress(fmt.Sprintf("selected %s with makespan %.2f", results[best].Strategy, results[best].Makespan))
	return Plan{Best: results[best], Candidates: results}, nil
}

func (r *Runner) runStrategy(ctx context.Context, s opt.Strategy, deliveries []geo.Delivery, drivers int, progress ProgressFunc) (Result, error) {
	start := time.Now()
	res := Result{Strategy: s}
	say := func(format string, args ...any) {
		progress(fmt.Sprintf("[%s] ", s) + fmt.Sprintf(format, args...))
	}

	say("constructing initial route over %d deliveries", len(deliveries))
	done := stage(ctx, s, "construct")
	route, info, err := opt.ConstructRoute(s, deliveries)
	done(&err)
	if err != nil {
		return res, err
	}
	res.Construction = info
	res.InitialDistance = geo.TotalRouteDistance(route)
	if info.Fragmented() {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d unmerged chains were concatenated", info.Chains))
		metrics.QualityWarnings.WithLabelValues(string(s), "fragmented_chains").Inc()
	}
	say("initial distance %.2f", res.InitialDistance)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	say("improving route with 2-opt")
	done = stage(ctx, s, "two_opt")
	route, res.TwoOpt = opt.TwoOpt(route, r.MaxSweeps)
	done(nil)
	res.Route = route
	res.OptimizedDistance = geo.TotalRouteDistance(route)
	if res.TwoOpt.CapReached {
		res.Warnings = append(res.Warnings, fmt.Sprintf("2-opt stopped at the %d sweep cap", res.TwoOpt.Sweeps))
		metrics.QualityWarnings.WithLabelValues(string(s), "two_opt_cap").Inc()
	}
	say("optimized distance %.2f after %d swaps", res.OptimizedDistance, res.TwoOpt.Swaps)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	say("splitting route among %d drivers", drivers)
	done = stage(ctx, s, "partition")
	res.Partition = opt.Split(route, drivers, func(i int) {
		say("makespan search iteration %d", i)
	})
	done(nil)
	metrics.PartitionIterations.Observe(float64(res.Partition.Iterations))
	if res.Partition.CapReached {
		res.Warnings = append(res.Warnings, "makespan search hit its iteration cap")
		metrics.QualityWarnings.WithLabelValues(string(s), "partition_cap").Inc()
	}
	if res.Partition.Fallback {
		res.Warnings = append(res.Warnings, "makespan search accepted no candidate; used fallback split")
		metrics.QualityWarnings.WithLabelValues(string(s), "partition_fallback").Inc()
	}
	res.Cuts = res.Partition.Cuts
	res.Makespan = res.Partition.Makespan
	res.Drivers = DriverRoutes(route, res.Cuts, drivers)
	res.Elapsed = time.Since(start)
	say("makespan %.2f", res.Makespan)
	return res, nil
}

func stage(ctx context.Context, s opt.Strategy, name string) func(*error) {
	timer := obs.Time(ctx, string(s)+"."+name)
	return func(errp *error) {
		metrics.StageDuration.WithLabelValues(string(s), name).Observe(timer(errp).Seconds())
	}
}

// DriverRoutes expands cut positions into one route per driver. Drivers without a
// segment get a depot-only route.
func DriverRoutes(route geo.Route, cuts []int, drivers int) []DriverRoute {
	n := len(route.Interior())
	out := make([]DriverRoute, 0, drivers)
	start := 1
	bounds := append(append([]int(nil), cuts...), n)
	for d := 0; d < drivers; d++ {
		dr := DriverRoute{Driver: d + 1, Route: geo.Route{geo.Depot, geo.Depot}}
		if d < len(bounds) && start <= bounds[d] {
			end := bounds[d]
			seg := make(geo.Route, 0, end-start+3)
			seg = append(seg, geo.Depot)
			seg = append(seg, route[start:end+1]...)
			dr.Route = append(seg, geo.Depot)
			dr.Distance = geo.SubRouteRoundTrip(route, start, end)
			start = end + 1
		}
		out = append(out, dr)
	}
	return out
}

func validateInput(deliveries []geo.Delivery, drivers int) error {
	if drivers < 1 {
		return fmt.Errorf("%w: driver count must be positive, got %d", ErrInvalidInput, drivers)
	}
	seen := make(map[int]struct{}, len(deliveries))
	for _, d := range deliveries {
		if d.IsDepot() {
			return fmt.Errorf("%w: delivery id %d is reserved for the depot", ErrInvalidInput, d.ID)
		}
		if d.ID < 0 {
			return fmt.Errorf("%w: delivery id %d is negative", ErrInvalidInput, d.ID)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: duplicate delivery id %d", ErrInvalidInput, d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}
