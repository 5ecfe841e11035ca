package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// OptimizeRuns counts optimization runs by outcome (ok, invalid, failed)
	OptimizeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimize_runs_total", Help: "Optimization runs by outcome."},
		[]string{"outcome"},
	)
	// StageDuration times each pipeline stage per strategy
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "optimize_stage_duration_seconds", Help: "Pipeline stage duration in seconds.", Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}},
		[]string{"strategy", "stage"},
	)
	// StrategyWins counts which construction strategy produced the chosen plan
	StrategyWins = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimize_strategy_wins_total", Help: "Chosen plans by construction strategy."},
		[]string{"strategy"},
	)
	// QualityWarnings counts degraded-but-valid results by kind
	QualityWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimize_quality_warnings_total", Help: "Quality warnings raised during optimization."},
		[]string{"strategy", "kind"},
	)
	// PartitionIterations records binary search steps per partition
	PartitionIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "partition_search_iterations", Help: "Binary search iterations per partition.", Buckets: []float64{1, 10, 25, 50, 75, 100, 200}},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the API registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(OptimizeRuns)
		Registry.MustRegister(StageDuration)
		Registry.MustRegister(StrategyWins)
		Registry.MustRegister(QualityWarnings)
		Registry.MustRegister(PartitionIterations)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
