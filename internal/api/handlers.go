package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleetsplit/internal/buildinfo"
	"fleetsplit/internal/generate"
	"fleetsplit/internal/geo"
	"fleetsplit/internal/metrics"
	"fleetsplit/internal/model"
	"fleetsplit/internal/obs"
	"fleetsplit/internal/opt"
	"fleetsplit/internal/pipeline"
	"fleetsplit/internal/store"
)

// Event types published on a run's channel.
const (
	EventRunStarted   = "run.started"
	EventProgress     = "progress"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

const notifyTimeout = 2 * time.Minute

// OptimizeHandler handles POST /v1/optimize.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.OptimizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		metrics.OptimizeRuns.WithLabelValues("invalid").Inc()
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateOptimizeRequest(&req, s.Cfg.Optimizer); err != nil {
		metrics.OptimizeRuns.WithLabelValues("invalid").Inc()
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}

	deliveries, err := requestDeliveries(&req)
	if err != nil {
		metrics.OptimizeRuns.WithLabelValues("invalid").Inc()
		writeProblem(w, http.StatusUnprocessableEntity, "Cannot generate deliveries", err.Error(), r.URL.Path)
		return
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx := obs.WithRunID(r.Context(), runID)
	if s.Cfg.Optimizer.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Cfg.Optimizer.RunTimeout)
		defer cancel()
	}

	runner := *s.Runner
	runner.Strategies = nil
	for _, name := range req.Strategies {
		st, _ := opt.ParseStrategy(name)
		runner.Strategies = append(runner.Strategies, st)
	}

	started := time.Now()
	s.Broker.Publish(runID, SSEEvent{Type: EventRunStarted, Data: map[string]any{
		"runId": runID, "deliveries": len(deliveries), "drivers": req.DriverCount,
	}})
	plan, err := runner.Run(ctx, deliveries, req.DriverCount, func(msg string) {
		s.Broker.Publish(runID, SSEEvent{Type: EventProgress, Data: map[string]any{"runId": runID, "message": msg}})
	})
	if err != nil {
		metrics.OptimizeRuns.WithLabelValues("failed").Inc()
		s.Broker.Publish(runID, SSEEvent{Type: EventRunFailed, Data: map[string]any{"runId": runID, "error": err.Error()}})
		log.Printf("optimize run_id=%s err=%v", runID, err)
		switch {
		case errors.Is(err, pipeline.ErrInvalidInput):
			writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		case errors.Is(err, context.DeadlineExceeded):
			writeProblem(w, http.StatusGatewayTimeout, "Optimization timed out", err.Error(), r.URL.Path)
		default:
			writeProblem(w, http.StatusInternalServerError, "Optimization failed", err.Error(), r.URL.Path)
		}
		return
	}

	summary := model.RunSummary{
		ID:                runID,
		CreatedAt:         started.UTC(),
		DeliveryCount:     len(deliveries),
		DriverCount:       req.DriverCount,
		Strategy:          string(plan.Best.Strategy),
		Makespan:          plan.Best.Makespan,
		InitialDistance:   plan.Best.InitialDistance,
		OptimizedDistance: plan.Best.OptimizedDistance,
		Warnings:          plan.Warnings(),
		DurationMs:        time.Since(started).Milliseconds(),
	}
	if err := s.Store.SaveRun(r.Context(), summary); err != nil {
		log.Printf("save run run_id=%s err=%v", runID, err)
	}
	metrics.OptimizeRuns.WithLabelValues("ok").Inc()
	metrics.StrategyWins.WithLabelValues(summary.Strategy).Inc()
	s.Broker.Publish(runID, SSEEvent{Type: EventRunCompleted, Data: map[string]any{
		"runId": runID, "strategy": summary.Strategy, "makespan": summary.Makespan,
	}})
	if s.Notifier.Enabled() {
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := s.Notifier.Notify(nctx, EventRunCompleted, summary); err != nil {
				log.Printf("notify run_id=%s err=%v", runID, err)
			}
		}()
	}

	resp := model.OptimizeResponse{
		RunID:      runID,
		Deliveries: toPoints(deliveries),
		Best:       toStrategyResult(plan.Best),
		Warnings:   summary.Warnings,
	}
	for _, c := range plan.Candidates {
		resp.Candidates = append(resp.Candidates, toStrategyResult(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// requestDeliveries returns the explicit deliveries or samples a seeded set.
func requestDeliveries(req *model.OptimizeRequest) ([]geo.Delivery, error) {
	if len(req.Deliveries) > 0 {
		out := make([]geo.Delivery, len(req.Deliveries))
		for i, p := range req.Deliveries {
			out[i] = geo.Delivery{ID: p.ID, X: p.X, Y: p.Y}
		}
		return out, nil
	}
	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
		req.Seed = seed
	}
	return generate.Deliveries(rand.New(rand.NewSource(seed)), req.DeliveryCount, requestBounds(req))
}

func toPoints(ds []geo.Delivery) []model.Point {
	out := make([]model.Point, len(ds))
	for i, d := range ds {
		out[i] = model.Point{ID: d.ID, X: d.X, Y: d.Y}
	}
	return out
}

func toStrategyResult(res pipeline.Result) model.StrategyResult {
	out := model.StrategyResult{
		Strategy:          string(res.Strategy),
		InitialDistance:   res.InitialDistance,
		OptimizedDistance: res.OptimizedDistance,
		Makespan:          res.Makespan,
		Cuts:              res.Cuts,
		Route:             toPoints(res.Route),
		TwoOptSweeps:      res.TwoOpt.Sweeps,
		TwoOptSwaps:       res.TwoOpt.Swaps,
		SearchIterations:  res.Partition.Iterations,
		Warnings:          res.Warnings,
		ElapsedMs:         res.Elapsed.Milliseconds(),
	}
	if out.Cuts == nil {
		out.Cuts = []int{}
	}
	for _, d := range res.Drivers {
		out.Drivers = append(out.Drivers, model.DriverRoute{Driver: d.Driver, Stops: toPoints(d.Route), Distance: d.Distance})
	}
	return out
}

// RunsHandler handles GET /v1/runs.
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", fmt.Sprintf("limit %q", v), r.URL.Path)
			return
		}
		limit = n
	}
	runs, err := s.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": runs})
}

// RunByIDHandler serves /v1/runs/{id}, /v1/runs/{id}/events (websocket) and
// /v1/runs/{id}/events/stream (SSE).
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	id := parts[0]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Run not found", "missing run id", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch {
	case len(parts) == 1:
		run, err := s.Store.GetRun(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Run not found", err.Error(), r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Get run failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, run)
	case len(parts) == 2 && parts[1] == "events":
		s.RunEventsWS(w, r, id)
	case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream":
		s.runEventsSSE(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not found", "", r.URL.Path)
	}
}

func (s *Server) runEventsSSE(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"runId\":%q,\"ts\":%q}\n\n", id, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
			if terminal(evt) {
				return
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}

// OptimizerConfigHandler handles GET /v1/optimizer/config.
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	strategies := make([]string, len(opt.Strategies))
	for i, st := range opt.Strategies {
		strategies[i] = string(st)
	}
	oc := s.Cfg.Optimizer
	writeJSON(w, http.StatusOK, map[string]any{
		"strategies":      strategies,
		"twoOptMaxSweeps": oc.TwoOptMaxSweeps,
		"runTimeoutMs":    oc.RunTimeout.Milliseconds(),
		"maxDeliveries":   oc.MaxDeliveries,
		"maxDrivers":      oc.MaxDrivers,
		"maxCoordinate":   oc.MaxCoordinate,
		"epsilon":         opt.Epsilon,
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                 s.Cfg.Port,
			"RATE_RPS":             s.Cfg.RateRPS,
			"RATE_BURST":           s.Cfg.RateBurst,
			"WEBHOOK_MAX_ATTEMPTS": s.Cfg.Webhook.MaxAttempts,
			"HAS_WEBHOOK_URL":      s.Cfg.Webhook.URL != "",
			"HAS_DATABASE_URL":     s.Cfg.DatabaseURL != "",
			"HAS_REDIS_URL":        s.Cfg.RedisURL != "",
		},
	})
}

// Routes registers every endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/optimize", s.OptimizeHandler)
	mux.HandleFunc("/v1/optimizer/config", s.OptimizerConfigHandler)
	mux.HandleFunc("/v1/runs", s.RunsHandler)
	mux.HandleFunc("/v1/runs/", s.RunByIDHandler) // includes /events and /events/stream
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.HandleFunc("/debug/info", s.DebugJSON)
}
