package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"fleetsplit/internal/config"
	"fleetsplit/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(config.Default())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func postOptimize(t *testing.T, s *Server, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/optimize", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	s.OptimizeHandler(rr, req)
	return rr
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestOptimizeExplicitDeliveries(t *testing.T) {
	s := newTestServer(t)
	rr := postOptimize(t, s, map[string]any{
		"runId":       "run-explicit",
		"driverCount": 2,
		"deliveries": []map[string]int{
			{"id": 1, "x": 0, "y": 10},
			{"id": 2, "x": 10, "y": 10},
			{"id": 3, "x": 10, "y": 0},
			{"id": 4, "x": 0, "y": -10},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
	}
	var resp model.OptimizeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RunID != "run-explicit" {
		t.Fatalf("runId = %q", resp.RunID)
	}
	if len(resp.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(resp.Candidates))
	}
	if len(resp.Best.Drivers) != 2 || len(resp.Best.Cuts) != 1 {
		t.Fatalf("best plan: drivers=%d cuts=%v", len(resp.Best.Drivers), resp.Best.Cuts)
	}
	for _, c := range resp.Candidates {
		if resp.Best.Makespan > c.Makespan+1e-9 {
			t.Fatalf("best makespan %v worse than %s %v", resp.Best.Makespan, c.Strategy, c.Makespan)
		}
	}
	longest := 0.0
	for _, d := range resp.Best.Drivers {
		if d.Stops[0].ID != 0 || d.Stops[len(d.Stops)-1].ID != 0 {
			t.Fatalf("driver %d route not depot bound: %+v", d.Driver, d.Stops)
		}
		if d.Distance > longest {
			longest = d.Distance
		}
	}
	if diff := longest - resp.Best.Makespan; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("makespan %v != longest driver %v", resp.Best.Makespan, longest)
	}

	// the run summary is retrievable afterwards
	rr = httptest.NewRecorder()
	s.RunByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/run-explicit", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("get run: %d", rr.Code)
	}
	var run model.RunSummary
	_ = json.Unmarshal(rr.Body.Bytes(), &run)
	if run.DeliveryCount != 4 || run.DriverCount != 2 || run.Strategy != resp.Best.Strategy {
		t.Fatalf("unexpected summary: %+v", run)
	}

	rr = httptest.NewRecorder()
	s.RunsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=5", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("list runs: %d", rr.Code)
	}
	var list struct {
		Items []model.RunSummary `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list.Items) != 1 || list.Items[0].ID != "run-explicit" {
		t.Fatalf("unexpected list: %+v", list.Items)
	}
}

func TestOptimizeGeneratedIsSeeded(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{
		"deliveryCount": 25, "driverCount": 3,
		"minX": -50, "maxX": 50, "minY": -50, "maxY": 50,
		"seed": 42,
	}
	var first, second model.OptimizeResponse
	for _, dst := range []*model.OptimizeResponse{&first, &second} {
		rr := postOptimize(t, s, body)
		if rr.Code != http.StatusOK {
			t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
		}
		if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	if len(first.Deliveries) != 25 {
		t.Fatalf("deliveries = %d, want 25", len(first.Deliveries))
	}
	for i := range first.Deliveries {
		if first.Deliveries[i] != second.Deliveries[i] {
			t.Fatalf("seeded sampling differs at %d: %+v vs %+v", i, first.Deliveries[i], second.Deliveries[i])
		}
	}
	if first.Best.Makespan != second.Best.Makespan {
		t.Fatalf("makespan not reproducible: %v vs %v", first.Best.Makespan, second.Best.Makespan)
	}
	if first.RunID == second.RunID {
		t.Fatal("runs without runId should get distinct ids")
	}
	if len(first.Best.Drivers) != 3 || len(first.Best.Cuts) != 2 {
		t.Fatalf("drivers=%d cuts=%v", len(first.Best.Drivers), first.Best.Cuts)
	}
}

func TestOptimizeSingleStrategy(t *testing.T) {
	s := newTestServer(t)
	rr := postOptimize(t, s, map[string]any{
		"deliveryCount": 10, "driverCount": 2,
		"minX": 0, "maxX": 20, "minY": 0, "maxY": 20, "seed": 7,
		"strategies": []string{"clarke_wright"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
	}
	var resp model.OptimizeResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Candidates) != 1 || resp.Best.Strategy != "clarke_wright" {
		t.Fatalf("unexpected candidates: %+v", resp.Candidates)
	}
}

func TestOptimizeMoreDriversThanDeliveries(t *testing.T) {
	s := newTestServer(t)
	rr := postOptimize(t, s, map[string]any{
		"driverCount": 4,
		"deliveries":  []map[string]int{{"id": 1, "x": 3, "y": 4}, {"id": 2, "x": -3, "y": 4}},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
	}
	var resp model.OptimizeResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Best.Drivers) != 4 {
		t.Fatalf("drivers = %d, want 4", len(resp.Best.Drivers))
	}
	if resp.Best.Makespan < 10-1e-9 || resp.Best.Makespan > 10+1e-9 {
		t.Fatalf("makespan = %v, want 10", resp.Best.Makespan)
	}
	for _, d := range resp.Best.Drivers[2:] {
		if len(d.Stops) != 2 || d.Distance != 0 {
			t.Fatalf("idle driver %d should have a depot-only route: %+v", d.Driver, d)
		}
	}
}

func TestOptimizeValidation(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		name string
		body any
		want int
	}{
		{"no drivers", map[string]any{"deliveryCount": 3, "driverCount": 0, "maxX": 5, "maxY": 5}, http.StatusBadRequest},
		{"no deliveries", map[string]any{"deliveryCount": 0, "driverCount": 1, "maxX": 5, "maxY": 5}, http.StatusBadRequest},
		{"inverted bounds", map[string]any{"deliveryCount": 3, "driverCount": 1, "minX": 5, "maxX": 1, "maxY": 5}, http.StatusBadRequest},
		{"unknown strategy", map[string]any{"deliveryCount": 3, "driverCount": 1, "maxX": 5, "maxY": 5, "strategies": []string{"genetic"}}, http.StatusBadRequest},
		{"too many drivers", map[string]any{"deliveryCount": 3, "driverCount": 100000, "maxX": 5, "maxY": 5}, http.StatusBadRequest},
		{"duplicate ids", map[string]any{"driverCount": 1, "deliveries": []map[string]int{{"id": 1, "x": 1}, {"id": 1, "x": 2}}}, http.StatusBadRequest},
		{"depot id", map[string]any{"driverCount": 1, "deliveries": []map[string]int{{"id": 0, "x": 1}}}, http.StatusBadRequest},
		{"count mismatch", map[string]any{"deliveryCount": 5, "driverCount": 1, "deliveries": []map[string]int{{"id": 1, "x": 1}}}, http.StatusBadRequest},
		{"box too small", map[string]any{"deliveryCount": 5, "driverCount": 1, "minX": 0, "maxX": 1, "minY": 0, "maxY": 1}, http.StatusUnprocessableEntity},
		{"huge bounds", map[string]any{"deliveryCount": 3, "driverCount": 2, "minX": 0, "maxX": math.MaxInt64, "minY": 0, "maxY": 0, "seed": 1}, http.StatusBadRequest},
		{"huge negative bounds", map[string]any{"deliveryCount": 3, "driverCount": 2, "minX": math.MinInt64, "maxX": 0, "minY": 0, "maxY": 0, "seed": 1}, http.StatusBadRequest},
		{"far deliveries", map[string]any{"driverCount": 1, "deliveries": []map[string]int{{"id": 1, "x": math.MaxInt64}, {"id": 2, "x": math.MinInt64 / 2}}}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postOptimize(t, s, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("got %d, want %d: %s", rr.Code, tc.want, rr.Body.String())
			}
			var p Problem
			if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil || p.Status != tc.want {
				t.Fatalf("expected problem body, got %s", rr.Body.String())
			}
		})
	}

	rr := httptest.NewRecorder()
	s.OptimizeHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize", strings.NewReader("{")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.OptimizeHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/optimize", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET optimize: got %d", rr.Code)
	}
}

func TestOptimizeCoordinateCap(t *testing.T) {
	cfg := config.Default()
	cfg.Optimizer.MaxCoordinate = 100
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	rr := postOptimize(t, s, map[string]any{
		"driverCount": 2,
		"deliveries":  []map[string]int{{"id": 1, "x": 100, "y": -100}, {"id": 2, "x": -100, "y": 100}},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("at the cap: got %d %s", rr.Code, rr.Body.String())
	}

	rr = postOptimize(t, s, map[string]any{
		"driverCount": 2,
		"deliveries":  []map[string]int{{"id": 1, "x": 101, "y": 0}},
	})
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "outside") {
		t.Fatalf("past the cap: got %d %s", rr.Code, rr.Body.String())
	}

	rr = postOptimize(t, s, map[string]any{"deliveryCount": 3, "driverCount": 1, "minX": -101, "maxX": 0, "maxY": 5})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("box past the cap: got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRunNotFound(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.RunByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.RunsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=x", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: got %d", rr.Code)
	}
}

func TestOptimizerConfigAndDebug(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.OptimizerConfigHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/optimizer/config", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("config: %d", rr.Code)
	}
	var cfg map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &cfg)
	if cfg["twoOptMaxSweeps"].(float64) != 10000 {
		t.Fatalf("unexpected config: %v", cfg)
	}

	rr = httptest.NewRecorder()
	s.DebugJSON(rr, httptest.NewRequest(http.MethodGet, "/debug/info", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "goVersion") {
		t.Fatalf("debug: %d %s", rr.Code, rr.Body.String())
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	s := newTestServer(t)
	s.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	mux := http.NewServeMux()
	s.Routes(mux)
	h := s.Middleware(mux)

	body := `{"driverCount":1,"deliveries":[{"id":1,"x":1,"y":1}]}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize", strings.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("first: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize", strings.NewReader(body)))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second: got %d, want 429", rr.Code)
	}
	// reads are not limited
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: got %d", rr.Code)
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/v1/optimize":               "/v1/optimize",
		"/v1/runs/abc":               "/v1/runs/{id}",
		"/v1/runs/abc/events":        "/v1/runs/{id}/events",
		"/v1/runs/abc/events/stream": "/v1/runs/{id}/events/stream",
	}
	for in, want := range cases {
		if got := routeLabel(in); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func newHTTPServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := newTestServer(t)
	mux := http.NewServeMux()
	s.Routes(mux)
	ts := httptest.NewServer(s.Middleware(mux))
	t.Cleanup(ts.Close)
	return s, ts
}

func TestRunEventsSSE(t *testing.T) {
	_, ts := newHTTPServer(t)

	resp, err := http.Get(ts.URL + "/v1/runs/run-sse/events/stream")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
	sc := bufio.NewScanner(resp.Body)
	// the first heartbeat is written after subscribing
	for sc.Scan() {
		if sc.Text() == "" {
			break
		}
	}

	body := `{"runId":"run-sse","driverCount":1,"deliveries":[{"id":1,"x":1,"y":1},{"id":2,"x":2,"y":2}]}`
	presp, err := http.Post(ts.URL+"/v1/optimize", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	_ = presp.Body.Close()
	if presp.StatusCode != http.StatusOK {
		t.Fatalf("optimize status %d", presp.StatusCode)
	}

	var events []string
	for sc.Scan() {
		if ev, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			events = append(events, ev)
		}
	}
	if len(events) < 3 || events[0] != EventRunStarted || events[len(events)-1] != EventRunCompleted {
		t.Fatalf("unexpected events: %v", events)
	}
}

func TestRunEventsWebSocket(t *testing.T) {
	_, ts := newHTTPServer(t)

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/runs/run-ws/events"
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = c.Close() }()
	_ = c.SetReadDeadline(time.Now().Add(10 * time.Second))

	var hello SSEEvent
	if err := c.ReadJSON(&hello); err != nil || hello.Type != "subscribed" {
		t.Fatalf("expected subscribed, got %+v err=%v", hello, err)
	}

	body := `{"runId":"run-ws","driverCount":2,"deliveries":[{"id":1,"x":5,"y":0},{"id":2,"x":-5,"y":0}]}`
	presp, err := http.Post(ts.URL+"/v1/optimize", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	_ = presp.Body.Close()

	progress := 0
	for {
		var evt SSEEvent
		if err := c.ReadJSON(&evt); err != nil {
			t.Fatalf("read: %v (progress=%d)", err, progress)
		}
		if evt.Type == EventProgress {
			progress++
		}
		if evt.Type == EventRunCompleted {
			if evt.Data["makespan"].(float64) != 10 {
				t.Fatalf("makespan = %v, want 10", evt.Data["makespan"])
			}
			break
		}
	}
	if progress == 0 {
		t.Fatal("no progress messages received")
	}
}
