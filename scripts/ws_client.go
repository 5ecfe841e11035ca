// Package main runs a demo WebSocket client that watches an optimization run.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	deliveries, drivers := 200, 5
	if v, err := strconv.Atoi(os.Getenv("DELIVERIES")); err == nil {
		deliveries = v
	}
	if v, err := strconv.Atoi(os.Getenv("DRIVERS")); err == nil {
		drivers = v
	}
	runID := uuid.NewString()

	// Subscribe before starting the run so no progress is missed
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + runID + "/events"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m event
			if err := c.ReadJSON(&m); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("read: %v", err)
				}
				return
			}
			if msg, ok := m.Data["message"]; ok {
				log.Printf("WS <- %s: %v", m.Type, msg)
				continue
			}
			log.Printf("WS <- %s: %v", m.Type, m.Data)
		}
	}()

	body, _ := json.Marshal(map[string]any{
		"runId":         runID,
		"deliveryCount": deliveries,
		"driverCount":   drivers,
		"minX":          -1000,
		"maxX":          1000,
		"minY":          -1000,
		"maxY":          1000,
	})
	base := fmt.Sprintf("http://localhost:%s", port)
	resp, err := http.Post(base+"/v1/optimize", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var out struct {
		Best struct {
			Strategy string  `json:"strategy"`
			Makespan float64 `json:"makespan"`
		} `json:"best"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatal(err)
	}
	log.Printf("run=%s status=%d strategy=%s makespan=%.2f", runID, resp.StatusCode, out.Best.Strategy, out.Best.Makespan)
	<-done
}
