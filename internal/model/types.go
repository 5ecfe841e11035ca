package model

import "time"

// Wire types for the optimize API and run history.

type Point struct {
	ID int `json:"id"`
	X  int `json:"x"`
	Y  int `json:"y"`
}

type OptimizeRequest struct {
	RunID         string  `json:"runId,omitempty"`
	DeliveryCount int     `json:"deliveryCount"`
	DriverCount   int     `json:"driverCount"`
	MinX          int     `json:"minX"`
	MaxX          int     `json:"maxX"`
	MinY          int     `json:"minY"`
	MaxY          int     `json:"maxY"`
	Seed          int64   `json:"seed,omitempty"`
	Deliveries    []Point `json:"deliveries,omitempty"`
	// Strategies restricts the construction heuristics tried; empty means all.
	Strategies []string `json:"strategies,omitempty"`
}

type DriverRoute struct {
	Driver   int     `json:"driver"`
	Stops    []Point `json:"stops"`
	Distance float64 `json:"distance"`
}

type StrategyResult struct {
	Strategy          string        `json:"strategy"`
	InitialDistance   float64       `json:"initialDistance"`
	OptimizedDistance float64       `json:"optimizedDistance"`
	Makespan          float64       `json:"makespan"`
	Cuts              []int         `json:"cuts"`
	Route             []Point       `json:"route"`
	Drivers           []DriverRoute `json:"drivers"`
	TwoOptSweeps      int           `json:"twoOptSweeps"`
	TwoOptSwaps       int           `json:"twoOptSwaps"`
	SearchIterations  int           `json:"searchIterations"`
	Warnings          []string      `json:"warnings,omitempty"`
	ElapsedMs         int64         `json:"elapsedMs"`
}

type OptimizeResponse struct {
	RunID      string           `json:"runId"`
	Deliveries []Point          `json:"deliveries"`
	Best       StrategyResult   `json:"best"`
	Candidates []StrategyResult `json:"candidates"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// RunSummary is what the service remembers about a run. Routes are not kept.
type RunSummary struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"createdAt"`
	DeliveryCount     int       `json:"deliveryCount"`
	DriverCount       int       `json:"driverCount"`
	Strategy          string    `json:"strategy"`
	Makespan          float64   `json:"makespan"`
	InitialDistance   float64   `json:"initialDistance"`
	OptimizedDistance float64   `json:"optimizedDistance"`
	Warnings          []string  `json:"warnings,omitempty"`
	DurationMs        int64     `json:"durationMs"`
}
