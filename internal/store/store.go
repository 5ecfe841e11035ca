package store

import (
	"context"
	"errors"

	"fleetsplit/internal/model"
)

// RunStore keeps summaries of past optimization runs.
type RunStore interface {
	SaveRun(ctx context.Context, run model.RunSummary) error
	GetRun(ctx context.Context, id string) (model.RunSummary, error)
	// ListRuns returns the newest runs first.
	ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error)
	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
