package store

import (
	"context"
	"sync"

	"fleetsplit/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
// It keeps at most Retention runs, dropping the oldest.
type Memory struct {
	mu        sync.Mutex
	runs      map[string]model.RunSummary
	order     []string // oldest first
	Retention int
}

func NewMemory() *Memory {
	return &Memory{runs: map[string]model.RunSummary{}, Retention: 1000}
}

func (m *Memory) SaveRun(_ context.Context, run model.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		m.order = append(m.order, run.ID)
	}
	m.runs[run.ID] = run
	for m.Retention > 0 && len(m.order) > m.Retention {
		delete(m.runs, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (model.RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return model.RunSummary{}, ErrNotFound
	}
	return run, nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]model.RunSummary, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.RunSummary{}
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[m.order[i]])
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
