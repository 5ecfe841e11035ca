package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetsplit/internal/model"
)

const schema = `CREATE TABLE IF NOT EXISTS optimization_runs (
    id                 TEXT PRIMARY KEY,
    created_at         TIMESTAMPTZ NOT NULL,
    delivery_count     INTEGER NOT NULL,
    driver_count       INTEGER NOT NULL,
    strategy           TEXT NOT NULL,
    makespan           DOUBLE PRECISION NOT NULL,
    initial_distance   DOUBLE PRECISION NOT NULL,
    optimized_distance DOUBLE PRECISION NOT NULL,
    warnings           JSONB NOT NULL DEFAULT '[]',
    duration_ms        BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS optimization_runs_created_at_idx ON optimization_runs (created_at DESC);`

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the run table when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) SaveRun(ctx context.Context, run model.RunSummary) error {
	warnings, err := json.Marshal(nonNil(run.Warnings))
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO optimization_runs
        (id, created_at, delivery_count, driver_count, strategy, makespan, initial_distance, optimized_distance, warnings, duration_ms)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (id) DO UPDATE SET
            strategy=EXCLUDED.strategy, makespan=EXCLUDED.makespan,
            initial_distance=EXCLUDED.initial_distance, optimized_distance=EXCLUDED.optimized_distance,
            warnings=EXCLUDED.warnings, duration_ms=EXCLUDED.duration_ms`,
		run.ID, run.CreatedAt, run.DeliveryCount, run.DriverCount, run.Strategy, run.Makespan,
		run.InitialDistance, run.OptimizedDistance, string(warnings), run.DurationMs)
	if err != nil {
		return fmt.Errorf("postgres: save run %s: %w", run.ID, err)
	}
	return nil
}

func (p *Postgres) GetRun(ctx context.Context, id string) (model.RunSummary, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM optimization_runs WHERE id=$1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunSummary{}, ErrNotFound
	}
	return run, err
}

func (p *Postgres) ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+runColumns+` FROM optimization_runs ORDER BY created_at DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RunSummary{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

const runColumns = `id, created_at, delivery_count, driver_count, strategy, makespan, initial_distance, optimized_distance, warnings::text, duration_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (model.RunSummary, error) {
	var run model.RunSummary
	var warnings string
	if err := s.Scan(&run.ID, &run.CreatedAt, &run.DeliveryCount, &run.DriverCount, &run.Strategy,
		&run.Makespan, &run.InitialDistance, &run.OptimizedDistance, &warnings, &run.DurationMs); err != nil {
		return model.RunSummary{}, err
	}
	if err := json.Unmarshal([]byte(warnings), &run.Warnings); err != nil {
		return model.RunSummary{}, fmt.Errorf("postgres: decode warnings for %s: %w", run.ID, err)
	}
	return run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
