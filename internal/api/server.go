package api

import (
	"context"
	"log"
	"strings"

	"golang.org/x/time/rate"

	"fleetsplit/internal/config"
	"fleetsplit/internal/pipeline"
	"fleetsplit/internal/store"
	"fleetsplit/internal/webhooks"
)

type Server struct {
	Cfg      config.Config
	Store    store.RunStore
	Broker   EventBroker
	Runner   *pipeline.Runner
	Notifier *webhooks.Notifier
	Limiter  *rate.Limiter
}

// NewServer wires a Server from cfg. Without DATABASE_URL runs are kept in memory;
// without REDIS_URL progress events stay in-process.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.RunStore
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sp.Migrate(context.Background()); err != nil {
			_ = sp.Close()
			return nil, err
		}
		s = sp
	}

	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			log.Printf("redis broker disabled err=%v", err)
		}
	}

	var limiter *rate.Limiter
	if cfg.RateRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst)
	}

	return &Server{
		Cfg:      cfg,
		Store:    s,
		Broker:   broker,
		Runner:   &pipeline.Runner{MaxSweeps: cfg.Optimizer.TwoOptMaxSweeps},
		Notifier: webhooks.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret, cfg.Webhook.MaxAttempts),
		Limiter:  limiter,
	}, nil
}

// Close releases the store and broker connections.
func (s *Server) Close() error {
	if rb, ok := s.Broker.(*RedisBroker); ok {
		_ = rb.Close()
	}
	if c, ok := s.Store.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
