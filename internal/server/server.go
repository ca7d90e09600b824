package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"stackedfour-server/internal/store"
)

// Inbound frames per connection per second before throttling kicks in.
const (
	rateLimitFrames = 10
	rateLimitWindow = time.Second
)

type Server struct {
	cfg         Config
	store       store.Store
	health      HealthReporter
	registry    *Registry
	coordinator *Coordinator
	limiter     *RateLimiter
}

// New wires the core around an already-connected store. Registry and
// coordinator live for the process lifetime and are shared by every
// connection task.
func New(cfg Config, st store.Store, health HealthReporter) *Server {
	registry := NewRegistry()

	return &Server{
		cfg:         cfg,
		store:       st,
		health:      health,
		registry:    registry,
		coordinator: NewCoordinator(st, registry),
		limiter:     NewRateLimiter(rateLimitFrames, rateLimitWindow),
	}
}

// NewServer loads config, connects the Postgres store (applying the schema),
// and returns the HTTP server plus the store handle for shutdown.
func NewServer(ctx context.Context) (*http.Server, *store.Postgres, error) {
	cfg := LoadConfig()

	pg, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect store: %w", err)
	}

	srv := New(cfg, pg, pg)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return httpServer, pg, nil
}
