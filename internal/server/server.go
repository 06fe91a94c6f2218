// Package server wires the chat registry, router and connection hub into an
// HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/metrics"
)

// Server owns the process-wide relay state. Construct one per process and
// pass it to the HTTP layer.
type Server struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	registry *chat.Registry
	router   *chat.Router
	hub      *Hub
	upgrader websocket.Upgrader
}

// New builds a Server from cfg. Zero-valued settings fall back to defaults.
func New(cfg Config, log *slog.Logger) (*Server, error) {
	cfg = cfg.sanitized()
	m := metrics.New()

	opts := chat.Options{
		HistoryLimit:        cfg.HistoryLimit,
		GracePeriod:         cfg.RoomGracePeriod,
		TrustClientIdentity: cfg.TrustClientIdentity,
		Logger:              log,
		Metrics:             m,
	}
	registry := chat.NewRegistry(opts)
	router, err := chat.NewRouter(registry, opts)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	origins := newOriginPolicy(cfg.AllowedOrigins, log)
	return &Server{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		registry: registry,
		router:   router,
		hub:      NewHub(log, m),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}, nil
}

// Registry returns the room registry.
func (s *Server) Registry() *chat.Registry {
	return s.registry
}

// Hub returns the connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Shutdown closes every WebSocket connection and stops pending room
// deletions.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.hub.Shutdown(ctx)
	s.registry.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("hub shutdown: %w", err)
	}
	return nil
}
