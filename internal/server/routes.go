// Package server wires HTTP handlers into a ServeMux via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// It sets up handlers for health check, metrics, room listing and the WebSocket endpoint.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/api/rooms", s.RoomsHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	return mux
}
