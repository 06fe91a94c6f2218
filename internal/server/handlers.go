// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the room listing.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// WebSocketHandler handles WebSocket upgrade requests and manages client connections.
// It validates that the request uses the GET method, upgrades the HTTP connection
// to WebSocket, attaches the connection to the room named by the "room" query
// parameter and starts the client's read/write pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "err", err)
		return
	}

	client := NewClient(conn, r.RemoteAddr, s.cfg, s.log)

	query := r.URL.Query()
	session, err := s.router.Open(client, query.Get("room"), query.Get("user"))
	if err != nil && !errors.Is(err, chat.ErrRoomRequired) {
		s.log.Error("open session", "conn", client.ID(), "err", err)
	}

	// The hub launches the pumps; a rejected client only flushes its close frame.
	s.hub.Start(client, session)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "ok")
}

// RoomsHandler lists the live rooms with their member and history counts.
func (s *Server) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.registry.Snapshot()); err != nil {
		s.log.Warn("write rooms response", "err", err)
	}
}
