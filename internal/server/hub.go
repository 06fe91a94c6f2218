// Package server tracks live WebSocket clients and their pump goroutines via
// the Hub type so they can be closed on shutdown.
package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/metrics"
)

// Hub keeps track of every open client. Room membership lives in the chat
// registry; the hub only owns connection lifetime.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mutex    sync.Mutex
	clients  map[chat.ConnID]*Client
	shutdown bool
	wg       sync.WaitGroup
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		log:     log,
		metrics: m,
		clients: make(map[chat.ConnID]*Client),
	}
}

// Start registers the client and launches its pumps. Frames are routed to
// session, which may be nil for a rejected connection. It returns false if
// the hub is shutting down, in which case the client is closed.
func (h *Hub) Start(client *Client, session *chat.Session) bool {
	h.mutex.Lock()
	if h.shutdown {
		h.mutex.Unlock()
		if session != nil {
			session.Close()
		}
		_ = client.Close(websocket.CloseGoingAway, "server shutting down")
		// Flushes the close frame, then closes the socket.
		client.writePump()
		return false
	}
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.wg.Add(2)
	h.mutex.Unlock()

	h.metrics.ConnOpened()
	h.log.Info("client registered", "conn", client.id, "addr", client.addr, "clients", clientCount)

	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump(session, func() { h.unregister(client) })
	}()
	return true
}

func (h *Hub) unregister(client *Client) {
	h.mutex.Lock()
	_, ok := h.clients[client.id]
	delete(h.clients, client.id)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if ok {
		h.metrics.ConnClosed()
		h.log.Info("client unregistered", "conn", client.id, "addr", client.addr, "clients", clientCount)
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Shutdown closes every client with a going-away close frame and waits for
// all pump goroutines to finish or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Info("initiating hub shutdown")

	h.mutex.Lock()
	h.shutdown = true
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if err := client.Close(websocket.CloseGoingAway, "server shutting down"); err != nil {
			h.log.Warn("close client", "conn", client.id, "err", err)
		}
	}
	h.log.Info("closed client connections", "count", len(clients))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-ctx.Done():
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return ctx.Err()
	}
}
