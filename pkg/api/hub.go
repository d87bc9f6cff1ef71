package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sciffer/timewarden/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The daemon binds to loopback; the UI connects from the same host
	CheckOrigin: func(r *http.Request) bool { return true },
}

// refreshMessage is pushed to every connected client after each
// enforcement tick so UIs can re-read usage counters
type refreshMessage struct {
	Event string `json:"event"`
}

// Hub fans enforcement notifications out to connected WebSocket clients.
// It implements the engine's Notifier.
type Hub struct {
	logger *logger.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub creates a notification hub with no clients
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		logger:  log,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// NotifyRefresh broadcasts a refresh message to every client. A failed
// write drops that client.
func (h *Hub) NotifyRefresh() {
	msg := refreshMessage{Event: "refresh"}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug("dropping websocket client", zap.Error(err))
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// HandleWS handles GET /ws/notify: upgrades the connection and registers
// the client for refresh broadcasts
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected", zap.Int("clients", count))

	// Drain inbound frames so pings and close frames are processed; the
	// hub never acts on client messages
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.mu.Lock()
				if _, ok := h.clients[conn]; ok {
					conn.Close()
					delete(h.clients, conn)
				}
				h.mu.Unlock()
				return
			}
		}
	}()
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
