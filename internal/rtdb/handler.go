package rtdb

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader upgrades HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow connections from any origin (CORS handled by middleware)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves the realtime store over WebSocket.
type Handler struct {
	hub *Hub
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeWS handles WebSocket upgrade requests. Authentication happens inside
// the connection with an auth frame.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	peer := NewPeer(h.hub, conn)
	select {
	case h.hub.register <- peer:
	case <-h.hub.done:
		conn.Close()
		return
	}

	// Start read/write pumps in separate goroutines
	go peer.WritePump()
	go peer.ReadPump()
}
