package rtdb

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer
	maxFrameSize = 64 * 1024

	// Outbound frames buffered per peer before it is considered too slow
	sendBuffer = 256
)

// Peer represents a single server-side WebSocket connection.
type Peer struct {
	hub *Hub

	// WebSocket connection
	conn *websocket.Conn

	// Buffered channel of outbound frames
	send chan []byte

	// uid is set by a successful auth; only the read pump writes it
	uid string

	mu     sync.Mutex
	closed bool
}

// NewPeer creates a new Peer instance
func NewPeer(hub *Hub, conn *websocket.Conn) *Peer {
	return &Peer{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// reply queues f without blocking. It reports false when the peer is closed
// or its buffer is full.
func (p *Peer) reply(f Frame) bool {
	data, err := json.Marshal(f)
	if err != nil {
		p.hub.logger.Error().Err(err).Msg("encode frame")
		return true
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

// enqueue queues f, waiting up to timeout for buffer space. It reports
// false when the peer is closed or stays full. Callers hold the hub lock,
// which is the only place the send channel is closed.
func (p *Peer) enqueue(f Frame, timeout time.Duration) bool {
	data, err := json.Marshal(f)
	if err != nil {
		p.hub.logger.Error().Err(err).Msg("encode frame")
		return true
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return false
	}

	select {
	case p.send <- data:
		return true
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p.send <- data:
		return true
	case <-timer.C:
		return false
	}
}

func (p *Peer) closeSend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.send)
	}
}

// ReadPump pumps frames from the WebSocket connection to the hub
// This runs in its own goroutine per peer
func (p *Peer) ReadPump() {
	defer func() {
		select {
		case p.hub.unregister <- p:
		case <-p.hub.done:
		}
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxFrameSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.hub.logger.Debug().Err(err).Str("uid", p.uid).Msg("read error")
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			p.reply(Frame{Op: OpError, Error: "malformed frame"})
			continue
		}
		p.hub.handle(p, f)
	}
}

// WritePump pumps frames from the hub to the WebSocket connection
// This runs in its own goroutine per peer
func (p *Peer) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case data, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Each frame is its own WebSocket message so the client can
			// decode them independently
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
