package rtdb

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures a Hub.
type Options struct {
	// APIKey, when set, must be presented by clients signing in.
	APIKey string
	// RequireAuth rejects sub and set frames before a successful auth.
	RequireAuth bool
	Logger      zerolog.Logger
}

// node is one path: its children in insertion order and its subscribers.
type node struct {
	keys        []string
	children    map[string]json.RawMessage
	subscribers map[*Peer]bool
	lastActive  time.Time
}

// Hub maintains the set of connected peers and the children stored under
// each path, and fans child_added events out to path subscribers.
type Hub struct {
	// paths maps a cleaned path to its node
	paths map[string]*node

	// peers is every registered connection
	peers map[*Peer]bool

	// register requests from peers
	register chan *Peer

	// unregister requests from peers
	unregister chan *Peer

	// done is closed when Run returns
	done chan struct{}

	mu sync.Mutex

	apiKey      string
	requireAuth bool
	logger      zerolog.Logger
}

// NewHub creates a new Hub instance
func NewHub(opts Options) *Hub {
	return &Hub{
		paths:       make(map[string]*node),
		peers:       make(map[*Peer]bool),
		register:    make(chan *Peer),
		unregister:  make(chan *Peer),
		done:        make(chan struct{}),
		apiKey:      opts.APIKey,
		requireAuth: opts.RequireAuth,
		logger:      opts.Logger.With().Str("component", "rtdb").Logger(),
	}
}

// Run starts the hub's main event loop and blocks until ctx is cancelled.
// This should be called in a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case p := <-h.register:
			h.mu.Lock()
			h.peers[p] = true
			n := len(h.peers)
			h.mu.Unlock()
			h.logger.Debug().Int("peers", n).Msg("peer connected")

		case p := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(p)
			n := len(h.peers)
			h.mu.Unlock()
			h.logger.Debug().Str("uid", p.uid).Int("peers", n).Msg("peer disconnected")

		case <-ctx.Done():
			h.mu.Lock()
			for p := range h.peers {
				h.dropLocked(p)
			}
			h.mu.Unlock()
			h.logger.Info().Msg("hub stopped")
			return
		}
	}
}

// dropLocked forgets p everywhere and closes its send channel.
func (h *Hub) dropLocked(p *Peer) {
	delete(h.peers, p)
	for _, n := range h.paths {
		delete(n.subscribers, p)
	}
	p.closeSend()
}

// handle processes one frame read from p.
func (h *Hub) handle(p *Peer, f Frame) {
	switch f.Op {
	case OpAuth:
		if h.apiKey != "" && f.Token != h.apiKey {
			p.reply(Frame{Op: OpError, Ref: f.Ref, Error: permissionDenied})
			return
		}
		if p.uid == "" {
			p.uid = uuid.NewString()
		}
		p.reply(Frame{Op: OpAck, Ref: f.Ref, UID: p.uid})

	case OpSubscribe, OpSet:
		if h.requireAuth && p.uid == "" {
			p.reply(Frame{Op: OpError, Ref: f.Ref, Error: permissionDenied})
			return
		}
		path, ok := CleanPath(f.Path)
		if !ok {
			p.reply(Frame{Op: OpError, Ref: f.Ref, Error: "invalid path"})
			return
		}
		if f.Op == OpSubscribe {
			h.subscribe(p, path, f.Ref)
			return
		}
		if f.Key == "" || len(f.Data) == 0 {
			p.reply(Frame{Op: OpError, Ref: f.Ref, Error: "key and data are required"})
			return
		}
		h.set(path, f.Key, f.Data)
		p.reply(Frame{Op: OpAck, Ref: f.Ref})

	default:
		p.reply(Frame{Op: OpError, Ref: f.Ref, Error: "unknown op"})
	}
}

func (h *Hub) nodeLocked(path string) *node {
	n, ok := h.paths[path]
	if !ok {
		n = &node{children: make(map[string]json.RawMessage), subscribers: make(map[*Peer]bool)}
		h.paths[path] = n
	}
	n.lastActive = time.Now()
	return n
}

// subscribe acknowledges the subscription and replays existing children
// under the same lock that guards set, so the peer sees every child once
// and in order. Replay waits for the write pump to drain instead of
// treating a long backlog as a slow peer.
func (h *Hub) subscribe(p *Peer, path string, ref uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.nodeLocked(path)
	n.subscribers[p] = true
	if !p.enqueue(Frame{Op: OpAck, Ref: ref, Path: path}, writeWait) {
		h.dropLocked(p)
		return
	}
	for _, k := range n.keys {
		if !p.enqueue(Frame{Op: OpChildAdded, Path: path, Key: k, Data: n.children[k]}, writeWait) {
			h.logger.Warn().Str("path", path).Str("uid", p.uid).Msg("replay stalled, dropping peer")
			h.dropLocked(p)
			return
		}
	}
	h.logger.Debug().Str("path", path).Int("children", len(n.keys)).Msg("subscribed")
}

// set stores a child. New keys are broadcast; overwrites are silent.
func (h *Hub) set(path, key string, data json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.nodeLocked(path)
	if _, exists := n.children[key]; exists {
		n.children[key] = data
		return
	}
	n.keys = append(n.keys, key)
	n.children[key] = data

	evt := Frame{Op: OpChildAdded, Path: path, Key: key, Data: data}
	for p := range n.subscribers {
		if !p.reply(evt) {
			// Buffer is full, remove them
			h.dropLocked(p)
		}
	}
}

// Prune drops paths that have no subscribers and were last touched before
// threshold. It returns the number of paths removed.
func (h *Hub) Prune(threshold time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for path, n := range h.paths {
		if len(n.subscribers) == 0 && n.lastActive.Before(threshold) {
			delete(h.paths, path)
			removed++
		}
	}
	return removed
}

// PathCount returns the number of paths held in memory.
func (h *Hub) PathCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.paths)
}

// Children returns the keys stored under path in insertion order.
func (h *Hub) Children(path string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.paths[path]
	if !ok {
		return nil
	}
	return append([]string(nil), n.keys...)
}
