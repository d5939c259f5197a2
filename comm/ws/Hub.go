package ws

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/offpolicy/harvest/comm"
	"github.com/offpolicy/harvest/policy"
)

// Hub is the learner-side endpoint workers dial into. It fans worker
// emissions into a single intake channel and broadcasts parameter sets
// to every connected worker.
//
// The intake channel is unbuffered beyond the configured capacity:
// when the learner stops draining it, per-connection reads stop too,
// which backpressures workers through the transport instead of
// dropping their batches.
type Hub struct {
	upgrader  websocket.Upgrader
	emissions chan comm.Emission

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

// NewHub returns a Hub whose intake holds up to capacity pending
// emissions
func NewHub(capacity int) (*Hub, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("newhub: capacity must be positive "+
			"\n\thave(%v)", capacity)
	}

	return &Hub{
		upgrader:  websocket.Upgrader{},
		emissions: make(chan comm.Emission, capacity),
		conns:     make(map[*websocket.Conn]bool),
	}, nil
}

// ServeHTTP upgrades a worker connection and serves it until it drops
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == emissionMessage && msg.Emission != nil {
			h.emissions <- *msg.Emission
		}
	}
}

// Emissions returns the learner side of the intake
func (h *Hub) Emissions() <-chan comm.Emission {
	return h.emissions
}

// Broadcast sends a parameter set to every connected worker. Workers
// whose connections fail are dropped; they are expected to redial.
func (h *Hub) Broadcast(params []policy.Tensor) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		err := conn.WriteJSON(message{Type: paramsMessage, Params: params})
		if err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}
