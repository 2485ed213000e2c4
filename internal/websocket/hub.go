// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Event is the wire format pushed to connected clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

const (
	eventConnected    = "connected"
	eventSessionEnded = "session_ended"
)

// Hub tracks connected clients by credential id and pushes session
// lifecycle events to them. It exists so a logout on one device can force
// other devices of the same credential to re-authenticate.
type Hub struct {
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	events     chan targetedEvent
	done       chan struct{}

	logger *zap.Logger
}

type targetedEvent struct {
	credentialID string
	event        *Event
	disconnect   bool
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan targetedEvent, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the client registry until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

// SessionEnded notifies every connection of the credential that a session
// was revoked, then drops the connections. Non-blocking.
func (h *Hub) SessionEnded(credentialID string) {
	select {
	case h.events <- targetedEvent{
		credentialID: credentialID,
		event:        &Event{Type: eventSessionEnded, Data: map[string]string{"reason": "logged_out"}},
		disconnect:   true,
	}:
	default:
		h.logger.Warn("event channel full, dropping session event",
			zap.String("cred_id", credentialID))
	}
}

// ConnectedClients reports how many connections a credential has.
func (h *Hub) ConnectedClients(credentialID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[credentialID])
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.clients[client.credentialID] == nil {
		h.clients[client.credentialID] = make(map[*Client]bool)
	}
	h.clients[client.credentialID][client] = true
	h.mu.Unlock()

	h.logger.Info("ws client connected",
		zap.String("cred_id", client.credentialID),
		zap.String("session_id", client.sessionID))

	client.Send(&Event{Type: eventConnected, Data: map[string]string{
		"session_id": client.sessionID,
	}})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.credentialID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	client.Close()
	if len(clients) == 0 {
		delete(h.clients, client.credentialID)
	}

	h.logger.Info("ws client disconnected",
		zap.String("cred_id", client.credentialID),
		zap.String("session_id", client.sessionID))
}

func (h *Hub) deliver(ev targetedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[ev.credentialID]
	if !ok {
		return
	}
	for client := range clients {
		client.Send(ev.event)
		if ev.disconnect {
			client.Close()
		}
	}
	if ev.disconnect {
		delete(h.clients, ev.credentialID)
	}
}

// drop hands a client back to the hub for removal. The done case keeps pump
// goroutines from blocking on a hub that already stopped.
func (h *Hub) drop(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[string]map[*Client]bool)
}
