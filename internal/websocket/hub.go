// Package websocket implements the push channel: a hub that fans snapshots out
// to every connected listener.
package websocket

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/game-stats/internal/logging"
	"github.com/game-stats/internal/types"
)

const (
	MessageTypeInitial = "initial"
	MessageTypeUpdate  = "update"
	MessageTypePing    = "ping"
	MessageTypePong    = "pong"
)

// Message is the envelope for every pushed message
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage wraps data in an envelope stamped with the current time
func NewMessage(messageType string, data interface{}) Message {
	return Message{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Hub tracks listeners and broadcasts messages to them. Listeners whose send
// buffer is full are considered dead and dropped.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	logger     *logging.Logger
}

// NewHub creates a hub. Run must be called for it to deliver anything.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logging.GetGlobalLogger().WithComponent("websocket-hub"),
	}
}

// Run processes registrations and broadcasts until ctx is done, then closes
// every listener.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.done) })
			count := h.ListenerCount()
			h.closeAll()
			h.logger.WithField("listeners_closed", count).Info("Websocket hub stopped")
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.WithFields(map[string]interface{}{
				"listener_id": client.listenerID,
				"listeners":   total,
			}).Info("Listener connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.WithFields(map[string]interface{}{
				"listener_id": client.listenerID,
				"listeners":   total,
			}).Info("Listener disconnected")

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// Register adds a listener. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a listener
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ListenerCount returns the number of connected listeners
func (h *Hub) ListenerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a message for every listener. It never blocks; when the
// queue is full the message is dropped and an error returned.
func (h *Hub) Broadcast(message Message) error {
	select {
	case h.broadcast <- message:
		return nil
	default:
		h.logger.WithField("message_type", message.Type).Warn("Broadcast queue full, dropping message")
		return fmt.Errorf("broadcast queue full")
	}
}

// BroadcastUpdate pushes a snapshot as an update message
func (h *Hub) BroadcastUpdate(snapshot *types.Snapshot) error {
	return h.Broadcast(NewMessage(MessageTypeUpdate, snapshot))
}

func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// stable order keeps delivery deterministic
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var dead []*Client
	for _, client := range clients {
		if !client.Send(message) {
			dead = append(dead, client)
		}
	}

	for _, client := range dead {
		client.closeSend()
		delete(h.clients, client)
		h.logger.WithField("listener_id", client.listenerID).Warn("Dropping unresponsive listener")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}
}
