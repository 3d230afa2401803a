// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package websocket pushes live security alerts and metric updates to
// connected admin dashboards.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/quillhq/quill/internal/logging"
)

// Message types pushed to admin clients.
const (
	MessageTypeSecurityAlert = "security_alert"
	MessageTypeMetricsUpdate = "metrics_update"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
)

// Message is one frame on the admin channel.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of connected admin clients and fans messages out to
// them. It satisfies the monitor's Broadcaster interface.
type Hub struct {
	mu         sync.Mutex
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
}

// NewHub creates an idle hub; RunWithContext starts it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// BroadcastJSON queues a message for every connected client. Drops the
// message when the queue is full; alert delivery to dashboards is best
// effort, the event log is the durable record.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		logging.Warn().Str("type", messageType).Msg("websocket broadcast queue full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// RunWithContext runs the hub loop until ctx is canceled, then closes every
// client. Designed to sit under a supervisor.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()

		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logging.Info().Int("total_clients", total).Msg("admin websocket client connected")

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Info().Int("total_clients", total).Msg("admin websocket client disconnected")

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// fanOut delivers one message to every client in ID order. A client whose
// queue is full is dropped; a stalled dashboard must not buffer unbounded
// alert history.
func (h *Hub) fanOut(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// shutdown closes every client connection.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	logging.Info().Str("component", "websocket-hub").Msg("websocket hub stopped")
}
