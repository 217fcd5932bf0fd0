// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

// Package websocket maintains the set of realtime observer connections
// and fans telemetry events out to them.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/fleettrace/internal/logging"
	"github.com/tomtom215/fleettrace/internal/metrics"
)

// Message types exchanged with observers. Telemetry event types reuse the
// models.EventType* constants; ping/pong is the keepalive protocol.
const (
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// Message is the envelope written to every observer.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SnapshotProvider returns the welcome messages a freshly subscribed
// observer receives before any live updates: current day stats and the
// last known position of every currently connected vehicle.
type SnapshotProvider func() []Message

// Hub maintains the set of active observers and broadcasts messages to
// them. Each observer has a bounded send buffer; an observer that cannot
// keep up is dropped rather than ever blocking the broadcast loop.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	snapshot   SnapshotProvider
	mu         sync.RWMutex
}

// NewHub creates a hub. snapshot may be nil, in which case new observers
// receive no welcome messages.
func NewHub(snapshot SnapshotProvider) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		snapshot:   snapshot,
	}
}

// RunWithContext runs the hub loop until the context is canceled, then
// closes every observer and returns ctx.Err(). Designed for suture
// supervision.
//
// Lifecycle events are drained before broadcasts so client state is
// consistent when a message fans out; Go's select picks randomly among
// ready channels, so the priority check is explicit.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case msg := <-h.broadcast:
			h.broadcastToClients(msg)
		}
	}
}

// Broadcast queues a message for delivery to all observers. Non-blocking:
// when the hub's own queue is full the message is dropped and counted.
func (h *Hub) Broadcast(messageType string, data interface{}) {
	msg := Message{Type: messageType, Data: data}
	select {
	case h.broadcast <- msg:
	default:
		metrics.BroadcastDropped.Inc()
		logging.Warn().Str("message_type", messageType).Msg("hub broadcast queue full, dropping message")
	}
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("observer connected")

	// Welcome snapshot: day stats plus last known positions, queued
	// ahead of any live updates for this client.
	if h.snapshot == nil {
		return
	}
	for _, msg := range h.snapshot() {
		select {
		case client.send <- msg:
		default:
			metrics.BroadcastDropped.Inc()
		}
	}
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("observer disconnected")
}

// broadcastToClients delivers one message to every observer in id order.
// Observers whose send buffer is full are dropped.
func (h *Hub) broadcastToClients(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- msg:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.BroadcastDropped.Inc()
	}
	if len(toRemove) > 0 {
		metrics.WebSocketClients.Set(float64(len(h.clients)))
		logging.Warn().Int("dropped", len(toRemove)).Msg("dropped slow observers")
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WebSocketClients.Set(0)
	logging.Info().Int("clients_closed", len(clients)).Msg("websocket hub stopped")
}
