// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

package broadcast

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	ws "github.com/tomtom215/fleettrace/internal/websocket"
)

// Bridge subscribes to the telemetry event topic and forwards every event
// to the websocket hub. It is the hand-off point that keeps fan-out out
// of the ingestion critical section.
type Bridge struct {
	sub message.Subscriber
	hub *ws.Hub
}

// NewBridge creates a bridge from the bus to the hub.
func NewBridge(sub message.Subscriber, hub *ws.Hub) *Bridge {
	return &Bridge{sub: sub, hub: hub}
}

// Run consumes events until the context is canceled. Designed for suture
// supervision; returns ctx.Err() on shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	msgs, err := b.sub.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", Topic, err)
	}

	for msg := range msgs {
		eventType := msg.Metadata.Get(metadataEventType)
		b.hub.Broadcast(eventType, json.RawMessage(msg.Payload))
		msg.Ack()
	}
	return ctx.Err()
}
