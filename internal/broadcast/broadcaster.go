// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

// Package broadcast fans accepted telemetry out to realtime observers.
//
// The broadcaster is a stateless relay: it holds no vehicle data of its
// own. Events are published to an in-process Watermill topic and a
// supervised bridge forwards them to the websocket hub. Publishing is
// decoupled from the ingestion critical section; a slow observer degrades
// its own delivery, never the write path.
package broadcast

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/fleettrace/internal/ledger"
	"github.com/tomtom215/fleettrace/internal/logging"
	"github.com/tomtom215/fleettrace/internal/metrics"
	"github.com/tomtom215/fleettrace/internal/models"
)

// Topic is the in-process event topic for realtime telemetry events.
const Topic = "telemetry.events"

// metadataEventType carries the event variant on each message.
const metadataEventType = "event_type"

// NewBus creates the in-process Pub/Sub used between ingestion and the
// websocket bridge. The output buffer absorbs bursts; Persistent is off
// because events are best-effort, at-most-once.
func NewBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, NewWatermillLogger())
}

// Broadcaster publishes realtime events for every accepted position and
// connectivity transition.
type Broadcaster struct {
	pub    message.Publisher
	ledger *ledger.Ledger
}

// New creates a broadcaster publishing to the given bus. The ledger is
// only read, to recompute day aggregates after each accepted position.
func New(pub message.Publisher, led *ledger.Ledger) *Broadcaster {
	return &Broadcaster{pub: pub, ledger: led}
}

// PositionAccepted emits the incremental vehicleUpdate event followed by
// refreshed day-level aggregates.
func (b *Broadcaster) PositionAccepted(vehicleID string, p models.Position) {
	b.publish(models.EventTypeVehicleUpdate, models.NewVehicleUpdateEvent(vehicleID, p))
	b.publish(models.EventTypeDayStats, b.ledger.DayStats())
}

// ConnectivityChanged emits a vehicleConnectionStatus event. Implements
// connectivity.Notifier.
func (b *Broadcaster) ConnectivityChanged(vehicleID string, connected bool) {
	b.publish(models.EventTypeConnectionStatus, models.ConnectionStatusEvent{
		VehicleID: vehicleID,
		Connected: connected,
	})
}

// publish is best-effort: a failed publish is logged and dropped, never
// propagated back to the ingestion path.
func (b *Broadcaster) publish(eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Err(err).Str("event_type", eventType).Msg("failed to marshal realtime event")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(metadataEventType, eventType)

	if err := b.pub.Publish(Topic, msg); err != nil {
		metrics.BroadcastDropped.Inc()
		logging.Err(err).Str("event_type", eventType).Msg("failed to publish realtime event")
		return
	}
	metrics.BroadcastEvents.WithLabelValues(eventType).Inc()
}
