// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/tomtom215/fleettrace/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// startHub runs a hub until the test ends.
func startHub(t *testing.T, snapshot SnapshotProvider) *Hub {
	t.Helper()
	hub := NewHub(snapshot)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	time.Sleep(10 * time.Millisecond)
	return hub
}

// testClient creates a client without a network connection.
func testClient(hub *Hub) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		send: make(chan Message, 256),
	}
}

func registerAndWait(hub *Hub, client *Client) {
	hub.Register <- client
	time.Sleep(20 * time.Millisecond)
}

func TestRegisterUnregister(t *testing.T) {
	hub := startHub(t, nil)
	client := testClient(hub)

	registerAndWait(hub, client)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("ClientCount() = %d, want 1", got)
	}

	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("ClientCount() = %d, want 0", got)
	}

	// The send channel is closed on unregister.
	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel, got a message")
		}
	case <-time.After(time.Second):
		t.Error("send channel not closed after unregister")
	}
}

func TestSnapshotDeliveredOnRegister(t *testing.T) {
	snapshot := func() []Message {
		return []Message{
			{Type: "dayStats", Data: map[string]int{"vehiclesCount": 2}},
			{Type: "vehicleUpdate", Data: map[string]string{"vehicleId": "bus-1"}},
		}
	}
	hub := startHub(t, snapshot)
	client := testClient(hub)

	registerAndWait(hub, client)

	for _, wantType := range []string{"dayStats", "vehicleUpdate"} {
		select {
		case msg := <-client.send:
			if msg.Type != wantType {
				t.Errorf("snapshot message type = %q, want %q", msg.Type, wantType)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q snapshot message", wantType)
		}
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := startHub(t, nil)

	clients := []*Client{testClient(hub), testClient(hub), testClient(hub)}
	for _, c := range clients {
		registerAndWait(hub, c)
	}

	hub.Broadcast("vehicleUpdate", map[string]string{"vehicleId": "bus-1"})

	for i, c := range clients {
		select {
		case msg := <-c.send:
			if msg.Type != "vehicleUpdate" {
				t.Errorf("client %d message type = %q, want vehicleUpdate", i, msg.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %d never received the broadcast", i)
		}
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := startHub(t, nil)

	slow := &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		send: make(chan Message), // unbuffered and never read
	}
	healthy := testClient(hub)

	registerAndWait(hub, slow)
	registerAndWait(hub, healthy)

	hub.Broadcast("vehicleUpdate", nil)
	time.Sleep(50 * time.Millisecond)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("ClientCount() = %d, want 1 (slow client dropped)", got)
	}

	select {
	case msg := <-healthy.send:
		if msg.Type != "vehicleUpdate" {
			t.Errorf("healthy client message type = %q", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("healthy client never received the broadcast")
	}
}

func TestShutdownClosesClients(t *testing.T) {
	hub := NewHub(nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- hub.RunWithContext(ctx)
	}()
	time.Sleep(10 * time.Millisecond)

	client := testClient(hub)
	registerAndWait(hub, client)

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop on context cancellation")
	}

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel after shutdown")
		}
	case <-time.After(time.Second):
		t.Error("send channel not closed after shutdown")
	}
}
