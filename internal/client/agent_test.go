// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleettrace/internal/config"
	"github.com/tomtom215/fleettrace/internal/models"
)

// fakeSender fails while down is true and records what it accepted.
type fakeSender struct {
	mu   sync.Mutex
	down bool
	sent []float64
}

func (f *fakeSender) Send(_ context.Context, p models.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("server unreachable")
	}
	f.sent = append(f.sent, p.Latitude)
	return nil
}

func (f *fakeSender) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeSender) all() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.sent))
	copy(out, f.sent)
	return out
}

func testTrackerConfig() config.TrackerConfig {
	return config.TrackerConfig{
		ServerURL:      "http://127.0.0.1:0",
		VehicleID:      "bus-1",
		SubmitTimeout:  time.Second,
		SubmitInterval: 10 * time.Millisecond,
		RetryInterval:  10 * time.Millisecond,
		QueueCapacity:  100,
	}
}

func TestSubmitQueuesOnFailure(t *testing.T) {
	sender := &fakeSender{down: true}
	agent := NewAgent(sender, testTrackerConfig())

	agent.Submit(context.Background(), posN(0))
	agent.Submit(context.Background(), posN(1))

	if got := agent.Queue().Len(); got != 2 {
		t.Fatalf("queue length = %d, want 2", got)
	}
	if len(sender.all()) != 0 {
		t.Errorf("sender accepted positions while down: %v", sender.all())
	}
}

func TestSubmitDrainsBacklogBeforeLiveSend(t *testing.T) {
	sender := &fakeSender{down: true}
	agent := NewAgent(sender, testTrackerConfig())

	agent.Submit(context.Background(), posN(0))
	agent.Submit(context.Background(), posN(1))
	sender.setDown(false)
	agent.Submit(context.Background(), posN(2))

	want := []float64{0, 1, 2}
	got := sender.all()
	if len(got) != len(want) {
		t.Fatalf("sent = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent = %v, want %v (order preserved)", got, want)
		}
	}
	if agent.Queue().Len() != 0 {
		t.Errorf("queue length = %d, want 0 after recovery", agent.Queue().Len())
	}
}

func TestRunRetriesOnTicker(t *testing.T) {
	sender := &fakeSender{down: true}
	agent := NewAgent(sender, testTrackerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	positions := make(chan models.Position, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = agent.Run(ctx, positions)
	}()

	positions <- posN(0)
	time.Sleep(30 * time.Millisecond)
	if agent.Queue().Len() != 1 {
		t.Fatalf("queue length = %d, want 1 while server down", agent.Queue().Len())
	}

	sender.setDown(false)
	time.Sleep(50 * time.Millisecond)

	if agent.Queue().Len() != 0 {
		t.Errorf("queue length = %d, want 0 after retry drain", agent.Queue().Len())
	}
	if got := sender.all(); len(got) != 1 || got[0] != 0 {
		t.Errorf("sent = %v, want [0]", got)
	}

	close(positions)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after input channel closed")
	}
}

func TestSenderAgainstHTTPServer(t *testing.T) {
	var mu sync.Mutex
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/location" {
			t.Errorf("path = %q, want /api/v1/location", r.URL.Path)
		}
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		received = append(received, payload["vehicleId"].(string))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	cfg := testTrackerConfig()
	cfg.ServerURL = srv.URL
	sender := NewSender(cfg)

	if err := sender.Send(context.Background(), posN(1)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "bus-1" {
		t.Errorf("received = %v, want one submission for bus-1", received)
	}
}

func TestSenderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := testTrackerConfig()
	cfg.ServerURL = srv.URL
	sender := NewSender(cfg)

	if err := sender.Send(context.Background(), posN(1)); err == nil {
		t.Error("Send() expected error on 400 response")
	}
}
