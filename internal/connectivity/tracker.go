// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

// Package connectivity layers the liveness state machine on top of the
// ledger: explicit connect/disconnect signals plus a periodic inactivity
// sweep.
//
// Two related but distinct signals live here. The Online/Offline state on
// each record is the recency heuristic driven by ingestion and the sweep.
// The session set answers "does this vehicle have an active session right
// now": vehicles join it on explicit connect or on any accepted position
// and leave it on explicit disconnect or sweep demotion. Live views filter
// on it to suppress stale restored records that have not reported since
// startup.
package connectivity

import (
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/fleettrace/internal/ledger"
	"github.com/tomtom215/fleettrace/internal/logging"
	"github.com/tomtom215/fleettrace/internal/metrics"
	"github.com/tomtom215/fleettrace/internal/models"
)

// Notifier receives connectivity transitions for broadcast. Satisfied by
// *broadcast.Broadcaster.
type Notifier interface {
	ConnectivityChanged(vehicleID string, connected bool)
}

// Tracker is the per-vehicle Online/Offline state machine plus the
// session set.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]struct{}

	ledger    *ledger.Ledger
	notifier  Notifier
	threshold time.Duration
	now       func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a tracker over the given ledger. threshold is how long a
// vehicle may stay silent before the sweep demotes it to Offline.
func New(led *ledger.Ledger, notifier Notifier, threshold time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		sessions:  make(map[string]struct{}),
		ledger:    led,
		notifier:  notifier,
		threshold: threshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect records an explicit connect signal: the vehicle joins the
// session set and transitions Online. Idempotent; the broadcast fires
// only on an actual state change.
func (t *Tracker) Connect(vehicleID string) {
	t.mu.Lock()
	t.sessions[vehicleID] = struct{}{}
	t.mu.Unlock()

	if t.ledger.SetConnectivity(vehicleID, models.StateOnline) {
		metrics.SweepTransitions.WithLabelValues("online").Inc()
		t.notify(vehicleID, true)
	}
}

// Disconnect records an explicit disconnect signal: the vehicle leaves
// the session set and transitions Offline.
func (t *Tracker) Disconnect(vehicleID string) {
	t.mu.Lock()
	delete(t.sessions, vehicleID)
	t.mu.Unlock()

	if t.ledger.SetConnectivity(vehicleID, models.StateOffline) {
		metrics.SweepTransitions.WithLabelValues("offline").Inc()
		t.notify(vehicleID, false)
	}
}

// MarkActive is called after a successful ingestion, which already moved
// the record Online inside the ledger's critical section. An actively
// reporting vehicle always has a session: live views and the welcome
// snapshot must include it even if it never sent an explicit connect.
// cameOnline reports whether that ingestion was an actual Offline to
// Online transition, so the connectivity event is emitted exactly once.
func (t *Tracker) MarkActive(vehicleID string, cameOnline bool) {
	t.mu.Lock()
	t.sessions[vehicleID] = struct{}{}
	t.mu.Unlock()

	if !cameOnline {
		return
	}
	metrics.SweepTransitions.WithLabelValues("online").Inc()
	t.notify(vehicleID, true)
}

// ConnectedIDs returns the vehicles with an active session, sorted for
// deterministic output.
func (t *Tracker) ConnectedIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsConnected reports session membership for one vehicle.
func (t *Tracker) IsConnected(vehicleID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[vehicleID]
	return ok
}

// Sweep demotes every Online vehicle whose last update is older than the
// inactivity threshold. Each detected vehicle transitions exactly once;
// the ledger's SetConnectivity is a no-op for vehicles already Offline.
func (t *Tracker) Sweep() {
	start := t.now()
	demoted := 0

	for _, status := range t.ledger.ConnectivityView() {
		if status.State != models.StateOnline {
			continue
		}
		if start.Sub(status.LastUpdate) <= t.threshold {
			continue
		}
		if t.ledger.SetConnectivity(status.ID, models.StateOffline) {
			t.mu.Lock()
			delete(t.sessions, status.ID)
			t.mu.Unlock()

			demoted++
			metrics.SweepTransitions.WithLabelValues("offline").Inc()
			t.notify(status.ID, false)
		}
	}

	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if demoted > 0 {
		logging.Info().Int("vehicles", demoted).Msg("inactivity sweep demoted vehicles to offline")
	}
}

func (t *Tracker) notify(vehicleID string, connected bool) {
	if t.notifier != nil {
		t.notifier.ConnectivityChanged(vehicleID, connected)
	}
}
