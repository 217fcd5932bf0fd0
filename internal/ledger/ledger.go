// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

// Package ledger holds the authoritative in-memory vehicle state for the
// current day: per-vehicle position history, incrementally accumulated
// distance, and connectivity state.
//
// All mutations are serialized under the ledger mutex; this is the single
// serialization domain shared by ingestion, the inactivity sweep, and the
// durable flush. Durable writes are decoupled: mutations raise a coalesced
// dirty signal consumed by the flush service, so a storage hiccup never
// fails an ingestion.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/fleettrace/internal/geo"
	"github.com/tomtom215/fleettrace/internal/logging"
	"github.com/tomtom215/fleettrace/internal/metrics"
	"github.com/tomtom215/fleettrace/internal/models"
	"github.com/tomtom215/fleettrace/internal/store"
)

// ErrNotFound is returned when a vehicle id is unknown to the current day.
var ErrNotFound = errors.New("vehicle not found")

// IngestResult reports the outcome of one accepted position.
type IngestResult struct {
	// Record is a deep copy of the vehicle state after the append.
	Record *models.VehicleRecord

	// CameOnline is true when this ingestion flipped the vehicle from
	// Offline to Online (or created it). Used to emit the connectivity
	// event exactly once.
	CameOnline bool
}

// VehicleStatus is the lightweight view the inactivity sweep iterates:
// no position history, just identity and liveness fields.
type VehicleStatus struct {
	ID         string
	State      models.ConnectivityState
	LastUpdate time.Time
}

// Ledger owns the mutable day partition. Create one per process; it hands
// finished days to the store and rolls over when the UTC date changes.
type Ledger struct {
	mu      sync.RWMutex
	date    string
	records models.DayPartition

	store store.DailyStore
	now   func() time.Time

	// dirty is a coalesced flush signal with capacity 1. markDirty never
	// blocks; the flush service drains it.
	dirty chan struct{}
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock injects a clock, used by tests to drive day rollover and
// inactivity without sleeping.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger for the current UTC day backed by the given store.
func New(st store.DailyStore, opts ...Option) *Ledger {
	l := &Ledger{
		records: models.DayPartition{},
		store:   st,
		now:     time.Now,
		dirty:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.date = models.DayKey(l.now())
	return l
}

// Restore loads today's partition from the store, if any. Called once at
// startup so a restart resumes the day instead of losing it.
func (l *Ledger) Restore() error {
	partition, err := l.store.Load(l.date)
	if err != nil {
		return fmt.Errorf("restore day %s: %w", l.date, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = partition
	metrics.TrackedVehicles.Set(float64(len(l.records)))

	logging.Info().
		Str("date", l.date).
		Int("vehicles", len(partition)).
		Msg("restored day partition")
	return nil
}

// Ingest appends one position for a vehicle, creating the record on the
// first sample. Distance is accumulated incrementally: only the segment
// from the previous position is computed, never the full history.
func (l *Ledger) Ingest(vehicleID string, p models.Position) (IngestResult, error) {
	if vehicleID == "" {
		return IngestResult{}, errors.New("empty vehicle id")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked()

	// LastUpdate is stamped with the server receive time, not the sample
	// timestamp. The inactivity sweep compares against the server clock,
	// so a device with a skewed clock must not look stale on arrival.
	received := l.now()

	rec, ok := l.records[vehicleID]
	cameOnline := false
	if !ok {
		rec = &models.VehicleRecord{
			ID:                vehicleID,
			DisplayName:       models.DefaultDisplayName(vehicleID),
			Positions:         []models.Position{p},
			ConnectivityState: models.StateOnline,
			LastUpdate:        received,
		}
		l.records[vehicleID] = rec
		cameOnline = true
		metrics.TrackedVehicles.Set(float64(len(l.records)))
	} else {
		last := rec.Positions[len(rec.Positions)-1]
		rec.Positions = append(rec.Positions, p)
		rec.CumulativeDistanceKm += geo.DistanceKm(last, p)
		rec.LastUpdate = received
		if rec.ConnectivityState != models.StateOnline {
			rec.ConnectivityState = models.StateOnline
			cameOnline = true
		}
	}

	l.markDirtyLocked()
	return IngestResult{Record: rec.Clone(), CameOnline: cameOnline}, nil
}

// Get returns a copy of one vehicle's record or ErrNotFound.
func (l *Ledger) Get(vehicleID string) (*models.VehicleRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[vehicleID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Snapshot returns the current date key and a deep copy of the partition.
// It takes the write lock because it also checks for day rollover, so a
// day with no ingestion still gets sealed when it ends.
func (l *Ledger) Snapshot() (string, models.DayPartition) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked()
	return l.date, l.records.Clone()
}

// DayStats aggregates the current partition: sum of every vehicle's
// cumulative distance and the count of known vehicles. Checks for day
// rollover first so the reported date never lags the UTC calendar.
func (l *Ledger) DayStats() models.DayStatsEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked()

	var total float64
	for _, rec := range l.records {
		total += rec.CumulativeDistanceKm
	}
	return models.DayStatsEvent{
		Date:            l.date,
		TotalDistanceKm: total,
		VehiclesCount:   len(l.records),
	}
}

// ConnectivityView returns the liveness fields of every known vehicle,
// without copying position history. Used by the inactivity sweep.
func (l *Ledger) ConnectivityView() []VehicleStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]VehicleStatus, 0, len(l.records))
	for id, rec := range l.records {
		out = append(out, VehicleStatus{
			ID:         id,
			State:      rec.ConnectivityState,
			LastUpdate: rec.LastUpdate,
		})
	}
	return out
}

// SetConnectivity transitions one vehicle's state. Returns true only when
// the state actually changed; re-asserting the same state is a no-op so
// callers can broadcast exactly once per transition.
func (l *Ledger) SetConnectivity(vehicleID string, state models.ConnectivityState) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[vehicleID]
	if !ok || rec.ConnectivityState == state {
		return false
	}
	rec.ConnectivityState = state
	l.markDirtyLocked()
	return true
}

// Persist writes the current partition to the durable store. Failures are
// returned to the caller (the flush service), which logs them; in-memory
// state stays authoritative and the next flush self-heals.
func (l *Ledger) Persist() error {
	date, partition := l.Snapshot()
	return l.store.Save(date, partition)
}

// FlushSignal exposes the coalesced dirty channel consumed by the flush
// service.
func (l *Ledger) FlushSignal() <-chan struct{} {
	return l.dirty
}

func (l *Ledger) markDirtyLocked() {
	select {
	case l.dirty <- struct{}{}:
	default:
		// A flush is already pending; it will pick up this change too.
	}
}

// rolloverLocked seals the finished day when the UTC date has changed:
// the old partition is written out one last time and a fresh partition
// starts. Past partitions are never mutated again.
func (l *Ledger) rolloverLocked() {
	today := models.DayKey(l.now())
	if today == l.date {
		return
	}

	if len(l.records) > 0 {
		if err := l.store.Save(l.date, l.records); err != nil {
			logging.Err(err).Str("date", l.date).Msg("failed to seal day partition at rollover")
		}
	}

	logging.Info().Str("from", l.date).Str("to", today).Msg("day rollover")
	l.date = today
	l.records = models.DayPartition{}
	metrics.TrackedVehicles.Set(0)
}
