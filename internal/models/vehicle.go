// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

// Package models defines the core domain types shared across Fleettrace:
// telemetry samples, per-vehicle daily records, day partitions, and the
// closed set of realtime event payloads.
package models

import (
	"fmt"
	"time"
)

// ConnectivityState classifies a vehicle as Online or Offline.
// It is driven by ingestion activity, explicit connect/disconnect signals,
// and the inactivity sweep.
type ConnectivityState string

const (
	// StateOnline means the vehicle has submitted telemetry recently or
	// an explicit connect signal was received.
	StateOnline ConnectivityState = "online"

	// StateOffline means the vehicle disconnected or exceeded the
	// inactivity threshold.
	StateOffline ConnectivityState = "offline"
)

// Position is a single timestamped GPS sample. Immutable once created.
type Position struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	SpeedMPS       float64   `json:"speed"`
	HeadingDegrees float64   `json:"heading"`
	Timestamp      time.Time `json:"timestamp"`
}

// VehicleRecord is the accumulated state for one tracked vehicle for the
// current day. Positions are append-only in arrival order and are never
// reordered or deduplicated. CumulativeDistanceKm is maintained
// incrementally on every append and is monotonically non-decreasing
// within a day.
type VehicleRecord struct {
	ID                   string            `json:"id"`
	DisplayName          string            `json:"name"`
	Positions            []Position        `json:"positions"`
	CumulativeDistanceKm float64           `json:"totalDistanceKm"`
	ConnectivityState    ConnectivityState `json:"status"`
	LastUpdate           time.Time         `json:"lastUpdate"`
}

// LastPosition returns the most recent sample. The second return value is
// false only for a zero-value record; a record created by ingestion always
// has at least one position.
func (v *VehicleRecord) LastPosition() (Position, bool) {
	if len(v.Positions) == 0 {
		return Position{}, false
	}
	return v.Positions[len(v.Positions)-1], true
}

// Clone returns a deep copy so that callers can hand records across
// goroutine boundaries without sharing the positions slice.
func (v *VehicleRecord) Clone() *VehicleRecord {
	c := *v
	c.Positions = make([]Position, len(v.Positions))
	copy(c.Positions, v.Positions)
	return &c
}

// DefaultDisplayName derives a human-readable name from a vehicle id,
// matching the naming used on the dashboard.
func DefaultDisplayName(vehicleID string) string {
	return fmt.Sprintf("Vehicle %s", vehicleID)
}

// DayPartition maps vehicle id to its record for one calendar date (UTC).
// Exactly one partition is current and mutable; all others are durable-only
// read-only history.
type DayPartition map[string]*VehicleRecord

// Clone deep-copies the partition.
func (p DayPartition) Clone() DayPartition {
	out := make(DayPartition, len(p))
	for id, rec := range p {
		out[id] = rec.Clone()
	}
	return out
}

// DayKeyFormat is the layout for date partition keys.
const DayKeyFormat = "2006-01-02"

// DayKey returns the UTC date partition key for t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyFormat)
}

// ParseDayKey validates a YYYY-MM-DD date key.
func ParseDayKey(key string) (time.Time, error) {
	return time.Parse(DayKeyFormat, key)
}
