// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

package models

import "time"

// Realtime event types published on the broadcast channel. These form a
// closed set; payloads are fixed-field structs validated at the ingestion
// boundary, never free-form maps.
const (
	EventTypeVehicleUpdate    = "vehicleUpdate"
	EventTypeConnectionStatus = "vehicleConnectionStatus"
	EventTypeDayStats         = "dayStats"
)

// VehicleUpdateEvent is the incremental per-position update fanned out to
// every subscriber after a sample is accepted.
type VehicleUpdateEvent struct {
	VehicleID string    `json:"vehicleId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
}

// NewVehicleUpdateEvent builds the update event for an accepted position.
func NewVehicleUpdateEvent(vehicleID string, p Position) VehicleUpdateEvent {
	return VehicleUpdateEvent{
		VehicleID: vehicleID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Timestamp: p.Timestamp,
		Speed:     p.SpeedMPS,
		Heading:   p.HeadingDegrees,
	}
}

// ConnectionStatusEvent signals an Online/Offline transition for one vehicle.
type ConnectionStatusEvent struct {
	VehicleID string `json:"vehicleId"`
	Connected bool   `json:"connected"`
}

// DayStatsEvent carries the day-level aggregates recomputed after every
// accepted position.
type DayStatsEvent struct {
	Date            string  `json:"date"`
	TotalDistanceKm float64 `json:"totalDistanceKm"`
	VehiclesCount   int     `json:"vehiclesCount"`
}
