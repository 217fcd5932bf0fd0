// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

// Package geo provides pure great-circle distance computation over
// telemetry samples. No failure modes, no dependencies beyond math.
package geo

import (
	"math"

	"github.com/tomtom215/fleettrace/internal/models"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle (haversine) distance between two
// positions in kilometers.
func DistanceKm(a, b models.Position) float64 {
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Latitude))*math.Cos(radians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// TotalDistanceKm sums DistanceKm over consecutive pairs. Returns 0 for
// fewer than two positions.
func TotalDistanceKm(positions []models.Position) float64 {
	var total float64
	for i := 1; i < len(positions); i++ {
		total += DistanceKm(positions[i-1], positions[i])
	}
	return total
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
