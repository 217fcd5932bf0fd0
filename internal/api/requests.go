// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

package api

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/fleettrace/internal/models"
)

// validate is the shared validator instance. validator.Validate is
// safe for concurrent use and caches struct metadata.
var validate = validator.New()

// LocationRequest is the request body for POST /location. Latitude and
// longitude are pointers so a missing field is distinguishable from a
// legitimate zero coordinate.
//
// Speed and heading are optional telemetry; timestamp defaults to the
// server receive time when absent.
type LocationRequest struct {
	VehicleID string   `json:"vehicleId" validate:"required,min=1,max=128"`
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	Speed     float64  `json:"speed" validate:"omitempty,min=0"`
	Heading   float64  `json:"heading" validate:"omitempty,min=0,max=360"`
	Timestamp string   `json:"timestamp" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// Position converts the validated request into the internal position
// model. Call only after validation has passed.
func (req *LocationRequest) Position(now time.Time) models.Position {
	ts := now.UTC()
	if req.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			ts = parsed.UTC()
		}
	}
	return models.Position{
		Latitude:       *req.Latitude,
		Longitude:      *req.Longitude,
		SpeedMPS:       req.Speed,
		HeadingDegrees: req.Heading,
		Timestamp:      ts,
	}
}

// validateRequest runs struct validation and converts the first batch of
// failures into an APIError with per-field details.
func validateRequest(v interface{}) *APIError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &APIError{
			Code:    ErrCodeValidationFailed,
			Message: "request validation failed",
		}
	}

	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fmt.Sprintf("failed on %q", fe.Tag())
	}
	return &APIError{
		Code:    ErrCodeValidationFailed,
		Message: "request validation failed",
		Details: details,
	}
}
