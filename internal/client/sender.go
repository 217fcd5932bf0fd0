// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/fleettrace/internal/config"
	"github.com/tomtom215/fleettrace/internal/logging"
	"github.com/tomtom215/fleettrace/internal/models"
)

// locationPayload is the wire format for POST /api/v1/location.
type locationPayload struct {
	VehicleID string  `json:"vehicleId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed,omitempty"`
	Heading   float64 `json:"heading,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// Sender submits position samples to the ingestion endpoint. A circuit
// breaker stops hammering the server while it is down; rejected sends
// fail fast and land in the retry queue like any other failure.
type Sender struct {
	url       string
	vehicleID string
	client    *http.Client
	cb        *gobreaker.CircuitBreaker[struct{}]
}

// NewSender creates a sender for one vehicle from the tracker config.
func NewSender(cfg config.TrackerConfig) *Sender {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "fleettrace-ingest",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state transition")
		},
	})

	return &Sender{
		url:       strings.TrimSuffix(cfg.ServerURL, "/") + "/api/v1/location",
		vehicleID: cfg.VehicleID,
		client:    &http.Client{Timeout: cfg.SubmitTimeout},
		cb:        cb,
	}
}

// Send submits one position. Any non-2xx response is an error so the
// caller can queue the position for retry.
func (s *Sender) Send(ctx context.Context, p models.Position) error {
	_, err := s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.post(ctx, p)
	})
	return err
}

func (s *Sender) post(ctx context.Context, p models.Position) error {
	payload := locationPayload{
		VehicleID: s.vehicleID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Speed:     p.SpeedMPS,
		Heading:   p.HeadingDegrees,
		Timestamp: p.Timestamp.UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit position: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("submit position: unexpected status %d", resp.StatusCode)
	}
	return nil
}
