// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

// Command tracker runs the vehicle-side agent. It reads position
// samples as JSON lines from stdin and submits them to the server,
// queuing failures for ordered retry. One process tracks one vehicle.
//
// Input format, one sample per line:
//
//	{"latitude": 37.9838, "longitude": 23.7275, "speed": 12.5, "heading": 270}
package main

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleettrace/internal/client"
	"github.com/tomtom215/fleettrace/internal/config"
	"github.com/tomtom215/fleettrace/internal/logging"
	"github.com/tomtom215/fleettrace/internal/models"
)

// sample is one stdin line. Timestamp defaults to the read time.
type sample struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Heading   float64 `json:"heading"`
	Timestamp string  `json:"timestamp"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init(logging.Config{Level: "info", Format: "console"})
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if cfg.Tracker.VehicleID == "" {
		logging.Fatal().Msg("tracker.vehicle_id is required (TRACKER_VEHICLE_ID)")
	}

	logging.Info().
		Str("vehicle_id", cfg.Tracker.VehicleID).
		Str("server_url", cfg.Tracker.ServerURL).
		Msg("starting fleettrace tracker")

	sender := client.NewSender(cfg.Tracker)
	agent := client.NewAgent(sender, cfg.Tracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	positions := make(chan models.Position)
	go readSamples(ctx, positions)

	if err := agent.Run(ctx, positions); err != nil && !errors.Is(err, context.Canceled) {
		logging.Err(err).Msg("tracker stopped with error")
	}
	if queued := agent.Queue().Len(); queued > 0 {
		logging.Warn().Int("queued", queued).Msg("exiting with unsent positions")
	}
}

// readSamples decodes stdin line by line until EOF or cancellation.
// Malformed lines are logged and skipped.
func readSamples(ctx context.Context, out chan<- models.Position) {
	defer close(out)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var s sample
		if err := json.Unmarshal(line, &s); err != nil {
			logging.Warn().Err(err).Msg("skipping malformed sample")
			continue
		}

		ts := time.Now().UTC()
		if s.Timestamp != "" {
			if parsed, err := time.Parse(time.RFC3339, s.Timestamp); err == nil {
				ts = parsed.UTC()
			}
		}

		p := models.Position{
			Latitude:       s.Latitude,
			Longitude:      s.Longitude,
			SpeedMPS:       s.Speed,
			HeadingDegrees: s.Heading,
			Timestamp:      ts,
		}

		select {
		case out <- p:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil {
		logging.Err(err).Msg("stdin read error")
	}
}
