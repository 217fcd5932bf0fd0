// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

// Command server runs the Fleettrace telemetry server: HTTP ingestion,
// realtime websocket fan-out, the inactivity sweep, and the durable
// day-partition store, all under one supervision tree.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/fleettrace/internal/api"
	"github.com/tomtom215/fleettrace/internal/broadcast"
	"github.com/tomtom215/fleettrace/internal/config"
	"github.com/tomtom215/fleettrace/internal/connectivity"
	"github.com/tomtom215/fleettrace/internal/ledger"
	"github.com/tomtom215/fleettrace/internal/logging"
	"github.com/tomtom215/fleettrace/internal/models"
	"github.com/tomtom215/fleettrace/internal/store"
	"github.com/tomtom215/fleettrace/internal/supervisor"
	"github.com/tomtom215/fleettrace/internal/supervisor/services"
	ws "github.com/tomtom215/fleettrace/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init(logging.Config{Level: "info", Format: "json"})
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("storage", cfg.Storage.Path).
		Dur("inactivity_threshold", cfg.Tracking.InactivityThreshold).
		Msg("starting fleettrace server")

	st, err := store.Open(store.Options{
		Path:       cfg.Storage.Path,
		SyncWrites: cfg.Storage.SyncWrites,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open day-partition store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Err(err).Msg("failed to close store")
		}
	}()

	led := ledger.New(st)
	if err := led.Restore(); err != nil {
		logging.Fatal().Err(err).Msg("failed to restore day partition")
	}

	bus := broadcast.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Err(err).Msg("failed to close event bus")
		}
	}()

	broadcaster := broadcast.New(bus, led)
	tracker := connectivity.New(led, broadcaster, cfg.Tracking.InactivityThreshold)

	hub := ws.NewHub(snapshotProvider(led, tracker))
	bridge := broadcast.NewBridge(bus, hub)

	handler := api.NewHandler(led, tracker, st, broadcaster, hub, cfg.Security.CORSOrigins)
	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.Timeout,
	})
	tree.AddDataService(services.NewFlushService(led, cfg.Tracking.FlushInterval))
	tree.AddMessagingService(services.NewRunnerService("websocket-hub", services.RunFunc(hub.RunWithContext)))
	tree.AddMessagingService(services.NewRunnerService("event-bridge", bridge))
	tree.AddMessagingService(services.NewSweepService(tracker, cfg.Tracking.SweepInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := tree.ServeBackground(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Err(err).Msg("supervision tree terminated")
		}
	}

	// Final durable snapshot after all services have stopped.
	if err := led.Persist(); err != nil {
		logging.Err(err).Msg("final flush failed")
	}
	logging.Info().Msg("fleettrace server stopped")
}

// snapshotProvider builds the welcome messages for a new observer:
// current day aggregates followed by the last known position of every
// connected vehicle.
func snapshotProvider(led *ledger.Ledger, tracker *connectivity.Tracker) ws.SnapshotProvider {
	return func() []ws.Message {
		msgs := []ws.Message{
			{Type: models.EventTypeDayStats, Data: led.DayStats()},
		}
		for _, id := range tracker.ConnectedIDs() {
			rec, err := led.Get(id)
			if err != nil {
				continue
			}
			if last, ok := rec.LastPosition(); ok {
				msgs = append(msgs, ws.Message{
					Type: models.EventTypeVehicleUpdate,
					Data: models.NewVehicleUpdateEvent(id, last),
				})
			}
		}
		return msgs
	}
}
