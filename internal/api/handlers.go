// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

package api

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/fleettrace/internal/broadcast"
	"github.com/tomtom215/fleettrace/internal/connectivity"
	"github.com/tomtom215/fleettrace/internal/ledger"
	"github.com/tomtom215/fleettrace/internal/logging"
	"github.com/tomtom215/fleettrace/internal/metrics"
	"github.com/tomtom215/fleettrace/internal/models"
	"github.com/tomtom215/fleettrace/internal/store"
	ws "github.com/tomtom215/fleettrace/internal/websocket"
)

// maxRequestBodyBytes bounds ingestion request bodies. A position sample
// is a few hundred bytes; anything larger is malformed or abusive.
const maxRequestBodyBytes = 64 * 1024

// Handler holds the dependencies for all HTTP endpoints.
type Handler struct {
	ledger      *ledger.Ledger
	tracker     *connectivity.Tracker
	store       store.DailyStore
	broadcaster *broadcast.Broadcaster
	hub         *ws.Hub

	corsOrigins []string
	now         func() time.Time
}

// NewHandler creates the API handler.
func NewHandler(led *ledger.Ledger, tracker *connectivity.Tracker, st store.DailyStore, bc *broadcast.Broadcaster, hub *ws.Hub, corsOrigins []string) *Handler {
	return &Handler{
		ledger:      led,
		tracker:     tracker,
		store:       st,
		broadcaster: bc,
		hub:         hub,
		corsOrigins: corsOrigins,
		now:         time.Now,
	}
}

// IngestResponse is the payload returned for every accepted position.
type IngestResponse struct {
	VehicleID       string  `json:"vehicleId"`
	TotalDistanceKm float64 `json:"totalDistanceKm"`
	PositionsCount  int     `json:"positionsCount"`
}

// VehicleSummary is the list view of one vehicle: identity, liveness and
// aggregates, with only the most recent position instead of the full
// history.
type VehicleSummary struct {
	ID              string                   `json:"id"`
	Name            string                   `json:"name"`
	Status          models.ConnectivityState `json:"status"`
	Connected       bool                     `json:"connected"`
	TotalDistanceKm float64                  `json:"totalDistanceKm"`
	PositionsCount  int                      `json:"positionsCount"`
	LastPosition    *models.Position         `json:"lastPosition,omitempty"`
	LastUpdate      time.Time                `json:"lastUpdate"`
}

// Ingest handles POST /location: validates the sample, appends it to the
// ledger, and fans the accepted position out to realtime observers.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	start := h.now()

	var req LocationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.IngestTotal.WithLabelValues("invalid").Inc()
		rw.BadRequest("invalid JSON request body")
		return
	}

	if apiErr := validateRequest(&req); apiErr != nil {
		metrics.IngestTotal.WithLabelValues("invalid").Inc()
		rw.ValidationFailed(apiErr.Message, apiErr.Details)
		return
	}

	result, err := h.ledger.Ingest(req.VehicleID, req.Position(h.now()))
	if err != nil {
		metrics.IngestTotal.WithLabelValues("invalid").Inc()
		rw.BadRequest(err.Error())
		return
	}

	// Connectivity event first so observers see the vehicle appear
	// before its first position update.
	h.tracker.MarkActive(req.VehicleID, result.CameOnline)
	h.broadcaster.PositionAccepted(req.VehicleID, result.Record.Positions[len(result.Record.Positions)-1])

	metrics.IngestTotal.WithLabelValues("accepted").Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	rw.Success(IngestResponse{
		VehicleID:       result.Record.ID,
		TotalDistanceKm: result.Record.CumulativeDistanceKm,
		PositionsCount:  len(result.Record.Positions),
	})
}

// Vehicles handles GET /vehicles: every vehicle known to the current day.
func (h *Handler) Vehicles(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	_, partition := h.ledger.Snapshot()
	rw.Success(h.summaries(partition, nil))
}

// VehiclesConnected handles GET /vehicles/connected: only vehicles with
// an active session right now. The session set, not the Online state, is
// the filter; a restored historical record that has not reconnected is
// excluded even before the inactivity threshold fires.
func (h *Handler) VehiclesConnected(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	_, partition := h.ledger.Snapshot()

	connected := make(map[string]struct{})
	for _, id := range h.tracker.ConnectedIDs() {
		connected[id] = struct{}{}
	}
	rw.Success(h.summaries(partition, connected))
}

// VehicleByID handles GET /vehicles/{id}: the full record including the
// complete position history for the current day.
func (h *Handler) VehicleByID(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	vehicleID := chi.URLParam(r, "id")

	rec, err := h.ledger.Get(vehicleID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			rw.NotFound("vehicle not found")
			return
		}
		rw.InternalError("failed to look up vehicle")
		return
	}
	rw.Success(rec)
}

// Stats handles GET /stats: current-day aggregates.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(h.ledger.DayStats())
}

// HistoryDates handles GET /history: every date with recorded data,
// newest first.
func (h *Handler) HistoryDates(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	dates, err := h.store.Dates()
	if err != nil {
		logging.Err(err).Msg("failed to list history dates")
		rw.InternalError("failed to list history dates")
		return
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	rw.Success(map[string]interface{}{"dates": dates})
}

// History handles GET /history/{date}: the sealed partition for one past
// day, or the live partition when the date is today.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	date := chi.URLParam(r, "date")

	if _, err := models.ParseDayKey(date); err != nil {
		rw.BadRequest("invalid date, expected YYYY-MM-DD")
		return
	}

	today, partition := h.ledger.Snapshot()
	if date == today {
		rw.Success(partition)
		return
	}

	partition, err := h.store.Query(date)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("no data recorded for date")
			return
		}
		logging.Err(err).Str("date", date).Msg("failed to query history")
		rw.InternalError("failed to query history")
		return
	}
	rw.Success(partition)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(map[string]interface{}{
		"status":    "ok",
		"observers": h.hub.ClientCount(),
		"vehicles":  h.ledger.DayStats().VehiclesCount,
	})
}

// WebSocket handles GET /ws: upgrades the connection and registers the
// observer with the hub, which queues the welcome snapshot.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		rw := NewResponseWriter(w, r)
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "realtime service unavailable")
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Err(err).Msg("websocket upgrade error")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}

// getUpgrader creates a websocket upgrader with origin checking bound to
// the configured CORS origins. A wildcard origin allows everything.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.corsOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// summaries builds the list view from a partition snapshot, sorted by
// vehicle id. When filter is non-nil only its members are included.
func (h *Handler) summaries(partition models.DayPartition, filter map[string]struct{}) []VehicleSummary {
	out := make([]VehicleSummary, 0, len(partition))
	for id, rec := range partition {
		if filter != nil {
			if _, ok := filter[id]; !ok {
				continue
			}
		}

		summary := VehicleSummary{
			ID:              rec.ID,
			Name:            rec.DisplayName,
			Status:          rec.ConnectivityState,
			Connected:       h.tracker.IsConnected(id),
			TotalDistanceKm: rec.CumulativeDistanceKm,
			PositionsCount:  len(rec.Positions),
			LastUpdate:      rec.LastUpdate,
		}
		if last, ok := rec.LastPosition(); ok {
			summary.LastPosition = &last
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
