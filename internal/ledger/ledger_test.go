// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

package ledger

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/fleettrace/internal/geo"
	"github.com/tomtom215/fleettrace/internal/logging"
	"github.com/tomtom215/fleettrace/internal/models"
	"github.com/tomtom215/fleettrace/internal/store"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

func openTestStore(t *testing.T) *store.BadgerStore {
	t.Helper()
	st, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func posAt(lat, lon float64, ts time.Time) models.Position {
	return models.Position{Latitude: lat, Longitude: lon, Timestamp: ts}
}

func TestIngestCreatesRecord(t *testing.T) {
	led := New(openTestStore(t))
	ts := time.Now().UTC()

	result, err := led.Ingest("bus-1", posAt(37.98, 23.72, ts))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	rec := result.Record
	if rec.ID != "bus-1" {
		t.Errorf("ID = %q, want bus-1", rec.ID)
	}
	if rec.DisplayName != "Vehicle bus-1" {
		t.Errorf("DisplayName = %q, want %q", rec.DisplayName, "Vehicle bus-1")
	}
	if len(rec.Positions) != 1 {
		t.Errorf("positions = %d, want 1", len(rec.Positions))
	}
	if rec.CumulativeDistanceKm != 0 {
		t.Errorf("distance after first position = %v, want 0", rec.CumulativeDistanceKm)
	}
	if rec.ConnectivityState != models.StateOnline {
		t.Errorf("state = %v, want online", rec.ConnectivityState)
	}
	if !result.CameOnline {
		t.Error("first ingestion should report CameOnline")
	}
}

func TestIngestAppendsAndAccumulates(t *testing.T) {
	led := New(openTestStore(t))
	base := time.Now().UTC()

	positions := []models.Position{
		posAt(37.9838, 23.7275, base),
		posAt(37.9715, 23.7267, base.Add(time.Minute)),
		posAt(37.9600, 23.7400, base.Add(2*time.Minute)),
	}

	var last IngestResult
	for _, p := range positions {
		result, err := led.Ingest("bus-1", p)
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		last = result
	}

	if got := len(last.Record.Positions); got != 3 {
		t.Errorf("positions = %d, want 3", got)
	}
	if last.CameOnline {
		t.Error("repeat ingestion should not report CameOnline")
	}

	// The incremental accumulation must equal recomputing over the
	// whole history.
	want := geo.TotalDistanceKm(positions)
	if math.Abs(last.Record.CumulativeDistanceKm-want) > 1e-9 {
		t.Errorf("incremental distance = %v, recomputed = %v", last.Record.CumulativeDistanceKm, want)
	}
}

func TestIngestStampsReceiveTime(t *testing.T) {
	received := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	led := New(openTestStore(t), WithClock(func() time.Time { return received }))

	// The sample carries a device timestamp 10 minutes behind the server.
	sampleTS := received.Add(-10 * time.Minute)
	result, err := led.Ingest("bus-1", posAt(37.98, 23.72, sampleTS))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if !result.Record.LastUpdate.Equal(received) {
		t.Errorf("LastUpdate = %v, want receive time %v", result.Record.LastUpdate, received)
	}
	if !result.Record.Positions[0].Timestamp.Equal(sampleTS) {
		t.Errorf("position timestamp = %v, want the device timestamp %v", result.Record.Positions[0].Timestamp, sampleTS)
	}

	result, err = led.Ingest("bus-1", posAt(37.97, 23.73, sampleTS.Add(time.Second)))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !result.Record.LastUpdate.Equal(received) {
		t.Errorf("LastUpdate after append = %v, want receive time %v", result.Record.LastUpdate, received)
	}
}

func TestIngestEmptyVehicleID(t *testing.T) {
	led := New(openTestStore(t))
	if _, err := led.Ingest("", posAt(1, 2, time.Now())); err == nil {
		t.Error("Ingest(empty id) expected error")
	}
}

func TestIngestFlipsOfflineVehicleOnline(t *testing.T) {
	led := New(openTestStore(t))
	ts := time.Now().UTC()

	if _, err := led.Ingest("bus-1", posAt(37.98, 23.72, ts)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !led.SetConnectivity("bus-1", models.StateOffline) {
		t.Fatal("SetConnectivity(offline) should report a change")
	}

	result, err := led.Ingest("bus-1", posAt(37.97, 23.73, ts.Add(time.Minute)))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !result.CameOnline {
		t.Error("ingestion after offline should report CameOnline")
	}
	if result.Record.ConnectivityState != models.StateOnline {
		t.Errorf("state = %v, want online", result.Record.ConnectivityState)
	}
}

func TestSetConnectivity(t *testing.T) {
	led := New(openTestStore(t))
	ts := time.Now().UTC()

	if led.SetConnectivity("ghost", models.StateOffline) {
		t.Error("SetConnectivity(unknown) should report no change")
	}

	if _, err := led.Ingest("bus-1", posAt(1, 2, ts)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if led.SetConnectivity("bus-1", models.StateOnline) {
		t.Error("re-asserting the current state should report no change")
	}
	if !led.SetConnectivity("bus-1", models.StateOffline) {
		t.Error("online->offline should report a change")
	}
	if led.SetConnectivity("bus-1", models.StateOffline) {
		t.Error("offline->offline should report no change")
	}
}

func TestGet(t *testing.T) {
	led := New(openTestStore(t))

	if _, err := led.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if _, err := led.Ingest("bus-1", posAt(1, 2, time.Now())); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	rec, err := led.Get("bus-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// Returned record is a copy; mutating it must not leak back.
	rec.Positions[0].Latitude = 99
	again, _ := led.Get("bus-1")
	if again.Positions[0].Latitude == 99 {
		t.Error("Get() returned a shared reference, want a copy")
	}
}

func TestDayStats(t *testing.T) {
	led := New(openTestStore(t))
	base := time.Now().UTC()

	stats := led.DayStats()
	if stats.VehiclesCount != 0 || stats.TotalDistanceKm != 0 {
		t.Errorf("empty stats = %+v", stats)
	}

	for i, id := range []string{"a", "b"} {
		if _, err := led.Ingest(id, posAt(37.98, 23.72, base)); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if _, err := led.Ingest(id, posAt(37.97, 23.73, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}

	stats = led.DayStats()
	if stats.VehiclesCount != 2 {
		t.Errorf("VehiclesCount = %d, want 2", stats.VehiclesCount)
	}
	perVehicle := geo.DistanceKm(posAt(37.98, 23.72, base), posAt(37.97, 23.73, base))
	if math.Abs(stats.TotalDistanceKm-2*perVehicle) > 1e-9 {
		t.Errorf("TotalDistanceKm = %v, want %v", stats.TotalDistanceKm, 2*perVehicle)
	}
}

func TestPersistAndRestore(t *testing.T) {
	st := openTestStore(t)
	led := New(st)

	if _, err := led.Ingest("bus-1", posAt(37.98, 23.72, time.Now().UTC())); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if err := led.Persist(); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	restored := New(st)
	if err := restored.Restore(); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	rec, err := restored.Get("bus-1")
	if err != nil {
		t.Fatalf("Get() after restore error = %v", err)
	}
	if len(rec.Positions) != 1 {
		t.Errorf("restored positions = %d, want 1", len(rec.Positions))
	}
}

func TestDayRollover(t *testing.T) {
	st := openTestStore(t)

	now := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	led := New(st, WithClock(clock))
	if _, err := led.Ingest("bus-1", posAt(37.98, 23.72, now)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	mu.Lock()
	now = time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)
	mu.Unlock()

	if _, err := led.Ingest("bus-2", posAt(37.97, 23.73, now)); err != nil {
		t.Fatalf("Ingest() after rollover error = %v", err)
	}

	date, partition := led.Snapshot()
	if date != "2026-03-15" {
		t.Errorf("date after rollover = %q, want 2026-03-15", date)
	}
	if _, ok := partition["bus-1"]; ok {
		t.Error("previous day's vehicle leaked into the new partition")
	}
	if _, ok := partition["bus-2"]; !ok {
		t.Error("new day's vehicle missing from the partition")
	}

	// The finished day must have been sealed to the store.
	sealed, err := st.Query("2026-03-14")
	if err != nil {
		t.Fatalf("Query(sealed day) error = %v", err)
	}
	if _, ok := sealed["bus-1"]; !ok {
		t.Error("sealed partition missing bus-1")
	}
}

func TestRolloverWithoutIngestion(t *testing.T) {
	st := openTestStore(t)

	now := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	led := New(st, WithClock(clock))
	if _, err := led.Ingest("bus-1", posAt(37.98, 23.72, now)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	// Midnight passes with no traffic at all. Read paths must still roll
	// the day over instead of reporting yesterday forever.
	mu.Lock()
	now = time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)
	mu.Unlock()

	stats := led.DayStats()
	if stats.Date != "2026-03-15" {
		t.Errorf("DayStats().Date = %q, want 2026-03-15", stats.Date)
	}
	if stats.VehiclesCount != 0 {
		t.Errorf("VehiclesCount = %d, want 0 on the fresh day", stats.VehiclesCount)
	}

	date, partition := led.Snapshot()
	if date != "2026-03-15" {
		t.Errorf("Snapshot() date = %q, want 2026-03-15", date)
	}
	if len(partition) != 0 {
		t.Errorf("fresh partition has %d vehicles, want 0", len(partition))
	}

	// The finished day was sealed on the way.
	sealed, err := st.Query("2026-03-14")
	if err != nil {
		t.Fatalf("Query(sealed day) error = %v", err)
	}
	if _, ok := sealed["bus-1"]; !ok {
		t.Error("sealed partition missing bus-1")
	}
}

func TestFlushSignalCoalesces(t *testing.T) {
	led := New(openTestStore(t))
	ts := time.Now().UTC()

	for i := 0; i < 5; i++ {
		if _, err := led.Ingest("bus-1", posAt(float64(i), 0, ts.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}

	select {
	case <-led.FlushSignal():
	default:
		t.Fatal("expected a pending flush signal")
	}
	select {
	case <-led.FlushSignal():
		t.Fatal("flush signal should coalesce to a single pending entry")
	default:
	}
}

func TestConcurrentIngest(t *testing.T) {
	led := New(openTestStore(t))
	base := time.Now().UTC()

	const vehicles = 8
	const perVehicle = 50

	var wg sync.WaitGroup
	for v := 0; v < vehicles; v++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			id := fmt.Sprintf("bus-%d", v)
			for i := 0; i < perVehicle; i++ {
				p := posAt(37.0+float64(i)*0.001, 23.0, base.Add(time.Duration(i)*time.Second))
				if _, err := led.Ingest(id, p); err != nil {
					t.Errorf("Ingest() error = %v", err)
					return
				}
			}
		}(v)
	}
	wg.Wait()

	_, partition := led.Snapshot()
	if len(partition) != vehicles {
		t.Fatalf("vehicles = %d, want %d", len(partition), vehicles)
	}
	for id, rec := range partition {
		if len(rec.Positions) != perVehicle {
			t.Errorf("%s positions = %d, want %d", id, len(rec.Positions), perVehicle)
		}
		want := geo.TotalDistanceKm(rec.Positions)
		if math.Abs(rec.CumulativeDistanceKm-want) > 1e-9 {
			t.Errorf("%s incremental distance = %v, recomputed = %v", id, rec.CumulativeDistanceKm, want)
		}
	}
}
