// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

package services

import (
	"context"
	"time"

	"github.com/tomtom215/fleettrace/internal/logging"
)

// Flusher matches *ledger.Ledger's durable-write surface.
type Flusher interface {
	Persist() error
	FlushSignal() <-chan struct{}
}

// FlushService writes the in-memory day partition to the durable store.
// It reacts to the ledger's coalesced dirty signal and also runs on a
// periodic safety-net interval; a final flush happens at shutdown. A
// failed flush is logged, never fatal, because in-memory state stays
// authoritative and the next flush retries the full snapshot.
type FlushService struct {
	flusher  Flusher
	interval time.Duration
}

// NewFlushService creates the wrapper.
func NewFlushService(flusher Flusher, interval time.Duration) *FlushService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &FlushService{flusher: flusher, interval: interval}
}

// Serve implements suture.Service.
func (s *FlushService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush("shutdown")
			return ctx.Err()
		case <-s.flusher.FlushSignal():
			s.flush("dirty")
		case <-ticker.C:
			s.flush("periodic")
		}
	}
}

func (s *FlushService) flush(reason string) {
	if err := s.flusher.Persist(); err != nil {
		logging.Err(err).Str("reason", reason).Msg("durable flush failed")
	}
}

// String implements fmt.Stringer for suture's logs.
func (s *FlushService) String() string {
	return "durable-flush"
}
