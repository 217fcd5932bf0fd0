// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

package services

import (
	"context"
	"time"
)

// Sweeper matches *connectivity.Tracker's sweep entry point.
type Sweeper interface {
	Sweep()
}

// SweepService runs the inactivity sweep on a fixed interval.
type SweepService struct {
	sweeper  Sweeper
	interval time.Duration
}

// NewSweepService creates the wrapper.
func NewSweepService(sweeper Sweeper, interval time.Duration) *SweepService {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &SweepService{sweeper: sweeper, interval: interval}
}

// Serve implements suture.Service.
func (s *SweepService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweeper.Sweep()
		}
	}
}

// String implements fmt.Stringer for suture's logs.
func (s *SweepService) String() string {
	return "inactivity-sweep"
}
