// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

package services

import (
	"context"
)

// ContextRunner matches any component exposing a context-driven run
// loop. Satisfied by *websocket.Hub (RunWithContext) via the adapter
// below and by *broadcast.Bridge (Run).
type ContextRunner interface {
	Run(ctx context.Context) error
}

// RunnerService wraps a ContextRunner as a named suture service.
type RunnerService struct {
	runner ContextRunner
	name   string
}

// NewRunnerService creates the wrapper.
func NewRunnerService(name string, runner ContextRunner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.runner.Run(ctx)
}

// String implements fmt.Stringer for suture's logs.
func (s *RunnerService) String() string {
	return s.name
}

// RunFunc adapts a bare function to ContextRunner.
type RunFunc func(ctx context.Context) error

// Run implements ContextRunner.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}
