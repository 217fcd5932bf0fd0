// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

package client

import (
	"context"
	"time"

	"github.com/tomtom215/fleettrace/internal/config"
	"github.com/tomtom215/fleettrace/internal/logging"
	"github.com/tomtom215/fleettrace/internal/models"
)

// PositionSender submits one position sample. Satisfied by *Sender;
// tests substitute a fake.
type PositionSender interface {
	Send(ctx context.Context, p models.Position) error
}

// Agent is the tracker-side submission loop: live positions are sent as
// they arrive, failures are queued, and a periodic drain resubmits the
// backlog in order.
type Agent struct {
	sender        PositionSender
	queue         *RetryQueue
	retryInterval time.Duration
}

// NewAgent creates an agent from the tracker config.
func NewAgent(sender PositionSender, cfg config.TrackerConfig) *Agent {
	return &Agent{
		sender:        sender,
		queue:         NewRetryQueue(cfg.QueueCapacity),
		retryInterval: cfg.RetryInterval,
	}
}

// Queue exposes the retry queue, mainly for tests and status reporting.
func (a *Agent) Queue() *RetryQueue {
	return a.queue
}

// Submit sends one position. On failure the position is queued for the
// next retry drain; Submit itself never returns an error because a
// queued position is not lost.
func (a *Agent) Submit(ctx context.Context, p models.Position) {
	// Flush the backlog first so the server receives positions in
	// order whenever it is reachable again.
	if a.queue.Len() > 0 {
		if _, err := a.queue.Drain(ctx, a.sender.Send); err != nil {
			a.queue.Enqueue(p)
			logging.Warn().Err(err).Int("queued", a.queue.Len()).Msg("submission failed, position queued for retry")
			return
		}
	}

	if err := a.sender.Send(ctx, p); err != nil {
		a.queue.Enqueue(p)
		logging.Warn().Err(err).Int("queued", a.queue.Len()).Msg("submission failed, position queued for retry")
	}
}

// Run consumes live positions until the channel closes or the context is
// canceled. A ticker drains the retry queue in the background between
// submissions.
func (a *Agent) Run(ctx context.Context, positions <-chan models.Position) error {
	ticker := time.NewTicker(a.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case p, ok := <-positions:
			if !ok {
				// Input exhausted; one final drain attempt.
				if sent, err := a.queue.Drain(ctx, a.sender.Send); err != nil {
					logging.Warn().Err(err).Int("sent", sent).Int("queued", a.queue.Len()).Msg("final retry drain incomplete")
				}
				return nil
			}
			a.Submit(ctx, p)

		case <-ticker.C:
			if a.queue.Len() == 0 {
				continue
			}
			sent, err := a.queue.Drain(ctx, a.sender.Send)
			if err != nil {
				logging.Debug().Err(err).Int("sent", sent).Int("queued", a.queue.Len()).Msg("retry drain left entries queued")
				continue
			}
			if sent > 0 {
				logging.Info().Int("sent", sent).Msg("retry queue drained")
			}
		}
	}
}
