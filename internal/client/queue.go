// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

// Package client implements the tracker agent: the vehicle-side process
// that submits position samples to the server and stores failed
// submissions for retry.
package client

import (
	"context"
	"sync"

	"github.com/tomtom215/fleettrace/internal/logging"
	"github.com/tomtom215/fleettrace/internal/metrics"
	"github.com/tomtom215/fleettrace/internal/models"
)

// RetryQueue is a bounded store-and-forward buffer for positions that
// failed to submit. When full, the oldest entry is evicted so the queue
// always holds the most recent failures in arrival order.
type RetryQueue struct {
	mu       sync.Mutex
	entries  []models.Position
	capacity int
	evicted  uint64

	// drainMu serializes drains so two timers can never interleave
	// resubmissions and reorder the queue.
	drainMu sync.Mutex
}

// NewRetryQueue creates a queue holding at most capacity entries.
func NewRetryQueue(capacity int) *RetryQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &RetryQueue{capacity: capacity}
}

// Enqueue adds a failed position. Evicts the oldest entry when full.
func (q *RetryQueue) Enqueue(p models.Position) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.capacity {
		q.entries = q.entries[1:]
		q.evicted++
		logging.Warn().Uint64("total_evicted", q.evicted).Msg("retry queue full, evicting oldest position")
	}
	q.entries = append(q.entries, p)
	metrics.RetryQueueDepth.Set(float64(len(q.entries)))
}

// Len returns the number of queued positions.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a copy of the queued positions in arrival order.
func (q *RetryQueue) Entries() []models.Position {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.Position, len(q.entries))
	copy(out, q.entries)
	return out
}

// Drain resubmits queued positions in order using send. Every entry gets
// one attempt per drain: successes are removed, failures stay queued in
// arrival order for the next round, so a single entry the server keeps
// rejecting cannot wedge the ones behind it. Returns the number of
// positions sent and the first send error, if any. Only one drain runs at
// a time.
func (q *RetryQueue) Drain(ctx context.Context, send func(context.Context, models.Position) error) (int, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	pending := q.Entries()
	sent := 0
	var firstErr error
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return sent, firstErr
		}

		// The entry stays queued while in flight so a crash mid-send
		// loses nothing.
		if err := send(ctx, p); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		q.remove(p)
		sent++
	}
	return sent, firstErr
}

// remove deletes the first queued entry equal to p.
func (q *RetryQueue) remove(p models.Position) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e == p {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	metrics.RetryQueueDepth.Set(float64(len(q.entries)))
}
