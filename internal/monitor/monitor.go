// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package monitor discovers new liquidity pools. Sources implement a common
// start/stop contract and push typed events into a shared sink; the
// subscription-based LogMonitor is the primary source, the polling
// ScanMonitor covers endpoints without websocket support.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lpsprint/sprint/internal/metrics"
	"github.com/lpsprint/sprint/internal/model"
)

// Monitor is the capability shared by every discovery source. Start opens
// the source and spawns one background task feeding sink; Stop cancels the
// task and waits, bounded, for it to finish. Implementations allow a new
// Start after the task ended, whether through Stop or because the source
// dried up on its own.
type Monitor interface {
	Start(ctx context.Context, sink chan<- model.PoolEvent) error
	Stop() error
}

// ErrAlreadyActive is returned by Start while a previous session still runs.
var ErrAlreadyActive = errors.New("monitor: session already active")

// handle pairs the cancellation signal of a running task with its completion
// channel. Exactly one handle exists per active monitor; Stop takes it
// atomically, so a second Stop observes none.
type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *handle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// stopTask cancels a running task and waits, bounded by timeout, for it to
// wind down. A task that overruns is abandoned, not killed; its context is
// cancelled, so it dies as soon as it next observes it.
func stopTask(logger zerolog.Logger, name string, h *handle, timeout time.Duration) {
	h.cancel()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		metrics.IncMonitorStop(name, "clean")
		logger.Info().
			Str("event", "monitor.stopped").
			Str("monitor", name).
			Msg("task stopped")
	case <-timer.C:
		metrics.IncMonitorStop(name, "timeout")
		logger.Warn().
			Str("event", "monitor.stop_timeout").
			Str("monitor", name).
			Dur("timeout", timeout).
			Msg("task did not stop in time")
	}
}

// deliver hands an event to the sink, waiting at most timeout. A full sink
// drops the event rather than stalling the source.
func deliver(ctx context.Context, logger zerolog.Logger, name string, timeout time.Duration, ev model.PoolEvent, sink chan<- model.PoolEvent) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sink <- ev:
		metrics.IncMonitorEvent(name)
		logger.Info().
			Str("event", "monitor.pool_discovered").
			Str("monitor", name).
			Stringer("pool", ev.Pool).
			Stringer("token_a", ev.TokenA).
			Stringer("token_b", ev.TokenB).
			Uint64("slot", ev.Slot).
			Msg("new pool discovered")
	case <-ctx.Done():
	case <-timer.C:
		metrics.IncMonitorEventDropped(name)
		logger.Warn().
			Str("event", "monitor.event_dropped").
			Str("monitor", name).
			Stringer("pool", ev.Pool).
			Msg("sink full, event dropped")
	}
}
