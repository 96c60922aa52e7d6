// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lpsprint/sprint/internal/log"
	"github.com/lpsprint/sprint/internal/metrics"
	"github.com/lpsprint/sprint/internal/model"
	"github.com/lpsprint/sprint/internal/retry"
	"github.com/lpsprint/sprint/internal/solana"
)

const logMonitorName = "logs"

// Default timeouts for the subscription task.
const (
	DefaultSinkSendTimeout = time.Second
	DefaultStopTimeout     = 5 * time.Second
)

// LogConfig configures a LogMonitor. Zero fields fall back to defaults.
type LogConfig struct {
	// Endpoint is the RPC URL; HTTP schemes are rewritten to websocket form.
	Endpoint string

	// Program whose transaction logs are watched. Defaults to the Meteora
	// DLMM program.
	Program solana.Address

	Commitment  solana.Commitment
	RetryPolicy retry.Policy

	// SinkSendTimeout bounds how long a discovered event may wait for room
	// in the sink before it is dropped.
	SinkSendTimeout time.Duration

	// StopTimeout bounds how long Stop waits for the task to wind down.
	StopTimeout time.Duration
}

func (c LogConfig) withDefaults() LogConfig {
	if c.Program.IsZero() {
		c.Program = solana.DLMMProgram
	}
	if c.Commitment == "" {
		c.Commitment = solana.CommitmentConfirmed
	}
	if c.SinkSendTimeout <= 0 {
		c.SinkSendTimeout = DefaultSinkSendTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return c
}

// LogMonitor discovers pools by subscribing to program log output over a
// websocket. It runs at most one subscription task at a time and never
// reconnects on its own: when the upstream closes the stream the task ends
// and the caller decides whether to Start again.
type LogMonitor struct {
	cfg    LogConfig
	logger zerolog.Logger

	mu     sync.Mutex
	handle *handle
}

// NewLogMonitor builds a monitor for the configured endpoint. Start must be
// called before any events flow.
func NewLogMonitor(cfg LogConfig) *LogMonitor {
	return &LogMonitor{
		cfg:    cfg.withDefaults(),
		logger: log.WithComponent("monitor"),
	}
}

// Start subscribes to program logs and launches the background task feeding
// sink. It returns ErrAlreadyActive while a previous task is still running;
// a task that ended on its own is swept aside so the monitor can be
// restarted. The context bounds only the subscription handshake, not the
// task lifetime.
func (m *LogMonitor) Start(ctx context.Context, sink chan<- model.PoolEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		if !m.handle.finished() {
			return ErrAlreadyActive
		}
		m.handle = nil
	}

	stream, err := retry.Do(ctx, m.cfg.RetryPolicy, "monitor.subscribe", func(ctx context.Context) (*solana.LogStream, error) {
		return solana.DialLogs(ctx, m.cfg.Endpoint, m.cfg.Program, m.cfg.Commitment)
	})
	if err != nil {
		return err
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel, done: make(chan struct{})}
	m.handle = h

	metrics.SetMonitorActive(logMonitorName, true)
	m.logger.Info().
		Str("event", "monitor.started").
		Str("endpoint", m.cfg.Endpoint).
		Stringer("program", m.cfg.Program).
		Uint64("subscription_id", stream.SubscriptionID()).
		Msg("log subscription established")

	go m.run(taskCtx, h, stream, sink)
	return nil
}

// Stop cancels the running task and waits for it to finish, bounded by
// StopTimeout. Stopping an idle monitor is a no-op; Stop never fails.
func (m *LogMonitor) Stop() error {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.mu.Unlock()

	if h == nil || h.finished() {
		return nil
	}
	stopTask(m.logger, logMonitorName, h, m.cfg.StopTimeout)
	return nil
}

// Active reports whether a subscription task is currently running.
func (m *LogMonitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil && !m.handle.finished()
}

func (m *LogMonitor) run(ctx context.Context, h *handle, stream *solana.LogStream, sink chan<- model.PoolEvent) {
	defer close(h.done)
	defer metrics.SetMonitorActive(logMonitorName, false)
	defer func() { _ = stream.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-stream.Batches():
			if !ok {
				if err := stream.Err(); err != nil {
					m.logger.Warn().
						Str("event", "monitor.stream_lost").
						Str("endpoint", m.cfg.Endpoint).
						Err(err).
						Msg("log stream ended, restart to resume")
				} else {
					m.logger.Info().
						Str("event", "monitor.stream_closed").
						Str("endpoint", m.cfg.Endpoint).
						Msg("log stream closed by upstream")
				}
				return
			}
			// Cancellation wins over a batch that became ready at the
			// same time.
			select {
			case <-ctx.Done():
				return
			default:
			}
			m.handleBatch(ctx, batch, sink)
		}
	}
}

func (m *LogMonitor) handleBatch(ctx context.Context, batch solana.LogBatch, sink chan<- model.PoolEvent) {
	metrics.IncMonitorNotification(logMonitorName)

	if batch.Failed {
		metrics.IncMonitorParseSkip("failed_tx")
		return
	}
	if !HasCreationMarker(batch.Logs) {
		return
	}
	ev, ok := ExtractPoolEvent(batch)
	if !ok {
		metrics.IncMonitorParseSkip("missing_fields")
		m.logger.Debug().
			Str("event", "monitor.parse_skip").
			Str("signature", batch.Signature).
			Msg("creation marker present but fields incomplete")
		return
	}
	deliver(ctx, m.logger, logMonitorName, m.cfg.SinkSendTimeout, ev, sink)
}
