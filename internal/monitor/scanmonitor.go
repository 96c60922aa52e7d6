// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lpsprint/sprint/internal/log"
	"github.com/lpsprint/sprint/internal/metrics"
	"github.com/lpsprint/sprint/internal/model"
	"github.com/lpsprint/sprint/internal/retry"
	"github.com/lpsprint/sprint/internal/rpcpool"
	"github.com/lpsprint/sprint/internal/solana"
)

const scanMonitorName = "scan"

// DLMM pair account layout: fixed size with the two token mints at known
// offsets.
const (
	DefaultScanInterval = 30 * time.Second
	DefaultAccountSize  = 904
	DefaultTokenAOffset = 88
	DefaultTokenBOffset = 120
)

// ScanConfig configures a ScanMonitor. Zero fields fall back to defaults;
// Pool is required.
type ScanConfig struct {
	// Pool supplies the RPC connection for each scan pass.
	Pool *rpcpool.Pool

	// Program whose accounts are enumerated. Defaults to the Meteora DLMM
	// program.
	Program solana.Address

	// Interval between scan passes.
	Interval time.Duration

	// AccountSize filters the enumeration to pair accounts. 0 disables the
	// filter and makes passes much heavier.
	AccountSize uint64

	// TokenAOffset and TokenBOffset locate the token mints inside the
	// account data.
	TokenAOffset int
	TokenBOffset int

	RetryPolicy     retry.Policy
	SinkSendTimeout time.Duration
	StopTimeout     time.Duration
}

func (c ScanConfig) withDefaults() ScanConfig {
	if c.Program.IsZero() {
		c.Program = solana.DLMMProgram
	}
	if c.Interval <= 0 {
		c.Interval = DefaultScanInterval
	}
	if c.AccountSize == 0 {
		c.AccountSize = DefaultAccountSize
	}
	if c.TokenAOffset <= 0 {
		c.TokenAOffset = DefaultTokenAOffset
	}
	if c.TokenBOffset <= 0 {
		c.TokenBOffset = DefaultTokenBOffset
	}
	if c.SinkSendTimeout <= 0 {
		c.SinkSendTimeout = DefaultSinkSendTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return c
}

// ScanMonitor discovers pools by periodically enumerating the program's
// accounts, for deployments whose endpoints lack websocket support. The
// first successful pass only primes a baseline of known pools; later passes
// emit events for accounts the baseline has not seen. The baseline survives
// Stop/Start cycles, so pools created while the monitor was idle surface on
// the first pass after a restart.
type ScanMonitor struct {
	cfg    ScanConfig
	logger zerolog.Logger

	mu     sync.Mutex
	handle *handle
	primed bool
	seen   map[string]struct{}
}

// NewScanMonitor builds a polling monitor on top of the connection pool.
func NewScanMonitor(cfg ScanConfig) *ScanMonitor {
	return &ScanMonitor{
		cfg:    cfg.withDefaults(),
		logger: log.WithComponent("monitor"),
		seen:   make(map[string]struct{}),
	}
}

// Start launches the background scan task feeding sink. The first pass runs
// immediately rather than waiting out an interval. Returns ErrAlreadyActive
// while a previous task still runs.
func (m *ScanMonitor) Start(ctx context.Context, sink chan<- model.PoolEvent) error {
	if m.cfg.Pool == nil {
		return errors.New("monitor: scan requires a connection pool")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		if !m.handle.finished() {
			return ErrAlreadyActive
		}
		m.handle = nil
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel, done: make(chan struct{})}
	m.handle = h

	metrics.SetMonitorActive(scanMonitorName, true)
	m.logger.Info().
		Str("event", "monitor.started").
		Str("monitor", scanMonitorName).
		Stringer("program", m.cfg.Program).
		Dur("interval", m.cfg.Interval).
		Msg("account scan started")

	go m.run(taskCtx, h, sink)
	return nil
}

// Stop cancels the scan task and waits for it, bounded by StopTimeout.
// Stopping an idle monitor is a no-op; Stop never fails.
func (m *ScanMonitor) Stop() error {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.mu.Unlock()

	if h == nil || h.finished() {
		return nil
	}
	stopTask(m.logger, scanMonitorName, h, m.cfg.StopTimeout)
	return nil
}

// Active reports whether a scan task is currently running.
func (m *ScanMonitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil && !m.handle.finished()
}

func (m *ScanMonitor) run(ctx context.Context, h *handle, sink chan<- model.PoolEvent) {
	defer close(h.done)
	defer metrics.SetMonitorActive(scanMonitorName, false)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.scan(ctx, sink)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scan(ctx, sink)
		}
	}
}

// scan runs one enumeration pass. Failures are logged and absorbed; the next
// tick tries again.
func (m *ScanMonitor) scan(ctx context.Context, sink chan<- model.PoolEvent) {
	conn, err := m.cfg.Pool.Acquire(ctx)
	if err != nil {
		m.logger.Warn().
			Str("event", "monitor.scan_skipped").
			Err(err).
			Msg("no rpc connection for scan pass")
		return
	}
	defer conn.Release()

	client := conn.Client()
	accounts, err := retry.Do(ctx, m.cfg.RetryPolicy, "monitor.scan", func(ctx context.Context) ([]solana.KeyedAccount, error) {
		return client.ProgramAccounts(ctx, m.cfg.Program, m.cfg.AccountSize)
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn().
			Str("event", "monitor.scan_failed").
			Str("endpoint", conn.Endpoint()).
			Err(err).
			Msg("account enumeration failed")
		return
	}
	metrics.IncMonitorNotification(scanMonitorName)

	fresh := m.diff(accounts)
	if len(fresh) == 0 {
		return
	}

	// Scans have no originating transaction; stamp the current slot
	// best-effort so downstream ordering still roughly works.
	slot, err := client.Slot(ctx)
	if err != nil {
		slot = 0
	}

	for _, acc := range fresh {
		if ctx.Err() != nil {
			return
		}
		ev, ok := m.eventFrom(acc, slot)
		if !ok {
			metrics.IncMonitorParseSkip("bad_account")
			continue
		}
		deliver(ctx, m.logger, scanMonitorName, m.cfg.SinkSendTimeout, ev, sink)
	}
}

// diff folds the pass result into the baseline and returns the accounts not
// seen before. The first successful pass only primes the baseline: pools
// that predate the monitor are not news.
func (m *ScanMonitor) diff(accounts []solana.KeyedAccount) []solana.KeyedAccount {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.primed {
		for _, acc := range accounts {
			m.seen[acc.Pubkey] = struct{}{}
		}
		m.primed = true
		m.logger.Info().
			Str("event", "monitor.baseline_primed").
			Int("pools", len(accounts)).
			Msg("existing pools recorded, watching for new ones")
		return nil
	}

	var fresh []solana.KeyedAccount
	for _, acc := range accounts {
		if _, ok := m.seen[acc.Pubkey]; ok {
			continue
		}
		m.seen[acc.Pubkey] = struct{}{}
		fresh = append(fresh, acc)
	}
	return fresh
}

// eventFrom decodes a pair account into a discovery event.
func (m *ScanMonitor) eventFrom(acc solana.KeyedAccount, slot uint64) (model.PoolEvent, bool) {
	pool, err := solana.ParseAddress(acc.Pubkey)
	if err != nil {
		return model.PoolEvent{}, false
	}
	data, err := acc.Account.Bytes()
	if err != nil {
		return model.PoolEvent{}, false
	}
	if len(data) < m.cfg.TokenAOffset+solana.AddressLength || len(data) < m.cfg.TokenBOffset+solana.AddressLength {
		return model.PoolEvent{}, false
	}

	var tokenA, tokenB solana.Address
	copy(tokenA[:], data[m.cfg.TokenAOffset:])
	copy(tokenB[:], data[m.cfg.TokenBOffset:])
	return model.NewPoolEvent(pool, tokenA, tokenB, "", slot), true
}
