// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package rpcpool

import (
	"context"
	"time"

	"github.com/lpsprint/sprint/internal/metrics"
	"github.com/lpsprint/sprint/internal/solana"
)

// StartHealthSweep launches the recurring background check. Each tick probes
// every connection not currently in use and tries to rebuild the ones that
// keep failing. The goroutine runs until ctx is done, which is expected to be
// process shutdown; a second call is a no-op.
func (p *Pool) StartHealthSweep(ctx context.Context, interval time.Duration) {
	p.sweepOnce.Do(func() {
		go p.sweepLoop(ctx, interval)
	})
}

// SweepDone is closed once the health sweep goroutine has exited.
func (p *Pool) SweepDone() <-chan struct{} {
	return p.sweepDone
}

func (p *Pool) sweepLoop(ctx context.Context, interval time.Duration) {
	defer close(p.sweepDone)

	p.logger.Info().
		Str("event", "pool.sweep_started").
		Dur("interval", interval).
		Msg("health sweep running")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().
				Str("event", "pool.sweep_stopped").
				Msg("health sweep stopped")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// probeTarget snapshots what the sweep saw under the lock, so a result is
// only committed when the record did not change underneath the probe.
type probeTarget struct {
	endpoint string
	client   *solana.Client
	status   Status
}

// sweep performs one full pass: probe everything not in use, then rebuild
// clients stuck in the reconnecting state. All probing happens outside the
// registry lock; the lock is re-acquired only to commit observed results.
func (p *Pool) sweep(ctx context.Context) {
	start := time.Now()

	// Pass 1: probe current clients.
	p.mu.Lock()
	targets := make([]probeTarget, 0, len(p.registry))
	for endpoint, rec := range p.registry {
		if rec.status == StatusInUse {
			continue
		}
		targets = append(targets, probeTarget{endpoint: endpoint, client: rec.client, status: rec.status})
	}
	p.mu.Unlock()

	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}
		err := p.probe(ctx, t.client)

		p.mu.Lock()
		rec, ok := p.registry[t.endpoint]
		if !ok || rec.status != t.status {
			// Acquired or otherwise changed while we probed: discard.
			p.mu.Unlock()
			continue
		}
		if err == nil {
			restored := rec.status == StatusReconnecting
			rec.status = StatusHealthy
			p.mu.Unlock()
			metrics.IncHealthProbe("ok")
			if restored {
				metrics.IncPoolRecovery()
				p.logger.Info().
					Str("event", "pool.connection_restored").
					Str("endpoint", t.endpoint).
					Msg("rpc connection restored")
			}
			continue
		}
		demoted := rec.status == StatusHealthy
		rec.status = StatusReconnecting
		p.mu.Unlock()
		metrics.IncHealthProbe("failed")
		if demoted {
			p.logger.Warn().
				Str("event", "pool.connection_unhealthy").
				Str("endpoint", t.endpoint).
				Err(err).
				Msg("rpc connection unhealthy, marking for reconnection")
		}
	}

	// Pass 2: rebuild clients for records still reconnecting. A fresh
	// client must answer a probe before it replaces the broken one; on
	// failure the record simply stays reconnecting until the next tick.
	p.mu.Lock()
	var rebuild []string
	for endpoint, rec := range p.registry {
		if rec.status == StatusReconnecting {
			rebuild = append(rebuild, endpoint)
		}
	}
	p.mu.Unlock()

	for _, endpoint := range rebuild {
		if ctx.Err() != nil {
			return
		}
		client := p.newClient(endpoint)
		err := p.probe(ctx, client)

		p.mu.Lock()
		rec, ok := p.registry[endpoint]
		if !ok || rec.status != StatusReconnecting {
			p.mu.Unlock()
			continue
		}
		if err != nil {
			p.mu.Unlock()
			p.logger.Error().
				Str("event", "pool.reconnect_failed").
				Str("endpoint", endpoint).
				Err(err).
				Msg("failed to reconnect rpc endpoint")
			continue
		}
		rec.client = client
		rec.status = StatusHealthy
		p.mu.Unlock()
		metrics.IncPoolRecovery()
		p.logger.Info().
			Str("event", "pool.reconnected").
			Str("endpoint", endpoint).
			Msg("successfully reconnected rpc endpoint")
	}

	p.publishGauges()
	metrics.ObserveSweepDuration(time.Since(start))
}
