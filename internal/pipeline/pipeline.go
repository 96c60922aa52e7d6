// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package pipeline connects pool discovery to persistence and analysis. It
// consumes monitor events, collapses duplicates, stores every new pool and
// hands it to a bounded set of analysis workers.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lpsprint/sprint/internal/analyzer"
	"github.com/lpsprint/sprint/internal/cache"
	"github.com/lpsprint/sprint/internal/log"
	"github.com/lpsprint/sprint/internal/metrics"
	"github.com/lpsprint/sprint/internal/model"
	"github.com/lpsprint/sprint/internal/solana"
	"github.com/lpsprint/sprint/internal/store"
	"github.com/lpsprint/sprint/internal/telemetry"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultDedupTTL           = 24 * time.Hour
	DefaultAnalyzeConcurrency = 4
)

// Config tunes the pipeline.
type Config struct {
	// DedupTTL is how long a handled pool address suppresses duplicate
	// events. Zero disables suppression.
	DedupTTL time.Duration
	// AnalyzeConcurrency bounds concurrent analysis RPC work.
	AnalyzeConcurrency int
}

func (c Config) withDefaults() Config {
	if c.DedupTTL < 0 {
		c.DedupTTL = DefaultDedupTTL
	}
	if c.AnalyzeConcurrency <= 0 {
		c.AnalyzeConcurrency = DefaultAnalyzeConcurrency
	}
	return c
}

// Pipeline is the single consumer of the discovery event channel.
type Pipeline struct {
	cfg      Config
	store    *store.Store
	cache    cache.Cache
	analyzer *analyzer.Analyzer
	logger   zerolog.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

// New builds a pipeline. analyzer may be nil, which persists pools without
// scoring them.
func New(st *store.Store, c cache.Cache, an *analyzer.Analyzer, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		cache:    c,
		analyzer: an,
		logger:   log.WithComponent("pipeline"),
		sem:      make(chan struct{}, cfg.AnalyzeConcurrency),
	}
}

// Run consumes events until the channel closes or ctx is cancelled, then
// waits for in-flight analysis workers before returning.
func (p *Pipeline) Run(ctx context.Context, events <-chan model.PoolEvent) error {
	defer p.wg.Wait()

	p.logger.Info().
		Str("event", "pipeline.started").
		Int("analyze_concurrency", p.cfg.AnalyzeConcurrency).
		Dur("dedup_ttl", p.cfg.DedupTTL).
		Msg("pipeline started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Str("event", "pipeline.stopped").Msg("context cancelled, draining workers")
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				p.logger.Info().Str("event", "pipeline.stopped").Msg("event channel closed, draining workers")
				return nil
			}
			metrics.SetPipelineQueueDepth(len(events))
			p.handle(ctx, ev)
		}
	}
}

func dedupKey(address solana.Address) string {
	return "pool:" + address.String()
}

// handle runs the synchronous part of event processing: dedup and persist.
// Analysis is handed off to a worker slot, blocking when all slots are busy
// so backpressure reaches the event channel.
func (p *Pipeline) handle(ctx context.Context, ev model.PoolEvent) {
	start := time.Now()

	ctx, span := telemetry.Tracer("sprint.pipeline").Start(ctx, "pipeline.handle",
		trace.WithAttributes(telemetry.EventAttributes(ev)...))
	defer span.End()

	key := dedupKey(ev.Pool)
	if _, seen := p.cache.Get(key); seen {
		metrics.IncPipelineEvent("duplicate")
		span.SetStatus(codes.Ok, "")
		p.logger.Debug().
			Str("event", "pipeline.duplicate").
			Str("pool", ev.Pool.String()).
			Msg("pool already handled, skipping")
		return
	}
	p.cache.Set(key, true, p.cfg.DedupTTL)

	pool := model.Pool{
		Address:      ev.Pool,
		TokenA:       model.TokenInfo{Mint: ev.TokenA},
		TokenB:       model.TokenInfo{Mint: ev.TokenB},
		DiscoveredAt: ev.DiscoveredAt,
	}
	if err := p.store.UpsertPool(ctx, pool); err != nil {
		// Drop the marker so a later duplicate gets another shot at
		// persisting this pool.
		p.cache.Delete(key)
		metrics.IncPipelineEvent("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		p.logger.Error().
			Str("event", "pipeline.persist_failed").
			Err(err).
			Str("pool", ev.Pool.String()).
			Msg("could not persist discovered pool")
		return
	}

	metrics.IncPipelineEvent("processed")
	metrics.ObservePipelineProcess(time.Since(start))
	span.SetStatus(codes.Ok, "")
	p.logger.Info().
		Str("event", "pipeline.pool_persisted").
		Str("pool", ev.Pool.String()).
		Uint64("slot", ev.Slot).
		Msg("pool persisted")

	if p.analyzer == nil {
		return
	}
	select {
	case p.sem <- struct{}{}:
		p.wg.Add(1)
		go p.analyze(ctx, ev)
	case <-ctx.Done():
	}
}

// analyze scores one pool and merges the enriched result back into the
// store. Failures are logged, never fatal: the pool stays persisted with
// analyzed=false and can be rescored by a later duplicate after the dedup
// marker expires.
func (p *Pipeline) analyze(ctx context.Context, ev model.PoolEvent) {
	defer p.wg.Done()
	defer func() { <-p.sem }()

	ctx, span := telemetry.Tracer("sprint.pipeline").Start(ctx, "pipeline.analyze")
	defer span.End()

	enriched, err := p.analyzer.Analyze(ctx, ev)
	if err != nil {
		metrics.IncPipelineEvent("analyze_failed")
		span.RecordError(err)
		span.SetAttributes(telemetry.ErrorAttributes("analyze")...)
		span.SetStatus(codes.Error, "analysis failed")
		p.logger.Warn().
			Str("event", "pipeline.analyze_failed").
			Err(err).
			Str("pool", ev.Pool.String()).
			Msg("analysis failed")
		return
	}
	span.SetAttributes(telemetry.ScoreAttributes(*enriched.Score, p.analyzer.Qualifies(*enriched.Score))...)
	if err := p.store.UpsertPool(ctx, *enriched); err != nil {
		metrics.IncPipelineEvent("enrich_failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		p.logger.Warn().
			Str("event", "pipeline.enrich_failed").
			Err(err).
			Str("pool", ev.Pool.String()).
			Msg("could not persist analysis result")
		return
	}
	span.SetStatus(codes.Ok, "")
	p.logger.Info().
		Str("event", "pipeline.pool_scored").
		Str("pool", ev.Pool.String()).
		Float64("score", *enriched.Score).
		Msg("pool scored")
}
