// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

// sprintd watches Solana for newly created Meteora DLMM liquidity pools,
// scores them and serves the results over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lpsprint/sprint/internal/analyzer"
	"github.com/lpsprint/sprint/internal/api"
	"github.com/lpsprint/sprint/internal/cache"
	"github.com/lpsprint/sprint/internal/config"
	"github.com/lpsprint/sprint/internal/health"
	"github.com/lpsprint/sprint/internal/log"
	"github.com/lpsprint/sprint/internal/model"
	"github.com/lpsprint/sprint/internal/monitor"
	"github.com/lpsprint/sprint/internal/pipeline"
	"github.com/lpsprint/sprint/internal/ratelimit"
	"github.com/lpsprint/sprint/internal/retry"
	"github.com/lpsprint/sprint/internal/rpcpool"
	"github.com/lpsprint/sprint/internal/solana"
	"github.com/lpsprint/sprint/internal/store"
	"github.com/lpsprint/sprint/internal/telemetry"
	"github.com/lpsprint/sprint/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sprintd %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	logger := log.WithComponent("daemon")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.APIListenAddr).
		Strs("endpoints", cfg.Endpoints).
		Str("program", cfg.ProgramID).
		Msg("starting sprintd")
	if cfg.APIToken == "" {
		logger.Warn().Msg("api token not configured, monitor control endpoints are open")
	}

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("sprintd failed")
	}

	logger.Info().Str("event", "daemon.stopped").Msg("sprintd exiting")
}

// run assembles and supervises the daemon. It returns once everything has
// shut down after ctx ends, or with the first fatal component error.
func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTELEnabled,
		ServiceName:    "sprintd",
		ServiceVersion: version.Version,
		ExporterType:   cfg.OTELExporter,
		Endpoint:       cfg.OTELEndpoint,
		SamplingRate:   cfg.OTELSampling,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
	}()

	var (
		c     cache.Cache
		redis *cache.RedisCache
	)
	if cfg.RedisAddr != "" {
		redis, err = cache.NewRedisCache(cache.RedisConfig{Addr: cfg.RedisAddr})
		if err != nil {
			return fmt.Errorf("redis cache: %w", err)
		}
		c = redis
	} else {
		c = cache.NewMemoryCache(5 * time.Minute)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Msg("cache close failed")
		}
	}()

	policy := retry.Policy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay,
		MaxDelay:   cfg.MaxDelay,
	}

	gate := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: rate.Limit(cfg.RPCRateLimit),
		Burst:             cfg.RPCRateBurst,
	})

	pool := rpcpool.New(rpcpool.Config{
		Endpoints:      cfg.Endpoints,
		MinConnections: cfg.MinConnections,
		MaxConnections: cfg.MaxConnections,
		Commitment:     solana.Commitment(cfg.Commitment),
		ProbeTimeout:   cfg.ProbeTimeout,
		RetryPolicy:    policy,
		Gate:           gate,
	})
	pool.StartHealthSweep(ctx, cfg.HealthCheckInterval)

	sink := make(chan model.PoolEvent, cfg.SinkCapacity)
	control := newDiscoveryControl(ctx, sink, cfg, pool, policy)

	an := analyzer.New(pool, analyzer.Criteria{MinScore: cfg.MinScore}, policy)
	pipe := pipeline.New(st, c, an, pipeline.Config{
		DedupTTL:           cfg.DedupTTL,
		AnalyzeConcurrency: cfg.AnalyzeConcurrency,
	})

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(rpcpool.NewChecker(pool))
	hm.RegisterChecker(health.NewPingChecker("store", st.Ping))
	hm.RegisterChecker(health.NewActiveChecker("monitor", control.DiscoveryActive))
	if redis != nil {
		hm.RegisterChecker(health.NewPingChecker("cache", redis.Ping))
	}

	srv := api.New(api.Config{
		ListenAddr: cfg.APIListenAddr,
		Token:      cfg.APIToken,
	}, api.Deps{
		Store:   st,
		Pool:    pool,
		Cache:   c,
		Health:  hm,
		Monitor: control,
		Version: version.Version,
	})

	if err := control.StartDiscovery(); err != nil {
		return fmt.Errorf("start discovery: %w", err)
	}

	// The pipeline deliberately runs outside the signal context: shutdown
	// reaches it by closing the sink, so queued events are still processed.
	pipeDone := make(chan error, 1)
	go func() { pipeDone <- pipe.Run(context.Background(), sink) }()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Str("event", "daemon.stopping").Msg("shutting down")

		if err := control.StopDiscovery(); err != nil {
			logger.Warn().Err(err).Msg("monitor stop failed")
		}
		close(sink)
		if err := <-pipeDone; err != nil {
			logger.Warn().Err(err).Msg("pipeline exited with error")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// discoveryControl bundles the monitors behind the api's start/stop
// surface. Restarts reuse the daemon's root context and sink.
type discoveryControl struct {
	ctx      context.Context
	sink     chan<- model.PoolEvent
	monitors []monitor.Monitor
	actives  []func() bool
}

func newDiscoveryControl(ctx context.Context, sink chan<- model.PoolEvent, cfg config.Config, pool *rpcpool.Pool, policy retry.Policy) *discoveryControl {
	logMon := monitor.NewLogMonitor(monitor.LogConfig{
		Endpoint:        cfg.WSURL(),
		Program:         cfg.Program(),
		Commitment:      solana.Commitment(cfg.Commitment),
		RetryPolicy:     policy,
		SinkSendTimeout: cfg.SinkSendTimeout,
	})

	d := &discoveryControl{
		ctx:      ctx,
		sink:     sink,
		monitors: []monitor.Monitor{logMon},
		actives:  []func() bool{logMon.Active},
	}

	if cfg.ScanInterval > 0 {
		scanMon := monitor.NewScanMonitor(monitor.ScanConfig{
			Pool:            pool,
			Program:         cfg.Program(),
			Interval:        cfg.ScanInterval,
			RetryPolicy:     policy,
			SinkSendTimeout: cfg.SinkSendTimeout,
		})
		d.monitors = append(d.monitors, scanMon)
		d.actives = append(d.actives, scanMon.Active)
	}

	return d
}

// StartDiscovery starts every monitor that is not already running. It
// reports ErrAlreadyActive only when none needed starting.
func (d *discoveryControl) StartDiscovery() error {
	started := 0
	for _, m := range d.monitors {
		err := m.Start(d.ctx, d.sink)
		switch {
		case err == nil:
			started++
		case errors.Is(err, monitor.ErrAlreadyActive):
		default:
			return err
		}
	}
	if started == 0 {
		return monitor.ErrAlreadyActive
	}
	return nil
}

func (d *discoveryControl) StopDiscovery() error {
	var errs []error
	for _, m := range d.monitors {
		if err := m.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *discoveryControl) DiscoveryActive() bool {
	for _, active := range d.actives {
		if active() {
			return true
		}
	}
	return false
}
