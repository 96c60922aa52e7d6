// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package rpcpool maintains a registry of Solana RPC endpoints, hands out
// healthy connections to callers and keeps probing the rest in the
// background so rate-limited or flapping endpoints rejoin on their own.
package rpcpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lpsprint/sprint/internal/log"
	"github.com/lpsprint/sprint/internal/metrics"
	"github.com/lpsprint/sprint/internal/ratelimit"
	"github.com/lpsprint/sprint/internal/retry"
	"github.com/lpsprint/sprint/internal/solana"
)

// ErrPoolExhausted is returned by Acquire when no healthy connection exists
// and every remaining configured endpoint refused a liveness probe.
var ErrPoolExhausted = errors.New("rpcpool: no available rpc connection")

// Config holds connection pool settings.
type Config struct {
	// Endpoints are the HTTP RPC URLs the pool may connect to, in order
	// of preference.
	Endpoints []string
	// MinConnections clients are created eagerly at construction, without
	// probing.
	MinConnections int
	// MaxConnections caps the registry size.
	MaxConnections int
	// Commitment applied to every client built by the pool.
	Commitment solana.Commitment
	// ProbeTimeout bounds a single liveness probe.
	ProbeTimeout time.Duration
	// RetryPolicy is the service retry policy; probes derive a
	// single-attempt policy from it.
	RetryPolicy retry.Policy
	// Gate throttles outbound requests per endpoint. Optional.
	Gate *ratelimit.Gate
}

// DefaultConfig mirrors what a single public mainnet endpoint tolerates.
func DefaultConfig() Config {
	return Config{
		Endpoints:      []string{solana.DefaultEndpoint},
		MinConnections: 1,
		MaxConnections: 3,
		Commitment:     solana.CommitmentConfirmed,
		ProbeTimeout:   5 * time.Second,
		RetryPolicy:    retry.DefaultPolicy(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MinConnections <= 0 {
		c.MinConnections = def.MinConnections
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = def.MaxConnections
	}
	if c.MaxConnections < c.MinConnections {
		c.MaxConnections = c.MinConnections
	}
	if c.Commitment == "" {
		c.Commitment = def.Commitment
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
	return c
}

// record is one registry entry. Owned by the pool; never escapes.
type record struct {
	client   *solana.Client
	status   Status
	lastUsed time.Time
}

// Pool owns the endpoint registry. The registry map is the only shared
// mutable state; every read-modify-write happens under mu, and network
// calls never do.
type Pool struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	registry map[string]*record

	sweepOnce sync.Once
	sweepDone chan struct{}
}

// New builds a pool and eagerly instantiates MinConnections clients without
// probing them. With zero configured endpoints the registry stays empty and
// every Acquire reports exhaustion.
func New(cfg Config) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:       cfg,
		logger:    log.WithComponent("rpcpool"),
		registry:  make(map[string]*record),
		sweepDone: make(chan struct{}),
	}

	p.mu.Lock()
	for _, endpoint := range cfg.Endpoints {
		if len(p.registry) >= cfg.MinConnections {
			break
		}
		if _, dup := p.registry[endpoint]; dup {
			continue
		}
		p.registry[endpoint] = &record{
			client:   p.newClient(endpoint),
			status:   StatusHealthy,
			lastUsed: time.Now(),
		}
		p.logger.Info().
			Str("event", "pool.connection_initialized").
			Str("endpoint", endpoint).
			Msg("initialized rpc connection")
	}
	p.mu.Unlock()

	p.publishGauges()
	return p
}

func (p *Pool) newClient(endpoint string) *solana.Client {
	opts := []solana.Option{solana.WithCommitment(p.cfg.Commitment)}
	if p.cfg.Gate != nil {
		opts = append(opts, solana.WithLimiter(p.cfg.Gate.ForEndpoint(endpoint)))
	}
	return solana.New(endpoint, opts...)
}

// Conn is a caller's handle on one pooled connection. Callers must Release
// it when done; the handle is independent of the registry entry it came
// from.
type Conn struct {
	endpoint string
	client   *solana.Client
	pool     *Pool
	once     sync.Once
}

// Client returns the underlying RPC client.
func (c *Conn) Client() *solana.Client {
	return c.client
}

// Endpoint returns the endpoint this handle is bound to.
func (c *Conn) Endpoint() string {
	return c.endpoint
}

// Release hands the connection back to the pool. Releasing twice through
// the same handle is a no-op.
func (c *Conn) Release() {
	c.once.Do(func() {
		c.pool.Release(c.endpoint)
	})
}

// Acquire returns a healthy connection, preferring ones already in the
// registry. When none is free it dials unused configured endpoints, one
// probe each, never holding the registry lock across the network. With no
// candidate left it fails with ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	for _, endpoint := range p.cfg.Endpoints {
		rec, ok := p.registry[endpoint]
		if !ok || rec.status != StatusHealthy {
			continue
		}
		rec.status = StatusInUse
		rec.lastUsed = time.Now()
		conn := &Conn{endpoint: endpoint, client: rec.client, pool: p}
		p.mu.Unlock()

		metrics.IncPoolAcquire("healthy")
		p.publishGauges()
		p.logger.Debug().
			Str("event", "pool.acquired").
			Str("endpoint", endpoint).
			Msg("using rpc connection")
		return conn, nil
	}

	// Nothing healthy: collect configured endpoints that were never
	// instantiated, while there is still room to grow.
	var candidates []string
	if len(p.registry) < p.cfg.MaxConnections {
		for _, endpoint := range p.cfg.Endpoints {
			if _, exists := p.registry[endpoint]; !exists {
				candidates = append(candidates, endpoint)
			}
		}
	}
	p.mu.Unlock()

	for _, endpoint := range candidates {
		if ctx.Err() != nil {
			break
		}
		client := p.newClient(endpoint)
		if err := p.probe(ctx, client); err != nil {
			metrics.IncPoolAcquire("probe_failed")
			p.logger.Warn().
				Str("event", "pool.dial_failed").
				Str("endpoint", endpoint).
				Err(err).
				Msg("failed to establish healthy connection")
			continue
		}

		p.mu.Lock()
		// The registry may have changed while we probed: a racing caller
		// can register the same endpoint, or fill the pool.
		if _, exists := p.registry[endpoint]; exists {
			p.mu.Unlock()
			continue
		}
		if len(p.registry) >= p.cfg.MaxConnections {
			p.mu.Unlock()
			break
		}
		p.registry[endpoint] = &record{client: client, status: StatusInUse, lastUsed: time.Now()}
		conn := &Conn{endpoint: endpoint, client: client, pool: p}
		p.mu.Unlock()

		metrics.IncPoolAcquire("dialed")
		p.publishGauges()
		p.logger.Info().
			Str("event", "pool.connection_created").
			Str("endpoint", endpoint).
			Msg("created new rpc connection")
		return conn, nil
	}

	metrics.IncPoolAcquire("exhausted")
	p.logger.Warn().
		Str("event", "pool.exhausted").
		Int("registry_size", p.Size()).
		Msg("no rpc connection available")
	return nil, ErrPoolExhausted
}

// Release returns the endpoint's connection to the healthy state. Per-use
// failures are not tracked here; an endpoint that went bad is caught by the
// next health sweep. Unknown endpoints are ignored.
func (p *Pool) Release(endpoint string) {
	p.mu.Lock()
	rec, ok := p.registry[endpoint]
	if ok {
		rec.status = StatusHealthy
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	metrics.IncPoolRelease()
	p.publishGauges()
	p.logger.Debug().
		Str("event", "pool.released").
		Str("endpoint", endpoint).
		Msg("released rpc connection")
}

// probe runs one liveness check against a client, bounded by the probe
// timeout. A single-attempt policy keeps the retry cadence with the caller.
func (p *Pool) probe(ctx context.Context, client *solana.Client) error {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()
	return retry.Run(probeCtx, p.cfg.RetryPolicy.Single(), "pool.probe", func(ctx context.Context) error {
		return client.Health(ctx)
	})
}

// Size returns the current registry size.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.registry)
}

// Snapshot returns a copy of the per-endpoint states, in configuration
// order, for the API and health surfaces.
func (p *Pool) Snapshot() []EndpointStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]EndpointStatus, 0, len(p.registry))
	for _, endpoint := range p.cfg.Endpoints {
		rec, ok := p.registry[endpoint]
		if !ok {
			continue
		}
		out = append(out, EndpointStatus{
			Endpoint: endpoint,
			Status:   rec.status,
			LastUsed: rec.lastUsed,
		})
	}
	return out
}

// HealthyCount returns how many connections are ready to be handed out.
func (p *Pool) HealthyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, rec := range p.registry {
		if rec.status == StatusHealthy {
			n++
		}
	}
	return n
}

func (p *Pool) publishGauges() {
	p.mu.Lock()
	counts := make(map[string]int, 4)
	for _, rec := range p.registry {
		counts[rec.status.String()]++
	}
	p.mu.Unlock()
	metrics.SetPoolConnections(counts)
}
