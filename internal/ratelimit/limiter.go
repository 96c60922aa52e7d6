// Package ratelimit throttles outbound JSON-RPC traffic so public endpoints
// do not greylist the service.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	waitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sprint",
			Name:      "ratelimit_wait_seconds",
			Help:      "Time spent waiting for the outbound rate limiter",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"endpoint"},
	)

	waitErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sprint",
			Name:      "ratelimit_wait_errors_total",
			Help:      "Total limiter waits abandoned because the context ended",
		},
		[]string{"endpoint"},
	)
)

// Config holds outbound rate limiting configuration.
type Config struct {
	RequestsPerSecond rate.Limit // per endpoint
	Burst             int
}

// DefaultConfig matches what public mainnet endpoints tolerate.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

// Gate hands out per-endpoint limiters sharing one configuration.
type Gate struct {
	config Config

	mu          sync.Mutex
	perEndpoint map[string]*rate.Limiter
}

// New creates a gate with the given config. Zero or negative rates disable
// throttling.
func New(config Config) *Gate {
	return &Gate{
		config:      config,
		perEndpoint: make(map[string]*rate.Limiter),
	}
}

// ForEndpoint returns the limiter guarding one endpoint, creating it on
// first use. The returned value satisfies the rpc client's Limiter interface.
func (g *Gate) ForEndpoint(endpoint string) *EndpointLimiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	limiter, exists := g.perEndpoint[endpoint]
	if !exists {
		if g.config.RequestsPerSecond > 0 {
			limiter = rate.NewLimiter(g.config.RequestsPerSecond, g.config.Burst)
		}
		g.perEndpoint[endpoint] = limiter
	}
	return &EndpointLimiter{endpoint: endpoint, limiter: limiter}
}

// EndpointLimiter throttles calls against a single endpoint.
type EndpointLimiter struct {
	endpoint string
	limiter  *rate.Limiter
}

// Wait blocks until the next request may proceed or ctx ends.
func (l *EndpointLimiter) Wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		waitErrors.WithLabelValues(l.endpoint).Inc()
		return err
	}
	if waited := time.Since(start); waited > 0 {
		waitSeconds.WithLabelValues(l.endpoint).Observe(waited.Seconds())
	}
	return nil
}

// Endpoint returns the endpoint this limiter guards.
func (l *EndpointLimiter) Endpoint() string {
	return l.endpoint
}
