// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads sprintd settings. Precedence, lowest to highest:
// built-in defaults, an optional YAML file, SPRINT_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lpsprint/sprint/internal/solana"
)

// Config is the full sprintd configuration.
type Config struct {
	// RPC upstreams.
	Endpoints  []string `yaml:"endpoints"`
	WSEndpoint string   `yaml:"ws_endpoint"` // overrides the derived websocket URL
	Commitment string   `yaml:"commitment"`
	ProgramID  string   `yaml:"program_id"`

	// Connection pool.
	MinConnections      int           `yaml:"min_connections"`
	MaxConnections      int           `yaml:"max_connections"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	ProbeTimeout        time.Duration `yaml:"probe_timeout"`

	// Retry policy.
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`

	// Discovery.
	SinkCapacity    int           `yaml:"sink_capacity"`
	SinkSendTimeout time.Duration `yaml:"sink_send_timeout"`
	ScanInterval    time.Duration `yaml:"scan_interval"` // 0 disables the account-scan monitor

	// Pipeline.
	AnalyzeConcurrency int           `yaml:"analyze_concurrency"`
	DedupTTL           time.Duration `yaml:"dedup_ttl"`
	MinScore           float64       `yaml:"min_score"`

	// Storage.
	DBPath    string `yaml:"db_path"`
	RedisAddr string `yaml:"redis_addr"` // empty selects the in-memory cache

	// Outbound rate limiting, per endpoint.
	RPCRateLimit float64 `yaml:"rpc_rate_limit"`
	RPCRateBurst int     `yaml:"rpc_rate_burst"`

	// HTTP API.
	APIListenAddr string `yaml:"api_listen_addr"`
	APIToken      string `yaml:"api_token"`

	// Observability.
	LogLevel     string  `yaml:"log_level"`
	OTELEnabled  bool    `yaml:"otel_enabled"`
	OTELExporter string  `yaml:"otel_exporter"`
	OTELEndpoint string  `yaml:"otel_endpoint"`
	OTELSampling float64 `yaml:"otel_sampling"`
}

// Default returns the built-in configuration, tuned for a single public
// mainnet endpoint.
func Default() Config {
	return Config{
		Endpoints:  []string{solana.DefaultEndpoint},
		Commitment: string(solana.CommitmentConfirmed),
		ProgramID:  solana.DLMMProgram.String(),

		MinConnections:      1,
		MaxConnections:      3,
		HealthCheckInterval: 30 * time.Second,
		ProbeTimeout:        5 * time.Second,

		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,

		SinkCapacity:    256,
		SinkSendTimeout: time.Second,
		ScanInterval:    0,

		AnalyzeConcurrency: 4,
		DedupTTL:           24 * time.Hour,
		MinScore:           0.5,

		DBPath: "data/sprint.db",

		RPCRateLimit: 10,
		RPCRateBurst: 20,

		APIListenAddr: ":8090",

		LogLevel:     "info",
		OTELExporter: "grpc",
		OTELEndpoint: "localhost:4317",
		OTELSampling: 0.1,
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path when non-empty, then environment overrides, then validation.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyFile overlays the YAML file onto the receiver. Unknown keys are
// rejected so typos surface at startup instead of silently using defaults.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator flags
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Endpoints = ParseStringSlice("SPRINT_RPC_ENDPOINTS", c.Endpoints)
	c.WSEndpoint = ParseString("SPRINT_WS_ENDPOINT", c.WSEndpoint)
	c.Commitment = ParseString("SPRINT_COMMITMENT", c.Commitment)
	c.ProgramID = ParseString("SPRINT_PROGRAM_ID", c.ProgramID)

	c.MinConnections = ParseInt("SPRINT_POOL_MIN_CONNECTIONS", c.MinConnections)
	c.MaxConnections = ParseInt("SPRINT_POOL_MAX_CONNECTIONS", c.MaxConnections)
	c.HealthCheckInterval = ParseDuration("SPRINT_POOL_HEALTH_INTERVAL", c.HealthCheckInterval)
	c.ProbeTimeout = ParseDuration("SPRINT_POOL_PROBE_TIMEOUT", c.ProbeTimeout)

	c.MaxRetries = ParseInt("SPRINT_RETRY_MAX", c.MaxRetries)
	c.BaseDelay = ParseDuration("SPRINT_RETRY_BASE_DELAY", c.BaseDelay)
	c.MaxDelay = ParseDuration("SPRINT_RETRY_MAX_DELAY", c.MaxDelay)

	c.SinkCapacity = ParseInt("SPRINT_SINK_CAPACITY", c.SinkCapacity)
	c.SinkSendTimeout = ParseDuration("SPRINT_SINK_SEND_TIMEOUT", c.SinkSendTimeout)
	c.ScanInterval = ParseDuration("SPRINT_SCAN_INTERVAL", c.ScanInterval)

	c.AnalyzeConcurrency = ParseInt("SPRINT_ANALYZE_CONCURRENCY", c.AnalyzeConcurrency)
	c.DedupTTL = ParseDuration("SPRINT_DEDUP_TTL", c.DedupTTL)
	c.MinScore = ParseFloat("SPRINT_MIN_SCORE", c.MinScore)

	c.DBPath = ParseString("SPRINT_DB_PATH", c.DBPath)
	c.RedisAddr = ParseString("SPRINT_REDIS_ADDR", c.RedisAddr)

	c.RPCRateLimit = ParseFloat("SPRINT_RPC_RATE_LIMIT", c.RPCRateLimit)
	c.RPCRateBurst = ParseInt("SPRINT_RPC_RATE_BURST", c.RPCRateBurst)

	c.APIListenAddr = ParseString("SPRINT_API_LISTEN", c.APIListenAddr)
	c.APIToken = ParseString("SPRINT_API_TOKEN", c.APIToken)

	c.LogLevel = ParseString("SPRINT_LOG_LEVEL", c.LogLevel)
	c.OTELEnabled = ParseBool("SPRINT_OTEL_ENABLED", c.OTELEnabled)
	c.OTELExporter = ParseString("SPRINT_OTEL_EXPORTER", c.OTELExporter)
	c.OTELEndpoint = ParseString("SPRINT_OTEL_ENDPOINT", c.OTELEndpoint)
	c.OTELSampling = ParseFloat("SPRINT_OTEL_SAMPLING", c.OTELSampling)
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.New("config: at least one rpc endpoint is required")
	}
	for _, endpoint := range c.Endpoints {
		u, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("config: invalid rpc endpoint %q: %w", endpoint, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("config: rpc endpoint %q: scheme must be http or https", endpoint)
		}
	}

	if c.MinConnections < 1 {
		return errors.New("config: min_connections must be at least 1")
	}
	if c.MaxConnections < c.MinConnections {
		return fmt.Errorf("config: max_connections (%d) below min_connections (%d)",
			c.MaxConnections, c.MinConnections)
	}
	if c.HealthCheckInterval <= 0 {
		return errors.New("config: health_check_interval must be positive")
	}
	if c.ProbeTimeout <= 0 {
		return errors.New("config: probe_timeout must be positive")
	}

	if c.MaxRetries < 0 {
		return errors.New("config: max_retries must not be negative")
	}
	if c.BaseDelay <= 0 || c.MaxDelay <= 0 {
		return errors.New("config: retry delays must be positive")
	}

	switch solana.Commitment(c.Commitment) {
	case solana.CommitmentProcessed, solana.CommitmentConfirmed, solana.CommitmentFinalized:
	default:
		return fmt.Errorf("config: unknown commitment %q", c.Commitment)
	}
	if _, err := solana.ParseAddress(c.ProgramID); err != nil {
		return fmt.Errorf("config: invalid program id: %w", err)
	}

	if c.SinkCapacity < 1 {
		return errors.New("config: sink_capacity must be at least 1")
	}
	if c.AnalyzeConcurrency < 1 {
		return errors.New("config: analyze_concurrency must be at least 1")
	}
	if c.DedupTTL <= 0 {
		return errors.New("config: dedup_ttl must be positive")
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("config: min_score %g outside [0,1]", c.MinScore)
	}

	if c.DBPath == "" {
		return errors.New("config: db_path is required")
	}

	if c.RPCRateLimit <= 0 {
		return errors.New("config: rpc_rate_limit must be positive")
	}
	if c.RPCRateBurst < 1 {
		return errors.New("config: rpc_rate_burst must be at least 1")
	}

	if _, _, err := net.SplitHostPort(c.APIListenAddr); err != nil {
		return fmt.Errorf("config: invalid api listen address %q: %w", c.APIListenAddr, err)
	}

	if c.OTELEnabled {
		if c.OTELExporter != "grpc" && c.OTELExporter != "http" {
			return fmt.Errorf("config: otel_exporter must be grpc or http, got %q", c.OTELExporter)
		}
		if c.OTELEndpoint == "" {
			return errors.New("config: otel_endpoint required when otel is enabled")
		}
	}
	if c.OTELSampling < 0 || c.OTELSampling > 1 {
		return fmt.Errorf("config: otel_sampling %g outside [0,1]", c.OTELSampling)
	}

	return nil
}

// Program returns the parsed program address. Call after Validate.
func (c Config) Program() solana.Address {
	addr, err := solana.ParseAddress(c.ProgramID)
	if err != nil {
		return solana.Address{}
	}
	return addr
}

// WSURL returns the websocket endpoint: the explicit override when set,
// otherwise the first RPC endpoint rewritten to its websocket form.
func (c Config) WSURL() string {
	if c.WSEndpoint != "" {
		return c.WSEndpoint
	}
	if len(c.Endpoints) == 0 {
		return ""
	}
	return solana.WSEndpoint(c.Endpoints[0])
}
