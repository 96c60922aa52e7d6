// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package solana implements a minimal JSON-RPC client for Solana nodes,
// covering the queries and subscriptions the discovery service needs.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lpsprint/sprint/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// Limiter throttles outbound requests. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Client talks JSON-RPC to a single Solana node.
type Client struct {
	endpoint   string
	http       *http.Client
	commitment Commitment
	limiter    Limiter
	nextID     atomic.Uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithCommitment sets the commitment level for state queries.
func WithCommitment(commitment Commitment) Option {
	return func(c *Client) { c.commitment = commitment }
}

// WithLimiter throttles this client's outbound requests.
func WithLimiter(l Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// New creates a client for the given HTTP RPC endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		http:       &http.Client{Timeout: defaultTimeout},
		commitment: CommitmentConfirmed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the RPC endpoint this client targets.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Commitment returns the commitment level used for state queries.
func (c *Client) Commitment() Commitment {
	return c.commitment
}

// Health asks the node whether it is caught up with the cluster. A node that
// is behind answers with an rpc error, surfaced here as ErrUnhealthy.
func (c *Client) Health(ctx context.Context) error {
	var status string
	if err := c.call(ctx, "getHealth", nil, &status); err != nil {
		return err
	}
	if status != "ok" {
		return &RPCError{Sentinel: ErrUnhealthy, Method: "getHealth", Endpoint: c.endpoint, Message: status}
	}
	return nil
}

// Slot returns the current slot at the client's commitment level.
func (c *Client) Slot(ctx context.Context) (uint64, error) {
	var slot uint64
	params := []any{commitmentConfig{Commitment: c.commitment}}
	if err := c.call(ctx, "getSlot", params, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// Version returns the node's software version.
func (c *Client) Version(ctx context.Context) (VersionInfo, error) {
	var v VersionInfo
	if err := c.call(ctx, "getVersion", nil, &v); err != nil {
		return VersionInfo{}, err
	}
	return v, nil
}

// ProgramAccounts lists accounts owned by program, optionally narrowed to a
// fixed data size. dataSize 0 disables the filter.
func (c *Client) ProgramAccounts(ctx context.Context, program Address, dataSize uint64) ([]KeyedAccount, error) {
	cfg := programAccountsConfig{
		Commitment: c.commitment,
		Encoding:   "base64",
	}
	if dataSize > 0 {
		cfg.Filters = []accountFilter{{DataSize: dataSize}}
	}
	var accounts []KeyedAccount
	if err := c.call(ctx, "getProgramAccounts", []any{program.String(), cfg}, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// MultipleAccounts fetches several accounts in one round trip. The result is
// positional; accounts that do not exist come back nil.
func (c *Client) MultipleAccounts(ctx context.Context, addresses []Address) ([]*AccountInfo, error) {
	keys := make([]string, len(addresses))
	for i, a := range addresses {
		keys[i] = a.String()
	}
	params := []any{keys, accountQueryConfig{Commitment: c.commitment, Encoding: "base64"}}
	var result multipleAccountsResult
	if err := c.call(ctx, "getMultipleAccounts", params, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("solana: marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("solana: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		rpcErr := c.transportError(method, err)
		c.record(method, rpcErr, time.Since(start))
		return rpcErr
	}
	defer func() { _ = res.Body.Close() }()

	if rpcErr := c.statusError(method, res); rpcErr != nil {
		c.record(method, rpcErr, time.Since(start))
		return rpcErr
	}

	var envelope rpcResponse
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		rpcErr := &RPCError{Sentinel: ErrBadResponse, Method: method, Endpoint: c.endpoint, Err: err}
		c.record(method, rpcErr, time.Since(start))
		return rpcErr
	}

	if envelope.Error != nil {
		sentinel := ErrRPC
		if envelope.Error.Code == rpcNodeBehind {
			sentinel = ErrUnhealthy
		}
		rpcErr := &RPCError{
			Sentinel: sentinel,
			Method:   method,
			Endpoint: c.endpoint,
			Code:     envelope.Error.Code,
			Message:  envelope.Error.Message,
		}
		c.record(method, rpcErr, time.Since(start))
		return rpcErr
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			rpcErr := &RPCError{Sentinel: ErrBadResponse, Method: method, Endpoint: c.endpoint, Err: err}
			c.record(method, rpcErr, time.Since(start))
			return rpcErr
		}
	}

	metrics.RecordRPCRequest(c.endpoint, method, "success", time.Since(start))
	return nil
}

func (c *Client) transportError(method string, err error) *RPCError {
	sentinel := ErrUnavailable
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		sentinel = ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		sentinel = ErrTimeout
	}
	return &RPCError{Sentinel: sentinel, Method: method, Endpoint: c.endpoint, Err: err}
}

func (c *Client) statusError(method string, res *http.Response) *RPCError {
	var sentinel error
	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case res.StatusCode >= 500:
		sentinel = ErrUnavailable
	case res.StatusCode >= 400:
		sentinel = ErrRPC
	default:
		return nil
	}
	excerpt, _ := io.ReadAll(io.LimitReader(res.Body, 256))
	return &RPCError{
		Sentinel: sentinel,
		Method:   method,
		Endpoint: c.endpoint,
		Status:   res.StatusCode,
		Message:  strings.TrimSpace(string(excerpt)),
	}
}

func (c *Client) record(method string, err *RPCError, duration time.Duration) {
	metrics.RecordRPCRequest(c.endpoint, method, "error", duration)
	kind := "terminal"
	if err.Transient() {
		kind = "transient"
	}
	metrics.IncRPCError(c.endpoint, kind)
}
