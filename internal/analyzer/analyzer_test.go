// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package analyzer_test

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lpsprint/sprint/internal/analyzer"
	"github.com/lpsprint/sprint/internal/model"
	"github.com/lpsprint/sprint/internal/retry"
	"github.com/lpsprint/sprint/internal/rpcpool"
	"github.com/lpsprint/sprint/internal/solana"
)

const (
	poolAddr = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	wsolMint = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
}

func newTestPool(t *testing.T, endpoint string) *rpcpool.Pool {
	t.Helper()
	return rpcpool.New(rpcpool.Config{
		Endpoints:      []string{endpoint},
		MinConnections: 1,
		MaxConnections: 1,
		ProbeTimeout:   2 * time.Second,
		RetryPolicy:    fastPolicy(),
	})
}

func discoveryEvent() model.PoolEvent {
	return model.NewPoolEvent(
		solana.MustAddress(poolAddr),
		solana.MustAddress(wsolMint),
		solana.MustAddress(usdcMint),
		"5sigForAnalyzerTests",
		250_000_123,
	)
}

func accountWithData(t *testing.T, owner string, data []byte) solana.AccountInfo {
	t.Helper()
	payload, err := json.Marshal([]string{base64.StdEncoding.EncodeToString(data), "base64"})
	if err != nil {
		t.Fatalf("marshal account data: %v", err)
	}
	return solana.AccountInfo{Lamports: 1_461_600, Owner: owner, Data: payload}
}

func mintAccount(t *testing.T, owner string, decimals uint8, supply uint64, initialized bool) solana.AccountInfo {
	t.Helper()
	data := make([]byte, 82)
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	if initialized {
		data[45] = 1
	}
	return accountWithData(t, owner, data)
}

func requireScore(t *testing.T, pool *model.Pool, want float64) {
	t.Helper()
	if pool.Score == nil {
		t.Fatal("expected a score")
	}
	if *pool.Score != want {
		t.Fatalf("score = %v, want %v", *pool.Score, want)
	}
}

func TestAnalyzeHealthyPool(t *testing.T) {
	mock := solana.NewMockServer()
	defer mock.Close()
	mock.SetAccountInfo(wsolMint, mintAccount(t, solana.TokenProgram.String(), 9, 1_000_000, true))
	mock.SetAccountInfo(usdcMint, mintAccount(t, solana.TokenProgram.String(), 6, 50_000_000, true))

	a := analyzer.New(newTestPool(t, mock.URL), analyzer.DefaultCriteria(), fastPolicy())
	ev := discoveryEvent()

	pool, err := a.Analyze(context.Background(), ev)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if pool.Address != ev.Pool {
		t.Errorf("address = %s, want %s", pool.Address, ev.Pool)
	}
	if !pool.Analyzed {
		t.Error("pool should be marked analyzed")
	}
	if !pool.DiscoveredAt.Equal(ev.DiscoveredAt) {
		t.Errorf("discovered_at = %s, want %s", pool.DiscoveredAt, ev.DiscoveredAt)
	}
	requireScore(t, pool, 1.0)
	if pool.TokenA.Decimals == nil || *pool.TokenA.Decimals != 9 {
		t.Errorf("token a decimals = %v, want 9", pool.TokenA.Decimals)
	}
	if pool.TokenB.Decimals == nil || *pool.TokenB.Decimals != 6 {
		t.Errorf("token b decimals = %v, want 6", pool.TokenB.Decimals)
	}
}

func TestAnalyzeMissingMint(t *testing.T) {
	mock := solana.NewMockServer()
	defer mock.Close()
	mock.SetAccountInfo(wsolMint, mintAccount(t, solana.TokenProgram.String(), 9, 1_000_000, true))
	// usdcMint deliberately unregistered, comes back null.

	a := analyzer.New(newTestPool(t, mock.URL), analyzer.DefaultCriteria(), fastPolicy())

	pool, err := a.Analyze(context.Background(), discoveryEvent())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	requireScore(t, pool, 0.5)
	if pool.TokenB.Decimals != nil {
		t.Errorf("missing mint should leave decimals unset, got %v", *pool.TokenB.Decimals)
	}
}

func TestAnalyzeForeignOwner(t *testing.T) {
	mock := solana.NewMockServer()
	defer mock.Close()
	mock.SetAccountInfo(wsolMint, mintAccount(t, solana.TokenProgram.String(), 9, 1_000_000, true))
	mock.SetAccountInfo(usdcMint, mintAccount(t, solana.DLMMProgram.String(), 6, 50_000_000, true))

	a := analyzer.New(newTestPool(t, mock.URL), analyzer.DefaultCriteria(), fastPolicy())

	pool, err := a.Analyze(context.Background(), discoveryEvent())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	requireScore(t, pool, 0.9)
}

func TestAnalyzeShortMintData(t *testing.T) {
	mock := solana.NewMockServer()
	defer mock.Close()
	mock.SetAccountInfo(wsolMint, mintAccount(t, solana.TokenProgram.String(), 9, 1_000_000, true))
	mock.SetAccountInfo(usdcMint, accountWithData(t, solana.TokenProgram.String(), make([]byte, 10)))

	a := analyzer.New(newTestPool(t, mock.URL), analyzer.DefaultCriteria(), fastPolicy())

	pool, err := a.Analyze(context.Background(), discoveryEvent())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	requireScore(t, pool, 0.8)
	if pool.TokenB.Decimals != nil {
		t.Error("undecodable mint should leave decimals unset")
	}
}

func TestAnalyzeUninitializedMint(t *testing.T) {
	mock := solana.NewMockServer()
	defer mock.Close()
	mock.SetAccountInfo(wsolMint, mintAccount(t, solana.TokenProgram.String(), 9, 1_000_000, true))
	mock.SetAccountInfo(usdcMint, mintAccount(t, solana.TokenProgram.String(), 6, 0, false))

	a := analyzer.New(newTestPool(t, mock.URL), analyzer.DefaultCriteria(), fastPolicy())

	pool, err := a.Analyze(context.Background(), discoveryEvent())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	requireScore(t, pool, 0.8)
	if pool.TokenB.Decimals != nil {
		t.Error("uninitialized mint should leave decimals unset")
	}
}

func TestAnalyzeInsaneDecimals(t *testing.T) {
	mock := solana.NewMockServer()
	defer mock.Close()
	mock.SetAccountInfo(wsolMint, mintAccount(t, solana.TokenProgram.String(), 9, 1_000_000, true))
	mock.SetAccountInfo(usdcMint, mintAccount(t, solana.TokenProgram.String(), 200, 50_000_000, true))

	a := analyzer.New(newTestPool(t, mock.URL), analyzer.DefaultCriteria(), fastPolicy())

	pool, err := a.Analyze(context.Background(), discoveryEvent())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	// Decimals read out but the sanity point withheld.
	requireScore(t, pool, 0.9)
	if pool.TokenB.Decimals == nil || *pool.TokenB.Decimals != 200 {
		t.Errorf("token b decimals = %v, want 200", pool.TokenB.Decimals)
	}
}

func TestAnalyzeRetriesTransientFailures(t *testing.T) {
	mock := solana.NewMockServer()
	defer mock.Close()
	mock.SetAccountInfo(wsolMint, mintAccount(t, solana.TokenProgram.String(), 9, 1_000_000, true))
	mock.SetAccountInfo(usdcMint, mintAccount(t, solana.TokenProgram.String(), 6, 50_000_000, true))
	mock.SetFailures("getMultipleAccounts", 2)

	a := analyzer.New(newTestPool(t, mock.URL), analyzer.DefaultCriteria(), fastPolicy())

	pool, err := a.Analyze(context.Background(), discoveryEvent())
	if err != nil {
		t.Fatalf("analyze after transient failures: %v", err)
	}
	requireScore(t, pool, 1.0)
	if calls := mock.Calls("getMultipleAccounts"); calls != 3 {
		t.Errorf("getMultipleAccounts calls = %d, want 3", calls)
	}
}

func TestAnalyzeGivesUpAfterRetries(t *testing.T) {
	mock := solana.NewMockServer()
	defer mock.Close()
	mock.SetFailures("getMultipleAccounts", 10)

	a := analyzer.New(newTestPool(t, mock.URL), analyzer.DefaultCriteria(), fastPolicy())

	_, err := a.Analyze(context.Background(), discoveryEvent())
	if err == nil {
		t.Fatal("expected error when every fetch fails")
	}
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
}

func TestAnalyzeNoConnectionAvailable(t *testing.T) {
	mock := solana.NewMockServer()
	defer mock.Close()

	p := newTestPool(t, mock.URL)
	conn, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer conn.Release()

	a := analyzer.New(p, analyzer.DefaultCriteria(), fastPolicy())
	_, err = a.Analyze(context.Background(), discoveryEvent())
	if !errors.Is(err, rpcpool.ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
}
