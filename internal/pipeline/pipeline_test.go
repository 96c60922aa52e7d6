// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline_test

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/lpsprint/sprint/internal/analyzer"
	"github.com/lpsprint/sprint/internal/cache"
	"github.com/lpsprint/sprint/internal/model"
	"github.com/lpsprint/sprint/internal/pipeline"
	"github.com/lpsprint/sprint/internal/retry"
	"github.com/lpsprint/sprint/internal/rpcpool"
	"github.com/lpsprint/sprint/internal/solana"
	"github.com/lpsprint/sprint/internal/store"
)

const (
	poolAddr = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	wsolMint = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 1, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
}

func newDiscoveryPool(t *testing.T, endpoint string) *rpcpool.Pool {
	t.Helper()
	return rpcpool.New(rpcpool.Config{
		Endpoints:      []string{endpoint},
		MinConnections: 1,
		MaxConnections: 1,
		ProbeTimeout:   2 * time.Second,
		RetryPolicy:    fastPolicy(),
	})
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sprint.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func mintAccount(t *testing.T, decimals uint8, supply uint64) solana.AccountInfo {
	t.Helper()
	data := make([]byte, 82)
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	data[45] = 1
	payload, err := json.Marshal([]string{base64.StdEncoding.EncodeToString(data), "base64"})
	if err != nil {
		t.Fatalf("marshal account data: %v", err)
	}
	return solana.AccountInfo{Lamports: 1_461_600, Owner: solana.TokenProgram.String(), Data: payload}
}

func registerHealthyMints(t *testing.T, mock *solana.MockServer) {
	t.Helper()
	mock.SetAccountInfo(wsolMint, mintAccount(t, 9, 1_000_000))
	mock.SetAccountInfo(usdcMint, mintAccount(t, 6, 50_000_000))
}

func discoveryEvent(signature string) model.PoolEvent {
	return model.NewPoolEvent(
		solana.MustAddress(poolAddr),
		solana.MustAddress(wsolMint),
		solana.MustAddress(usdcMint),
		signature,
		250_000_123,
	)
}

func TestPipelinePersistsAndScores(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mock := solana.NewMockServer()
	defer mock.Close()
	registerHealthyMints(t, mock)

	st := openStore(t)
	defer func() { _ = st.Close() }()

	an := analyzer.New(newDiscoveryPool(t, mock.URL), analyzer.DefaultCriteria(), fastPolicy())
	p := pipeline.New(st, cache.NewMemoryCache(0), an, pipeline.Config{})

	events := make(chan model.PoolEvent, 8)
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(context.Background(), events) }()

	events <- discoveryEvent("sig-1")
	close(events)
	if err := <-runDone; err != nil {
		t.Fatalf("run: %v", err)
	}

	got, err := st.GetPool(context.Background(), solana.MustAddress(poolAddr))
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if got == nil {
		t.Fatal("pool was not persisted")
	}
	if !got.Analyzed {
		t.Error("pool should be analyzed after drain")
	}
	if got.Score == nil || *got.Score != 1.0 {
		t.Errorf("score = %v, want 1.0", got.Score)
	}
	if got.TokenA.Decimals == nil || *got.TokenA.Decimals != 9 {
		t.Errorf("token a decimals = %v, want 9", got.TokenA.Decimals)
	}
}

func TestPipelineDeduplicates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mock := solana.NewMockServer()
	defer mock.Close()
	registerHealthyMints(t, mock)

	st := openStore(t)
	defer func() { _ = st.Close() }()

	an := analyzer.New(newDiscoveryPool(t, mock.URL), analyzer.DefaultCriteria(), fastPolicy())
	p := pipeline.New(st, cache.NewMemoryCache(0), an, pipeline.Config{})

	events := make(chan model.PoolEvent, 8)
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(context.Background(), events) }()

	// Same pool announced twice, as when log and scan monitors overlap.
	events <- discoveryEvent("sig-1")
	events <- discoveryEvent("sig-2")
	close(events)
	if err := <-runDone; err != nil {
		t.Fatalf("run: %v", err)
	}

	if calls := mock.Calls("getMultipleAccounts"); calls != 1 {
		t.Errorf("duplicate event was analyzed: %d mint fetches, want 1", calls)
	}
	n, err := st.CountPools(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("pools = %d, want 1", n)
	}
}

func TestPipelineDedupMarkerExpires(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mock := solana.NewMockServer()
	defer mock.Close()
	registerHealthyMints(t, mock)

	st := openStore(t)
	defer func() { _ = st.Close() }()

	an := analyzer.New(newDiscoveryPool(t, mock.URL), analyzer.DefaultCriteria(), fastPolicy())
	p := pipeline.New(st, cache.NewMemoryCache(0), an, pipeline.Config{DedupTTL: 20 * time.Millisecond})

	events := make(chan model.PoolEvent, 8)
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(context.Background(), events) }()

	events <- discoveryEvent("sig-1")
	time.Sleep(80 * time.Millisecond)
	events <- discoveryEvent("sig-2")
	close(events)
	if err := <-runDone; err != nil {
		t.Fatalf("run: %v", err)
	}

	if calls := mock.Calls("getMultipleAccounts"); calls != 2 {
		t.Errorf("expected reanalysis after marker expiry, got %d mint fetches", calls)
	}
}

func TestPipelineWithoutAnalyzer(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st := openStore(t)
	defer func() { _ = st.Close() }()

	p := pipeline.New(st, cache.NewMemoryCache(0), nil, pipeline.Config{})

	events := make(chan model.PoolEvent, 8)
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(context.Background(), events) }()

	events <- discoveryEvent("sig-1")
	close(events)
	if err := <-runDone; err != nil {
		t.Fatalf("run: %v", err)
	}

	got, err := st.GetPool(context.Background(), solana.MustAddress(poolAddr))
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if got == nil {
		t.Fatal("pool was not persisted")
	}
	if got.Analyzed {
		t.Error("pool should stay unanalyzed without an analyzer")
	}
	if got.Score != nil {
		t.Errorf("score should be unset, got %v", *got.Score)
	}
}

func TestPipelineAnalyzeFailureKeepsPool(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mock := solana.NewMockServer()
	defer mock.Close()
	mock.SetFailures("getMultipleAccounts", 10)

	st := openStore(t)
	defer func() { _ = st.Close() }()

	an := analyzer.New(newDiscoveryPool(t, mock.URL), analyzer.DefaultCriteria(), fastPolicy())
	p := pipeline.New(st, cache.NewMemoryCache(0), an, pipeline.Config{})

	events := make(chan model.PoolEvent, 8)
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(context.Background(), events) }()

	events <- discoveryEvent("sig-1")
	close(events)
	if err := <-runDone; err != nil {
		t.Fatalf("run: %v", err)
	}

	got, err := st.GetPool(context.Background(), solana.MustAddress(poolAddr))
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if got == nil {
		t.Fatal("pool must survive a failed analysis")
	}
	if got.Analyzed {
		t.Error("failed analysis must not mark the pool analyzed")
	}
}

func TestPipelineStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st := openStore(t)
	defer func() { _ = st.Close() }()

	p := pipeline.New(st, cache.NewMemoryCache(0), nil, pipeline.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan model.PoolEvent)
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx, events) }()

	cancel()
	select {
	case err := <-runDone:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after cancel")
	}
}
