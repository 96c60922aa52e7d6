// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package monitor_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lpsprint/sprint/internal/model"
	"github.com/lpsprint/sprint/internal/monitor"
	"github.com/lpsprint/sprint/internal/rpcpool"
	"github.com/lpsprint/sprint/internal/solana"
)

func scanPool(t *testing.T, endpoint string) *rpcpool.Pool {
	t.Helper()
	return rpcpool.New(rpcpool.Config{
		Endpoints:      []string{endpoint},
		MinConnections: 1,
		MaxConnections: 1,
		ProbeTimeout:   2 * time.Second,
		RetryPolicy:    fastPolicy(),
	})
}

func scanConfig(p *rpcpool.Pool) monitor.ScanConfig {
	return monitor.ScanConfig{
		Pool:        p,
		Interval:    20 * time.Millisecond,
		RetryPolicy: fastPolicy(),
	}
}

// pairAccount builds a program account whose data carries the two token
// mints at the expected offsets.
func pairAccount(t *testing.T, pool, mintA, mintB string) solana.KeyedAccount {
	t.Helper()
	data := make([]byte, monitor.DefaultAccountSize)
	a := solana.MustAddress(mintA)
	b := solana.MustAddress(mintB)
	copy(data[monitor.DefaultTokenAOffset:], a[:])
	copy(data[monitor.DefaultTokenBOffset:], b[:])

	raw, err := json.Marshal([]string{base64.StdEncoding.EncodeToString(data), "base64"})
	require.NoError(t, err)
	return solana.KeyedAccount{
		Pubkey: pool,
		Account: solana.AccountInfo{
			Lamports: 2_039_280,
			Owner:    solana.DLMMProgram.String(),
			Data:     raw,
		},
	}
}

func requireEmpty(t *testing.T, sink <-chan model.PoolEvent) {
	t.Helper()
	select {
	case ev := <-sink:
		t.Fatalf("unexpected event for pool %s", ev.Pool)
	default:
	}
}

func TestScanMonitorBaselineThenEmits(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mock := solana.NewMockServer()
	defer mock.Close()
	existing := pairAccount(t, poolOne, wsolMint, usdcMint)
	mock.SetAccounts([]solana.KeyedAccount{existing})

	m := monitor.NewScanMonitor(scanConfig(scanPool(t, mock.URL)))
	defer func() { _ = m.Stop() }()

	sink := make(chan model.PoolEvent, 8)
	require.NoError(t, m.Start(context.Background(), sink))
	require.True(t, m.Active())

	// The pre-existing pool only primes the baseline.
	require.Eventually(t, func() bool { return mock.Calls("getProgramAccounts") >= 2 },
		5*time.Second, 10*time.Millisecond)
	requireEmpty(t, sink)

	// A new account shows up on chain: exactly one event, carrying the
	// decoded mints and the current slot.
	fresh := pairAccount(t, poolTwo, usdcMint, wsolMint)
	mock.SetAccounts([]solana.KeyedAccount{existing, fresh})

	ev := mustRecv(t, sink)
	require.Equal(t, poolTwo, ev.Pool.String())
	require.Equal(t, usdcMint, ev.TokenA.String())
	require.Equal(t, wsolMint, ev.TokenB.String())
	require.Equal(t, uint64(250_000_000), ev.Slot)
	require.Empty(t, ev.Signature, "scan discoveries have no originating transaction")

	// Later passes must not re-emit it.
	seen := mock.Calls("getProgramAccounts")
	require.Eventually(t, func() bool { return mock.Calls("getProgramAccounts") >= seen+2 },
		5*time.Second, 10*time.Millisecond)
	requireEmpty(t, sink)
}

func TestScanMonitorRequiresPool(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := monitor.NewScanMonitor(monitor.ScanConfig{})
	sink := make(chan model.PoolEvent, 1)
	if err := m.Start(context.Background(), sink); err == nil {
		t.Fatal("start without a connection pool must fail")
	}
}

func TestScanMonitorSkipsMalformedAccounts(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mock := solana.NewMockServer()
	defer mock.Close()

	m := monitor.NewScanMonitor(scanConfig(scanPool(t, mock.URL)))
	defer func() { _ = m.Stop() }()

	sink := make(chan model.PoolEvent, 8)
	require.NoError(t, m.Start(context.Background(), sink))

	// Empty chain primes an empty baseline first.
	require.Eventually(t, func() bool { return mock.Calls("getProgramAccounts") >= 1 },
		5*time.Second, 10*time.Millisecond)

	truncated := solana.KeyedAccount{
		Pubkey:  poolThree,
		Account: solana.AccountInfo{Data: json.RawMessage(`["c2hvcnQ=","base64"]`)},
	}
	badKey := pairAccount(t, "not!an!address", wsolMint, usdcMint)
	valid := pairAccount(t, poolOne, wsolMint, usdcMint)
	mock.SetAccounts([]solana.KeyedAccount{truncated, badKey, valid})

	ev := mustRecv(t, sink)
	require.Equal(t, poolOne, ev.Pool.String())
	requireEmpty(t, sink)
}

func TestScanMonitorStopIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mock := solana.NewMockServer()
	defer mock.Close()

	m := monitor.NewScanMonitor(scanConfig(scanPool(t, mock.URL)))
	sink := make(chan model.PoolEvent, 1)
	require.NoError(t, m.Start(context.Background(), sink))

	require.NoError(t, m.Stop())
	require.False(t, m.Active())

	start := time.Now()
	require.NoError(t, m.Stop())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("second stop took %s", elapsed)
	}
}
