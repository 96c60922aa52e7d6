// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package rpcpool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lpsprint/sprint/internal/rpcpool"
	"github.com/lpsprint/sprint/internal/solana"
)

// stopSweep cancels the sweep context and waits for the goroutine to exit,
// so goleak checks see a quiet process.
func stopSweep(t *testing.T, p *rpcpool.Pool, cancel context.CancelFunc) {
	t.Helper()
	cancel()
	select {
	case <-p.SweepDone():
	case <-time.After(5 * time.Second):
		t.Error("health sweep did not stop")
	}
}

func waitForStatus(t *testing.T, p *rpcpool.Pool, endpoint string, want rpcpool.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		status, ok := statusOf(t, p, endpoint)
		return ok && status == want
	}, 5*time.Second, 10*time.Millisecond, "endpoint %s never reached %s", endpoint, want)
}

func TestSweepDemotesFailingEndpoint(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mock := solana.NewMockServer()
	defer mock.Close()
	p := rpcpool.New(testConfig([]string{mock.URL}, 1, 1))

	mock.SetHealthy(false)
	ctx, cancel := context.WithCancel(context.Background())
	p.StartHealthSweep(ctx, 20*time.Millisecond)
	defer stopSweep(t, p, cancel)

	waitForStatus(t, p, mock.URL, rpcpool.StatusReconnecting)

	// Keep failing across several more ticks: the record must stay in the
	// registry as reconnecting, never silently dropped.
	probesSeen := mock.Calls("getHealth")
	require.Eventually(t, func() bool {
		return mock.Calls("getHealth") >= probesSeen+4
	}, 5*time.Second, 10*time.Millisecond, "sweep stopped probing the dead endpoint")

	status, ok := statusOf(t, p, mock.URL)
	if !ok {
		t.Fatal("endpoint disappeared from the registry")
	}
	if status != rpcpool.StatusReconnecting {
		t.Fatalf("status %s after repeated failures, want reconnecting", status)
	}
}

func TestSweepRestoresRecoveredEndpoint(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mock := solana.NewMockServer()
	defer mock.Close()
	p := rpcpool.New(testConfig([]string{mock.URL}, 1, 1))

	mock.SetHealthy(false)
	ctx, cancel := context.WithCancel(context.Background())
	p.StartHealthSweep(ctx, 20*time.Millisecond)
	defer stopSweep(t, p, cancel)

	waitForStatus(t, p, mock.URL, rpcpool.StatusReconnecting)

	mock.SetHealthy(true)
	waitForStatus(t, p, mock.URL, rpcpool.StatusHealthy)

	// And a restored endpoint is acquirable again.
	conn, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	conn.Release()
}

func TestSweepSkipsInUseConnections(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mock := solana.NewMockServer()
	defer mock.Close()
	p := rpcpool.New(testConfig([]string{mock.URL}, 1, 1))

	conn, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	mock.SetHealthy(false)
	ctx, cancel := context.WithCancel(context.Background())
	p.StartHealthSweep(ctx, 20*time.Millisecond)
	defer stopSweep(t, p, cancel)

	// Give the sweep several ticks; a held connection is never probed and
	// never demoted.
	time.Sleep(150 * time.Millisecond)
	if calls := mock.Calls("getHealth"); calls != 0 {
		t.Errorf("in-use connection was probed %d times", calls)
	}
	if status, _ := statusOf(t, p, mock.URL); status != rpcpool.StatusInUse {
		t.Errorf("status %s, want in_use", status)
	}

	conn.Release()
	waitForStatus(t, p, mock.URL, rpcpool.StatusReconnecting)
}

func TestAcquireNotBlockedBySlowProbe(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mock := solana.NewMockServer()
	defer mock.Close()
	p := rpcpool.New(testConfig([]string{mock.URL}, 1, 1))

	// A sweep stuck inside a slow probe must not delay acquire: probing
	// happens outside the registry lock.
	mock.SetDelay("getHealth", 600*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	p.StartHealthSweep(ctx, 20*time.Millisecond)
	defer stopSweep(t, p, cancel)

	require.Eventually(t, func() bool {
		return mock.Calls("getHealth") >= 1
	}, 2*time.Second, 5*time.Millisecond, "sweep never started probing")

	start := time.Now()
	conn, err := p.Acquire(context.Background())
	elapsed := time.Since(start)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Release()

	if elapsed > 300*time.Millisecond {
		t.Fatalf("acquire blocked for %v behind a slow probe", elapsed)
	}

	// The probe result from before the acquire commits nothing: the
	// record changed hands while the probe was in flight.
	time.Sleep(700 * time.Millisecond)
	if status, _ := statusOf(t, p, mock.URL); status != rpcpool.StatusInUse {
		t.Errorf("stale probe result overwrote an in-use record: %s", status)
	}
}
