package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientHealth(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()

	c := New(mock.URL)
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health() on healthy node: %v", err)
	}

	mock.SetBehindBy(150)
	err := c.Health(context.Background())
	if !errors.Is(err, ErrUnhealthy) {
		t.Fatalf("expected ErrUnhealthy, got %v", err)
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatal("expected *RPCError")
	}
	if rpcErr.Code != rpcNodeBehind {
		t.Errorf("expected code %d, got %d", rpcNodeBehind, rpcErr.Code)
	}
	if !rpcErr.Transient() {
		t.Error("a node that is behind should classify as transient")
	}
}

func TestClientSlotAndVersion(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()
	mock.SetSlot(123_456_789)

	c := New(mock.URL, WithCommitment(CommitmentFinalized))

	slot, err := c.Slot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if slot != 123_456_789 {
		t.Errorf("Slot() = %d, want 123456789", slot)
	}

	v, err := c.Version(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v.SolanaCore == "" {
		t.Error("expected solana-core version")
	}
}

func TestClientProgramAccounts(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()
	mock.SetAccounts([]KeyedAccount{
		{Pubkey: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", Account: AccountInfo{Lamports: 2_039_280, Owner: DLMMProgram.String()}},
	})

	c := New(mock.URL)
	accounts, err := c.ProgramAccounts(context.Background(), DLMMProgram, 904)
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	if accounts[0].Account.Owner != DLMMProgram.String() {
		t.Errorf("unexpected owner %q", accounts[0].Account.Owner)
	}
}

func TestClientMultipleAccounts(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()

	present := MustAddress("So11111111111111111111111111111111111111112")
	missing := MustAddress("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	mock.SetAccountInfo(present.String(), AccountInfo{
		Lamports: 1_461_600,
		Owner:    TokenProgram.String(),
		Data:     json.RawMessage(`["AQAAAA==","base64"]`),
	})

	c := New(mock.URL)
	infos, err := c.MultipleAccounts(context.Background(), []Address{present, missing})
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 result slots, got %d", len(infos))
	}
	if infos[0] == nil || infos[0].Owner != TokenProgram.String() {
		t.Errorf("present account wrong: %+v", infos[0])
	}
	data, err := infos[0].Bytes()
	if err != nil {
		t.Fatalf("decode account data: %v", err)
	}
	if len(data) != 4 {
		t.Errorf("decoded %d bytes, want 4", len(data))
	}
	if infos[1] != nil {
		t.Errorf("missing account should be nil, got %+v", infos[1])
	}
}

func TestClientErrorClassification(t *testing.T) {
	cases := []struct {
		name     string
		arrange  func(m *MockServer)
		sentinel error
	}{
		{
			name:     "HTTP 429",
			arrange:  func(m *MockServer) { m.SetRateLimits("getSlot", 1) },
			sentinel: ErrRateLimited,
		},
		{
			name:     "HTTP 500",
			arrange:  func(m *MockServer) { m.SetFailures("getSlot", 1) },
			sentinel: ErrUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := NewMockServer()
			defer mock.Close()
			tc.arrange(mock)

			c := New(mock.URL)
			_, err := c.Slot(context.Background())
			if !errors.Is(err, tc.sentinel) {
				t.Fatalf("expected %v, got %v", tc.sentinel, err)
			}
			if !IsTransient(err) {
				t.Error("expected transient classification")
			}
		})
	}
}

func TestClientUnknownMethodIsTerminal(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()

	c := New(mock.URL)
	var out any
	err := c.call(context.Background(), "getThingThatDoesNotExist", nil, &out)
	if !errors.Is(err, ErrRPC) {
		t.Fatalf("expected ErrRPC, got %v", err)
	}
	if IsTransient(err) {
		t.Error("rpc rejections must classify as terminal")
	}
}

func TestClientTimeout(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()
	mock.SetDelay("getHealth", 300*time.Millisecond)

	c := New(mock.URL, WithTimeout(50*time.Millisecond))
	err := c.Health(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !IsTransient(err) {
		t.Error("timeouts must classify as transient")
	}
}

func TestClientUnreachableEndpoint(t *testing.T) {
	// Closed server: connection refused.
	mock := NewMockServer()
	url := mock.URL
	mock.Close()

	c := New(url)
	err := c.Health(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("definitely not json"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Health(context.Background())
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
	if IsTransient(err) {
		t.Error("malformed responses must classify as terminal")
	}
}

func TestClientContextCancellation(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()
	mock.SetDelay("getHealth", 500*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	c := New(mock.URL)
	err := c.Health(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type countingLimiter struct{ waits int }

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.waits++
	return nil
}

func TestClientRespectsLimiter(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()

	limiter := &countingLimiter{}
	c := New(mock.URL, WithLimiter(limiter))

	if err := c.Health(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Slot(context.Background()); err != nil {
		t.Fatal(err)
	}
	if limiter.waits != 2 {
		t.Errorf("expected limiter consulted twice, got %d", limiter.waits)
	}
}
