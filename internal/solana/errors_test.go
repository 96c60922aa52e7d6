package solana

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRPCErrorSentinels(t *testing.T) {
	cases := []struct {
		name      string
		sentinel  error
		transient bool
	}{
		{name: "unavailable", sentinel: ErrUnavailable, transient: true},
		{name: "timeout", sentinel: ErrTimeout, transient: true},
		{name: "rate limited", sentinel: ErrRateLimited, transient: true},
		{name: "node behind", sentinel: ErrUnhealthy, transient: true},
		{name: "bad response", sentinel: ErrBadResponse, transient: false},
		{name: "rpc rejection", sentinel: ErrRPC, transient: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := &RPCError{Sentinel: tc.sentinel, Method: "getSlot", Endpoint: "https://rpc.example.com"}
			if !errors.Is(wrapped, tc.sentinel) {
				t.Errorf("expected errors.Is to match %v", tc.sentinel)
			}
			if got := wrapped.Transient(); got != tc.transient {
				t.Errorf("Transient() = %v, want %v", got, tc.transient)
			}
			if got := IsTransient(wrapped); got != tc.transient {
				t.Errorf("IsTransient() = %v, want %v", got, tc.transient)
			}
		})
	}
}

func TestIsTransientUnknownErrors(t *testing.T) {
	if IsTransient(errors.New("something else")) {
		t.Error("unknown errors must classify as permanent")
	}
	if IsTransient(nil) {
		t.Error("nil must not classify as transient")
	}
}

func TestRPCErrorMessage(t *testing.T) {
	err := &RPCError{
		Sentinel: ErrRPC,
		Method:   "getProgramAccounts",
		Endpoint: "https://rpc.example.com",
		Status:   400,
		Code:     -32602,
		Message:  "Invalid params",
		Err:      fmt.Errorf("inner"),
	}
	msg := err.Error()
	for _, want := range []string{"getProgramAccounts", "HTTP 400", "code -32602", "Invalid params", "inner"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in error message %q", want, msg)
		}
	}

	var rpcErr *RPCError
	if !errors.As(error(err), &rpcErr) {
		t.Fatal("expected errors.As to match *RPCError")
	}
}
