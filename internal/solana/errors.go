package solana

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnavailable = errors.New("solana: endpoint unreachable or transport failure")
	ErrTimeout     = errors.New("solana: request timed out")
	ErrRateLimited = errors.New("solana: rate limited by endpoint")
	ErrUnhealthy   = errors.New("solana: node reports unhealthy")
	ErrBadResponse = errors.New("solana: invalid response format or malformed data")
	ErrRPC         = errors.New("solana: upstream rpc error")
)

// RPCError is a rich error type that wraps the sentinel errors with context.
type RPCError struct {
	Sentinel error
	Method   string
	Endpoint string
	Status   int    // HTTP status, when the failure happened at transport level
	Code     int    // JSON-RPC error code, when the upstream returned one
	Message  string // upstream error message or response excerpt
	Err      error  // nested lower-level error (e.g. net.Error)
}

func (e *RPCError) Error() string {
	msg := fmt.Sprintf("solana: %s: %v", e.Method, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RPCError) Unwrap() error {
	return e.Sentinel
}

// Transient reports whether retrying the failed call could plausibly succeed.
// Transport failures, timeouts, rate limiting and unhealthy nodes are
// recoverable conditions; malformed responses and upstream rpc rejections
// are not.
func (e *RPCError) Transient() bool {
	return IsTransient(e.Sentinel)
}

// IsTransient classifies an error as retryable. Unknown errors are permanent.
func IsTransient(err error) bool {
	switch {
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrUnhealthy):
		return true
	default:
		return false
	}
}
