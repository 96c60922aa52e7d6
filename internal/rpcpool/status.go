// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package rpcpool

import "time"

// Status describes where a pooled connection sits in its lifecycle.
type Status int

const (
	// StatusHealthy marks a connection that passed its last probe and is
	// free for the taking.
	StatusHealthy Status = iota
	// StatusInUse marks a connection currently held by a caller.
	StatusInUse
	// StatusReconnecting marks a connection that failed a probe; the health
	// sweep keeps rebuilding it until it answers again.
	StatusReconnecting
	// StatusFailed is reserved for manual removal of an endpoint. The sweep
	// never assigns it.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusInUse:
		return "in_use"
	case StatusReconnecting:
		return "reconnecting"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so snapshots serialize with
// readable status names.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EndpointStatus is a point-in-time copy of one registry entry, safe to hand
// to callers.
type EndpointStatus struct {
	Endpoint string    `json:"endpoint"`
	Status   Status    `json:"status"`
	LastUsed time.Time `json:"last_used"`
}
