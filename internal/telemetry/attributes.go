// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/lpsprint/sprint/internal/model"
)

// Attribute keys shared across spans so traces stay queryable.
const (
	// Discovery attributes
	PoolAddressKey    = "pool.address"
	PoolScoreKey      = "pool.score"
	PoolQualifiedKey  = "pool.qualified"
	EventIDKey        = "discovery.event_id"
	EventSlotKey      = "discovery.slot"
	EventSignatureKey = "discovery.signature"

	// RPC attributes
	RPCEndpointKey = "rpc.endpoint"
	RPCMethodKey   = "rpc.method"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// EventAttributes describes one discovery event. The signature is omitted
// for events without one (account scans).
func EventAttributes(ev model.PoolEvent) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(EventIDKey, ev.ID.String()),
		attribute.String(PoolAddressKey, ev.Pool.String()),
		attribute.Int64(EventSlotKey, int64(ev.Slot)),
	}
	if ev.Signature != "" {
		attrs = append(attrs, attribute.String(EventSignatureKey, ev.Signature))
	}
	return attrs
}

// ScoreAttributes describes an analysis verdict.
func ScoreAttributes(score float64, qualified bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Float64(PoolScoreKey, score),
		attribute.Bool(PoolQualifiedKey, qualified),
	}
}

// RPCAttributes describes an upstream RPC call.
func RPCAttributes(endpoint, method string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RPCEndpointKey, endpoint),
		attribute.String(RPCMethodKey, method),
	}
}

// ErrorAttributes marks a span as failed with a coarse error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
