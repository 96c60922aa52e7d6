// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldEventID       = "event_id"
	FieldSignature     = "signature"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldAttempt   = "attempt"

	// RPC fields
	FieldEndpoint   = "endpoint"
	FieldMethod     = "method"
	FieldSlot       = "slot"
	FieldCommitment = "commitment"
	FieldStatus     = "status"

	// Market fields
	FieldPool   = "pool"
	FieldTokenA = "token_a"
	FieldTokenB = "token_b"
	FieldScore  = "score"
)
