// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package model holds the domain types shared across discovery, analysis and
// persistence.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/lpsprint/sprint/internal/solana"
)

// LamportsPerSol is the number of lamports in one SOL.
const LamportsPerSol = 1_000_000_000

// TokenInfo describes one side of a liquidity pool. Metadata fields are
// pointers because they are filled in lazily by analysis.
type TokenInfo struct {
	Mint     solana.Address `json:"mint"`
	Name     *string        `json:"name,omitempty"`
	Symbol   *string        `json:"symbol,omitempty"`
	Decimals *uint8         `json:"decimals,omitempty"`
}

// Pool is a discovered DLMM liquidity pool.
type Pool struct {
	Address      solana.Address `json:"address"`
	TokenA       TokenInfo      `json:"token_a"`
	TokenB       TokenInfo      `json:"token_b"`
	DiscoveredAt time.Time      `json:"discovered_at"`
	Analyzed     bool           `json:"analyzed"`
	Score        *float64       `json:"score,omitempty"`
}

// EventKind names what a discovery event announces.
type EventKind string

const (
	// PoolCreated marks a freshly announced liquidity pool.
	PoolCreated EventKind = "pool_created"
)

// PoolEvent is emitted by a monitor when it discovers a pool. Events are
// immutable after creation.
type PoolEvent struct {
	ID           uuid.UUID      `json:"id"`
	Kind         EventKind      `json:"kind"`
	Pool         solana.Address `json:"pool"`
	TokenA       solana.Address `json:"token_a"`
	TokenB       solana.Address `json:"token_b"`
	Signature    string         `json:"signature"`
	Slot         uint64         `json:"slot"`
	DiscoveredAt time.Time      `json:"discovered_at"`
}

// NewPoolEvent stamps identity and discovery time onto extracted addresses.
func NewPoolEvent(pool, tokenA, tokenB solana.Address, signature string, slot uint64) PoolEvent {
	return PoolEvent{
		ID:           uuid.New(),
		Kind:         PoolCreated,
		Pool:         pool,
		TokenA:       tokenA,
		TokenB:       tokenB,
		Signature:    signature,
		Slot:         slot,
		DiscoveredAt: time.Now().UTC(),
	}
}

// PositionStatus tracks the lifecycle of a liquidity position.
type PositionStatus string

const (
	PositionCreated      PositionStatus = "created"
	PositionActive       PositionStatus = "active"
	PositionClaimingFees PositionStatus = "claiming_fees"
	PositionExiting      PositionStatus = "exiting"
	PositionClosed       PositionStatus = "closed"
	PositionFailed       PositionStatus = "failed"
)

// Position records capital placed into a pool. The service persists these
// for bookkeeping; it never executes trades itself.
type Position struct {
	ID          int64          `json:"id"`
	Pool        solana.Address `json:"pool"`
	CreatedAt   time.Time      `json:"created_at"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
	SolInvested float64        `json:"sol_invested"`
	FeeClaimed  *float64       `json:"fee_claimed,omitempty"`
	ProfitLoss  *float64       `json:"profit_loss,omitempty"`
	Status      PositionStatus `json:"status"`
}

// LamportsToSol converts lamports to SOL.
func LamportsToSol(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSol
}

// SolToLamports converts SOL to lamports, truncating sub-lamport amounts.
func SolToLamports(sol float64) uint64 {
	return uint64(sol * LamportsPerSol)
}
