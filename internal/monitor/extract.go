// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package monitor

import (
	"strings"

	"github.com/lpsprint/sprint/internal/model"
	"github.com/lpsprint/sprint/internal/solana"
)

// Log markers written by the DLMM program when a pool is initialized. The
// node prefixes every line ("Program log: ..."), so markers are matched
// anywhere in the line.
const (
	markerPoolCreated = "Pool created:"
	markerTokenA      = "Token A:"
	markerTokenB      = "Token B:"
)

// HasCreationMarker is the cheap pre-filter applied to every batch before
// full extraction.
func HasCreationMarker(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, markerPoolCreated) {
			return true
		}
	}
	return false
}

// ExtractPoolEvent scans one transaction's log lines for the pool address
// and the two token mints. Per field the first line carrying a valid
// address wins; lines whose address does not parse are skipped for that
// field so a later line may still provide it. Only a batch yielding all
// three fields produces an event. Extraction never fails: an incomplete
// batch is simply not an event.
func ExtractPoolEvent(batch solana.LogBatch) (model.PoolEvent, bool) {
	var pool, tokenA, tokenB solana.Address
	var havePool, haveA, haveB bool

	for _, line := range batch.Logs {
		if !havePool {
			if addr, ok := addressAfter(line, markerPoolCreated); ok {
				pool, havePool = addr, true
			}
		}
		if !haveA {
			if addr, ok := addressAfter(line, markerTokenA); ok {
				tokenA, haveA = addr, true
			}
		}
		if !haveB {
			if addr, ok := addressAfter(line, markerTokenB); ok {
				tokenB, haveB = addr, true
			}
		}
		if havePool && haveA && haveB {
			break
		}
	}

	if !havePool || !haveA || !haveB {
		return model.PoolEvent{}, false
	}
	return model.NewPoolEvent(pool, tokenA, tokenB, batch.Signature, batch.Slot), true
}

// addressAfter parses the base58 address following marker in line.
func addressAfter(line, marker string) (solana.Address, bool) {
	idx := strings.Index(line, marker)
	if idx < 0 {
		return solana.Address{}, false
	}
	fields := strings.Fields(line[idx+len(marker):])
	if len(fields) == 0 {
		return solana.Address{}, false
	}
	addr, err := solana.ParseAddress(fields[0])
	if err != nil {
		return solana.Address{}, false
	}
	return addr, true
}
