package model

import (
	"testing"

	"github.com/lpsprint/sprint/internal/solana"
)

func TestLamportsConversion(t *testing.T) {
	cases := []struct {
		name     string
		lamports uint64
		sol      float64
	}{
		{name: "one sol", lamports: 1_000_000_000, sol: 1.0},
		{name: "half sol", lamports: 500_000_000, sol: 0.5},
		{name: "zero", lamports: 0, sol: 0},
		{name: "rent exempt minimum", lamports: 2_039_280, sol: 0.00203928},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := LamportsToSol(tc.lamports); got != tc.sol {
				t.Errorf("LamportsToSol(%d) = %v, want %v", tc.lamports, got, tc.sol)
			}
			if got := SolToLamports(tc.sol); got != tc.lamports {
				t.Errorf("SolToLamports(%v) = %d, want %d", tc.sol, got, tc.lamports)
			}
		})
	}
}

func TestNewPoolEvent(t *testing.T) {
	pool := solana.MustAddress("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	tokenA := solana.MustAddress("So11111111111111111111111111111111111111112")
	tokenB := solana.MustAddress("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	ev := NewPoolEvent(pool, tokenA, tokenB, "sig123", 250_000_000)

	if ev.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("expected a generated event id")
	}
	if ev.Kind != PoolCreated {
		t.Errorf("unexpected kind %q", ev.Kind)
	}
	if ev.Pool != pool || ev.TokenA != tokenA || ev.TokenB != tokenB {
		t.Error("addresses not carried through")
	}
	if ev.Slot != 250_000_000 || ev.Signature != "sig123" {
		t.Error("provenance not carried through")
	}
	if ev.DiscoveredAt.IsZero() {
		t.Error("expected discovery timestamp")
	}
}
