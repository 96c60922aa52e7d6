// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package solana

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressLength is the byte length of an ed25519 public key.
const AddressLength = 32

// Address is a Solana account address (32-byte ed25519 public key).
type Address [AddressLength]byte

// ParseAddress decodes a base58 account address. The decoded form must be
// exactly 32 bytes.
func ParseAddress(s string) (Address, error) {
	var a Address
	if s == "" {
		return a, fmt.Errorf("parse address: empty string")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("parse address %q: %w", s, err)
	}
	if len(raw) != AddressLength {
		return a, fmt.Errorf("parse address %q: decoded to %d bytes, want %d", s, len(raw), AddressLength)
	}
	copy(a[:], raw)
	return a, nil
}

// MustAddress parses a base58 address and panics on failure. Intended for
// package-level constants and tests.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the canonical base58 form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Short returns an abbreviated display form ("abcd...wxyz") for logs.
func (a Address) Short() string {
	s := a.String()
	if len(s) <= 8 {
		return s
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// IsZero reports whether the address is the all-zero value.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// DLMMProgram is the Meteora DLMM program that announces new liquidity pools.
var DLMMProgram = MustAddress("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")

// TokenProgram is the SPL token program that owns legacy mint accounts.
var TokenProgram = MustAddress("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
