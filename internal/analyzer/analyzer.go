// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package analyzer scores discovered pools by inspecting their token mints
// on chain. Scoring is heuristic: it cannot prove a pool is worth entering,
// only that its mints look like real, initialized SPL tokens.
package analyzer

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lpsprint/sprint/internal/log"
	"github.com/lpsprint/sprint/internal/metrics"
	"github.com/lpsprint/sprint/internal/model"
	"github.com/lpsprint/sprint/internal/retry"
	"github.com/lpsprint/sprint/internal/rpcpool"
	"github.com/lpsprint/sprint/internal/solana"
	"github.com/lpsprint/sprint/internal/telemetry"
)

// Default qualification thresholds.
const (
	DefaultMinScore    = 0.5
	DefaultMaxDecimals = 12
)

// token2022Program owns mints created under the token extensions program.
const token2022Program = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"

// Criteria sets the thresholds an analyzed pool is judged against.
type Criteria struct {
	// MinScore is the score a pool must reach to count as qualified.
	// Zero means every pool qualifies.
	MinScore float64
	// MaxDecimals is the largest mint decimal count considered sane.
	MaxDecimals uint8
}

// DefaultCriteria returns the stock thresholds.
func DefaultCriteria() Criteria {
	return Criteria{MinScore: DefaultMinScore, MaxDecimals: DefaultMaxDecimals}
}

func (c Criteria) withDefaults() Criteria {
	if c.MaxDecimals == 0 {
		c.MaxDecimals = DefaultMaxDecimals
	}
	return c
}

// Integer score points per mint; the final score is points over the maximum
// so it lands exactly on tenths.
const (
	pointsExists     = 2
	pointsOwnership  = 1
	pointsSanity     = 1
	pointsSupply     = 1
	maxPointsPerMint = pointsExists + pointsOwnership + pointsSanity + pointsSupply
)

// Analyzer enriches and scores pools using a shared RPC connection pool.
type Analyzer struct {
	pool     *rpcpool.Pool
	criteria Criteria
	policy   retry.Policy
	logger   zerolog.Logger
}

// New builds an analyzer drawing connections from pool.
func New(pool *rpcpool.Pool, criteria Criteria, policy retry.Policy) *Analyzer {
	return &Analyzer{
		pool:     pool,
		criteria: criteria.withDefaults(),
		policy:   policy,
		logger:   log.WithComponent("analyzer"),
	}
}

// Analyze fetches both mint accounts of the pool announced by ev and scores
// the pool in [0,1]. Mint metadata that can be read (decimals) is filled into
// the returned pool; everything unreadable simply costs score.
func (a *Analyzer) Analyze(ctx context.Context, ev model.PoolEvent) (*model.Pool, error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("analyzer: acquire rpc connection: %w", err)
	}
	defer conn.Release()

	ctx, span := telemetry.Tracer("sprint.analyzer").Start(ctx, "analyzer.fetch_mints",
		trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(telemetry.RPCAttributes(conn.Endpoint(), "getMultipleAccounts")...)
	defer span.End()

	mints := []solana.Address{ev.TokenA, ev.TokenB}
	infos, err := retry.Do(ctx, a.policy, "analyzer.fetch_mints", func(ctx context.Context) ([]*solana.AccountInfo, error) {
		return conn.Client().MultipleAccounts(ctx, mints)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mint fetch failed")
		return nil, fmt.Errorf("analyzer: fetch mint accounts for %s: %w", ev.Pool.Short(), err)
	}
	span.SetStatus(codes.Ok, "")

	pool := &model.Pool{
		Address:      ev.Pool,
		TokenA:       model.TokenInfo{Mint: ev.TokenA},
		TokenB:       model.TokenInfo{Mint: ev.TokenB},
		DiscoveredAt: ev.DiscoveredAt,
		Analyzed:     true,
	}

	points := a.scoreMint(infoAt(infos, 0), &pool.TokenA)
	points += a.scoreMint(infoAt(infos, 1), &pool.TokenB)
	score := float64(points) / float64(2*maxPointsPerMint)
	pool.Score = &score

	qualified := a.Qualifies(score)
	metrics.ObserveAnalyzerScore(score)
	metrics.IncPoolQualified(qualified)

	a.logger.Debug().
		Str("event", "analyzer.scored").
		Str("pool", ev.Pool.String()).
		Float64("score", score).
		Bool("qualified", qualified).
		Msg("pool scored")

	return pool, nil
}

// Qualifies reports whether a score clears the configured minimum.
func (a *Analyzer) Qualifies(score float64) bool {
	return score >= a.criteria.MinScore
}

// scoreMint awards points for one mint account and fills readable metadata
// into token.
func (a *Analyzer) scoreMint(info *solana.AccountInfo, token *model.TokenInfo) int {
	if info == nil {
		metrics.IncAnalyzerMintIssue("missing")
		return 0
	}

	points := pointsExists
	if ownedByTokenProgram(info.Owner) {
		points += pointsOwnership
	} else {
		metrics.IncAnalyzerMintIssue("foreign_owner")
	}

	data, err := info.Bytes()
	if err != nil {
		metrics.IncAnalyzerMintIssue("bad_data")
		return points
	}
	state, err := decodeMint(data)
	if err != nil {
		metrics.IncAnalyzerMintIssue("bad_data")
		return points
	}

	if state.initialized {
		decimals := state.decimals
		token.Decimals = &decimals
		if state.decimals <= a.criteria.MaxDecimals {
			points += pointsSanity
		}
	}
	if state.supply > 0 {
		points += pointsSupply
	}
	return points
}

func ownedByTokenProgram(owner string) bool {
	return owner == solana.TokenProgram.String() || owner == token2022Program
}

func infoAt(infos []*solana.AccountInfo, i int) *solana.AccountInfo {
	if i >= len(infos) {
		return nil
	}
	return infos[i]
}

// mintAccountSize is the byte size of an SPL token mint account.
const mintAccountSize = 82

// Fixed offsets within the mint layout.
const (
	mintSupplyOffset      = 36
	mintDecimalsOffset    = 44
	mintInitializedOffset = 45
)

type mintState struct {
	supply      uint64
	decimals    uint8
	initialized bool
}

func decodeMint(data []byte) (mintState, error) {
	if len(data) < mintAccountSize {
		return mintState{}, fmt.Errorf("analyzer: mint account is %d bytes, want %d", len(data), mintAccountSize)
	}
	return mintState{
		supply:      binary.LittleEndian.Uint64(data[mintSupplyOffset : mintSupplyOffset+8]),
		decimals:    data[mintDecimalsOffset],
		initialized: data[mintInitializedOffset] == 1,
	}, nil
}
