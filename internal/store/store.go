// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store persists discovered pools and positions in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure Go driver, no CGO

	"github.com/lpsprint/sprint/internal/log"
	"github.com/lpsprint/sprint/internal/metrics"
	"github.com/lpsprint/sprint/internal/model"
	"github.com/lpsprint/sprint/internal/solana"
)

// ErrNotFound is returned by mutations that matched no row.
var ErrNotFound = errors.New("store: not found")

const busyTimeout = 5 * time.Second

// Store wraps the SQLite database. Safe for concurrent use; SQLite write
// serialization is handled by the driver and the busy timeout.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if necessary) the database at path and applies
// pending migrations. Pragmas ride the DSN so they hold for every
// connection in the pool.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{db: db, logger: log.WithComponent("store")}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// migrations are applied in order; PRAGMA user_version records the last one
// applied. Each entry runs inside its own transaction.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS pools (
		address TEXT PRIMARY KEY,
		token_a_mint TEXT NOT NULL,
		token_b_mint TEXT NOT NULL,
		token_a_name TEXT,
		token_b_name TEXT,
		token_a_symbol TEXT,
		token_b_symbol TEXT,
		token_a_decimals INTEGER,
		token_b_decimals INTEGER,
		discovered_at TEXT NOT NULL,
		analyzed INTEGER NOT NULL DEFAULT 0,
		score REAL
	);
	CREATE INDEX IF NOT EXISTS idx_pools_discovered_at ON pools(discovered_at);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pool_address TEXT NOT NULL,
		created_at TEXT NOT NULL,
		closed_at TEXT,
		sol_invested REAL NOT NULL,
		fee_claimed REAL,
		profit_loss REAL,
		status TEXT NOT NULL,
		FOREIGN KEY (pool_address) REFERENCES pools (address)
	);
	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
	`,
}

func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: set user_version: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", i+1, err)
		}
		s.logger.Info().
			Str("event", "store.migrated").
			Int("version", i+1).
			Msg("applied schema migration")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	metrics.RecordStoreOp("ping", err)
	return err
}

// UpsertPool inserts the pool or refreshes it in place. Metadata enrichment
// never regresses: NULL incoming fields keep the stored value, a pool once
// analyzed stays analyzed, and the original discovery time is preserved.
func (s *Store) UpsertPool(ctx context.Context, p model.Pool) error {
	query := `
	INSERT INTO pools (
		address, token_a_mint, token_b_mint,
		token_a_name, token_b_name, token_a_symbol, token_b_symbol,
		token_a_decimals, token_b_decimals,
		discovered_at, analyzed, score
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(address) DO UPDATE SET
		token_a_name = COALESCE(excluded.token_a_name, pools.token_a_name),
		token_b_name = COALESCE(excluded.token_b_name, pools.token_b_name),
		token_a_symbol = COALESCE(excluded.token_a_symbol, pools.token_a_symbol),
		token_b_symbol = COALESCE(excluded.token_b_symbol, pools.token_b_symbol),
		token_a_decimals = COALESCE(excluded.token_a_decimals, pools.token_a_decimals),
		token_b_decimals = COALESCE(excluded.token_b_decimals, pools.token_b_decimals),
		analyzed = MAX(pools.analyzed, excluded.analyzed),
		score = COALESCE(excluded.score, pools.score)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.Address.String(),
		p.TokenA.Mint.String(),
		p.TokenB.Mint.String(),
		p.TokenA.Name, p.TokenB.Name,
		p.TokenA.Symbol, p.TokenB.Symbol,
		decimalsArg(p.TokenA.Decimals), decimalsArg(p.TokenB.Decimals),
		p.DiscoveredAt.UTC().Format(time.RFC3339Nano),
		p.Analyzed,
		p.Score,
	)
	metrics.RecordStoreOp("upsert_pool", err)
	if err != nil {
		return fmt.Errorf("store: upsert pool %s: %w", p.Address.Short(), err)
	}
	return nil
}

// decimalsArg widens *uint8 for the driver, keeping NULL for nil.
func decimalsArg(d *uint8) any {
	if d == nil {
		return nil
	}
	return int64(*d)
}

const poolColumns = `
	address, token_a_mint, token_b_mint,
	token_a_name, token_b_name, token_a_symbol, token_b_symbol,
	token_a_decimals, token_b_decimals,
	discovered_at, analyzed, score
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPool(row rowScanner) (model.Pool, error) {
	var (
		p                  model.Pool
		addr, mintA, mintB string
		nameA, nameB       sql.NullString
		symbolA, symbolB   sql.NullString
		decA, decB         sql.NullInt64
		discovered         string
		score              sql.NullFloat64
	)
	err := row.Scan(&addr, &mintA, &mintB,
		&nameA, &nameB, &symbolA, &symbolB,
		&decA, &decB,
		&discovered, &p.Analyzed, &score)
	if err != nil {
		return model.Pool{}, err
	}

	if p.Address, err = solana.ParseAddress(addr); err != nil {
		return model.Pool{}, fmt.Errorf("corrupt pool address %q: %w", addr, err)
	}
	if p.TokenA.Mint, err = solana.ParseAddress(mintA); err != nil {
		return model.Pool{}, fmt.Errorf("corrupt mint %q: %w", mintA, err)
	}
	if p.TokenB.Mint, err = solana.ParseAddress(mintB); err != nil {
		return model.Pool{}, fmt.Errorf("corrupt mint %q: %w", mintB, err)
	}

	p.TokenA.Name = nullableString(nameA)
	p.TokenB.Name = nullableString(nameB)
	p.TokenA.Symbol = nullableString(symbolA)
	p.TokenB.Symbol = nullableString(symbolB)
	p.TokenA.Decimals = nullableDecimals(decA)
	p.TokenB.Decimals = nullableDecimals(decB)

	if p.DiscoveredAt, err = time.Parse(time.RFC3339Nano, discovered); err != nil {
		return model.Pool{}, fmt.Errorf("corrupt discovery time %q: %w", discovered, err)
	}
	if score.Valid {
		p.Score = &score.Float64
	}
	return p, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullableDecimals(v sql.NullInt64) *uint8 {
	if !v.Valid || v.Int64 < 0 || v.Int64 > 255 {
		return nil
	}
	d := uint8(v.Int64)
	return &d
}

// GetPool fetches one pool by address; absent pools return (nil, nil).
func (s *Store) GetPool(ctx context.Context, address solana.Address) (*model.Pool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+poolColumns+` FROM pools WHERE address = ?`, address.String())

	p, err := scanPool(row)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordStoreOp("get_pool", nil)
		return nil, nil
	}
	metrics.RecordStoreOp("get_pool", err)
	if err != nil {
		return nil, fmt.Errorf("store: get pool %s: %w", address.Short(), err)
	}
	return &p, nil
}

// RecentPools lists the newest discoveries, most recent first. Non-positive
// limits fall back to 50.
func (s *Store) RecentPools(ctx context.Context, limit int) ([]model.Pool, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+poolColumns+` FROM pools ORDER BY discovered_at DESC LIMIT ?`, limit)
	metrics.RecordStoreOp("recent_pools", err)
	if err != nil {
		return nil, fmt.Errorf("store: recent pools: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pools []model.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("store: recent pools: %w", err)
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// SetScore records the analysis verdict and marks the pool analyzed.
func (s *Store) SetScore(ctx context.Context, address solana.Address, score float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pools SET score = ?, analyzed = 1 WHERE address = ?`,
		score, address.String())
	metrics.RecordStoreOp("set_score", err)
	if err != nil {
		return fmt.Errorf("store: set score for %s: %w", address.Short(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: set score for %s: %w", address.Short(), ErrNotFound)
	}
	return nil
}

// CountPools returns the number of persisted pools.
func (s *Store) CountPools(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pools`).Scan(&n)
	metrics.RecordStoreOp("count_pools", err)
	if err != nil {
		return 0, fmt.Errorf("store: count pools: %w", err)
	}
	return n, nil
}

// SavePosition inserts a position and returns its assigned id.
func (s *Store) SavePosition(ctx context.Context, pos model.Position) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO positions (pool_address, created_at, closed_at, sol_invested, fee_claimed, profit_loss, status)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pos.Pool.String(),
		pos.CreatedAt.UTC().Format(time.RFC3339Nano),
		timeArg(pos.ClosedAt),
		pos.SolInvested,
		pos.FeeClaimed,
		pos.ProfitLoss,
		string(pos.Status),
	)
	metrics.RecordStoreOp("save_position", err)
	if err != nil {
		return 0, fmt.Errorf("store: save position for %s: %w", pos.Pool.Short(), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: save position: last id: %w", err)
	}
	return id, nil
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ClosePosition finalizes a position with its realized numbers.
func (s *Store) ClosePosition(ctx context.Context, id int64, closedAt time.Time, feeClaimed, profitLoss float64) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE positions
	SET closed_at = ?, fee_claimed = ?, profit_loss = ?, status = ?
	WHERE id = ?`,
		closedAt.UTC().Format(time.RFC3339Nano),
		feeClaimed,
		profitLoss,
		string(model.PositionClosed),
		id,
	)
	metrics.RecordStoreOp("close_position", err)
	if err != nil {
		return fmt.Errorf("store: close position %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: close position %d: %w", id, ErrNotFound)
	}
	return nil
}

// OpenPositions lists positions that have not been closed yet.
func (s *Store) OpenPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, pool_address, created_at, closed_at, sol_invested, fee_claimed, profit_loss, status
	FROM positions
	WHERE closed_at IS NULL
	ORDER BY created_at`)
	metrics.RecordStoreOp("open_positions", err)
	if err != nil {
		return nil, fmt.Errorf("store: open positions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var positions []model.Position
	for rows.Next() {
		var (
			pos        model.Position
			pool       string
			created    string
			closed     sql.NullString
			feeClaimed sql.NullFloat64
			profitLoss sql.NullFloat64
			status     string
		)
		if err := rows.Scan(&pos.ID, &pool, &created, &closed, &pos.SolInvested, &feeClaimed, &profitLoss, &status); err != nil {
			return nil, fmt.Errorf("store: open positions: %w", err)
		}
		if pos.Pool, err = solana.ParseAddress(pool); err != nil {
			return nil, fmt.Errorf("store: corrupt position pool %q: %w", pool, err)
		}
		if pos.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("store: corrupt position time %q: %w", created, err)
		}
		if closed.Valid {
			t, err := time.Parse(time.RFC3339Nano, closed.String)
			if err != nil {
				return nil, fmt.Errorf("store: corrupt close time %q: %w", closed.String, err)
			}
			pos.ClosedAt = &t
		}
		if feeClaimed.Valid {
			pos.FeeClaimed = &feeClaimed.Float64
		}
		if profitLoss.Valid {
			pos.ProfitLoss = &profitLoss.Float64
		}
		pos.Status = model.PositionStatus(status)
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}
