// Package store implements the durable ACID persistence layer: trades,
// positions, episodes, rules, and balances tables plus a schema-version
// row, backed by modernc.org/sqlite (pure Go, no cgo). Grounded on the
// absence of any persistence layer in the teacher (which is stateless
// between restarts) and instead on the pack's other sqlite usage
// (AlejandroRuiz99-polybot/go.mod depends on modernc.org/sqlite) — the
// spec's restart-recovery requirement (§8 scenario 6) is exactly the gap
// the teacher leaves unfilled, so this package is new rather than adapted.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/keryxflow/keryxflow/internal/money"
)

// SchemaVersion is the current schema revision. Bumping it without a
// migration path is a programmer error; Open enforces forward-only
// version checks.
const SchemaVersion = 1

// Store wraps a *sql.DB opened against the modernc.org/sqlite driver.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures the schema is migrated to SchemaVersion. Use ":memory:" for an
// ephemeral store (tests, dry runs).
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

		CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			entry_price REAL NOT NULL,
			stop_loss REAL,
			take_profit REAL,
			opened_at INTEGER NOT NULL,
			status TEXT NOT NULL,
			realized_pnl TEXT NOT NULL,
			scale INTEGER NOT NULL DEFAULT 8
		);

		CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			exit_reason TEXT NOT NULL,
			realized_pnl TEXT NOT NULL,
			opened_at INTEGER NOT NULL,
			closed_at INTEGER NOT NULL,
			scale INTEGER NOT NULL DEFAULT 8
		);

		CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			regime TEXT,
			indicators TEXT NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			quantity REAL NOT NULL,
			realized_pnl REAL NOT NULL,
			notes TEXT,
			closed INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS rules (
			name TEXT PRIMARY KEY,
			active INTEGER NOT NULL,
			times_applied INTEGER NOT NULL DEFAULT 0,
			times_helpful INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS balances (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			total TEXT NOT NULL,
			free TEXT NOT NULL,
			locked TEXT NOT NULL,
			scale INTEGER NOT NULL DEFAULT 8
		);
	`)
	if err != nil {
		return fmt.Errorf("store: migrate schema: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`)
	var version int
	switch err := row.Scan(&version); err {
	case sql.ErrNoRows:
		_, err := s.db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion)
		if err != nil {
			return fmt.Errorf("store: seed schema_version: %w", err)
		}
	case nil:
		if version > SchemaVersion {
			return fmt.Errorf("store: database schema v%d is newer than this binary supports (v%d)", version, SchemaVersion)
		}
	default:
		return fmt.Errorf("store: read schema_version: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// PositionRecord mirrors the spec's Position type for persistence.
type PositionRecord struct {
	ID          string
	Symbol      string
	Side        string
	Quantity    float64
	EntryPrice  float64
	StopLoss    float64
	TakeProfit  float64
	OpenedAt    time.Time
	Status      string
	RealizedPnL money.Amount
}

// UpsertPosition writes a position row, replacing any existing row with
// the same id, inside a single statement. It opens no transaction and
// writes no balance row.
func (s *Store) UpsertPosition(ctx context.Context, p PositionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (id, symbol, side, quantity, entry_price, stop_loss, take_profit, opened_at, status, realized_pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			quantity=excluded.quantity, stop_loss=excluded.stop_loss, take_profit=excluded.take_profit,
			status=excluded.status, realized_pnl=excluded.realized_pnl
	`, p.ID, p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.StopLoss, p.TakeProfit, p.OpenedAt.Unix(), p.Status, p.RealizedPnL)
	if err != nil {
		return fmt.Errorf("store: upsert position %s: %w", p.ID, err)
	}
	return nil
}

// OpenPositions returns every position with status='open', for restart
// recovery.
func (s *Store) OpenPositions(ctx context.Context) ([]PositionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, side, quantity, entry_price, stop_loss, take_profit, opened_at, status, realized_pnl
		FROM positions WHERE status = 'open'
	`)
	if err != nil {
		return nil, fmt.Errorf("store: query open positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var p PositionRecord
		var openedAt int64
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Side, &p.Quantity, &p.EntryPrice, &p.StopLoss, &p.TakeProfit, &openedAt, &p.Status, &p.RealizedPnL); err != nil {
			return nil, fmt.Errorf("store: scan position: %w", err)
		}
		p.OpenedAt = time.Unix(openedAt, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// TradeRecord is one closed trade, as returned by RecentTrades.
type TradeRecord struct {
	ID          string
	Symbol      string
	Side        string
	Quantity    float64
	EntryPrice  float64
	ExitPrice   float64
	ExitReason  string
	RealizedPnL money.Amount
	OpenedAt    time.Time
	ClosedAt    time.Time
}

// RecordTrade inserts a closed trade row and marks the position row with
// the same id as closed, inside one transaction.
func (s *Store) RecordTrade(ctx context.Context, t TradeRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin record trade: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trades (id, symbol, side, quantity, entry_price, exit_price, exit_reason, realized_pnl, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Symbol, t.Side, t.Quantity, t.EntryPrice, t.ExitPrice, t.ExitReason, t.RealizedPnL, t.OpenedAt.Unix(), t.ClosedAt.Unix())
	if err != nil {
		return fmt.Errorf("store: insert trade %s: %w", t.ID, err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE positions SET status='closed' WHERE id = ?`, t.ID)
	if err != nil {
		return fmt.Errorf("store: close position %s: %w", t.ID, err)
	}

	return tx.Commit()
}

// RecentTrades returns up to limit most-recently-closed trades, newest
// first — backs GET /api/trades' "last 50 closed trades".
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, side, quantity, entry_price, exit_price, exit_reason, realized_pnl, opened_at, closed_at
		FROM trades ORDER BY closed_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query recent trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var openedAt, closedAt int64
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &t.Quantity, &t.EntryPrice, &t.ExitPrice, &t.ExitReason, &t.RealizedPnL, &openedAt, &closedAt); err != nil {
			return nil, fmt.Errorf("store: scan trade: %w", err)
		}
		t.OpenedAt = time.Unix(openedAt, 0).UTC()
		t.ClosedAt = time.Unix(closedAt, 0).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// EpisodeRecord mirrors memory.Episode for persistence: the episodic
// memory's indicator vector is flattened to a comma-separated string since
// sqlite has no native array column.
type EpisodeRecord struct {
	ID          string
	Symbol      string
	Timestamp   time.Time
	Regime      string
	Indicators  string
	EntryPrice  float64
	ExitPrice   float64
	Quantity    float64
	RealizedPnL float64
	Notes       string
	Closed      bool
}

// InsertEpisode writes a new episode row. Episode ids are caller-generated
// UUIDs, so a conflict here is a programmer error, not a routine retry.
func (s *Store) InsertEpisode(ctx context.Context, e EpisodeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (id, symbol, timestamp, regime, indicators, entry_price, exit_price, quantity, realized_pnl, notes, closed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Symbol, e.Timestamp.Unix(), e.Regime, e.Indicators, e.EntryPrice, e.ExitPrice, e.Quantity, e.RealizedPnL, e.Notes, boolToInt(e.Closed))
	if err != nil {
		return fmt.Errorf("store: insert episode %s: %w", e.ID, err)
	}
	return nil
}

// UpdateEpisode writes an episode's exit fields back after a position
// closes. It is a no-op (returns nil) if id does not exist.
func (s *Store) UpdateEpisode(ctx context.Context, e EpisodeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE episodes SET exit_price = ?, realized_pnl = ?, notes = ?, closed = ?
		WHERE id = ?
	`, e.ExitPrice, e.RealizedPnL, e.Notes, boolToInt(e.Closed), e.ID)
	if err != nil {
		return fmt.Errorf("store: update episode %s: %w", e.ID, err)
	}
	return nil
}

// ListEpisodes returns every persisted episode ordered by timestamp,
// oldest first — backs restart recovery of internal/memory's episodic
// store.
func (s *Store) ListEpisodes(ctx context.Context) ([]EpisodeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, timestamp, regime, indicators, entry_price, exit_price, quantity, realized_pnl, notes, closed
		FROM episodes ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: query episodes: %w", err)
	}
	defer rows.Close()

	var out []EpisodeRecord
	for rows.Next() {
		var e EpisodeRecord
		var ts int64
		var regime, notes sql.NullString
		var closed int
		if err := rows.Scan(&e.ID, &e.Symbol, &ts, &regime, &e.Indicators, &e.EntryPrice, &e.ExitPrice, &e.Quantity, &e.RealizedPnL, &notes, &closed); err != nil {
			return nil, fmt.Errorf("store: scan episode: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		e.Regime = regime.String
		e.Notes = notes.String
		e.Closed = closed != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// RecordBalance appends a balance snapshot row, used to reconstruct the
// equity curve for drawdown/Sharpe on restart.
func (s *Store) RecordBalance(ctx context.Context, ts time.Time, total, free, locked money.Amount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balances (timestamp, total, free, locked) VALUES (?, ?, ?, ?)
	`, ts.Unix(), total, free, locked)
	if err != nil {
		return fmt.Errorf("store: record balance: %w", err)
	}
	return nil
}

// EquityCurve returns the total-value column of every recorded balance
// snapshot, oldest first.
func (s *Store) EquityCurve(ctx context.Context) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT total FROM balances ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: query equity curve: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var amt money.Amount
		if err := rows.Scan(&amt); err != nil {
			return nil, fmt.Errorf("store: scan equity point: %w", err)
		}
		out = append(out, amt.Float64())
	}
	return out, rows.Err()
}
