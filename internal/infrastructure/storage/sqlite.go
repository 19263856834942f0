package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_backtest/internal/domain"
)

// SQLiteStore persists run summaries. Decimals are stored as TEXT so that values
// read back are exactly the values written.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			instrument_id TEXT NOT NULL,
			source TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			bars INTEGER NOT NULL,
			orders_submitted INTEGER NOT NULL,
			orders_filled INTEGER NOT NULL,
			orders_skipped INTEGER NOT NULL,
			initial_cash TEXT NOT NULL,
			final_cash TEXT NOT NULL,
			final_equity TEXT NOT NULL,
			realized_pnl TEXT NOT NULL,
			unrealized_pnl TEXT NOT NULL,
			halted BOOLEAN NOT NULL DEFAULT 0,
			halt_reason TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS fills (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			id TEXT NOT NULL,
			order_id TEXT NOT NULL,
			instrument_id TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price TEXT NOT NULL,
			commission TEXT NOT NULL,
			cost TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fills_run ON fills(run_id);`,
		`CREATE TABLE IF NOT EXISTS marks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			time DATETIME NOT NULL,
			bid TEXT NOT NULL,
			ask TEXT NOT NULL,
			realized_pnl TEXT NOT NULL,
			unrealized_pnl TEXT NOT NULL,
			equity TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_marks_run ON marks(run_id);`,
		`CREATE TABLE IF NOT EXISTS closed_positions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			id TEXT NOT NULL,
			instrument_id TEXT NOT NULL,
			side TEXT NOT NULL,
			avg_entry_price TEXT NOT NULL,
			bought_qty INTEGER NOT NULL,
			sold_qty INTEGER NOT NULL,
			realized_pnl TEXT NOT NULL,
			total_commission TEXT NOT NULL,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_closed_positions_run ON closed_positions(run_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// SaveRun writes the summary and its series in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.RunSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (id, instrument_id, source, started_at, finished_at, bars, orders_submitted, orders_filled, orders_skipped, initial_cash, final_cash, final_equity, realized_pnl, unrealized_pnl, halted, halt_reason)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.InstrumentID, run.Source, run.StartedAt, run.FinishedAt, run.Bars,
		run.OrdersSubmitted, run.OrdersFilled, run.OrdersSkipped, run.InitialCash.String(), run.FinalCash.String(),
		run.FinalEquity.String(), run.RealizedPnL.String(), run.UnrealizedPnL.String(), run.Halted, run.HaltReason)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, f := range run.Fills {
		_, err := tx.ExecContext(ctx, `INSERT INTO fills (run_id, id, order_id, instrument_id, side, quantity, price, commission, cost, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, f.ID, f.OrderID, f.InstrumentID, string(f.Side), f.Quantity,
			f.Price.String(), f.Commission.String(), f.Cost.String(), f.Timestamp)
		if err != nil {
			return fmt.Errorf("insert fill: %w", err)
		}
	}

	for _, m := range run.Marks {
		_, err := tx.ExecContext(ctx, `INSERT INTO marks (run_id, time, bid, ask, realized_pnl, unrealized_pnl, equity)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, m.Time, m.Bid.String(), m.Ask.String(), m.RealizedPnL.String(), m.UnrealizedPnL.String(), m.Equity.String())
		if err != nil {
			return fmt.Errorf("insert mark: %w", err)
		}
	}

	for _, p := range run.ClosedPositions {
		_, err := tx.ExecContext(ctx, `INSERT INTO closed_positions (run_id, id, instrument_id, side, avg_entry_price, bought_qty, sold_qty, realized_pnl, total_commission, opened_at, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, p.ID, p.InstrumentID, string(p.Side), p.AvgEntryPrice.String(), p.BoughtQty, p.SoldQty,
			p.RealizedPnL.String(), p.TotalCommission.String(), p.OpenedAt, p.ClosedAt)
		if err != nil {
			return fmt.Errorf("insert closed position: %w", err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, instrument_id, source, started_at, finished_at, bars, orders_submitted, orders_filled, orders_skipped, initial_cash, final_cash, final_equity, realized_pnl, unrealized_pnl, halted, halt_reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.RunSummary, error) {
	var r domain.RunSummary
	err := row.Scan(&r.ID, &r.InstrumentID, &r.Source, &r.StartedAt, &r.FinishedAt, &r.Bars,
		&r.OrdersSubmitted, &r.OrdersFilled, &r.OrdersSkipped, &r.InitialCash, &r.FinalCash,
		&r.FinalEquity, &r.RealizedPnL, &r.UnrealizedPnL, &r.Halted, &r.HaltReason)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns the most recent runs first, without their series.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*domain.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads one run with all of its series.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.RunSummary, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if r.Fills, err = s.ListFills(ctx, id); err != nil {
		return nil, err
	}
	if r.Marks, err = s.ListMarks(ctx, id); err != nil {
		return nil, err
	}
	if r.ClosedPositions, err = s.ListClosedPositions(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) ListFills(ctx context.Context, runID string) ([]domain.Fill, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, order_id, instrument_id, side, quantity, price, commission, cost, created_at
		FROM fills WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		if err := rows.Scan(&f.ID, &f.OrderID, &f.InstrumentID, &f.Side, &f.Quantity, &f.Price, &f.Commission, &f.Cost, &f.Timestamp); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

func (s *SQLiteStore) ListMarks(ctx context.Context, runID string) ([]domain.MarkPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT time, bid, ask, realized_pnl, unrealized_pnl, equity
		FROM marks WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var marks []domain.MarkPoint
	for rows.Next() {
		var m domain.MarkPoint
		if err := rows.Scan(&m.Time, &m.Bid, &m.Ask, &m.RealizedPnL, &m.UnrealizedPnL, &m.Equity); err != nil {
			return nil, err
		}
		marks = append(marks, m)
	}
	return marks, rows.Err()
}

func (s *SQLiteStore) ListClosedPositions(ctx context.Context, runID string) ([]domain.PositionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, instrument_id, side, avg_entry_price, bought_qty, sold_qty, realized_pnl, total_commission, opened_at, closed_at
		FROM closed_positions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PositionRecord
	for rows.Next() {
		var p domain.PositionRecord
		if err := rows.Scan(&p.ID, &p.InstrumentID, &p.Side, &p.AvgEntryPrice, &p.BoughtQty, &p.SoldQty, &p.RealizedPnL, &p.TotalCommission, &p.OpenedAt, &p.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
