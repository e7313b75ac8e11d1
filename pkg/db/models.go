package db

import (
	"context"
	"time"
)

// Trade is a ledger row for one executed entry or exit.
type Trade struct {
	ID          string
	OrderID     string
	Symbol      string
	Side        string
	TradeType   string // ENTRY, EXIT
	Qty         float64
	Price       float64
	Leverage    int
	RealizedPnL float64
	Commission  float64
	CreatedAt   time.Time
}

// Position is the last mirrored exchange position for a symbol.
type Position struct {
	Symbol        string
	Side          string
	Qty           float64
	EntryPrice    float64
	UnrealizedPnL float64
	Leverage      int
	UpdatedAt     time.Time
}

// FailedOrder is an append-only audit row for an order that was not placed or was rejected.
type FailedOrder struct {
	ID           int64
	Symbol       string
	SignalType   string
	Reason       string
	Qty          float64
	Notional     float64
	MinQty       float64
	MinNotional  float64
	TotalCapital float64
	Leverage     int
	MaxPositions int
	CreatedAt    time.Time
}

// ManualClose records a user-initiated close.
type ManualClose struct {
	ID       int64
	Symbol   string
	ClosedAt time.Time
}

// InsertFailedOrderSQL is exported for batched writers.
const InsertFailedOrderSQL = `
	INSERT INTO failed_orders (
		symbol, signal_type, reason, qty, notional, min_qty, min_notional,
		total_capital, leverage, max_positions, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// CreateTrade inserts a new trade row.
func (d *Database) CreateTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (
			id, order_id, symbol, side, trade_type, qty, price, leverage, realized_pnl, commission, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.OrderID, t.Symbol, t.Side, t.TradeType, t.Qty, t.Price, t.Leverage, t.RealizedPnL, t.Commission, t.CreatedAt,
	)
	return err
}

// ListTrades returns the most recent trades first.
func (d *Database) ListTrades(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, order_id, symbol, side, trade_type, qty, price, leverage, realized_pnl, commission, created_at
		FROM trades ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Symbol, &t.Side, &t.TradeType, &t.Qty, &t.Price,
			&t.Leverage, &t.RealizedPnL, &t.Commission, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ReplacePositions overwrites the mirrored position table with a fresh snapshot.
func (d *Database) ReplacePositions(ctx context.Context, positions []Position) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, p := range positions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO positions (symbol, side, qty, entry_price, unrealized_pnl, leverage, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.Symbol, p.Side, p.Qty, p.EntryPrice, p.UnrealizedPnL, p.Leverage, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListPositions returns all mirrored positions.
func (d *Database) ListPositions(ctx context.Context) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, side, qty, entry_price, unrealized_pnl, leverage, updated_at
		FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.Symbol, &p.Side, &p.Qty, &p.EntryPrice, &p.UnrealizedPnL, &p.Leverage, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ListFailedOrders returns the most recent audit rows first.
func (d *Database) ListFailedOrders(ctx context.Context, limit int) ([]FailedOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, signal_type, reason, qty, notional, min_qty, min_notional,
		       total_capital, leverage, max_positions, created_at
		FROM failed_orders ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []FailedOrder
	for rows.Next() {
		var f FailedOrder
		if err := rows.Scan(&f.ID, &f.Symbol, &f.SignalType, &f.Reason, &f.Qty, &f.Notional, &f.MinQty,
			&f.MinNotional, &f.TotalCapital, &f.Leverage, &f.MaxPositions, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

// CreateManualClose records a user-initiated close.
func (d *Database) CreateManualClose(ctx context.Context, symbol string, closedAt time.Time) error {
	_, err := d.DB.ExecContext(ctx, `INSERT INTO manual_closes (symbol, closed_at) VALUES (?, ?)`, symbol, closedAt)
	return err
}
