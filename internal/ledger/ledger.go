// Package ledger records executed trades and the failed-order audit trail.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/internal/persistence"
	"github.com/seokjunHwang/Quant/pkg/db"
)

// Trade types.
const (
	TradeEntry = "ENTRY"
	TradeExit  = "EXIT"
)

// TradeRecord is one executed entry or exit.
type TradeRecord struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	TradeType   string    `json:"trade_type"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	Leverage    int       `json:"leverage"`
	RealizedPnL float64   `json:"realized_pnl"`
	Commission  float64   `json:"commission"`
	Timestamp   time.Time `json:"timestamp"`
}

// FailedOrder is an audit entry for an order that was not placed or was refused.
type FailedOrder struct {
	Symbol       string    `json:"symbol"`
	SignalType   string    `json:"signal_type"`
	Reason       string    `json:"reason"`
	Quantity     float64   `json:"quantity"`
	Notional     float64   `json:"notional"`
	MinQuantity  float64   `json:"min_quantity"`
	MinNotional  float64   `json:"min_notional"`
	TotalCapital float64   `json:"total_capital"`
	Leverage     int       `json:"leverage"`
	MaxPositions int       `json:"max_positions"`
	Timestamp    time.Time `json:"timestamp"`
}

// Ledger writes trades to the trades table.
type Ledger struct {
	db  *db.Database
	log zerolog.Logger
}

func New(database *db.Database, log zerolog.Logger) *Ledger {
	return &Ledger{db: database, log: log.With().Str("component", "ledger").Logger()}
}

// RecordTrade stores t and reports success. A failure is logged and never returned.
func (l *Ledger) RecordTrade(ctx context.Context, t TradeRecord) bool {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	err := l.db.CreateTrade(ctx, db.Trade{
		ID:          uuid.NewString(),
		OrderID:     t.OrderID,
		Symbol:      t.Symbol,
		Side:        t.Side,
		TradeType:   t.TradeType,
		Qty:         t.Quantity,
		Price:       t.Price,
		Leverage:    t.Leverage,
		RealizedPnL: t.RealizedPnL,
		Commission:  t.Commission,
		CreatedAt:   t.Timestamp,
	})
	if err != nil {
		l.log.Error().Err(err).Str("symbol", t.Symbol).Str("order_id", t.OrderID).Msg("record trade failed")
		return false
	}
	return true
}

// RecordManualClose stores a user-initiated close.
func (l *Ledger) RecordManualClose(ctx context.Context, symbol string, at time.Time) {
	if err := l.db.CreateManualClose(ctx, symbol, at); err != nil {
		l.log.Error().Err(err).Str("symbol", symbol).Msg("record manual close failed")
	}
}

// Trades returns recent trades, newest first.
func (l *Ledger) Trades(ctx context.Context, limit int) ([]TradeRecord, error) {
	rows, err := l.db.ListTrades(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]TradeRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, TradeRecord{
			OrderID:     r.OrderID,
			Symbol:      r.Symbol,
			Side:        r.Side,
			TradeType:   r.TradeType,
			Quantity:    r.Qty,
			Price:       r.Price,
			Leverage:    r.Leverage,
			RealizedPnL: r.RealizedPnL,
			Commission:  r.Commission,
			Timestamp:   r.CreatedAt,
		})
	}
	return out, nil
}

// AuditSink appends failed orders through a batch writer.
type AuditSink struct {
	writer *persistence.BatchWriter
	db     *db.Database
	log    zerolog.Logger
}

func NewAuditSink(writer *persistence.BatchWriter, database *db.Database, log zerolog.Logger) *AuditSink {
	return &AuditSink{writer: writer, db: database, log: log.With().Str("component", "audit").Logger()}
}

// RecordFailure buffers f for the failed_orders table.
func (a *AuditSink) RecordFailure(ctx context.Context, f FailedOrder) {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	a.log.Info().
		Str("symbol", f.Symbol).
		Str("signal_type", f.SignalType).
		Str("reason", f.Reason).
		Float64("qty", f.Quantity).
		Float64("notional", f.Notional).
		Float64("min_qty", f.MinQuantity).
		Float64("min_notional", f.MinNotional).
		Float64("capital", f.TotalCapital).
		Int("leverage", f.Leverage).
		Int("max_positions", f.MaxPositions).
		Msg("order not placed")
	a.writer.WriteQuery(db.InsertFailedOrderSQL,
		f.Symbol, f.SignalType, f.Reason, f.Quantity, f.Notional, f.MinQuantity, f.MinNotional,
		f.TotalCapital, f.Leverage, f.MaxPositions, f.Timestamp,
	)
}

// Failures returns recent audit rows, newest first. Buffered rows are flushed first.
func (a *AuditSink) Failures(ctx context.Context, limit int) ([]FailedOrder, error) {
	if err := a.writer.Flush(ctx); err != nil {
		return nil, err
	}
	rows, err := a.db.ListFailedOrders(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]FailedOrder, 0, len(rows))
	for _, r := range rows {
		out = append(out, FailedOrder{
			Symbol:       r.Symbol,
			SignalType:   r.SignalType,
			Reason:       r.Reason,
			Quantity:     r.Qty,
			Notional:     r.Notional,
			MinQuantity:  r.MinQty,
			MinNotional:  r.MinNotional,
			TotalCapital: r.TotalCapital,
			Leverage:     r.Leverage,
			MaxPositions: r.MaxPositions,
			Timestamp:    r.CreatedAt,
		})
	}
	return out, nil
}
