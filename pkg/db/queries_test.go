package db

import (
	"context"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestSignalQueries(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	rows := []Signal{
		{Strategy: "xgb", Symbol: "BTCUSDT", SignalType: "LONG", Confidence: 0.8, TargetDate: "2026-10-18"},
		{Strategy: "rsi", Symbol: "ETHUSDT", SignalType: "SHORT", Confidence: 0.6, TargetDate: "2026-10-18"},
		{Strategy: "xgb", Symbol: "ADAUSDT", SignalType: "HOLD", Confidence: 0.4, TargetDate: "2026-10-17"},
	}
	var ids []int64
	for _, r := range rows {
		id, err := database.InsertSignal(ctx, r)
		if err != nil {
			t.Fatalf("InsertSignal: %v", err)
		}
		ids = append(ids, id)
	}

	t.Run("for date filters strategy", func(t *testing.T) {
		got, err := database.SignalsForDate(ctx, []string{"xgb"}, "2026-10-18")
		if err != nil {
			t.Fatalf("SignalsForDate: %v", err)
		}
		if len(got) != 1 || got[0].Symbol != "BTCUSDT" {
			t.Fatalf("unexpected rows: %+v", got)
		}
	})

	t.Run("since id without strategies", func(t *testing.T) {
		got, err := database.SignalsSince(ctx, nil, ids[0])
		if err != nil {
			t.Fatalf("SignalsSince: %v", err)
		}
		if len(got) != 2 || got[0].ID != ids[1] {
			t.Fatalf("unexpected rows: %+v", got)
		}
	})

	t.Run("max id", func(t *testing.T) {
		max, err := database.MaxSignalID(ctx)
		if err != nil {
			t.Fatalf("MaxSignalID: %v", err)
		}
		if max != ids[2] {
			t.Fatalf("MaxSignalID=%d, expected %d", max, ids[2])
		}
	})

	consumed := func(t *testing.T) []int64 {
		t.Helper()
		rows, err := database.DB.QueryContext(ctx, `SELECT id FROM signals WHERE consumed_at IS NOT NULL ORDER BY id`)
		if err != nil {
			t.Fatalf("query consumed: %v", err)
		}
		defer rows.Close()
		var got []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				t.Fatalf("scan: %v", err)
			}
			got = append(got, id)
		}
		return got
	}

	t.Run("mark consumed skips other strategies", func(t *testing.T) {
		if err := database.MarkSignalsConsumed(ctx, []string{"xgb"}, 0, ids[2]); err != nil {
			t.Fatalf("MarkSignalsConsumed: %v", err)
		}
		got := consumed(t)
		if len(got) != 2 || got[0] != ids[0] || got[1] != ids[2] {
			t.Fatalf("consumed=%v, expected xgb rows %d and %d", got, ids[0], ids[2])
		}
	})

	t.Run("mark consumed for all strategies", func(t *testing.T) {
		if err := database.MarkSignalsConsumed(ctx, nil, 0, ids[1]); err != nil {
			t.Fatalf("MarkSignalsConsumed: %v", err)
		}
		if got := consumed(t); len(got) != 3 {
			t.Fatalf("consumed=%v, expected every row", got)
		}
	})

	t.Run("latest by strategy", func(t *testing.T) {
		got, err := database.LatestSignal(ctx, []string{"xgb"})
		if err != nil {
			t.Fatalf("LatestSignal: %v", err)
		}
		if got.ID != ids[2] {
			t.Fatalf("latest xgb=%d, expected %d", got.ID, ids[2])
		}
		if _, err := database.LatestSignal(ctx, []string{"none"}); err != ErrNotFound {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("missing signal", func(t *testing.T) {
		if _, err := database.GetSignal(ctx, 9999); err != ErrNotFound {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestReplacePositions(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	first := []Position{
		{Symbol: "BTCUSDT", Side: "LONG", Qty: 0.01, EntryPrice: 60000, Leverage: 3},
		{Symbol: "ETHUSDT", Side: "SHORT", Qty: 0.5, EntryPrice: 3000, Leverage: 3},
	}
	if err := database.ReplacePositions(ctx, first); err != nil {
		t.Fatalf("ReplacePositions: %v", err)
	}
	if err := database.ReplacePositions(ctx, first[1:]); err != nil {
		t.Fatalf("ReplacePositions: %v", err)
	}

	got, err := database.ListPositions(ctx)
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "ETHUSDT" || got[0].Side != "SHORT" {
		t.Fatalf("unexpected positions: %+v", got)
	}
}

func TestTradesAndAudit(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := database.CreateTrade(ctx, Trade{
		ID: "t-1", OrderID: "o-1", Symbol: "BTCUSDT", Side: "SELL", TradeType: "EXIT",
		Qty: 0.01, Price: 61000, Leverage: 3, RealizedPnL: 10, CreatedAt: now,
	}); err != nil {
		t.Fatalf("CreateTrade: %v", err)
	}
	trades, err := database.ListTrades(ctx, 10)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 1 || trades[0].TradeType != "EXIT" {
		t.Fatalf("unexpected trades: %+v", trades)
	}

	if _, err := database.DB.ExecContext(ctx, InsertFailedOrderSQL,
		"ADAUSDT", "LONG", "below min notional", 1.0, 0.4, 1.0, 5.0, 100.0, 3, 5, now); err != nil {
		t.Fatalf("insert failed order: %v", err)
	}
	audit, err := database.ListFailedOrders(ctx, 10)
	if err != nil {
		t.Fatalf("ListFailedOrders: %v", err)
	}
	if len(audit) != 1 || audit[0].MinNotional != 5.0 || audit[0].MaxPositions != 5 {
		t.Fatalf("unexpected audit rows: %+v", audit)
	}

	if err := database.CreateManualClose(ctx, "BTCUSDT", now); err != nil {
		t.Fatalf("CreateManualClose: %v", err)
	}
}
