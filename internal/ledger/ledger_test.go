package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/internal/persistence"
	"github.com/seokjunHwang/Quant/pkg/db"
)

func setup(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func TestRecordTrade(t *testing.T) {
	database := setup(t)
	l := New(database, zerolog.Nop())
	ctx := context.Background()

	ok := l.RecordTrade(ctx, TradeRecord{
		OrderID: "1", Symbol: "BTCUSDT", Side: "BUY", TradeType: TradeEntry, Quantity: 0.01, Price: 60000, Leverage: 3,
	})
	if !ok {
		t.Fatalf("RecordTrade returned false")
	}
	trades, err := l.Trades(ctx, 10)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(trades) != 1 || trades[0].TradeType != TradeEntry || trades[0].Timestamp.IsZero() {
		t.Fatalf("unexpected trades: %+v", trades)
	}

	_ = database.Close()
	if l.RecordTrade(ctx, TradeRecord{OrderID: "2", Symbol: "BTCUSDT"}) {
		t.Fatalf("RecordTrade on closed db should report failure")
	}
}

func TestAuditSinkFlushesOnRead(t *testing.T) {
	database := setup(t)
	bw := persistence.NewBatchWriter(database.DB, 100, time.Hour, zerolog.Nop())
	defer bw.Close()
	sink := NewAuditSink(bw, database, zerolog.Nop())
	ctx := context.Background()

	sink.RecordFailure(ctx, FailedOrder{
		Symbol: "ADAUSDT", SignalType: "LONG", Reason: "below_min_notional",
		Quantity: 1, Notional: 0.4, MinQuantity: 1, MinNotional: 5, TotalCapital: 100, Leverage: 3, MaxPositions: 5,
	})
	got, err := sink.Failures(ctx, 10)
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if len(got) != 1 || got[0].Reason != "below_min_notional" || got[0].MaxPositions != 5 {
		t.Fatalf("unexpected audit: %+v", got)
	}
}
