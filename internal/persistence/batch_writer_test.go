package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/pkg/db"
)

func TestBatchWriterFlushesOnSizeAndClose(t *testing.T) {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	bw := NewBatchWriter(database.DB, 2, time.Hour, zerolog.Nop())
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		bw.WriteQuery(db.InsertFailedOrderSQL, "ADAUSDT", "LONG", "below_min_notional", 1.0, 0.4, 1.0, 5.0, 100.0, 3, 5, now)
	}

	if st := bw.Stats(); st.TotalBatches != 1 || st.Pending != 1 {
		t.Fatalf("unexpected stats before close: %+v", st)
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows, err := database.ListFailedOrders(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListFailedOrders: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	bw.WriteQuery(db.InsertFailedOrderSQL, "ADAUSDT", "LONG", "late", 0.0, 0.0, 0.0, 0.0, 0.0, 0, 0, now)
	rows, _ = database.ListFailedOrders(context.Background(), 10)
	if len(rows) != 4 {
		t.Fatalf("write after close should be synchronous, got %d rows", len(rows))
	}
}
