package main

import (
	"context"
	"fmt"
	"time"

	"github.com/seokjunHwang/Quant/internal/ledger"
	"github.com/seokjunHwang/Quant/internal/override"
	"github.com/seokjunHwang/Quant/internal/persistence"
	"github.com/seokjunHwang/Quant/internal/precision"
	"github.com/seokjunHwang/Quant/internal/reconciliation"
	"github.com/seokjunHwang/Quant/internal/signal"
	"github.com/seokjunHwang/Quant/internal/sizing"
	"github.com/seokjunHwang/Quant/internal/state"
	"github.com/seokjunHwang/Quant/pkg/db"
	"github.com/seokjunHwang/Quant/pkg/exchanges/common"
	"github.com/seokjunHwang/Quant/pkg/exchanges/paper"
	"github.com/seokjunHwang/Quant/pkg/logging"
)

// dry_run_demo drives the reconciliation engine through a few signal batches
// against the paper exchange and fixed prices. It touches neither the venue
// nor any database file.
//
// Usage:
//
//	go run ./scripts/dry_run_demo
//
// It will:
//  1. Open ranked LONG entries with only two slots.
//  2. Flip into the opposite signal (conservative closes, aggressive reverses).
//  3. Close a position by hand and show that the next pass leaves it alone.

type staticMarket map[string]float64

func (m staticMarket) SymbolRules(ctx context.Context, symbol string) (common.SymbolRules, error) {
	if _, ok := m[symbol]; !ok {
		return common.SymbolRules{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	return common.SymbolRules{Symbol: symbol, QuantityPrecision: 3, PricePrecision: 2, StepSize: 0.001, TickSize: 0.01, MinQty: 0.001, MinNotional: 5}, nil
}

func (m staticMarket) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	p, ok := m[symbol]
	if !ok {
		return 0, fmt.Errorf("unknown symbol %s", symbol)
	}
	return p, nil
}

func main() {
	log := logging.New(logging.Config{Level: "info"})
	ctx := context.Background()

	database, err := db.New(":memory:")
	if err != nil {
		log.Fatal().Err(err).Msg("db init failed")
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	market := staticMarket{"BTCUSDT": 60000, "ETHUSDT": 2500, "SOLUSDT": 150}
	ex := paper.New(market, paper.Config{InitialBalance: 1000, FeeRate: 0.0004, SlippageBps: 2, Seed: 42}, log)

	writer := persistence.NewBatchWriter(database.DB, 10, 200*time.Millisecond, log)
	defer writer.Close()
	audit := ledger.NewAuditSink(writer, database, log)
	trades := ledger.New(database, log)
	mirror := state.NewMirror(ex, database, log)
	overrides := override.NewTracker(0)
	source := signal.NewSQLiteSource(database, log)

	rec, err := reconciliation.New(reconciliation.Deps{
		Exchange:   ex,
		Mirror:     mirror,
		Sizer:      sizing.NewSizer(precision.NewCache(ex, log), sizing.DefaultHaircut),
		Normalizer: signal.NewNormalizer(signal.DefaultSymbolMap(), log),
		Overrides:  overrides,
		Ledger:     trades,
		Audit:      audit,
		Log:        log,
	}, reconciliation.Params{Policy: reconciliation.Conservative, TotalCapital: 1000, MaxPositions: 2, Leverage: 2})
	if err != nil {
		log.Fatal().Err(err).Msg("engine init failed")
	}

	today := time.Now()
	run := func(title string, rows ...signal.Signal) {
		fmt.Printf("\n[%s]\n", title)
		for _, s := range rows {
			if _, err := source.Insert(ctx, s, today); err != nil {
				log.Fatal().Err(err).Msg("insert signal failed")
			}
		}
		batch, err := source.PollNewSignals(ctx, signal.Query{Mode: signal.ModeDate, Date: today})
		if err != nil {
			log.Fatal().Err(err).Msg("poll failed")
		}
		rep, _ := rec.Submit(ctx, reconciliation.Request{Origin: "demo", Signals: batch, Rank: true})
		fmt.Printf("closed=%d opened=%d flipped=%d rejected=%d failures=%d\n",
			rep.Closed, rep.Opened, rep.Flipped, rep.Rejected, rep.Failures)
		for _, p := range mirror.List() {
			fmt.Printf("  %-8s %-5s qty=%g entry=%.2f\n", p.Symbol, p.Side, p.Quantity, p.EntryPrice)
		}
	}

	at := func(offset time.Duration) time.Time { return time.Now().Add(offset) }

	run("SCENARIO 1: ranked entries, two slots",
		signal.Signal{Strategy: "demo", Symbol: "BTC/USDT", Type: signal.Long, Confidence: 0.6, CreatedAt: at(0)},
		signal.Signal{Strategy: "demo", Symbol: "ETH", Type: signal.Long, Confidence: 0.9, CreatedAt: at(0)},
		signal.Signal{Strategy: "demo", Symbol: "SOLUSDT", Type: signal.Long, Confidence: 0.3, CreatedAt: at(0)},
	)

	run("SCENARIO 2a: conservative conflict closes ETH",
		signal.Signal{Strategy: "demo", Symbol: "ETHUSDT", Type: signal.Short, Confidence: 0.8, CreatedAt: at(time.Second)},
	)

	p := rec.Params()
	p.Policy = reconciliation.Aggressive
	if err := rec.SetParams(p); err != nil {
		log.Fatal().Err(err).Msg("set params failed")
	}
	run("SCENARIO 2b: aggressive flips BTC to SHORT",
		signal.Signal{Strategy: "demo", Symbol: "BTCUSDT", Type: signal.Short, Confidence: 0.8, CreatedAt: at(2 * time.Second)},
	)

	fmt.Println("\n[SCENARIO 3: manual close]")
	if err := rec.ManualClose(ctx, "BTCUSDT"); err != nil {
		log.Error().Err(err).Msg("manual close failed")
	}
	run("SCENARIO 3: next pass respects the override")

	balance, realized := ex.Balance()
	fmt.Printf("\npaper balance=%.2f realized=%.2f\n", balance, realized)

	recent, err := trades.Trades(ctx, 20)
	if err == nil {
		fmt.Printf("ledger entries=%d\n", len(recent))
	}
	failures, err := audit.Failures(ctx, 20)
	if err == nil {
		for _, f := range failures {
			fmt.Printf("  audit %s %s: %s\n", f.Symbol, f.SignalType, f.Reason)
		}
	}
}
