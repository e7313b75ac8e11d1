package paper

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/pkg/exchanges/common"
)

type fixedMarket struct {
	prices map[string]float64
}

func (m *fixedMarket) SymbolRules(ctx context.Context, symbol string) (common.SymbolRules, error) {
	return common.SymbolRules{Symbol: symbol, PricePrecision: 2, QuantityPrecision: 3, MinQty: 0.001, MinNotional: 5}, nil
}

func (m *fixedMarket) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	p, ok := m.prices[symbol]
	if !ok {
		return 0, errors.New("no price")
	}
	return p, nil
}

func TestPaperOpenAndClose(t *testing.T) {
	ctx := context.Background()
	mkt := &fixedMarket{prices: map[string]float64{"BTCUSDT": 100}}
	ex := New(mkt, Config{InitialBalance: 1000, FeeRate: 0.001}, zerolog.Nop())

	if _, err := ex.SubmitOrder(ctx, common.OrderRequest{
		Symbol: "BTCUSDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Quantity: "2",
	}); err != nil {
		t.Fatalf("open: %v", err)
	}
	pos, _ := ex.Positions(ctx)
	if len(pos) != 1 || pos[0].Amount != 2 {
		t.Fatalf("unexpected positions after open: %+v", pos)
	}

	mkt.prices["BTCUSDT"] = 110
	res, err := ex.SubmitOrder(ctx, common.OrderRequest{
		Symbol: "BTCUSDT", Side: common.SideSell, Type: common.OrderTypeMarket, Quantity: "5", ReduceOnly: true,
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if res.ExecutedQty != 2 {
		t.Fatalf("reduce-only fill should be clamped to 2, got %v", res.ExecutedQty)
	}
	pos, _ = ex.Positions(ctx)
	if len(pos) != 0 {
		t.Fatalf("expected flat, got %+v", pos)
	}

	bal, realized := ex.Balance()
	if realized != 20 {
		t.Fatalf("realized=%v, expected 20", realized)
	}
	wantBal := 1000 + 20 - 0.2 - 0.22
	if math.Abs(bal-wantBal) > 1e-9 {
		t.Fatalf("balance=%v, expected %v", bal, wantBal)
	}
}

func TestPaperReduceOnlyWithoutPosition(t *testing.T) {
	ex := New(&fixedMarket{prices: map[string]float64{"ETHUSDT": 10}}, Config{}, zerolog.Nop())
	_, err := ex.SubmitOrder(context.Background(), common.OrderRequest{
		Symbol: "ETHUSDT", Side: common.SideSell, Type: common.OrderTypeMarket, Quantity: "1", ReduceOnly: true,
	})
	if !errors.Is(err, errNothingToReduce) {
		t.Fatalf("expected errNothingToReduce, got %v", err)
	}
}

func TestPaperFlipThroughZero(t *testing.T) {
	ctx := context.Background()
	mkt := &fixedMarket{prices: map[string]float64{"SOLUSDT": 50}}
	ex := New(mkt, Config{}, zerolog.Nop())
	_ = ex.SetLeverage(ctx, "SOLUSDT", 3)

	_, _ = ex.SubmitOrder(ctx, common.OrderRequest{Symbol: "SOLUSDT", Side: common.SideSell, Type: common.OrderTypeMarket, Quantity: "1"})
	mkt.prices["SOLUSDT"] = 40
	_, _ = ex.SubmitOrder(ctx, common.OrderRequest{Symbol: "SOLUSDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Quantity: "3"})

	pos, _ := ex.Positions(ctx)
	if len(pos) != 1 || pos[0].Amount != 2 || pos[0].EntryPrice != 40 || pos[0].Leverage != 3 {
		t.Fatalf("unexpected position after flip: %+v", pos)
	}
	if _, realized := ex.Balance(); realized != 10 {
		t.Fatalf("realized=%v, expected 10", realized)
	}
}

func TestPaperAvailableBalanceNetsMargin(t *testing.T) {
	ctx := context.Background()
	mkt := &fixedMarket{prices: map[string]float64{"BTCUSDT": 100}}
	ex := New(mkt, Config{InitialBalance: 1000}, zerolog.Nop())
	_ = ex.SetLeverage(ctx, "BTCUSDT", 4)

	if _, err := ex.SubmitOrder(ctx, common.OrderRequest{
		Symbol: "BTCUSDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Quantity: "2",
	}); err != nil {
		t.Fatalf("open: %v", err)
	}
	got, err := ex.AvailableBalance(ctx)
	if err != nil {
		t.Fatalf("AvailableBalance: %v", err)
	}
	// 2 * 100 / 4 of margin in use
	if got != 950 {
		t.Fatalf("available=%v, expected 950", got)
	}
}
