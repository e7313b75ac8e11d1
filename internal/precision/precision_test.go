package precision

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/pkg/exchanges/common"
)

type stubRules struct {
	calls atomic.Int32
	delay time.Duration
	fail  bool
	rules common.SymbolRules
}

func (s *stubRules) SymbolRules(ctx context.Context, symbol string) (common.SymbolRules, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.fail {
		return common.SymbolRules{}, errors.New("exchange down")
	}
	r := s.rules
	r.Symbol = symbol
	return r, nil
}

func TestTruncateQuantity(t *testing.T) {
	tests := []struct {
		name     string
		decimals int
		raw      float64
		want     float64
	}{
		{"truncates not rounds", 3, 1.23456, 1.234},
		{"bumps to one unit", 3, 0.0004, 0.001},
		{"zero decimals", 0, 12.9, 12},
		{"zero decimals bump", 0, 0.4, 1},
		{"already on step", 2, 0.5, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := Spec{QuantityDecimals: tt.decimals, Known: true}
			got := TruncateQuantity(spec, tt.raw)
			if got != tt.want {
				t.Fatalf("TruncateQuantity(%v)=%v, expected %v", tt.raw, got, tt.want)
			}
			if again := TruncateQuantity(spec, got); again != got {
				t.Fatalf("not idempotent: %v -> %v", got, again)
			}
		})
	}
}

func TestRoundPrice(t *testing.T) {
	spec := Spec{PriceDecimals: 2}
	if got := RoundPrice(spec, 1.005); got != 1.01 {
		t.Fatalf("RoundPrice(1.005)=%v, expected 1.01", got)
	}
	if got := RoundPrice(spec, 1.004); got != 1.0 {
		t.Fatalf("RoundPrice(1.004)=%v, expected 1", got)
	}
}

func TestCacheMemoizesSuccess(t *testing.T) {
	src := &stubRules{rules: common.SymbolRules{PricePrecision: 1, QuantityPrecision: 3, MinQty: 0.001, MinNotional: 100}}
	c := NewCache(src, zerolog.Nop())
	ctx := context.Background()

	first := c.Get(ctx, "BTCUSDT")
	second := c.Get(ctx, "BTCUSDT")
	if !first.Known || first != second {
		t.Fatalf("unexpected specs: %+v %+v", first, second)
	}
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("SymbolRules called %d times, expected 1", n)
	}
	if got := c.FormatQuantity(ctx, "BTCUSDT", 0.0123456); got != "0.012" {
		t.Fatalf("FormatQuantity=%q", got)
	}
	if got := c.FormatPrice(ctx, "BTCUSDT", 60123.46); got != "60123.5" {
		t.Fatalf("FormatPrice=%q", got)
	}
	if got := c.AdjustQuantity(ctx, "BTCUSDT", 0.0129); got != 0.012 {
		t.Fatalf("AdjustQuantity=%v, expected 0.012", got)
	}
	if got := c.AdjustQuantity(ctx, "BTCUSDT", 0.0004); got != 0.001 {
		t.Fatalf("AdjustQuantity below one step=%v, expected 0.001", got)
	}
	if got := c.AdjustPrice(ctx, "BTCUSDT", 60123.45); got != 60123.5 {
		t.Fatalf("AdjustPrice=%v, expected 60123.5", got)
	}
	if got := c.AdjustPrice(ctx, "BTCUSDT", -1.25); got != -1.3 {
		t.Fatalf("AdjustPrice(-1.25)=%v, expected -1.3", got)
	}
}

func TestCacheDoesNotMemoizeFailure(t *testing.T) {
	src := &stubRules{fail: true}
	c := NewCache(src, zerolog.Nop())
	ctx := context.Background()

	got := c.Get(ctx, "ETHUSDT")
	if got != DefaultSpec() || got.Known {
		t.Fatalf("expected default spec, got %+v", got)
	}

	src.fail = false
	src.rules = common.SymbolRules{PricePrecision: 2, QuantityPrecision: 3, MinQty: 0.001, MinNotional: 20}
	got = c.Get(ctx, "ETHUSDT")
	if !got.Known || got.MinNotional != 20 {
		t.Fatalf("expected fetched spec after recovery, got %+v", got)
	}
	if n := src.calls.Load(); n != 2 {
		t.Fatalf("SymbolRules called %d times, expected 2", n)
	}
}

func TestCacheCollapsesConcurrentMisses(t *testing.T) {
	src := &stubRules{delay: 50 * time.Millisecond, rules: common.SymbolRules{QuantityPrecision: 1}}
	c := NewCache(src, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Get(context.Background(), "SOLUSDT")
		}()
	}
	wg.Wait()
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("SymbolRules called %d times, expected 1", n)
	}
}
