// Package precision caches per-symbol trading rules and rounds order values to them.
package precision

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/seokjunHwang/Quant/pkg/exchanges/common"
)

// Spec is the rounding and minimum-size contract for one symbol.
type Spec struct {
	PriceDecimals    int
	QuantityDecimals int
	MinQuantity      float64
	MinNotional      float64
	// Known is false for the fallback returned when rules could not be fetched.
	Known bool
}

// DefaultSpec is used when the venue cannot be reached. It is never cached.
func DefaultSpec() Spec {
	return Spec{PriceDecimals: 2, QuantityDecimals: 3}
}

// RulesSource is the part of an exchange the cache reads from.
type RulesSource interface {
	SymbolRules(ctx context.Context, symbol string) (common.SymbolRules, error)
}

// Cache memoizes Specs for the process lifetime.
type Cache struct {
	src   RulesSource
	log   zerolog.Logger
	specs sync.Map // symbol -> Spec
	group singleflight.Group
}

func NewCache(src RulesSource, log zerolog.Logger) *Cache {
	return &Cache{src: src, log: log.With().Str("component", "precision").Logger()}
}

// Get returns the Spec for symbol, fetching it on first use.
func (c *Cache) Get(ctx context.Context, symbol string) Spec {
	if v, ok := c.specs.Load(symbol); ok {
		return v.(Spec)
	}

	v, err, _ := c.group.Do(symbol, func() (any, error) {
		if v, ok := c.specs.Load(symbol); ok {
			return v.(Spec), nil
		}
		rules, err := c.src.SymbolRules(ctx, symbol)
		if err != nil {
			return nil, err
		}
		spec := Spec{
			PriceDecimals:    rules.PricePrecision,
			QuantityDecimals: rules.QuantityPrecision,
			MinQuantity:      rules.MinQty,
			MinNotional:      rules.MinNotional,
			Known:            true,
		}
		c.specs.Store(symbol, spec)
		return spec, nil
	})
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("precision fetch failed, using default")
		return DefaultSpec()
	}
	return v.(Spec)
}

// AdjustQuantity truncates raw to the symbol's quantity step. A result below one
// step is raised to exactly one step; the sizer decides if that is acceptable.
func (c *Cache) AdjustQuantity(ctx context.Context, symbol string, raw float64) float64 {
	return TruncateQuantity(c.Get(ctx, symbol), raw)
}

// AdjustPrice rounds price half away from zero to the symbol's price decimals.
func (c *Cache) AdjustPrice(ctx context.Context, symbol string, price float64) float64 {
	return RoundPrice(c.Get(ctx, symbol), price)
}

// FormatQuantity renders an adjusted quantity for the wire.
func (c *Cache) FormatQuantity(ctx context.Context, symbol string, qty float64) string {
	spec := c.Get(ctx, symbol)
	return decimal.NewFromFloat(TruncateQuantity(spec, qty)).StringFixed(int32(spec.QuantityDecimals))
}

// FormatPrice renders an adjusted price for the wire.
func (c *Cache) FormatPrice(ctx context.Context, symbol string, price float64) string {
	spec := c.Get(ctx, symbol)
	return decimal.NewFromFloat(price).Round(int32(spec.PriceDecimals)).StringFixed(int32(spec.PriceDecimals))
}

// TruncateQuantity applies the quantity rule of spec to raw.
func TruncateQuantity(spec Spec, raw float64) float64 {
	places := int32(spec.QuantityDecimals)
	unit := decimal.New(1, -places)
	q := decimal.NewFromFloat(raw).Truncate(places)
	if q.LessThan(unit) {
		q = unit
	}
	f, _ := q.Float64()
	return f
}

// RoundPrice applies the price rule of spec to price.
func RoundPrice(spec Spec, price float64) float64 {
	f, _ := decimal.NewFromFloat(price).Round(int32(spec.PriceDecimals)).Float64()
	return f
}
