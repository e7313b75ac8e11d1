// Package sizing turns a capital allocation into an exchange-valid order quantity.
package sizing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/seokjunHwang/Quant/internal/precision"
)

// DefaultHaircut is the share of each slot's margin held back for fees and price drift.
const DefaultHaircut = 0.05

// Rejection reasons.
const (
	ReasonInvalidInput     = "invalid_input"
	ReasonPrecisionUnknown = "precision_unknown"
	ReasonMinQtyOverTarget = "min_qty_exceeds_target"
	ReasonBelowMinQty      = "below_min_qty"
	ReasonBelowMinNotional = "below_min_notional"
	ReasonExceedsSlot      = "exceeds_slot"
)

// Specs supplies rounding rules per symbol.
type Specs interface {
	Get(ctx context.Context, symbol string) precision.Spec
	AdjustQuantity(ctx context.Context, symbol string, raw float64) float64
}

// Request is one sizing question.
type Request struct {
	Symbol       string
	SignalType   string
	Price        float64
	TotalCapital float64
	MaxPositions int
	Leverage     int
}

// Result is an order size that satisfies every exchange minimum.
type Result struct {
	Quantity       float64
	QuantityText   string
	Notional       float64
	TargetNotional float64
	Spec           precision.Spec
}

// Rejection explains why a symbol cannot be sized. It is an expected outcome, not a fault.
type Rejection struct {
	Reason         string
	Symbol         string
	SignalType     string
	Price          float64
	Quantity       float64
	Notional       float64
	TargetNotional float64
	MinQuantity    float64
	MinNotional    float64
	TotalCapital   float64
	MaxPositions   int
	Leverage       int
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("sizing %s rejected (%s): qty=%g notional=%.4f target=%.4f min_qty=%g min_notional=%g capital=%g max_positions=%d leverage=%d",
		r.Symbol, r.Reason, r.Quantity, r.Notional, r.TargetNotional, r.MinQuantity, r.MinNotional,
		r.TotalCapital, r.MaxPositions, r.Leverage)
}

// Sizer divides capital into equal slots and sizes one slot per entry.
type Sizer struct {
	specs   Specs
	haircut float64
}

func NewSizer(specs Specs, haircut float64) *Sizer {
	if haircut < 0 || haircut >= 1 {
		haircut = DefaultHaircut
	}
	return &Sizer{specs: specs, haircut: haircut}
}

// Size returns the quantity for one slot of req, or a *Rejection.
func (s *Sizer) Size(ctx context.Context, req Request) (Result, error) {
	rej := &Rejection{
		Symbol:       req.Symbol,
		SignalType:   req.SignalType,
		Price:        req.Price,
		TotalCapital: req.TotalCapital,
		MaxPositions: req.MaxPositions,
		Leverage:     req.Leverage,
	}
	if req.Price <= 0 || req.TotalCapital <= 0 || req.MaxPositions <= 0 || req.Leverage <= 0 {
		rej.Reason = ReasonInvalidInput
		return Result{}, rej
	}

	price := decimal.NewFromFloat(req.Price)
	slotMargin := decimal.NewFromFloat(req.TotalCapital).Div(decimal.NewFromInt(int64(req.MaxPositions)))
	lev := decimal.NewFromInt(int64(req.Leverage))
	slotNotional := slotMargin.Mul(lev)
	target := slotMargin.Mul(decimal.NewFromFloat(1 - s.haircut)).Mul(lev)
	rej.TargetNotional = target.InexactFloat64()

	spec := s.specs.Get(ctx, req.Symbol)
	rej.MinQuantity = spec.MinQuantity
	rej.MinNotional = spec.MinNotional
	if !spec.Known {
		rej.Reason = ReasonPrecisionUnknown
		return Result{}, rej
	}

	minQty := decimal.NewFromFloat(spec.MinQuantity)
	if minQty.Mul(price).GreaterThan(target) {
		rej.Reason = ReasonMinQtyOverTarget
		rej.Notional = minQty.Mul(price).InexactFloat64()
		return Result{}, rej
	}

	raw := target.Div(price).InexactFloat64()
	qty := decimal.NewFromFloat(s.specs.AdjustQuantity(ctx, req.Symbol, raw))
	notional := qty.Mul(price)
	rej.Quantity = qty.InexactFloat64()
	rej.Notional = notional.InexactFloat64()

	switch {
	case qty.LessThan(minQty):
		rej.Reason = ReasonBelowMinQty
		return Result{}, rej
	case notional.LessThan(decimal.NewFromFloat(spec.MinNotional)):
		rej.Reason = ReasonBelowMinNotional
		return Result{}, rej
	case notional.GreaterThan(slotNotional):
		rej.Reason = ReasonExceedsSlot
		return Result{}, rej
	}

	return Result{
		Quantity:       rej.Quantity,
		QuantityText:   qty.StringFixed(int32(spec.QuantityDecimals)),
		Notional:       rej.Notional,
		TargetNotional: rej.TargetNotional,
		Spec:           spec,
	}, nil
}
