package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seokjunHwang/Quant/internal/events"
	"github.com/seokjunHwang/Quant/internal/ledger"
	"github.com/seokjunHwang/Quant/internal/signal"
	"github.com/seokjunHwang/Quant/internal/sizing"
	"github.com/seokjunHwang/Quant/internal/state"
	"github.com/seokjunHwang/Quant/pkg/exchanges/common"
)

// ManualClose flattens symbol on the user's behalf and blocks automatic
// re-entry. The mark is set before waiting for an in-flight pass so that pass
// cannot reopen the symbol.
func (e *Engine) ManualClose(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	e.overrides.Mark(symbol)

	e.passMu.Lock()
	defer e.passMu.Unlock()

	if _, err := e.mirror.Refresh(ctx); err != nil {
		e.log.Warn().Err(err).Msg("refresh before manual close failed, using last view")
	}
	pos, ok := e.mirror.Get(symbol)
	if !ok {
		return fmt.Errorf("%s: %w", symbol, ErrNotHeld)
	}

	if err := e.closePosition(ctx, pos, e.Params(), "MANUAL", true); err != nil {
		return err
	}
	e.ledger.RecordManualClose(ctx, symbol, time.Now().UTC())
	if _, err := e.mirror.Refresh(ctx); err != nil {
		e.log.Warn().Err(err).Msg("refresh after manual close failed")
	}
	e.bus.Publish(events.EventPositionsChanged, e.mirror.List())
	return nil
}

// closePosition sends a reduce-only market order for the full held quantity.
// A reported failure is double-checked against a fresh position view.
func (e *Engine) closePosition(ctx context.Context, pos state.Position, params Params, signalType string, manual bool) error {
	side := common.SideSell
	if pos.Side == state.Short {
		side = common.SideBuy
	}
	req := common.OrderRequest{
		Symbol:     pos.Symbol,
		Side:       side,
		Type:       common.OrderTypeMarket,
		Quantity:   strconv.FormatFloat(pos.Quantity, 'f', -1, 64),
		ClientID:   uuid.NewString(),
		ReduceOnly: true,
	}

	res, err := e.ex.SubmitOrder(ctx, req)
	if err != nil {
		if _, rerr := e.mirror.Refresh(ctx); rerr == nil {
			if _, still := e.mirror.Get(pos.Symbol); !still {
				e.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("close reported failure but position is gone, treating as closed")
				err = nil
				res = common.OrderResult{ExecutedQty: pos.Quantity}
			}
		}
	}
	if err != nil {
		e.log.Error().Err(err).
			Str("symbol", pos.Symbol).
			Str("side", string(side)).
			Float64("qty", pos.Quantity).
			Msg("close failed")
		e.metrics.Order(pos.Symbol, string(side), ledger.TradeExit, false)
		e.audit.RecordFailure(ctx, ledger.FailedOrder{
			Symbol:       pos.Symbol,
			SignalType:   signalType,
			Reason:       "close: " + err.Error(),
			Quantity:     pos.Quantity,
			TotalCapital: params.TotalCapital,
			Leverage:     params.Leverage,
			MaxPositions: params.MaxPositions,
		})
		e.bus.Publish(events.EventOrderFailed, events.OrderFailed{
			Symbol: pos.Symbol, Action: "close", Reason: err.Error(), Time: time.Now(),
		})
		return fmt.Errorf("%s: %w: %v", pos.Symbol, ErrCloseFailed, err)
	}

	price := e.fillPrice(ctx, pos.Symbol, res)
	qty := pos.Quantity
	if res.ExecutedQty > 0 {
		qty = res.ExecutedQty
	}
	dir := 1.0
	if pos.Side == state.Short {
		dir = -1.0
	}
	pnl := 0.0
	if price > 0 && pos.EntryPrice > 0 {
		pnl = (price - pos.EntryPrice) * qty * dir
	}

	e.metrics.Order(pos.Symbol, string(side), ledger.TradeExit, true)
	e.ledger.RecordTrade(ctx, ledger.TradeRecord{
		OrderID:     res.ExchangeOrderID,
		Symbol:      pos.Symbol,
		Side:        string(side),
		TradeType:   ledger.TradeExit,
		Quantity:    qty,
		Price:       price,
		Leverage:    pos.Leverage,
		RealizedPnL: pnl,
		Commission:  res.Commission,
	})
	e.bus.Publish(events.EventTradeExecuted, events.TradeExecuted{
		Symbol: pos.Symbol, Side: string(side), TradeType: ledger.TradeExit,
		Quantity: qty, Price: price, PnL: pnl, Manual: manual, Time: time.Now(),
	})
	e.log.Info().
		Str("symbol", pos.Symbol).
		Str("side", string(side)).
		Float64("qty", qty).
		Float64("price", price).
		Float64("pnl", pnl).
		Bool("manual", manual).
		Msg("position closed")
	return nil
}

// openPosition sets leverage, sizes, and places a market entry. It reports
// whether the order was accepted.
func (e *Engine) openPosition(ctx context.Context, sig signal.Signal, params Params, rep *PassReport) bool {
	sym := sig.Symbol
	side := common.SideBuy
	if sig.Type == signal.Short {
		side = common.SideSell
	}
	fail := func(stage string, err error, f ledger.FailedOrder) bool {
		rep.Failures++
		e.log.Error().Err(err).Str("symbol", sym).Str("stage", stage).Msg("entry failed")
		f.Symbol, f.SignalType, f.Reason = sym, string(sig.Type), stage+": "+err.Error()
		f.TotalCapital, f.Leverage, f.MaxPositions = params.TotalCapital, params.Leverage, params.MaxPositions
		e.audit.RecordFailure(ctx, f)
		e.bus.Publish(events.EventOrderFailed, events.OrderFailed{Symbol: sym, Action: "open", Reason: f.Reason, Time: time.Now()})
		return false
	}

	if err := e.ex.SetLeverage(ctx, sym, params.Leverage); err != nil {
		return fail("set leverage", err, ledger.FailedOrder{})
	}
	price, err := e.ex.TickerPrice(ctx, sym)
	if err == nil && price <= 0 {
		err = common.ErrEmptyResponse
	}
	if err != nil {
		return fail("ticker", err, ledger.FailedOrder{})
	}

	size, err := e.sizer.Size(ctx, sizing.Request{
		Symbol:       sym,
		SignalType:   string(sig.Type),
		Price:        price,
		TotalCapital: params.TotalCapital,
		MaxPositions: params.MaxPositions,
		Leverage:     params.Leverage,
	})
	var rej *sizing.Rejection
	if errors.As(err, &rej) {
		rep.Rejected++
		e.metrics.Rejected(rej.Reason)
		e.log.Info().Err(rej).Msg("entry rejected by sizer")
		e.audit.RecordFailure(ctx, ledger.FailedOrder{
			Symbol:       sym,
			SignalType:   string(sig.Type),
			Reason:       rej.Reason,
			Quantity:     rej.Quantity,
			Notional:     rej.Notional,
			MinQuantity:  rej.MinQuantity,
			MinNotional:  rej.MinNotional,
			TotalCapital: rej.TotalCapital,
			Leverage:     rej.Leverage,
			MaxPositions: rej.MaxPositions,
		})
		e.bus.Publish(events.EventOrderFailed, events.OrderFailed{Symbol: sym, Action: "size", Reason: rej.Reason, Time: time.Now()})
		return false
	}
	if err != nil {
		return fail("size", err, ledger.FailedOrder{})
	}

	res, err := e.ex.SubmitOrder(ctx, common.OrderRequest{
		Symbol:   sym,
		Side:     side,
		Type:     common.OrderTypeMarket,
		Quantity: size.QuantityText,
		ClientID: uuid.NewString(),
	})
	if err != nil {
		e.metrics.Order(sym, string(side), ledger.TradeEntry, false)
		return fail("order", err, ledger.FailedOrder{
			Quantity:    size.Quantity,
			Notional:    size.Notional,
			MinQuantity: size.Spec.MinQuantity,
			MinNotional: size.Spec.MinNotional,
		})
	}

	fill := e.fillPrice(ctx, sym, res)
	if fill <= 0 {
		fill = price
	}
	qty := size.Quantity
	if res.ExecutedQty > 0 {
		qty = res.ExecutedQty
	}
	e.metrics.Order(sym, string(side), ledger.TradeEntry, true)
	e.ledger.RecordTrade(ctx, ledger.TradeRecord{
		OrderID:    res.ExchangeOrderID,
		Symbol:     sym,
		Side:       string(side),
		TradeType:  ledger.TradeEntry,
		Quantity:   qty,
		Price:      fill,
		Leverage:   params.Leverage,
		Commission: res.Commission,
	})
	e.bus.Publish(events.EventTradeExecuted, events.TradeExecuted{
		Symbol: sym, Side: string(side), TradeType: ledger.TradeEntry, Quantity: qty, Price: fill, Time: time.Now(),
	})
	e.log.Info().
		Str("symbol", sym).
		Str("side", string(side)).
		Float64("qty", qty).
		Float64("price", fill).
		Float64("confidence", sig.Confidence).
		Msg("position opened")
	return true
}

// fillPrice prefers the venue's average fill and falls back to the ticker.
func (e *Engine) fillPrice(ctx context.Context, symbol string, res common.OrderResult) float64 {
	if res.AvgPrice > 0 {
		return res.AvgPrice
	}
	price, err := e.ex.TickerPrice(ctx, symbol)
	if err != nil {
		return 0
	}
	return price
}
