// Package paper simulates a USDT-M futures account for dry runs. Market data
// comes from a real venue; orders and positions never leave the process.
package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/pkg/exchanges/common"
)

// MarketData is the public half of an exchange.
type MarketData interface {
	SymbolRules(ctx context.Context, symbol string) (common.SymbolRules, error)
	TickerPrice(ctx context.Context, symbol string) (float64, error)
}

// Config tunes the fill simulation.
type Config struct {
	InitialBalance float64
	FeeRate        float64 // decimal, e.g. 0.0004 = 4 bps
	SlippageBps    float64 // upper bound of adverse slippage applied on fills
	Seed           int64
}

var errNothingToReduce = errors.New("paper: reduce-only order would increase position")

type position struct {
	amount     float64
	entryPrice float64
}

// Exchange is an in-memory futures account.
type Exchange struct {
	market   MarketData
	cfg      Config
	log      zerolog.Logger
	rng      *rand.Rand
	mu       sync.Mutex
	pos      map[string]*position
	leverage map[string]int
	balance  float64
	realized float64
}

var _ common.Exchange = (*Exchange)(nil)

// New creates a paper account backed by market for prices and rules.
func New(market MarketData, cfg Config, log zerolog.Logger) *Exchange {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Exchange{
		market:   market,
		cfg:      cfg,
		log:      log.With().Str("component", "paper").Logger(),
		rng:      rand.New(rand.NewSource(seed)),
		pos:      make(map[string]*position),
		leverage: make(map[string]int),
		balance:  cfg.InitialBalance,
	}
}

// Positions returns the simulated non-flat positions, ordered by symbol.
func (e *Exchange) Positions(ctx context.Context) ([]common.Position, error) {
	e.mu.Lock()
	symbols := make([]string, 0, len(e.pos))
	for s := range e.pos {
		symbols = append(symbols, s)
	}
	e.mu.Unlock()
	sort.Strings(symbols)

	out := make([]common.Position, 0, len(symbols))
	for _, s := range symbols {
		e.mu.Lock()
		p, ok := e.pos[s]
		var snap position
		if ok {
			snap = *p
		}
		lev := e.leverageFor(s)
		e.mu.Unlock()
		if !ok {
			continue
		}
		mark := snap.entryPrice
		if px, err := e.market.TickerPrice(ctx, s); err == nil {
			mark = px
		}
		out = append(out, common.Position{
			Symbol:        s,
			Amount:        snap.amount,
			EntryPrice:    snap.entryPrice,
			MarkPrice:     mark,
			UnrealizedPnL: (mark - snap.entryPrice) * snap.amount,
			Leverage:      lev,
		})
	}
	return out, nil
}

// OpenOrders is always empty; every simulated order fills immediately.
func (e *Exchange) OpenOrders(ctx context.Context, symbol string) ([]common.OpenOrder, error) {
	return []common.OpenOrder{}, nil
}

// SubmitOrder fills a market order at the live ticker adjusted for slippage and fees.
func (e *Exchange) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	if req.Type != common.OrderTypeMarket {
		return common.OrderResult{}, fmt.Errorf("paper: unsupported order type %s", req.Type)
	}
	qty, err := strconv.ParseFloat(req.Quantity, 64)
	if err != nil || qty <= 0 {
		return common.OrderResult{}, fmt.Errorf("paper: invalid quantity %q", req.Quantity)
	}
	price, err := e.market.TickerPrice(ctx, req.Symbol)
	if err != nil {
		return common.OrderResult{}, fmt.Errorf("paper: price %s: %w", req.Symbol, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if slip := e.cfg.SlippageBps / 10000.0; slip > 0 {
		noise := e.rng.Float64() * slip
		if req.Side == common.SideBuy {
			price *= 1 + noise
		} else {
			price *= 1 - noise
		}
	}

	delta := qty
	if req.Side == common.SideSell {
		delta = -qty
	}
	p := e.pos[req.Symbol]
	if req.ReduceOnly {
		if p == nil || p.amount == 0 || sameSign(p.amount, delta) {
			return common.OrderResult{}, errNothingToReduce
		}
		if math.Abs(delta) > math.Abs(p.amount) {
			delta = -p.amount
			qty = math.Abs(delta)
		}
	}

	fee := price * qty * e.cfg.FeeRate
	pnl := e.apply(req.Symbol, delta, price)
	e.balance += pnl - fee
	e.realized += pnl

	id := uuid.NewString()
	e.log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("qty", qty).
		Float64("price", price).
		Float64("pnl", pnl).
		Msg("paper fill")

	return common.OrderResult{
		ExchangeOrderID: id,
		ClientID:        req.ClientID,
		Status:          common.StatusFilled,
		ExecutedQty:     qty,
		AvgPrice:        price,
		Commission:      fee,
		UpdateTime:      time.Now(),
	}, nil
}

// apply nets delta into the position and returns realized PnL. Caller holds mu.
func (e *Exchange) apply(symbol string, delta, price float64) float64 {
	p := e.pos[symbol]
	if p == nil {
		e.pos[symbol] = &position{amount: delta, entryPrice: price}
		return 0
	}
	if sameSign(p.amount, delta) {
		total := p.amount + delta
		p.entryPrice = (p.entryPrice*math.Abs(p.amount) + price*math.Abs(delta)) / math.Abs(total)
		p.amount = total
		return 0
	}

	closing := math.Min(math.Abs(delta), math.Abs(p.amount))
	dir := 1.0
	if p.amount < 0 {
		dir = -1.0
	}
	pnl := (price - p.entryPrice) * closing * dir

	remaining := p.amount + delta
	switch {
	case math.Abs(remaining) < 1e-12:
		delete(e.pos, symbol)
	case sameSign(remaining, p.amount):
		p.amount = remaining
	default:
		// crossed through zero: the remainder opens at the fill price
		p.amount = remaining
		p.entryPrice = price
	}
	return pnl
}

// CancelOrder has nothing to cancel.
func (e *Exchange) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	return nil
}

// SetLeverage records the leverage used for reporting.
func (e *Exchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage < 1 || leverage > 125 {
		return fmt.Errorf("paper: invalid leverage %d", leverage)
	}
	e.mu.Lock()
	e.leverage[symbol] = leverage
	e.mu.Unlock()
	return nil
}

// SymbolRules delegates to the market data source.
func (e *Exchange) SymbolRules(ctx context.Context, symbol string) (common.SymbolRules, error) {
	return e.market.SymbolRules(ctx, symbol)
}

// TickerPrice delegates to the market data source.
func (e *Exchange) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	return e.market.TickerPrice(ctx, symbol)
}

// Balance returns wallet balance and cumulative realized PnL.
func (e *Exchange) Balance() (balance, realized float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance, e.realized
}

// AvailableBalance is the wallet balance less the initial margin of open positions.
func (e *Exchange) AvailableBalance(ctx context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	margin := 0.0
	for sym, p := range e.pos {
		margin += math.Abs(p.amount) * p.entryPrice / float64(e.leverageFor(sym))
	}
	return e.balance - margin, nil
}

func (e *Exchange) leverageFor(symbol string) int {
	if lev, ok := e.leverage[symbol]; ok {
		return lev
	}
	return 1
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
