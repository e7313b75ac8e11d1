package futures_usdt

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/seokjunHwang/Quant/pkg/exchanges/common"
)

var _ common.Exchange = (*Client)(nil)

// Positions returns non-flat one-way positions.
func (c *Client) Positions(ctx context.Context) ([]common.Position, error) {
	raw, err := c.GetPositions(ctx, "")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("positions: %w", common.ErrEmptyResponse)
	}
	out := make([]common.Position, 0, len(raw))
	for _, p := range raw {
		amt := parseFloat(p.PositionAmt)
		if amt == 0 {
			continue
		}
		lev, _ := strconv.Atoi(p.Leverage)
		out = append(out, common.Position{
			Symbol:        p.Symbol,
			Amount:        amt,
			EntryPrice:    parseFloat(p.EntryPrice),
			MarkPrice:     parseFloat(p.MarkPrice),
			UnrealizedPnL: parseFloat(p.UnRealizedProfit),
			Leverage:      lev,
		})
	}
	return out, nil
}

// OpenOrders lists resting orders for symbol, or all symbols when empty.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]common.OpenOrder, error) {
	raw, err := c.GetOpenOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]common.OpenOrder, 0, len(raw))
	for _, o := range raw {
		out = append(out, common.OpenOrder{
			Symbol:          o.Symbol,
			ExchangeOrderID: strconv.FormatInt(o.OrderID, 10),
			ClientID:        o.ClientOrderID,
			Side:            common.Side(o.Side),
			Type:            common.OrderType(o.Type),
			Quantity:        parseFloat(o.OrigQty),
			Price:           parseFloat(o.Price),
			ReduceOnly:      o.ReduceOnly,
			Status:          mapStatus(o.Status),
		})
	}
	return out, nil
}

// SymbolRules returns the filters for symbol from a cached exchangeInfo snapshot.
func (c *Client) SymbolRules(ctx context.Context, symbol string) (common.SymbolRules, error) {
	c.rulesMu.RLock()
	r, ok := c.rules[symbol]
	fresh := time.Since(c.rulesFetched) < c.rulesTTL
	c.rulesMu.RUnlock()
	if ok && fresh {
		return r, nil
	}

	info, err := c.ExchangeInfo(ctx)
	if err != nil {
		return common.SymbolRules{}, err
	}
	rules := make(map[string]common.SymbolRules, len(info.Symbols))
	for _, s := range info.Symbols {
		rules[s.Symbol] = rulesFromInfo(s)
	}

	c.rulesMu.Lock()
	c.rules = rules
	c.rulesFetched = time.Now()
	c.rulesMu.Unlock()

	r, ok = rules[symbol]
	if !ok {
		return common.SymbolRules{}, fmt.Errorf("symbol %s not listed: %w", symbol, common.ErrEmptyResponse)
	}
	return r, nil
}

// AvailableBalance is the USDT margin free for new positions.
func (c *Client) AvailableBalance(ctx context.Context) (float64, error) {
	info, err := c.GetAccountInfo(ctx)
	if err != nil {
		return 0, err
	}
	if info.AvailableBalance == "" {
		return 0, fmt.Errorf("account info: %w", common.ErrEmptyResponse)
	}
	return parseFloat(info.AvailableBalance), nil
}

// TickerPrice returns the last traded price for symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	return c.GetTickerPrice(ctx, symbol)
}
