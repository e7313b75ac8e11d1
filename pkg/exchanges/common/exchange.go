package common

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a venue answers successfully but without usable data.
var ErrEmptyResponse = errors.New("exchange returned an empty response")

// Exchange is the account capability the reconciliation core trades through.
// Every call is fallible; implementations never return a nil result with a nil error.
type Exchange interface {
	// Positions returns every non-flat position with a signed amount.
	Positions(ctx context.Context) ([]Position, error)
	OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	// SetLeverage treats "already at this leverage" as success.
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SymbolRules(ctx context.Context, symbol string) (SymbolRules, error)
	TickerPrice(ctx context.Context, symbol string) (float64, error)
}
