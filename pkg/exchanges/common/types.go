package common

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType denotes the order types the engine places.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// OrderRequest captures an order intent to be sent to an exchange.
// Quantity and Price are already formatted to the symbol precision.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Type        OrderType
	Quantity    string
	Price       string // required for LIMIT
	TimeInForce TimeInForce
	ClientID    string
	ReduceOnly  bool
}

// OrderResult returns the exchange ack.
type OrderResult struct {
	ExchangeOrderID string
	ClientID        string
	Status          OrderStatus
	ExecutedQty     float64
	AvgPrice        float64
	Commission      float64
	UpdateTime      time.Time
}

// Position is a one-way mode position; Amount is positive for long and negative for short.
type Position struct {
	Symbol        string
	Amount        float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
	Leverage      int
}

// SymbolRules are the trading filters published for a contract.
type SymbolRules struct {
	Symbol            string
	PricePrecision    int
	QuantityPrecision int
	TickSize          float64
	StepSize          float64
	MinQty            float64
	MinNotional       float64
}

// OpenOrder is a resting order on the venue.
type OpenOrder struct {
	Symbol          string
	ExchangeOrderID string
	ClientID        string
	Side            Side
	Type            OrderType
	Quantity        float64
	Price           float64
	ReduceOnly      bool
	Status          OrderStatus
}
