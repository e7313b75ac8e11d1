package events

import "time"

// Event enumerates the topics the engine publishes for operators.
type Event string

const (
	EventTradeExecuted    Event = "trade.executed"
	EventOrderFailed      Event = "order.failed"
	EventPassCompleted    Event = "pass.completed"
	EventPositionsChanged Event = "positions.changed"
	EventAutoTradeState   Event = "autotrade.state"
)

// AllEvents lists every topic, for consumers that forward everything.
var AllEvents = []Event{
	EventTradeExecuted,
	EventOrderFailed,
	EventPassCompleted,
	EventPositionsChanged,
	EventAutoTradeState,
}

// TradeExecuted is published after an entry or exit order is accepted.
type TradeExecuted struct {
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	TradeType string    `json:"trade_type"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	PnL       float64   `json:"pnl"`
	Manual    bool      `json:"manual"`
	Time      time.Time `json:"time"`
}

// OrderFailed is published when an order could not be sized or was refused.
type OrderFailed struct {
	Symbol string    `json:"symbol"`
	Action string    `json:"action"`
	Reason string    `json:"reason"`
	Time   time.Time `json:"time"`
}

// AutoTradeState is published on start and stop.
type AutoTradeState struct {
	Active bool      `json:"active"`
	Mode   string    `json:"mode"`
	Time   time.Time `json:"time"`
}

// Envelope wraps a payload with its topic for transport.
type Envelope struct {
	Event   Event `json:"event"`
	Payload any   `json:"payload"`
}
