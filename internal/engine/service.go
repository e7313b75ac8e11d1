// Package engine runs the auto-trader: two signal pollers feeding one
// reconciliation engine, behind the interface the API layer talks to.
package engine

import (
	"context"

	"github.com/seokjunHwang/Quant/internal/balance"
	"github.com/seokjunHwang/Quant/internal/ledger"
	"github.com/seokjunHwang/Quant/internal/override"
	"github.com/seokjunHwang/Quant/internal/reconciliation"
	"github.com/seokjunHwang/Quant/internal/signal"
	"github.com/seokjunHwang/Quant/internal/state"
)

// Service defines the operations exposed to the control layer.
// The API layer should only interact with the auto-trader through this interface.
type Service interface {
	// Lifecycle
	Start(ctx context.Context) error
	Stop() error
	Status(ctx context.Context) Status

	// Commands
	TriggerRescan(ctx context.Context) (*reconciliation.PassReport, error)
	ExecuteLatestSignal(ctx context.Context) (*reconciliation.PassReport, signal.Signal, error)
	ManualClose(ctx context.Context, symbol string) error
	ClearOverride(symbol string) bool
	SetParams(update ParamsUpdate) (reconciliation.Params, error)
	SyncCapital(ctx context.Context) (reconciliation.Params, balance.Snapshot, error)

	// Queries
	Params() reconciliation.Params
	Positions() []state.Position
	Overrides() []override.Record
	Trades(ctx context.Context, limit int) ([]ledger.TradeRecord, error)
	FailedOrders(ctx context.Context, limit int) ([]ledger.FailedOrder, error)
}

// Reconciler is the pass runner the auto-trader drives.
type Reconciler interface {
	Submit(ctx context.Context, req reconciliation.Request) (*reconciliation.PassReport, bool)
	ManualClose(ctx context.Context, symbol string) error
	Params() reconciliation.Params
	SetParams(p reconciliation.Params) error
	LastReport() *reconciliation.PassReport
	PassCount() int64
	Running() bool
}

// PositionView is the read side of the position mirror.
type PositionView interface {
	List() []state.Position
}

// TradeReader lists ledger entries, newest first.
type TradeReader interface {
	Trades(ctx context.Context, limit int) ([]ledger.TradeRecord, error)
}

// CapitalSource derives sizing capital from the account. Nil means TotalCapital is fixed.
type CapitalSource interface {
	Sync(ctx context.Context) (balance.Snapshot, error)
	Last() balance.Snapshot
}

// AuditReader lists failed-order audit rows, newest first.
type AuditReader interface {
	Failures(ctx context.Context, limit int) ([]ledger.FailedOrder, error)
}
