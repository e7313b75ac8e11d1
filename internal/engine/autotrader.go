package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/internal/balance"
	"github.com/seokjunHwang/Quant/internal/events"
	"github.com/seokjunHwang/Quant/internal/ledger"
	"github.com/seokjunHwang/Quant/internal/monitor"
	"github.com/seokjunHwang/Quant/internal/override"
	"github.com/seokjunHwang/Quant/internal/reconciliation"
	"github.com/seokjunHwang/Quant/internal/signal"
	"github.com/seokjunHwang/Quant/internal/state"
)

var (
	ErrAlreadyRunning = errors.New("auto-trading already running")
	ErrNotRunning     = errors.New("auto-trading not running")
	ErrFixedCapital   = errors.New("capital is fixed by configuration")
)

const (
	CapitalFixed     = "fixed"
	CapitalAvailable = "available"
)

// Config holds the collaborators of an AutoTrader.
type Config struct {
	Reconciler     Reconciler
	Source         signal.Source
	Positions      PositionView
	Overrides      *override.Tracker
	Trades         TradeReader
	Audit          AuditReader
	Bus            *events.Bus
	Capital        CapitalSource // nil keeps TotalCapital as configured
	Strategies     []string
	SignalDate     string
	RescanInterval time.Duration
	WatchInterval  time.Duration
	Meta           Meta
	Log            zerolog.Logger
}

// AutoTrader implements Service by composing the pollers and the reconciler.
type AutoTrader struct {
	rec        Reconciler
	src        signal.Source
	strategies []string
	capital    CapitalSource
	positions  PositionView
	overrides  *override.Tracker
	trades     TradeReader
	audit      AuditReader
	bus        *events.Bus
	meta       Meta
	log        zerolog.Logger

	rescan  *RescanPoller
	watcher *SignalWatcher

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
}

var _ Service = (*AutoTrader)(nil)

func NewAutoTrader(cfg Config) *AutoTrader {
	return &AutoTrader{
		rec:        cfg.Reconciler,
		src:        cfg.Source,
		strategies: cfg.Strategies,
		capital:    cfg.Capital,
		positions:  cfg.Positions,
		overrides:  cfg.Overrides,
		trades:     cfg.Trades,
		audit:      cfg.Audit,
		bus:        cfg.Bus,
		meta:       cfg.Meta,
		log:        cfg.Log.With().Str("component", "autotrader").Logger(),
		rescan:     NewRescanPoller(cfg.Source, cfg.Reconciler, cfg.RescanInterval, cfg.Strategies, cfg.SignalDate, cfg.Log),
		watcher:    NewSignalWatcher(cfg.Source, cfg.Reconciler, cfg.WatchInterval, cfg.Strategies, cfg.Log),
	}
}

// --- Lifecycle ---

// Start clears manual overrides, starts both pollers, and kicks off an
// initial rescan. The pollers outlive ctx; use Stop to end them.
func (a *AutoTrader) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return ErrAlreadyRunning
	}

	if err := a.watcher.Init(ctx); err != nil {
		return fmt.Errorf("init signal watcher: %w", err)
	}
	a.overrides.Clear()
	if a.capital != nil {
		if _, _, err := a.SyncCapital(ctx); err != nil {
			a.log.Warn().Err(err).Msg("capital sync failed; keeping current capital")
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.startedAt = time.Now().UTC()

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.rescan.Run(runCtx)
	}()
	go func() {
		defer a.wg.Done()
		a.watcher.Run(runCtx)
	}()

	mode := a.rec.Params().Policy.Name
	a.log.Info().Str("mode", mode).Msg("auto-trading started")
	a.bus.Publish(events.EventAutoTradeState, events.AutoTradeState{Active: true, Mode: mode, Time: time.Now()})
	return nil
}

// Stop ends both pollers and waits for them. A pass already in flight runs
// to completion first.
func (a *AutoTrader) Stop() error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel == nil {
		return ErrNotRunning
	}

	cancel()
	a.wg.Wait()

	mode := a.rec.Params().Policy.Name
	a.log.Info().Msg("auto-trading stopped")
	a.bus.Publish(events.EventAutoTradeState, events.AutoTradeState{Active: false, Mode: mode, Time: time.Now()})
	return nil
}

// Active reports whether the pollers are running.
func (a *AutoTrader) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

func (a *AutoTrader) Status(ctx context.Context) Status {
	a.mu.Lock()
	active := a.cancel != nil
	started := a.startedAt
	a.mu.Unlock()

	params := a.rec.Params()
	st := Status{
		Meta:       a.meta,
		Active:     active,
		Mode:       params.Policy.Name,
		PassActive: a.rec.Running(),
		Passes:     a.rec.PassCount(),
		Held:       len(a.positions.List()),
		Overrides:  len(a.overrides.Records()),
		Params:     params,
		Capital:    CapitalFixed,
		LastPass:   a.rec.LastReport(),
		Runtime:    monitor.Runtime(),
		ServerTime: time.Now().UTC(),
	}
	if active {
		st.StartedAt = &started
	}
	if a.capital != nil {
		st.Capital = CapitalAvailable
		if snap := a.capital.Last(); !snap.SyncedAt.IsZero() {
			st.Balance = &snap
		}
	}
	return st
}

// --- Commands ---

// TriggerRescan runs a rescan now, whether or not the pollers are active.
func (a *AutoTrader) TriggerRescan(ctx context.Context) (*reconciliation.PassReport, error) {
	return a.rescan.Scan(ctx)
}

// ExecuteLatestSignal submits the newest signal of the active strategies as a
// single unranked request. A nil report means it was merged into a running pass.
func (a *AutoTrader) ExecuteLatestSignal(ctx context.Context) (*reconciliation.PassReport, signal.Signal, error) {
	sig, err := a.src.Latest(ctx, a.strategies)
	if err != nil {
		return nil, signal.Signal{}, err
	}
	a.log.Info().
		Int64("id", sig.ID).
		Str("strategy", sig.Strategy).
		Str("symbol", sig.Symbol).
		Str("signal", string(sig.Type)).
		Msg("executing latest signal on request")
	rep, _ := a.rec.Submit(context.WithoutCancel(ctx), reconciliation.Request{
		Origin:  OriginManual,
		Signals: []signal.Signal{sig},
	})
	return rep, sig, nil
}

func (a *AutoTrader) ManualClose(ctx context.Context, symbol string) error {
	return a.rec.ManualClose(context.WithoutCancel(ctx), symbol)
}

// ClearOverride lets automation trade symbol again.
func (a *AutoTrader) ClearOverride(symbol string) bool {
	ok := a.overrides.Remove(strings.ToUpper(symbol))
	if ok {
		a.log.Info().Str("symbol", symbol).Msg("manual override cleared")
	}
	return ok
}

func (a *AutoTrader) SetParams(update ParamsUpdate) (reconciliation.Params, error) {
	p, err := update.Apply(a.rec.Params())
	if err != nil {
		return a.rec.Params(), err
	}
	if err := a.rec.SetParams(p); err != nil {
		return a.rec.Params(), err
	}
	return p, nil
}

// SyncCapital sets TotalCapital from the account's available balance.
func (a *AutoTrader) SyncCapital(ctx context.Context) (reconciliation.Params, balance.Snapshot, error) {
	if a.capital == nil {
		return a.rec.Params(), balance.Snapshot{}, ErrFixedCapital
	}
	snap, err := a.capital.Sync(ctx)
	if err != nil {
		return a.rec.Params(), balance.Snapshot{}, err
	}
	p, err := a.SetParams(ParamsUpdate{TotalCapital: &snap.Capital})
	if err != nil {
		return p, snap, err
	}
	a.log.Info().Float64("total_capital", p.TotalCapital).Msg("capital taken from available balance")
	return p, snap, nil
}

// --- Queries ---

func (a *AutoTrader) Params() reconciliation.Params {
	return a.rec.Params()
}

func (a *AutoTrader) Positions() []state.Position {
	return a.positions.List()
}

func (a *AutoTrader) Overrides() []override.Record {
	return a.overrides.Records()
}

func (a *AutoTrader) Trades(ctx context.Context, limit int) ([]ledger.TradeRecord, error) {
	if a.trades == nil {
		return nil, fmt.Errorf("trade ledger not available")
	}
	return a.trades.Trades(ctx, limit)
}

func (a *AutoTrader) FailedOrders(ctx context.Context, limit int) ([]ledger.FailedOrder, error) {
	if a.audit == nil {
		return nil, fmt.Errorf("audit trail not available")
	}
	return a.audit.Failures(ctx, limit)
}
