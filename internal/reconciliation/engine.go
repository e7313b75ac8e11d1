// Package reconciliation drives exchange positions toward the latest signals.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/internal/events"
	"github.com/seokjunHwang/Quant/internal/ledger"
	"github.com/seokjunHwang/Quant/internal/monitor"
	"github.com/seokjunHwang/Quant/internal/override"
	"github.com/seokjunHwang/Quant/internal/signal"
	"github.com/seokjunHwang/Quant/internal/sizing"
	"github.com/seokjunHwang/Quant/internal/state"
	"github.com/seokjunHwang/Quant/pkg/exchanges/common"
)

var (
	ErrNotHeld     = errors.New("no open position for symbol")
	ErrCloseFailed = errors.New("close order failed")
	ErrInvalid     = errors.New("invalid reconciliation parameters")
)

// TradeRecorder is the ledger the engine writes to.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, t ledger.TradeRecord) bool
	RecordManualClose(ctx context.Context, symbol string, at time.Time)
}

// FailureRecorder is the failed-order audit trail.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, f ledger.FailedOrder)
}

// Sizer computes entry quantities.
type Sizer interface {
	Size(ctx context.Context, req sizing.Request) (sizing.Result, error)
}

// Params are the user-tunable sizing and policy inputs of a pass.
type Params struct {
	Policy       Policy  `json:"policy"`
	TotalCapital float64 `json:"total_capital"`
	MaxPositions int     `json:"max_positions"`
	Leverage     int     `json:"leverage"`
}

// Validate checks Params for values the exchange or sizer would refuse.
func (p Params) Validate() error {
	switch {
	case p.Policy.Name == "":
		return fmt.Errorf("%w: policy is required", ErrInvalid)
	case p.TotalCapital <= 0:
		return fmt.Errorf("%w: total capital must be positive", ErrInvalid)
	case p.MaxPositions < 1:
		return fmt.Errorf("%w: max positions must be at least 1", ErrInvalid)
	case p.Leverage < 1 || p.Leverage > 125:
		return fmt.Errorf("%w: leverage must be within 1..125", ErrInvalid)
	}
	return nil
}

// Request asks for one pass over a batch of raw signals.
type Request struct {
	Origin  string
	Signals []signal.Signal
	// Rank orders entry candidates by confidence when slots are scarce.
	Rank bool
}

// Deps are the collaborators of an Engine. Bus and Metrics may be nil.
type Deps struct {
	Exchange   common.Exchange
	Mirror     *state.Mirror
	Sizer      Sizer
	Normalizer *signal.Normalizer
	Overrides  *override.Tracker
	Ledger     TradeRecorder
	Audit      FailureRecorder
	Bus        *events.Bus
	Metrics    *monitor.Metrics
	Log        zerolog.Logger
}

// Engine runs reconciliation passes one at a time.
type Engine struct {
	ex         common.Exchange
	mirror     *state.Mirror
	sizer      Sizer
	normalizer *signal.Normalizer
	overrides  *override.Tracker
	ledger     TradeRecorder
	audit      FailureRecorder
	bus        *events.Bus
	metrics    *monitor.Metrics
	log        zerolog.Logger

	paramsMu sync.RWMutex
	params   Params

	// coalescing state
	mu      sync.Mutex
	running bool
	pending *Request
	last    *PassReport

	// serializes passes and manual closes
	passMu sync.Mutex
	passes atomic.Int64
}

func New(d Deps, p Params) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		ex:         d.Exchange,
		mirror:     d.Mirror,
		sizer:      d.Sizer,
		normalizer: d.Normalizer,
		overrides:  d.Overrides,
		ledger:     d.Ledger,
		audit:      d.Audit,
		bus:        d.Bus,
		metrics:    d.Metrics,
		log:        d.Log.With().Str("component", "reconciler").Logger(),
		params:     p,
	}, nil
}

// Params returns the active parameters.
func (e *Engine) Params() Params {
	e.paramsMu.RLock()
	defer e.paramsMu.RUnlock()
	return e.params
}

// SetParams replaces the parameters used by subsequent passes.
func (e *Engine) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.paramsMu.Lock()
	e.params = p
	e.paramsMu.Unlock()
	e.log.Info().
		Str("policy", p.Policy.Name).
		Float64("capital", p.TotalCapital).
		Int("max_positions", p.MaxPositions).
		Int("leverage", p.Leverage).
		Msg("parameters updated")
	return nil
}

// Submit runs a pass for req unless one is already running, in which case req
// is merged into the single trailing pass and Submit returns (nil, false).
// The caller that starts a pass also runs the trailing pass before returning.
func (e *Engine) Submit(ctx context.Context, req Request) (*PassReport, bool) {
	e.mu.Lock()
	if e.running {
		if e.pending == nil {
			r := req
			e.pending = &r
		} else {
			e.pending = mergeRequests(*e.pending, req)
		}
		e.mu.Unlock()
		e.metrics.Coalesced()
		e.log.Debug().Str("origin", req.Origin).Msg("pass in flight, request coalesced")
		return nil, false
	}
	e.running = true
	e.mu.Unlock()

	for {
		rep := e.runPass(ctx, req)

		e.mu.Lock()
		e.last = rep
		if e.pending == nil {
			e.running = false
			e.mu.Unlock()
			return rep, true
		}
		req = *e.pending
		e.pending = nil
		e.mu.Unlock()
	}
}

func mergeRequests(a, b Request) *Request {
	origin := a.Origin
	if b.Origin != a.Origin {
		origin = "coalesced"
	}
	return &Request{
		Origin:  origin,
		Signals: signal.Collapse(append(append([]signal.Signal(nil), a.Signals...), b.Signals...)),
		Rank:    a.Rank || b.Rank,
	}
}

// LastReport returns the most recent finished pass, if any.
func (e *Engine) LastReport() *PassReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Running reports whether a pass is in flight.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// PassCount is the number of passes run since start.
func (e *Engine) PassCount() int64 {
	return e.passes.Load()
}
