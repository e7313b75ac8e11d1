package state

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/pkg/db"
	"github.com/seokjunHwang/Quant/pkg/exchanges/common"
)

// Side is the direction of an open position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Position is a non-flat position as last reported by the exchange.
type Position struct {
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Quantity      float64 `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Leverage      int     `json:"leverage"`
}

// PositionSource is the read side of the exchange the mirror follows.
type PositionSource interface {
	Positions(ctx context.Context) ([]common.Position, error)
}

// Store persists snapshots for display.
type Store interface {
	ReplacePositions(ctx context.Context, positions []db.Position) error
	ListPositions(ctx context.Context) ([]db.Position, error)
}

// SyncReport describes how a refresh changed the mirror.
type SyncReport struct {
	Held    int
	Added   []string
	Dropped []string
}

// Mirror keeps an in-memory view of exchange positions, fully replaced on every refresh.
type Mirror struct {
	src   PositionSource
	store Store
	log   zerolog.Logger

	mu        sync.RWMutex
	positions map[string]Position
}

// NewMirror creates a mirror; store may be nil.
func NewMirror(src PositionSource, store Store, log zerolog.Logger) *Mirror {
	return &Mirror{
		src:       src,
		store:     store,
		log:       log.With().Str("component", "mirror").Logger(),
		positions: make(map[string]Position),
	}
}

// Load seeds the view from the last persisted snapshot so readers have data before the first refresh.
func (m *Mirror) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	rows, err := m.store.ListPositions(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.positions[r.Symbol] = Position{
			Symbol:        r.Symbol,
			Side:          Side(r.Side),
			Quantity:      r.Qty,
			EntryPrice:    r.EntryPrice,
			UnrealizedPnL: r.UnrealizedPnL,
			Leverage:      r.Leverage,
		}
	}
	return nil
}

// Refresh replaces the view with the exchange's current positions.
// On error the previous view is kept and the error is returned.
func (m *Mirror) Refresh(ctx context.Context) (map[string]Position, error) {
	raw, err := m.src.Positions(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, common.ErrEmptyResponse
	}

	next := make(map[string]Position, len(raw))
	for _, p := range raw {
		if p.Amount == 0 {
			continue
		}
		side, qty := Long, p.Amount
		if p.Amount < 0 {
			side, qty = Short, -p.Amount
		}
		next[p.Symbol] = Position{
			Symbol:        p.Symbol,
			Side:          side,
			Quantity:      qty,
			EntryPrice:    p.EntryPrice,
			UnrealizedPnL: p.UnrealizedPnL,
			Leverage:      p.Leverage,
		}
	}

	m.mu.Lock()
	m.positions = next
	m.mu.Unlock()

	m.persist(ctx, next)
	return copyMap(next), nil
}

// Sync refreshes and logs symbols that appeared or disappeared since the previous view.
func (m *Mirror) Sync(ctx context.Context) (SyncReport, error) {
	before := m.Snapshot()
	after, err := m.Refresh(ctx)
	if err != nil {
		return SyncReport{Held: len(before)}, err
	}

	rep := SyncReport{Held: len(after)}
	for sym := range before {
		if _, ok := after[sym]; !ok {
			rep.Dropped = append(rep.Dropped, sym)
		}
	}
	for sym := range after {
		if _, ok := before[sym]; !ok {
			rep.Added = append(rep.Added, sym)
		}
	}
	sort.Strings(rep.Dropped)
	sort.Strings(rep.Added)

	for _, sym := range rep.Dropped {
		m.log.Warn().Str("symbol", sym).Msg("position closed outside the engine")
	}
	if len(rep.Added) > 0 {
		m.log.Info().Strs("symbols", rep.Added).Msg("new positions detected")
	}
	return rep, nil
}

// Snapshot returns a copy of the current view.
func (m *Mirror) Snapshot() map[string]Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyMap(m.positions)
}

// List returns the current view ordered by symbol.
func (m *Mirror) List() []Position {
	m.mu.RLock()
	res := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		res = append(res, p)
	}
	m.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].Symbol < res[j].Symbol })
	return res
}

// Get returns the position for symbol.
func (m *Mirror) Get(symbol string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[symbol]
	return p, ok
}

// Len returns the number of held positions.
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

func (m *Mirror) persist(ctx context.Context, positions map[string]Position) {
	if m.store == nil {
		return
	}
	rows := make([]db.Position, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, db.Position{
			Symbol:        p.Symbol,
			Side:          string(p.Side),
			Qty:           p.Quantity,
			EntryPrice:    p.EntryPrice,
			UnrealizedPnL: p.UnrealizedPnL,
			Leverage:      p.Leverage,
		})
	}
	if err := m.store.ReplacePositions(ctx, rows); err != nil {
		m.log.Error().Err(err).Msg("persist positions failed")
	}
}

func copyMap(in map[string]Position) map[string]Position {
	out := make(map[string]Position, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
