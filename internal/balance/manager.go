// Package balance derives the sizing capital from the account's available margin.
package balance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// MinAvailable is the smallest available balance worth trading with, in USDT.
	MinAvailable = 10.0
	// DefaultReserve is the share of the available balance left untouched.
	DefaultReserve = 0.05
)

var ErrInsufficient = errors.New("available balance below minimum")

// AccountSource reads the free margin of the futures account.
type AccountSource interface {
	AvailableBalance(ctx context.Context) (float64, error)
}

// Snapshot is the result of the last successful Sync.
type Snapshot struct {
	Available float64   `json:"available"`
	Capital   float64   `json:"capital"`
	SyncedAt  time.Time `json:"synced_at"`
}

// Manager turns the account's available balance into a capital figure.
type Manager struct {
	src     AccountSource
	reserve float64
	now     func() time.Time
	log     zerolog.Logger

	mu   sync.RWMutex
	last Snapshot
}

func NewManager(src AccountSource, reserve float64, log zerolog.Logger) *Manager {
	if reserve < 0 || reserve >= 1 {
		reserve = DefaultReserve
	}
	return &Manager{
		src:     src,
		reserve: reserve,
		now:     time.Now,
		log:     log.With().Str("component", "balance").Logger(),
	}
}

// Sync fetches the available balance and keeps (1-reserve) of it as capital.
// A balance at or under MinAvailable fails with ErrInsufficient and leaves
// the previous snapshot in place.
func (m *Manager) Sync(ctx context.Context) (Snapshot, error) {
	avail, err := m.src.AvailableBalance(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("available balance: %w", err)
	}
	if avail <= MinAvailable {
		return Snapshot{}, fmt.Errorf("%w: %.2f USDT (need more than %.2f)", ErrInsufficient, avail, MinAvailable)
	}

	snap := Snapshot{
		Available: avail,
		Capital:   avail * (1 - m.reserve),
		SyncedAt:  m.now().UTC(),
	}
	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()

	m.log.Info().
		Float64("available", snap.Available).
		Float64("capital", snap.Capital).
		Float64("reserve", m.reserve).
		Msg("balance synced")
	return snap, nil
}

// Last returns the most recent snapshot; zero before the first Sync.
func (m *Manager) Last() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
