package reconciliation

import (
	"fmt"
	"strings"

	"github.com/seokjunHwang/Quant/internal/signal"
	"github.com/seokjunHwang/Quant/internal/state"
)

// ConflictAction is what happens to a held position whose signal points the other way.
type ConflictAction string

const (
	CloseOnly ConflictAction = "CLOSE_ONLY"
	Flip      ConflictAction = "FLIP"
)

// Policy is the trading-mode toggle expressed as data.
type Policy struct {
	Name            string         `json:"name"`
	AllowShortEntry bool           `json:"allow_short_entry"`
	ConflictAction  ConflictAction `json:"conflict_action"`
}

var (
	Conservative = Policy{Name: "conservative", AllowShortEntry: false, ConflictAction: CloseOnly}
	Aggressive   = Policy{Name: "aggressive", AllowShortEntry: true, ConflictAction: Flip}
)

// PolicyByName resolves a configured trading mode.
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Conservative.Name:
		return Conservative, nil
	case Aggressive.Name:
		return Aggressive, nil
	}
	return Policy{}, fmt.Errorf("unknown trading mode %q", name)
}

// allowsEntry reports whether a new position in direction t may be opened.
func (p Policy) allowsEntry(t signal.Type) bool {
	switch t {
	case signal.Long:
		return true
	case signal.Short:
		return p.AllowShortEntry
	}
	return false
}

// flips reports whether a conflict on held should reopen in direction t after closing.
func (p Policy) flips(t signal.Type) bool {
	return p.ConflictAction == Flip && p.allowsEntry(t)
}

// conflicts reports whether sig asks for the opposite side of held.
func conflicts(held state.Side, t signal.Type) bool {
	switch t {
	case signal.Long:
		return held == state.Short
	case signal.Short:
		return held == state.Long
	}
	return false
}
