package engine

import (
	"time"

	"github.com/seokjunHwang/Quant/internal/balance"
	"github.com/seokjunHwang/Quant/internal/monitor"
	"github.com/seokjunHwang/Quant/internal/reconciliation"
)

// Meta describes the deployment for status displays.
type Meta struct {
	Venue   string `json:"venue"`
	DryRun  bool   `json:"dry_run"`
	Version string `json:"version"`
}

// Status represents the auto-trader runtime status.
type Status struct {
	Meta
	Active     bool                       `json:"active"`
	Mode       string                     `json:"mode"`
	StartedAt  *time.Time                 `json:"started_at,omitempty"`
	PassActive bool                       `json:"pass_active"`
	Passes     int64                      `json:"passes"`
	Held       int                        `json:"held"`
	Overrides  int                        `json:"overrides"`
	Params     reconciliation.Params      `json:"params"`
	Capital    string                     `json:"capital_source"`
	Balance    *balance.Snapshot          `json:"balance,omitempty"`
	LastPass   *reconciliation.PassReport `json:"last_pass,omitempty"`
	Runtime    monitor.RuntimeSnapshot    `json:"runtime"`
	ServerTime time.Time                  `json:"server_time"`
}

// ParamsUpdate is a partial parameter change. Nil fields keep their value.
type ParamsUpdate struct {
	Mode         *string  `json:"mode"`
	TotalCapital *float64 `json:"total_capital"`
	MaxPositions *int     `json:"max_positions"`
	Leverage     *int     `json:"leverage"`
}

// Apply returns p with the update applied.
func (u ParamsUpdate) Apply(p reconciliation.Params) (reconciliation.Params, error) {
	if u.Mode != nil {
		policy, err := reconciliation.PolicyByName(*u.Mode)
		if err != nil {
			return p, err
		}
		p.Policy = policy
	}
	if u.TotalCapital != nil {
		p.TotalCapital = *u.TotalCapital
	}
	if u.MaxPositions != nil {
		p.MaxPositions = *u.MaxPositions
	}
	if u.Leverage != nil {
		p.Leverage = *u.Leverage
	}
	return p, p.Validate()
}
