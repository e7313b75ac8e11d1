// Package signal models trading signals, maps their symbols onto tradable
// contracts, and reads them from the signal store.
package signal

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Type is the directional intent of a signal.
type Type string

const (
	Long  Type = "LONG"
	Short Type = "SHORT"
	Hold  Type = "HOLD"
)

// ParseType accepts LONG/SHORT/HOLD, BUY/SELL, and the model label encoding 0=SELL 1=HOLD 2=BUY.
func ParseType(raw string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LONG", "BUY", "2":
		return Long, nil
	case "SHORT", "SELL", "0":
		return Short, nil
	case "HOLD", "NEUTRAL", "1":
		return Hold, nil
	}
	return "", fmt.Errorf("unknown signal type %q", raw)
}

// Signal is one strategy's latest intent for a symbol.
type Signal struct {
	ID         int64     `json:"id"`
	Strategy   string    `json:"strategy"`
	Symbol     string    `json:"symbol"`
	Type       Type      `json:"signal_type"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// newer reports whether a should win over b for the same symbol.
func newer(a, b Signal) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if a.ID != b.ID {
		return a.ID > b.ID
	}
	return a.Type > b.Type
}

// Collapse keeps the most recent signal per symbol. The result is sorted by
// symbol and does not depend on input order.
func Collapse(in []Signal) []Signal {
	latest := make(map[string]Signal, len(in))
	for _, s := range in {
		cur, ok := latest[s.Symbol]
		if !ok || newer(s, cur) {
			latest[s.Symbol] = s
		}
	}
	out := make([]Signal, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// RankByConfidence orders signals by confidence descending, then symbol.
func RankByConfidence(in []Signal) []Signal {
	out := append([]Signal(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
