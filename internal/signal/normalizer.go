package signal

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const quoteAsset = "USDT"

// SymbolMap is the alias table and exclusion set used by the Normalizer.
type SymbolMap struct {
	Aliases map[string]string `yaml:"aliases"`
	Exclude []string          `yaml:"exclude"`
}

// DefaultSymbolMap covers wrapped assets, renamed contracts, and the
// 1000x-denominated perpetuals.
func DefaultSymbolMap() SymbolMap {
	return SymbolMap{
		Aliases: map[string]string{
			"WBTCUSDT":  "BTCUSDT",
			"BTCBUSDT":  "BTCUSDT",
			"WETHUSDT":  "ETHUSDT",
			"BETHUSDT":  "ETHUSDT",
			"MATICUSDT": "POLUSDT",
			"SHIBUSDT":  "1000SHIBUSDT",
			"PEPEUSDT":  "1000PEPEUSDT",
			"BONKUSDT":  "1000BONKUSDT",
			"FLOKIUSDT": "1000FLOKIUSDT",
			"LUNCUSDT":  "1000LUNCUSDT",
			"XECUSDT":   "1000XECUSDT",
		},
		Exclude: []string{
			"USDCUSDT", "FDUSDUSDT", "TUSDUSDT", "BUSDUSDT", "DAIUSDT", "USDPUSDT",
		},
	}
}

// LoadSymbolMap reads a YAML symbol map and merges it over the defaults.
// A missing file yields the defaults.
func LoadSymbolMap(path string) (SymbolMap, error) {
	base := DefaultSymbolMap()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return base, nil
	}
	if err != nil {
		return base, err
	}

	var file SymbolMap
	if err := yaml.Unmarshal(data, &file); err != nil {
		return base, fmt.Errorf("parse symbol map %s: %w", path, err)
	}
	for from, to := range file.Aliases {
		base.Aliases[strings.ToUpper(from)] = strings.ToUpper(to)
	}
	base.Exclude = append(base.Exclude, file.Exclude...)
	return base, nil
}

// Normalizer maps raw signal symbols onto tradable USDT-M perpetuals.
type Normalizer struct {
	aliases map[string]string
	exclude map[string]struct{}
	log     zerolog.Logger
}

func NewNormalizer(m SymbolMap, log zerolog.Logger) *Normalizer {
	n := &Normalizer{
		aliases: make(map[string]string, len(m.Aliases)),
		exclude: make(map[string]struct{}, len(m.Exclude)),
		log:     log.With().Str("component", "normalizer").Logger(),
	}
	for from, to := range m.Aliases {
		n.aliases[strings.ToUpper(from)] = strings.ToUpper(to)
	}
	for _, s := range m.Exclude {
		n.exclude[strings.ToUpper(s)] = struct{}{}
	}
	return n
}

// Normalize returns the tradable symbol for raw, or false when there is none.
func (n *Normalizer) Normalize(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer("/", "", "-", "", "_", "", ":", "").Replace(s)
	s = strings.TrimSuffix(s, "PERP")
	if s == "" {
		return "", false
	}

	switch {
	case strings.HasSuffix(s, quoteAsset):
	case strings.HasSuffix(s, "BUSD"), strings.HasSuffix(s, "USDC"):
		s = s[:len(s)-4] + quoteAsset
	default:
		s += quoteAsset
	}
	if s == quoteAsset {
		return "", false
	}

	if to, ok := n.aliases[s]; ok {
		s = to
	}
	if _, ok := n.exclude[s]; ok {
		n.log.Info().Str("raw", raw).Str("symbol", s).Msg("signal symbol has no tradable contract, dropped")
		return "", false
	}
	return s, true
}

// NormalizeBatch maps every symbol, drops the unmapped ones, and collapses duplicates.
func (n *Normalizer) NormalizeBatch(in []Signal) []Signal {
	out := make([]Signal, 0, len(in))
	for _, s := range in {
		sym, ok := n.Normalize(s.Symbol)
		if !ok {
			continue
		}
		s.Symbol = sym
		out = append(out, s)
	}
	return Collapse(out)
}
