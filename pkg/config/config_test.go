package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DRY_RUN", "true")
	t.Setenv("TRADING_MODE", "")
	t.Setenv("RESCAN_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TradingMode != "conservative" {
		t.Fatalf("TradingMode=%q, expected conservative", cfg.TradingMode)
	}
	if cfg.RescanInterval != 30*time.Second {
		t.Fatalf("RescanInterval=%v, expected 30s", cfg.RescanInterval)
	}
	if cfg.SizingHaircut != 0.05 {
		t.Fatalf("SizingHaircut=%v, expected 0.05", cfg.SizingHaircut)
	}
	if cfg.CapitalSource != "fixed" || cfg.CapitalReserve != 0.05 || cfg.BinanceTakerFee != 0.0004 {
		t.Fatalf("capital=%q reserve=%v fee=%v", cfg.CapitalSource, cfg.CapitalReserve, cfg.BinanceTakerFee)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DRY_RUN", "true")
	t.Setenv("TRADING_MODE", "Aggressive")
	t.Setenv("MAX_POSITIONS", "3")
	t.Setenv("WATCH_INTERVAL", "1500ms")
	t.Setenv("ACTIVE_STRATEGIES", "xgb_1h, rsi_div ,")
	t.Setenv("OVERRIDE_TTL", "6h")
	t.Setenv("CAPITAL_SOURCE", "Available")
	t.Setenv("CAPITAL_RESERVE", "0.1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TradingMode != "aggressive" || cfg.MaxPositions != 3 {
		t.Fatalf("unexpected mode/max: %q %d", cfg.TradingMode, cfg.MaxPositions)
	}
	if cfg.WatchInterval != 1500*time.Millisecond {
		t.Fatalf("WatchInterval=%v", cfg.WatchInterval)
	}
	if len(cfg.ActiveStrategies) != 2 || cfg.ActiveStrategies[1] != "rsi_div" {
		t.Fatalf("ActiveStrategies=%v", cfg.ActiveStrategies)
	}
	if cfg.OverrideTTL != 6*time.Hour {
		t.Fatalf("OverrideTTL=%v", cfg.OverrideTTL)
	}
	if cfg.CapitalSource != "available" || cfg.CapitalReserve != 0.1 {
		t.Fatalf("capital=%q reserve=%v", cfg.CapitalSource, cfg.CapitalReserve)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			TradingMode:    "conservative",
			TotalCapital:   1000,
			CapitalSource:  "fixed",
			MaxPositions:   5,
			Leverage:       3,
			SizingHaircut:  0.05,
			RescanInterval: time.Second,
			WatchInterval:  time.Second,
			DryRun:         true,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"mode", func(c *Config) { c.TradingMode = "yolo" }},
		{"capital", func(c *Config) { c.TotalCapital = 0 }},
		{"capital source", func(c *Config) { c.CapitalSource = "margin" }},
		{"capital reserve", func(c *Config) { c.CapitalReserve = 1 }},
		{"taker fee", func(c *Config) { c.BinanceTakerFee = -0.1 }},
		{"max positions", func(c *Config) { c.MaxPositions = 0 }},
		{"leverage", func(c *Config) { c.Leverage = 200 }},
		{"haircut", func(c *Config) { c.SizingHaircut = 1 }},
		{"live without keys", func(c *Config) { c.DryRun = false }},
		{"signal date", func(c *Config) { c.SignalDate = "18/10/2026" }},
	}

	ok := base()
	if err := ok.Validate(); err != nil {
		t.Fatalf("base config rejected: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			if err := c.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}
