package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config holds environment-driven settings for the auto-trader.
type Config struct {
	Port string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string

	// Binance Futures (USDT)
	BinanceTestnet    bool
	BinanceUSDTKey    string
	BinanceUSDTSecret string
	BinanceTakerFee   float64 // used when fill commissions cannot be read

	// Execution
	DryRun               bool
	DryRunInitialBalance float64
	DryRunFeeRate        float64 // decimal (e.g. 0.0004 = 4 bps)
	DryRunSlippageBps    float64

	// Database
	DBPath string

	// Auto-trading
	TradingMode      string // "conservative" or "aggressive"
	TotalCapital     float64
	CapitalSource    string  // "fixed" uses TotalCapital, "available" reads the account balance
	CapitalReserve   float64 // share of the available balance held back
	MaxPositions     int
	Leverage         int
	SizingHaircut    float64 // fraction of each slot held back for rounding/slippage
	RescanInterval   time.Duration
	WatchInterval    time.Duration
	ActiveStrategies []string
	SignalDate       string // YYYY-MM-DD, empty means "today" at each poll
	SymbolMapPath    string
	OverrideTTL      time.Duration // 0 keeps manual overrides until the next start
	AutoStart        bool

	// Auth
	JWTSecret         string
	AdminPasswordHash string // bcrypt hash
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "console"),
		LogFile:              os.Getenv("LOG_FILE"),
		BinanceTestnet:       getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceUSDTKey:       os.Getenv("BINANCE_USDT_KEY"),
		BinanceUSDTSecret:    os.Getenv("BINANCE_USDT_SECRET"),
		BinanceTakerFee:      getEnvFloat("BINANCE_TAKER_FEE", 0.0004),
		DryRun:               getEnv("DRY_RUN", "true") == "true",
		DryRunInitialBalance: getEnvFloat("DRY_RUN_INITIAL_BALANCE", 10000.0),
		DryRunFeeRate:        getEnvFloat("DRY_RUN_FEE_RATE", 0.0004),
		DryRunSlippageBps:    getEnvFloat("DRY_RUN_SLIPPAGE_BPS", 2),
		DBPath:               getEnv("DB_PATH", "./data/autotrader.db"),
		TradingMode:          strings.ToLower(getEnv("TRADING_MODE", "conservative")),
		TotalCapital:         getEnvFloat("TOTAL_CAPITAL", 1000),
		CapitalSource:        strings.ToLower(getEnv("CAPITAL_SOURCE", "fixed")),
		CapitalReserve:       getEnvFloat("CAPITAL_RESERVE", 0.05),
		MaxPositions:         getEnvInt("MAX_POSITIONS", 5),
		Leverage:             getEnvInt("LEVERAGE", 3),
		SizingHaircut:        getEnvFloat("SIZING_HAIRCUT", 0.05),
		RescanInterval:       getEnvDuration("RESCAN_INTERVAL", 30*time.Second),
		WatchInterval:        getEnvDuration("WATCH_INTERVAL", 3*time.Second),
		ActiveStrategies:     splitAndTrim(getEnv("ACTIVE_STRATEGIES", "")),
		SignalDate:           os.Getenv("SIGNAL_DATE"),
		SymbolMapPath:        getEnv("SYMBOL_MAP_PATH", "symbols.yaml"),
		OverrideTTL:          getEnvDuration("OVERRIDE_TTL", 0),
		AutoStart:            getEnv("AUTO_START", "false") == "true",
		JWTSecret:            getEnv("JWT_SECRET", "dev-secret"),
		AdminPasswordHash:    os.Getenv("ADMIN_PASSWORD_HASH"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the trading parameters that would otherwise fail deep inside a pass.
func (c *Config) Validate() error {
	switch {
	case c.TradingMode != "conservative" && c.TradingMode != "aggressive":
		return fmt.Errorf("%w: TRADING_MODE must be conservative or aggressive, got %q", ErrInvalid, c.TradingMode)
	case c.TotalCapital <= 0:
		return fmt.Errorf("%w: TOTAL_CAPITAL must be positive", ErrInvalid)
	case c.CapitalSource != "fixed" && c.CapitalSource != "available":
		return fmt.Errorf("%w: CAPITAL_SOURCE must be fixed or available, got %q", ErrInvalid, c.CapitalSource)
	case c.CapitalReserve < 0 || c.CapitalReserve >= 1:
		return fmt.Errorf("%w: CAPITAL_RESERVE must be within [0,1)", ErrInvalid)
	case c.BinanceTakerFee < 0:
		return fmt.Errorf("%w: BINANCE_TAKER_FEE must not be negative", ErrInvalid)
	case c.MaxPositions <= 0:
		return fmt.Errorf("%w: MAX_POSITIONS must be positive", ErrInvalid)
	case c.Leverage < 1 || c.Leverage > 125:
		return fmt.Errorf("%w: LEVERAGE must be within 1..125", ErrInvalid)
	case c.SizingHaircut < 0 || c.SizingHaircut >= 1:
		return fmt.Errorf("%w: SIZING_HAIRCUT must be within [0,1)", ErrInvalid)
	case c.RescanInterval <= 0 || c.WatchInterval <= 0:
		return fmt.Errorf("%w: poll intervals must be positive", ErrInvalid)
	case !c.DryRun && (c.BinanceUSDTKey == "" || c.BinanceUSDTSecret == ""):
		return fmt.Errorf("%w: BINANCE_USDT_KEY/SECRET required when DRY_RUN=false", ErrInvalid)
	}
	if c.SignalDate != "" {
		if _, err := time.Parse("2006-01-02", c.SignalDate); err != nil {
			return fmt.Errorf("%w: SIGNAL_DATE: %v", ErrInvalid, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
