package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/internal/precision"
	"github.com/seokjunHwang/Quant/pkg/config"
	exfutusdt "github.com/seokjunHwang/Quant/pkg/exchanges/binance/futures_usdt"
	"github.com/seokjunHwang/Quant/pkg/logging"
)

// trading_api_check verifies that the USDT-M futures client can reach the
// account with the configured keys. It only reads, unless
// TRADING_CHECK_SET_LEVERAGE=true, in which case it also sets LEVERAGE on
// CHECK_USDT_SYMBOL (default BTCUSDT).
//
// Usage:
//
//	go run ./scripts/trading_api_check
func main() {
	log := logging.New(logging.Config{Level: "debug"})
	log.Info().Msg("trading API check starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	if cfg.BinanceUSDTKey == "" || cfg.BinanceUSDTSecret == "" {
		log.Fatal().Msg("BINANCE_USDT_KEY/SECRET empty, nothing to check")
	}

	symbol := getenv("CHECK_USDT_SYMBOL", "BTCUSDT")
	setLeverage := getenv("TRADING_CHECK_SET_LEVERAGE", "false") == "true"

	client := exfutusdt.NewClient(exfutusdt.Config{
		APIKey:    cfg.BinanceUSDTKey,
		APISecret: cfg.BinanceUSDTSecret,
		Testnet:   cfg.BinanceTestnet,
	}, log)

	check(log, "server time", func(ctx context.Context) error {
		ts, err := client.GetServerTime(ctx)
		if err == nil {
			log.Info().Time("server", time.UnixMilli(ts)).Dur("skew", time.Since(time.UnixMilli(ts))).Msg("server time")
		}
		return err
	})
	check(log, "positions", func(ctx context.Context) error {
		positions, err := client.Positions(ctx)
		for _, p := range positions {
			log.Info().Str("symbol", p.Symbol).Float64("amount", p.Amount).Float64("entry", p.EntryPrice).Int("leverage", p.Leverage).Msg("position")
		}
		return err
	})
	check(log, "open orders", func(ctx context.Context) error {
		orders, err := client.OpenOrders(ctx, symbol)
		if err == nil {
			log.Info().Str("symbol", symbol).Int("count", len(orders)).Msg("open orders")
		}
		return err
	})
	check(log, "symbol rules", func(ctx context.Context) error {
		spec := precision.NewCache(client, log).Get(ctx, symbol)
		log.Info().
			Str("symbol", symbol).
			Int("qty_decimals", spec.QuantityDecimals).
			Int("price_decimals", spec.PriceDecimals).
			Float64("min_qty", spec.MinQuantity).
			Float64("min_notional", spec.MinNotional).
			Bool("known", spec.Known).
			Msg("precision")
		return nil
	})
	check(log, "ticker", func(ctx context.Context) error {
		price, err := client.TickerPrice(ctx, symbol)
		if err == nil {
			log.Info().Str("symbol", symbol).Float64("price", price).Msg("ticker")
		}
		return err
	})

	if setLeverage {
		check(log, "set leverage", func(ctx context.Context) error {
			return client.SetLeverage(ctx, symbol, cfg.Leverage)
		})
	} else {
		log.Info().Msg("skip leverage change (TRADING_CHECK_SET_LEVERAGE=false)")
	}

	log.Info().Msg("trading API check finished")
}

func check(log zerolog.Logger, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error().Err(err).Str("check", name).Msg("failed")
		return
	}
	log.Info().Str("check", name).Msg("ok")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
