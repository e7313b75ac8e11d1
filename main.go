package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/internal/api"
	"github.com/seokjunHwang/Quant/internal/balance"
	"github.com/seokjunHwang/Quant/internal/engine"
	"github.com/seokjunHwang/Quant/internal/events"
	"github.com/seokjunHwang/Quant/internal/ledger"
	"github.com/seokjunHwang/Quant/internal/monitor"
	"github.com/seokjunHwang/Quant/internal/override"
	"github.com/seokjunHwang/Quant/internal/persistence"
	"github.com/seokjunHwang/Quant/internal/precision"
	"github.com/seokjunHwang/Quant/internal/reconciliation"
	sig "github.com/seokjunHwang/Quant/internal/signal"
	"github.com/seokjunHwang/Quant/internal/sizing"
	"github.com/seokjunHwang/Quant/internal/state"
	"github.com/seokjunHwang/Quant/pkg/config"
	"github.com/seokjunHwang/Quant/pkg/db"
	exfutusdt "github.com/seokjunHwang/Quant/pkg/exchanges/binance/futures_usdt"
	exchange "github.com/seokjunHwang/Quant/pkg/exchanges/common"
	"github.com/seokjunHwang/Quant/pkg/exchanges/paper"
	"github.com/seokjunHwang/Quant/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load failed")
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	log.Info().Str("port", cfg.Port).Str("db", cfg.DBPath).Bool("dry_run", cfg.DryRun).Msg("starting auto-trader")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()
	metrics := monitor.NewMetrics(prometheus.NewRegistry())

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("db init failed")
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatal().Err(err).Msg("db migrations failed")
	}

	// Exchange selection
	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}
	binance := exfutusdt.NewClient(exfutusdt.Config{
		APIKey:    cfg.BinanceUSDTKey,
		APISecret: cfg.BinanceUSDTSecret,
		Testnet:   cfg.BinanceTestnet,
		TakerFee:  cfg.BinanceTakerFee,
	}, log)

	var ex exchange.Exchange
	var account balance.AccountSource
	venue := "binance-usdtfut"
	if cfg.BinanceTestnet {
		venue += "-testnet"
	}
	if cfg.DryRun {
		simulated := paper.New(binance, paper.Config{
			InitialBalance: cfg.DryRunInitialBalance,
			FeeRate:        cfg.DryRunFeeRate,
			SlippageBps:    cfg.DryRunSlippageBps,
		}, log)
		ex, account = simulated, simulated
		venue = "paper"
		log.Warn().Msg("DRY_RUN enabled: orders are simulated against live prices")
	} else {
		binance.StartTimeSync(ctx)
		ex, account = binance, binance
	}

	// Positions seeded from the last snapshot, then refreshed from the venue
	mirror := state.NewMirror(ex, database, log)
	if err := mirror.Load(ctx); err != nil {
		log.Error().Err(err).Msg("position snapshot load failed")
	}
	if _, err := mirror.Refresh(ctx); err != nil {
		log.Error().Err(err).Msg("initial position refresh failed; the first pass will retry")
	}
	metrics.Held(mirror.Len())

	symbolMap, err := sig.LoadSymbolMap(cfg.SymbolMapPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SymbolMapPath).Msg("symbol map load failed")
	}
	normalizer := sig.NewNormalizer(symbolMap, log)
	source := sig.NewSQLiteSource(database, log)

	specs := precision.NewCache(ex, log)
	sizer := sizing.NewSizer(specs, cfg.SizingHaircut)

	writer := persistence.NewBatchWriter(database.DB, 50, time.Second, log)
	trades := ledger.New(database, log)
	audit := ledger.NewAuditSink(writer, database, log)

	policy, err := reconciliation.PolicyByName(cfg.TradingMode)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid trading mode")
	}
	overrides := override.NewTracker(cfg.OverrideTTL)

	rec, err := reconciliation.New(reconciliation.Deps{
		Exchange:   ex,
		Mirror:     mirror,
		Sizer:      sizer,
		Normalizer: normalizer,
		Overrides:  overrides,
		Ledger:     trades,
		Audit:      audit,
		Bus:        bus,
		Metrics:    metrics,
		Log:        log,
	}, reconciliation.Params{
		Policy:       policy,
		TotalCapital: cfg.TotalCapital,
		MaxPositions: cfg.MaxPositions,
		Leverage:     cfg.Leverage,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("reconciliation engine init failed")
	}

	var capital engine.CapitalSource
	if cfg.CapitalSource == engine.CapitalAvailable {
		capital = balance.NewManager(account, cfg.CapitalReserve, log)
		log.Info().Float64("reserve", cfg.CapitalReserve).Msg("capital follows the available balance")
	}

	trader := engine.NewAutoTrader(engine.Config{
		Reconciler:     rec,
		Source:         source,
		Positions:      mirror,
		Overrides:      overrides,
		Trades:         trades,
		Audit:          audit,
		Bus:            bus,
		Capital:        capital,
		Strategies:     cfg.ActiveStrategies,
		SignalDate:     cfg.SignalDate,
		RescanInterval: cfg.RescanInterval,
		WatchInterval:  cfg.WatchInterval,
		Meta:           engine.Meta{Venue: venue, DryRun: cfg.DryRun, Version: buildVersion},
		Log:            log,
	})

	// Operator alerts for failed orders and start/stop
	mon := &monitor.Monitor{Bus: bus, Sink: monitor.LogSink{Log: log}, Log: log}
	mon.Start(ctx)

	if cfg.AutoStart {
		if err := trader.Start(ctx); err != nil {
			log.Error().Err(err).Msg("auto start failed")
		}
	}

	server := api.NewServer(trader, bus, metrics, api.Auth{
		JWTSecret:         cfg.JWTSecret,
		AdminPasswordHash: cfg.AdminPasswordHash,
	}, log)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("api listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("api server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api shutdown failed")
	}
	if err := trader.Stop(); err != nil && !errors.Is(err, engine.ErrNotRunning) {
		log.Error().Err(err).Msg("auto-trader stop failed")
	}
	if err := writer.Close(); err != nil {
		log.Error().Err(err).Msg("audit writer flush failed")
	}
	cancel()
	log.Info().Msg("bye")
}
