package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"index-signal-engine/config"
	"index-signal-engine/internal/api"
	"index-signal-engine/internal/combiner"
	"index-signal-engine/internal/events"
	"index-signal-engine/internal/generator"
	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/levels"
	"index-signal-engine/internal/logging"
	"index-signal-engine/internal/market"
	"index-signal-engine/internal/monitoring"
	"index-signal-engine/internal/regime"
	"index-signal-engine/internal/session"
	"index-signal-engine/internal/store"
	"index-signal-engine/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(cfg.LoggingConfig)
	logger.Info().
		Strs("symbols", cfg.EngineConfig.Symbols).
		Strs("timeframes", cfg.EngineConfig.Timeframes).
		Msg("starting signal engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.New(promRegistry)

	clock := session.SystemClock{}
	calendar, err := session.NewCalendar(clock, cfg.SessionConfig.VenueBySymbol)
	if err != nil {
		logger.Fatal().Err(err).Msg("session calendar setup failed")
	}

	var source market.CandleSource = market.NewMockSource()
	source = market.NewRateLimitedSource(source, cfg.EngineConfig.FetchRatePerSecond, cfg.EngineConfig.FetchBurst)
	if cfg.RedisConfig.Enabled {
		cached, err := market.NewCachedSource(source, cfg.RedisConfig, logging.Component(logger, "cache"))
		if err != nil {
			logger.Fatal().Err(err).Msg("redis cache setup failed")
		}
		defer cached.Close()
		source = cached
		logger.Info().Str("address", cfg.RedisConfig.Address).Msg("candle cache enabled")
	}

	var signalStore store.SignalStore
	if cfg.DatabaseConfig.Enabled {
		pg, err := store.NewPostgresStore(cfg.DatabaseConfig, logging.Component(logger, "store"))
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres setup failed")
		}
		signalStore = pg
		logger.Info().Str("database", cfg.DatabaseConfig.Database).Msg("postgres signal store ready")
	} else {
		signalStore = store.NewMemoryStore()
		logger.Warn().Msg("database disabled, signals are held in memory only")
	}
	defer signalStore.Close()

	bus := events.NewBus()
	registry := indicators.NewDefaultRegistry()

	gen := generator.New(
		cfg,
		source,
		signalStore,
		registry,
		regime.NewDetector(),
		combiner.New(registry, 2),
		levels.NewCalculator(cfg.EngineConfig.StopMultiplier, cfg.EngineConfig.MinStopPercent, cfg.EngineConfig.RiskRewardFloor),
		bus,
		metrics,
		clock,
		logging.Component(logger, "generator"),
	)
	trk := tracker.New(
		cfg,
		source,
		signalStore,
		calendar,
		bus,
		metrics,
		clock,
		logging.Component(logger, "tracker"),
	)

	go gen.Run(ctx)
	go trk.Run(ctx)

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(cfg.ServerConfig, signalStore, bus, promRegistry, logging.Component(logger, "api"))
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("ops server failed")
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("shutdown requested")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("ops server shutdown failed")
		}
	}

	logger.Info().Msg("signal engine stopped")
}
