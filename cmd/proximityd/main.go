package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/civicwatch/incident-proximity-service/internal/adapter/http"
	kafkaadapter "github.com/civicwatch/incident-proximity-service/internal/adapter/kafka"
	"github.com/civicwatch/incident-proximity-service/internal/config"
	"github.com/civicwatch/incident-proximity-service/internal/engine"
	"github.com/civicwatch/incident-proximity-service/internal/location"
	"github.com/civicwatch/incident-proximity-service/internal/notify"
	"github.com/civicwatch/incident-proximity-service/internal/observability"
	"github.com/civicwatch/incident-proximity-service/internal/store"
	"github.com/civicwatch/incident-proximity-service/internal/zones"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Key-value store: Postgres when configured, in-memory otherwise.
	var kv store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		kv = pg
		logger.Info("using postgres store")
	} else {
		kv = store.NewMemoryStore()
		logger.Info("using in-memory store", "hint", "set DATABASE_URL for persistence")
	}

	devices := location.NewDeviceSource(clock, cfg.FixStaleness)
	provider := location.NewProvider(
		location.NewCache(kv, clock, cfg.LocationTTL),
		location.NewPermissionTracker(kv),
		devices,
		clock,
		cfg.FixTimeout,
		cfg.DefaultLocation,
		logger,
		metrics,
	)

	zoneStore := zones.NewStore(kv, clock)
	settings := notify.NewSettingsStore(kv)
	matcher := notify.NewMatcher(zoneStore)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	e := engine.New(reader, writer, zoneStore, settings, matcher, clock, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg, httpadapter.Deps{
		Ready:    e,
		Provider: provider,
		Devices:  devices,
		Zones:    zoneStore,
		Settings: settings,
		Matcher:  matcher,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start evaluation engine.
	go func() {
		if err := e.Run(ctx); err != nil {
			logger.Error("engine error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
