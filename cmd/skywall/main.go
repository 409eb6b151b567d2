package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/astraldesk/skywall/internal/adapter/archive"
	"github.com/astraldesk/skywall/internal/adapter/filesystem"
	"github.com/astraldesk/skywall/internal/adapter/sqlite"
	"github.com/astraldesk/skywall/internal/adapter/wallpaper"
	"github.com/astraldesk/skywall/internal/config"
	"github.com/astraldesk/skywall/internal/domain/event"
	"github.com/astraldesk/skywall/internal/logger"
	"github.com/astraldesk/skywall/internal/metrics"
	"github.com/astraldesk/skywall/internal/port"
	"github.com/astraldesk/skywall/internal/service/fetcher"
	"github.com/astraldesk/skywall/internal/service/maintenance"
	"github.com/astraldesk/skywall/internal/service/rotation"
	"github.com/astraldesk/skywall/internal/service/scheduler"
	"github.com/astraldesk/skywall/internal/service/server"
	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const version = "0.1.0"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	zapLogger, err := logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	zapLogger.Info("starting skywall",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Initialize image cache
	blobs, err := filesystem.NewCache(cfg.Cache.RootDir)
	if err != nil {
		zapLogger.Fatal("failed to create image cache", zap.Error(err))
	}

	// Open database
	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		zapLogger.Fatal("failed to open database", zap.Error(err), zap.String("path", cfg.Database.Path))
	}
	defer store.Close()

	// Create archive client
	archiveClient, err := archive.NewClient(cfg.Archive.BaseURL, &archive.ClientConfig{
		UserAgent:         cfg.Archive.UserAgent,
		RequestTimeout:    cfg.Archive.GetRequestTimeout(),
		RequestsPerSecond: cfg.Archive.RequestsPerSecond,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to create archive client", zap.Error(err))
	}

	// Create wallpaper applier
	var applier port.Applier
	if cfg.Apply.Command != "" {
		applier, err = wallpaper.NewCommandApplier(cfg.Apply.Command, zapLogger)
		if err != nil {
			zapLogger.Fatal("invalid apply command", zap.Error(err))
		}
	} else {
		zapLogger.Warn("no apply command configured, selections will not reach the desktop")
		applier = wallpaper.NewNullApplier(zapLogger)
	}

	// Create metrics and event plumbing
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	events := event.NewInMemoryDispatcher(true)
	events.Subscribe(event.NewLoggingHandler(zapLogger))

	// Create fetcher
	fetcherCfg := &fetcher.Config{
		SyncInterval:    cfg.Sync.GetInterval(),
		DownloadTimeout: cfg.Sync.GetDownloadTimeout(),
		MaxRetries:      cfg.Sync.MaxRetries,
		RetryInterval:   cfg.Sync.GetRetryInterval(),
		MaxImageBytes:   cfg.Sync.MaxImageBytes(),
	}
	fetcherService := fetcher.New(fetcherCfg, archiveClient, store, store, blobs, events, collector, zapLogger)

	// Create rotation engine
	engine := rotation.New(store, store, fetcherService, collector, zapLogger)

	// Create orchestrator
	orchestratorCfg := &scheduler.Config{
		TickTimeout:   cfg.Rotation.GetTickTimeout(),
		PrefetchCount: cfg.Sync.PrefetchCount,
	}
	orchestrator := scheduler.New(orchestratorCfg, engine, fetcherService, applier, events, collector, zapLogger)

	// Create maintenance service
	maintenanceCfg := &maintenance.Config{
		Interval:      cfg.Cache.GetJanitorInterval(),
		PartMaxAge:    cfg.Cache.GetPartMaxAge(),
		MaxCacheBytes: cfg.Cache.MaxSizeBytes(),
		MinFreeBytes:  cfg.Cache.MinFreeBytes(),
	}
	maintenanceService := maintenance.New(maintenanceCfg, store, store, blobs, orchestrator, events, collector, zapLogger)

	// Create HTTP server
	serverCfg := &server.Config{
		BindAddr:      cfg.HTTP.BindAddr,
		AdminUsername: cfg.HTTP.AdminUsername,
		AdminPassword: cfg.HTTP.AdminPassword,
		ReadTimeout:   cfg.HTTP.GetReadTimeout(),
		WriteTimeout:  cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:   cfg.HTTP.GetIdleTimeout(),
	}
	httpServer := server.New(serverCfg, store, orchestrator, fetcherService, registry, zapLogger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start HTTP server
	go func() {
		if err := httpServer.Start(); err != nil {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Start rotation before the fetcher so the orchestrator is subscribed
	// when the initial catalog sync announces itself
	if err := orchestrator.Start(ctx, cfg.ScreenConfigs()); err != nil {
		zapLogger.Fatal("failed to start rotation", zap.Error(err))
	}

	// Start fetcher
	go func() {
		if err := fetcherService.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("fetcher stopped with error", zap.Error(err))
		}
	}()

	// Start maintenance service
	go func() {
		if err := maintenanceService.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("maintenance service stopped with error", zap.Error(err))
		}
	}()

	// Watch the configuration file and republish the screen list on change.
	// An edit that fails validation is ignored and the running set stands.
	viper.OnConfigChange(func(_ fsnotify.Event) {
		updated, err := config.Reload()
		if err != nil {
			zapLogger.Error("ignoring invalid configuration change", zap.Error(err))
			return
		}
		zapLogger.Info("configuration reloaded", zap.Int("screens", len(updated.Screens)))
		events.Dispatch(event.NewConfigUpdated(updated.ScreenConfigs()))
	})
	viper.WatchConfig()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	zapLogger.Info("application started successfully",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("cache_dir", cfg.Cache.RootDir),
		zap.Int("screens", len(cfg.Screens)),
	)
	<-sigChan

	zapLogger.Info("shutdown signal received, stopping services...")

	// Cancel context to stop the sync and janitor loops
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop rotation first so nothing selects against a closing store
	orchestrator.Stop()
	fetcherService.Stop()
	maintenanceService.Stop()

	// Stop HTTP server
	if err := httpServer.Stop(shutdownCtx); err != nil {
		zapLogger.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	zapLogger.Info("application stopped successfully")
}
