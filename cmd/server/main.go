package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/material-finder/internal/config"
	"github.com/JonMunkholm/material-finder/internal/core"
	"github.com/JonMunkholm/material-finder/internal/logging"
	"github.com/JonMunkholm/material-finder/internal/sheets"
	"github.com/JonMunkholm/material-finder/internal/snapshot"
	"github.com/JonMunkholm/material-finder/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"source_configured", cfg.Source.URL != "",
		"cache_duration", cfg.Cache.Duration.String(),
		"snapshots", cfg.Snapshot.Enabled(),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	if cfg.Source.URL == "" {
		slog.Warn("SHEET_URL is not set; searches will fail until it is configured")
	}

	filters, err := config.LoadFilters(cfg.Filters.File)
	if err != nil {
		slog.Error("failed to load filters", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	client := sheets.New(sheets.Config{
		URL:            cfg.Source.URL,
		UserAgent:      cfg.Source.UserAgent,
		RetryUserAgent: cfg.Source.RetryUserAgent,
		MaxBodySize:    cfg.Source.MaxBodySize,
	})

	storeCfg := core.StoreConfig{
		CacheDuration:  cfg.Cache.Duration,
		PrimaryTimeout: cfg.Source.Timeout,
		RetryTimeout:   cfg.Source.RetryTimeout,
	}

	// Snapshots are optional; without a database the cache lives in memory only.
	if cfg.Snapshot.Enabled() {
		pool, err := snapshot.Open(ctx, snapshot.PoolConfig{
			URL:            cfg.Snapshot.DatabaseURL,
			MaxConns:       cfg.Snapshot.MaxConns,
			ConnectTimeout: cfg.Snapshot.ConnectTimeout,
		})
		if err != nil {
			slog.Error("failed to open snapshot database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		snaps := snapshot.New(pool, cfg.Source.URL)
		if err := snaps.Migrate(ctx); err != nil {
			slog.Error("failed to prepare snapshot table", "error", err)
			os.Exit(1)
		}
		storeCfg.Snapshots = snaps
		storeCfg.SnapshotTimeout = cfg.Snapshot.QueryTimeout
	}

	store := core.NewStore(client, storeCfg)
	engine := core.NewEngine(store, config.FilterFields(filters))

	slog.Info("filters loaded",
		"count", len(filters),
		"enabled", len(core.EnabledFields(engine.Fields())),
	)

	server := web.NewServer(engine, store, client, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	if cfg.Cache.Warm && client.Configured() {
		go func() {
			if err := store.Warm(jobCtx); err != nil {
				slog.Warn("cache warm-up failed", "error", err)
			}
		}()
	}
	go store.StartRefresher(jobCtx, cfg.Cache.RefreshInterval)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := server.ProxyStatus(); status.Active > 0 {
			slog.Info("waiting for csv downloads to complete", "active", status.Active)
			if err := server.WaitForProxies(shutdownCtx); err != nil {
				slog.Warn("csv downloads did not complete in time", "error", err)
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	store.WaitForSnapshots()
	slog.Info("server stopped")
}
