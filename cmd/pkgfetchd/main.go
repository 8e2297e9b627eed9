package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/quarryos/pkgfetch/internal/adapter/blobstore"
	"github.com/quarryos/pkgfetch/internal/adapter/repoclient"
	"github.com/quarryos/pkgfetch/internal/adapter/sqlite"
	"github.com/quarryos/pkgfetch/internal/config"
	"github.com/quarryos/pkgfetch/internal/domain"
	"github.com/quarryos/pkgfetch/internal/logger"
	"github.com/quarryos/pkgfetch/internal/service/fetcher"
	"github.com/quarryos/pkgfetch/internal/service/installer"
	"github.com/quarryos/pkgfetch/internal/service/server"
	"go.uber.org/zap"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting pkgfetchd",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Open the telemetry database and seed the mirror stats table.
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = filepath.Join(cfg.Store.RootDir, "telemetry.db")
	}
	statsStore, err := sqlite.Open(dbPath)
	if err != nil {
		log.Fatal("failed to open telemetry database", zap.Error(err), zap.String("path", dbPath))
	}
	defer statsStore.Close()

	stats := domain.NewStatsTable()
	persisted, err := statsStore.Load()
	if err != nil {
		log.Warn("failed to load persisted mirror stats", zap.Error(err))
	} else {
		stats.Restore(persisted)
	}

	store, err := blobstore.New(cfg.Store.RootDir, log)
	if err != nil {
		log.Fatal("failed to create blob store", zap.Error(err))
	}

	mirrors := make([]domain.MirrorDescriptor, 0, len(cfg.Mirrors))
	for _, m := range cfg.Mirrors {
		mirrors = append(mirrors, domain.MirrorDescriptor{BlobBaseURL: m.BlobBaseURL})
	}

	httpClient := &http.Client{}

	fetcherCfg := &fetcher.Config{
		MaxConcurrency: cfg.Fetch.MaxConcurrency,
		MaxAttempts:    cfg.Fetch.MaxAttempts,
		RetryDelay:     cfg.Fetch.GetRetryDelay(),
	}
	fetchService := fetcher.New(fetcherCfg, httpClient, store, stats, nil, log)
	queue := fetchService.NewQueue()

	resolver := repoclient.New(cfg.Repository.BaseURL, httpClient, log)
	installService := installer.New(resolver, store, queue, mirrors, log)

	serverCfg := &server.Config{
		BindAddr:     cfg.HTTP.BindAddr,
		ReadTimeout:  cfg.HTTP.GetReadTimeout(),
		WriteTimeout: cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:  cfg.HTTP.GetIdleTimeout(),
	}
	httpServer := server.New(serverCfg, installService, stats, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go queue.Start(ctx)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Periodically persist mirror stats.
	go func() {
		ticker := time.NewTicker(cfg.Database.GetFlushInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := statsStore.Save(stats.Snapshot()); err != nil {
					log.Error("failed to persist mirror stats", zap.Error(err))
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Info("pkgfetchd started",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("store_dir", cfg.Store.RootDir),
		zap.Int("mirrors", len(mirrors)),
	)
	<-sigChan

	log.Info("shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	if err := statsStore.Save(stats.Snapshot()); err != nil {
		log.Error("failed to persist mirror stats on shutdown", zap.Error(err))
	}

	log.Info("pkgfetchd stopped")
}
