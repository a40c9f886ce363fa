// Command scanner runs the geodata harvesting fleet: it discovers regions,
// dispatches a worker pool of game-client sessions against them, persists
// progress to PostgreSQL, and optionally serves the editor/dashboard HTTP
// API over the same process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/la2geo/geoharvest/internal/config"
	"github.com/la2geo/geoharvest/internal/coordinator"
	"github.com/la2geo/geoharvest/internal/harvester"
	"github.com/la2geo/geoharvest/internal/httpapi"
)

func main() {
	if err := run(); err != nil {
		slog.Error("scanner exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadScanner(config.ConfigPath("scanner.yaml"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	configureLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := coordinator.NewStore(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer store.Close()

	if err := coordinator.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	registry := coordinator.New(store)
	if err := registry.LoadFromStore(ctx); err != nil {
		return fmt.Errorf("loading registry from store: %w", err)
	}

	harvest := harvester.New(cfg, registry)
	manager := coordinator.NewManager(registry, cfg.AccountPrefix, maxConcurrentConnects, harvest.WorkFunc())

	// group supervises every long-running goroutine this process owns
	// (today, just the dashboard server): if any of them fails
	// unexpectedly, groupCtx is cancelled, which folds into the same
	// shutdown path a SIGINT/SIGTERM would take.
	group, groupCtx := errgroup.WithContext(ctx)

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		cache := httpapi.NewRegionCache(cfg.GeodataDir)
		scanController := httpapi.NewScanController(cfg, registry, manager)
		bootstrap := httpapi.NewBootstrapRunner(cfg, registry)
		api := httpapi.NewServer(cache, scanController, bootstrap)

		srv = &http.Server{Addr: cfg.HTTPAddr, Handler: api.Handler()}
		group.Go(func() error {
			slog.Info("dashboard listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("dashboard server: %w", err)
			}
			return nil
		})
	}

	regions, err := coordinator.DiscoverRegions(cfg.GeodataDir)
	if err != nil {
		return fmt.Errorf("discovering regions: %w", err)
	}
	if len(regions) == 0 {
		regions = coordinator.KnownRegions()
	}
	for _, rc := range regions {
		if err := registry.AddRegion(ctx, rc[0], rc[1], coordinator.TotalCellsFor(cfg.ScanMode)); err != nil {
			return fmt.Errorf("seeding region %d_%d: %w", rc[0], rc[1], err)
		}
	}

	manager.Start(ctx, cfg.WorkerCount)
	slog.Info("worker fleet started", "workers", cfg.WorkerCount, "regions", len(regions))

	<-groupCtx.Done()
	slog.Info("shutdown signal received, stopping fleet")

	manager.Stop()
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := manager.Wait(waitCtx); err != nil {
		slog.Warn("worker fleet did not stop cleanly", "error", err)
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("dashboard server did not shut down cleanly", "error", err)
		}
	}

	return group.Wait()
}

const (
	maxConcurrentConnects = 10
	shutdownGrace         = 10 * time.Second
)

func configureLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l})))
}
