package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tonebox/backend/internal/config"
	"github.com/tonebox/backend/internal/database"
	"github.com/tonebox/backend/internal/library"
	"github.com/tonebox/backend/internal/logging"
	"github.com/tonebox/backend/internal/nfc"
	"github.com/tonebox/backend/internal/ops"
	"github.com/tonebox/backend/internal/player"
	"github.com/tonebox/backend/internal/realtime"
	"github.com/tonebox/backend/internal/router"
	"github.com/tonebox/backend/internal/seq"
	"github.com/tonebox/backend/internal/services"
	"github.com/tonebox/backend/internal/storage"
	"github.com/tonebox/backend/internal/upload"
)

func main() {
	// Initialize structured logging (reads LOGGING_LEVEL env var)
	logging.Initialize()

	// Load configuration
	cfg := config.Load()

	tracksDir := filepath.Join(cfg.DataDir, "tracks")
	for _, dir := range []string{cfg.DataDir, cfg.StagingDir, tracksDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create data directory", slog.String("dir", dir), slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize database
	sqlDB, err := database.New(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sqlDB.Close()

	// Run migrations
	if err := database.RunMigrations(sqlDB); err != nil {
		slog.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store := storage.New(sqlDB)
	ctx := context.Background()

	// Seed the sequence allocator past the last persisted watermark so a
	// restart can never hand out a number a client has already seen.
	watermark, err := store.SeqWatermark(ctx)
	if err != nil {
		slog.Error("failed to read sequence watermark", slog.Any("error", err))
		os.Exit(1)
	}
	alloc := seq.NewAllocator(watermark)

	// Core components
	hub := realtime.NewHub(alloc)
	tracker := ops.NewTracker()
	coordinator := player.NewCoordinator(player.NullOutput{}, store, hub)
	uploads := upload.NewManager(cfg.StagingDir, tracksDir, cfg.MaxUploadBytes, store, hub)
	associations := nfc.NewManager(store, hub, coordinator)

	deviceName := cfg.DeviceName
	if deviceName == "" {
		deviceName = services.NewNamingService().DeviceName()
	}

	// Library watcher for out-of-band changes to the tracks directory
	if cfg.WatchLibrary {
		watcher, err := library.NewWatcher(tracksDir, hub)
		if err != nil {
			slog.Error("failed to start library watcher", slog.Any("error", err))
			os.Exit(1)
		}
		go watcher.Run(ctx)
	}

	// Background sweeps: expire stale state, persist the watermark
	go runSweeps(ctx, cfg, store, alloc, tracker, uploads, associations)

	// Create router
	r := router.New(cfg, router.Deps{
		Store:      store,
		Hub:        hub,
		Tracker:    tracker,
		Uploads:    uploads,
		NFC:        associations,
		Player:     coordinator,
		DeviceName: deviceName,
	})

	// Start server
	addr := ":" + cfg.Port
	slog.Info("starting server",
		slog.String("addr", addr), slog.String("device_name", deviceName))

	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// runSweeps drives the periodic maintenance loops. Sweeps only move state
// from non-terminal to terminal and never run inside a request path.
func runSweeps(ctx context.Context, cfg *config.Config, store *storage.Store, alloc *seq.Allocator, tracker *ops.Tracker, uploads *upload.Manager, associations *nfc.Manager) {
	sweep := time.NewTicker(cfg.SweepInterval)
	watermark := time.NewTicker(cfg.WatermarkInterval)
	defer sweep.Stop()
	defer watermark.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-sweep.C:
			tracker.Sweep(cfg.OperationTTL)
			uploads.ExpireIdle(cfg.UploadIdleTimeout)
			associations.SweepTimeout()

		case <-watermark.C:
			if err := store.SaveSeqWatermark(ctx, alloc.CurrentGlobal()); err != nil {
				slog.Warn("failed to persist sequence watermark", slog.Any("error", err))
			}
		}
	}
}
