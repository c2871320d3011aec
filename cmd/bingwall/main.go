package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/bingwall/internal/config"
	"github.com/timmy/bingwall/internal/desktop"
	"github.com/timmy/bingwall/internal/domain"
	"github.com/timmy/bingwall/internal/logger"
	"github.com/timmy/bingwall/internal/repository"
	"github.com/timmy/bingwall/internal/service"
	"github.com/timmy/bingwall/internal/source/bing"
	"github.com/timmy/bingwall/internal/storage"
)

func main() {
	// Initialize logger first (LOG_* environment)
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = appLogger.WithContext(ctx)
	ctx = logger.SetRunID(ctx, uuid.NewString())
	ctx = logger.SetComponent(ctx, "bingwall")
	log := logger.FromContext(ctx)

	// Load configuration
	cfg, err := config.Load(os.Getenv("BINGWALL_CONFIG"))
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	cache := repository.NewCacheRepository(cfg.Cache.Dir)
	log.WithFields(logger.Fields{
		logger.FieldPath: cache.Dir(),
		"market":         cfg.Archive.Market,
		"backlog":        cfg.Archive.Backlog,
	}).Info("Starting run")

	history, closeHistory := openHistory(ctx, &cfg.History)
	defer closeHistory()

	archiveService, err := newArchiveService(ctx, cfg, cache, history)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize archive service")
	}

	stats, err := archiveService.Update(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to update wallpapers")
	}

	purged, err := archiveService.Purge(ctx)
	if err != nil {
		log.WithError(err).WithField(logger.FieldCount, purged).Fatal("Failed to purge wallpapers")
	}

	path, err := archiveService.Wallpaper(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to select wallpaper")
	}

	logger.With(logger.Fields{
		"listed":    stats.Listed,
		"fetched":   stats.Fetched,
		"skipped":   stats.Skipped,
		"refetched": stats.Refetched,
		"invalid":   stats.Invalid,
		"mirrored":  stats.Mirrored,
		"purged":    purged,
	}).WithDuration(stats.EndTime.Sub(stats.StartTime)).Info(ctx, "Update completed")

	mate := desktop.NewMate(desktop.Config{
		Command:       cfg.Desktop.Command,
		Schema:        cfg.Desktop.Schema,
		PictureOption: cfg.Desktop.PictureOption,
	}, desktop.ExecRunner{}, appLogger)

	changed, err := mate.SetBackground(ctx, path)
	if err != nil {
		log.WithError(err).Fatal("Failed to set background")
	}
	if changed {
		recordApply(ctx, cache, history, path)
	}
}

// openHistory opens the journal when enabled. The journal is best-effort:
// when it cannot be opened the run continues without one.
func openHistory(ctx context.Context, cfg *config.HistoryConfig) (*repository.HistoryRepository, func()) {
	if !cfg.Enabled {
		return nil, func() {}
	}

	db, err := repository.InitDB(cfg.Path)
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField(logger.FieldPath, cfg.Path).
			Warn("Failed to open history database, continuing without it")
		return nil, func() {}
	}
	return repository.NewHistoryRepository(db), func() { repository.CloseDB(db) }
}

// newArchiveService wires the archive client, the optional journal and the
// optional S3-compatible mirror (supports R2, S3, MinIO) into the service.
func newArchiveService(
	ctx context.Context,
	cfg *config.Config,
	cache *repository.CacheRepository,
	history *repository.HistoryRepository,
) (*service.ArchiveService, error) {
	archive, err := bing.NewAdapter(&bing.Config{
		Host:      cfg.Archive.Host,
		Path:      cfg.Archive.Path,
		Market:    cfg.Archive.Market,
		Timeout:   cfg.Archive.Timeout,
		UserAgent: cfg.Archive.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	archiveCfg := &service.ArchiveConfig{
		Backlog:      cfg.Archive.Backlog,
		MirrorPrefix: cfg.Mirror.Prefix,
	}
	// Interface fields stay nil unless set; a typed nil pointer would not.
	if history != nil {
		archiveCfg.History = history
	}

	if cfg.Mirror.Enabled {
		mirror, err := storage.NewStorage(&storage.S3Config{
			Type:      storage.StorageType(cfg.Mirror.Type),
			Endpoint:  cfg.Mirror.Endpoint,
			AccessKey: cfg.Mirror.AccessKey,
			SecretKey: cfg.Mirror.SecretKey,
			UseSSL:    cfg.Mirror.UseSSL,
			Bucket:    cfg.Mirror.Bucket,
			Region:    cfg.Mirror.Region,
			PublicURL: cfg.Mirror.PublicURL,
		})
		if err != nil {
			return nil, err
		}
		if err := mirror.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		archiveCfg.Mirror = mirror
	}

	return service.NewArchiveService(archive, cache, logger.FromContext(ctx), archiveCfg), nil
}

// recordApply journals a background change together with the wallpaper's description.
func recordApply(ctx context.Context, cache *repository.CacheRepository, history *repository.HistoryRepository, path string) {
	log := logger.FromContext(ctx).WithField(logger.FieldPath, path)
	date := filepath.Base(filepath.Dir(path))

	if m, err := cache.ReadManifest(date); err == nil {
		log = log.WithField("description", m.Description)
	}
	log.WithField(logger.FieldDate, date).Info("Background changed")

	if history == nil {
		return
	}
	rec := &domain.ApplyRecord{
		Path:      path,
		StartDate: date,
		RunID:     logger.GetRunID(ctx),
		AppliedAt: time.Now(),
	}
	if err := history.RecordApply(ctx, rec); err != nil {
		log.WithError(err).Warn("Failed to journal background change")
	}
}
