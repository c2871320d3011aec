package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/timmy/bingwall/internal/domain"
	"github.com/timmy/bingwall/internal/logger"
	"github.com/timmy/bingwall/internal/repository"
	"github.com/timmy/bingwall/internal/source"
	"github.com/timmy/bingwall/internal/storage"
)

// History is the journal the archive service reports fetches and purges to.
type History interface {
	RecordFetch(ctx context.Context, w *domain.Wallpaper, size int64) error
	MarkPurged(ctx context.Context, date string, at time.Time) error
}

// ArchiveService keeps the local wallpaper cache in step with the remote archive.
type ArchiveService struct {
	archive      source.Archive
	cache        *repository.CacheRepository
	history      History
	mirror       storage.ObjectStorage
	mirrorPrefix string
	logger       *logger.Logger
	backlog      int
}

// ArchiveConfig holds configuration for the archive service.
// History and Mirror are optional; leave them nil to disable.
type ArchiveConfig struct {
	Backlog      int
	History      History
	Mirror       storage.ObjectStorage
	MirrorPrefix string
}

// NewArchiveService creates a new archive service
func NewArchiveService(
	archive source.Archive,
	cache *repository.CacheRepository,
	log *logger.Logger,
	cfg *ArchiveConfig,
) *ArchiveService {
	return &ArchiveService{
		archive:      archive,
		cache:        cache,
		history:      cfg.History,
		mirror:       cfg.Mirror,
		mirrorPrefix: cfg.MirrorPrefix,
		logger:       log,
		backlog:      cfg.Backlog,
	}
}

// log returns a logger from context if available, otherwise the service logger
func (s *ArchiveService) log(ctx context.Context) *logger.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	if s.logger != nil {
		return s.logger
	}
	return logger.GetDefault()
}

// UpdateStats holds statistics for an Update run
type UpdateStats struct {
	Listed    int // entries reported by the archive
	Fetched   int // entries downloaded into the cache
	Skipped   int // entries already cached
	Refetched int // incomplete entries replaced
	Invalid   int // entries without a usable date or URL
	Mirrored  int // objects uploaded to the mirror
	StartTime time.Time
	EndTime   time.Time
}

// Update fetches the newest backlog entries from the archive into the cache.
// Complete entries already on disk are skipped; any error aborts the update.
func (s *ArchiveService) Update(ctx context.Context) (*UpdateStats, error) {
	stats := &UpdateStats{StartTime: time.Now()}

	if err := s.cache.EnsureDir(); err != nil {
		return stats, err
	}
	if n, err := s.cache.CleanStaging(); err != nil {
		return stats, err
	} else if n > 0 {
		s.log(ctx).WithField(logger.FieldCount, n).Warn("Removed staging directories from an interrupted run")
	}

	images, err := s.archive.List(ctx, s.backlog)
	if err != nil {
		return stats, fmt.Errorf("failed to list %s archive: %w", s.archive.GetSourceID(), err)
	}
	stats.Listed = len(images)

	for i := range images {
		w := &images[i]
		log := s.log(ctx).WithField(logger.FieldDate, w.StartDate)

		if !repository.ValidName(w.StartDate) || w.URL == "" {
			log.WithField(logger.FieldURL, w.URL).Warn("Skipping archive entry without a usable date or url")
			stats.Invalid++
			continue
		}

		exists, err := s.cache.Exists(w.StartDate)
		if err != nil {
			return stats, fmt.Errorf("failed to check cache for %s: %w", w.StartDate, err)
		}
		if exists {
			complete, err := s.cache.IsComplete(w.StartDate)
			if err != nil {
				return stats, fmt.Errorf("failed to check cache for %s: %w", w.StartDate, err)
			}
			if complete {
				log.Debug("Already exists")
				stats.Skipped++
				if err := s.mirrorEntry(ctx, w.StartDate, stats); err != nil {
					return stats, fmt.Errorf("failed to mirror %s: %w", w.StartDate, err)
				}
				continue
			}
			log.Warn("Cached entry is incomplete, fetching again")
			if err := s.cache.Remove(w.StartDate); err != nil {
				return stats, err
			}
			stats.Refetched++
		}

		if err := s.fetch(ctx, w, stats); err != nil {
			return stats, err
		}
		stats.Fetched++
	}

	stats.EndTime = time.Now()
	return stats, nil
}

// fetch downloads one entry, stores it in the cache, then mirrors and journals it.
func (s *ArchiveService) fetch(ctx context.Context, w *domain.Wallpaper, stats *UpdateStats) error {
	log := s.log(ctx).WithField(logger.FieldDate, w.StartDate)

	data, err := s.archive.FetchImage(ctx, w.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch image for %s: %w", w.StartDate, err)
	}

	path, err := s.cache.Create(w, data)
	if err != nil {
		return fmt.Errorf("failed to cache %s: %w", w.StartDate, err)
	}
	log.WithFields(logger.Fields{
		logger.FieldPath: path,
		logger.FieldSize: len(data),
	}).Debug("Created cache entry")

	if err := s.mirrorEntry(ctx, w.StartDate, stats); err != nil {
		return fmt.Errorf("failed to mirror %s: %w", w.StartDate, err)
	}

	if s.history != nil {
		if err := s.history.RecordFetch(ctx, w, int64(len(data))); err != nil {
			log.WithError(err).Warn("Failed to journal fetch")
		}
	}
	return nil
}

// mirrorEntry uploads the cached files of date that the mirror does not hold yet.
// It runs for skipped entries too, which backfills earlier failed uploads.
func (s *ArchiveService) mirrorEntry(ctx context.Context, date string, stats *UpdateStats) error {
	if s.mirror == nil {
		return nil
	}

	for _, name := range []string{domain.ManifestFileName, domain.ImageFileName} {
		key := s.mirrorPrefix + date + "/" + name

		exists, err := s.mirror.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			s.log(ctx).WithField("key", key).Debug("Already mirrored")
			continue
		}

		data, err := s.cache.ReadFile(date, name)
		if err != nil {
			return err
		}
		if err := s.mirror.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), storage.ContentType(name)); err != nil {
			return err
		}
		stats.Mirrored++
		s.log(ctx).WithField(logger.FieldURL, s.mirror.GetURL(key)).Debug("Mirrored")
	}
	return nil
}

// Purge removes the oldest entries so that at most backlog remain.
// Returns the number of entries removed, including those removed before an error.
func (s *ArchiveService) Purge(ctx context.Context) (int, error) {
	names, err := s.cache.List()
	if err != nil {
		return 0, err
	}

	excess := len(names) - s.backlog
	if excess <= 0 {
		s.log(ctx).WithField(logger.FieldCount, len(names)).Debug("Nothing to purge")
		return 0, nil
	}

	now := time.Now()
	removed := 0
	for _, name := range names[:excess] {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := s.cache.Remove(name); err != nil {
			return removed, err
		}
		removed++
		s.log(ctx).WithField(logger.FieldPath, s.cache.EntryPath(name)).Debug("Purged")

		if s.history != nil {
			if err := s.history.MarkPurged(ctx, name, now); err != nil {
				s.log(ctx).WithField(logger.FieldDate, name).WithError(err).Warn("Failed to journal purge")
			}
		}
	}
	return removed, nil
}

// Wallpaper returns the image path of the newest cached entry, or "" if none.
func (s *ArchiveService) Wallpaper(ctx context.Context) (string, error) {
	path, err := s.cache.Newest()
	if err != nil {
		return "", err
	}
	if path == "" {
		s.log(ctx).Debug("No cached wallpaper")
	}
	return path, nil
}
