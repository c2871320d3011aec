package repository

import (
	"context"
	"time"

	"github.com/timmy/bingwall/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HistoryRepository journals fetched, purged and applied wallpapers.
type HistoryRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// RecordFetch upserts the fetch record for a wallpaper keyed by start date.
// A re-fetch clears a previous purge mark.
func (r *HistoryRepository) RecordFetch(ctx context.Context, w *domain.Wallpaper, size int64) error {
	rec := &domain.FetchRecord{
		StartDate:   w.StartDate,
		URL:         w.URL,
		Description: w.Description,
		Size:        size,
		FetchedAt:   time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "start_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"url", "description", "size", "fetched_at", "purged_at"}),
	}).Create(rec).Error
}

// MarkPurged stamps the purge time on the fetch record for date, if any.
func (r *HistoryRepository) MarkPurged(ctx context.Context, date string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.FetchRecord{}).
		Where("start_date = ?", date).
		Update("purged_at", at).Error
}

// RecordApply inserts an apply record; AppliedAt defaults to now.
func (r *HistoryRepository) RecordApply(ctx context.Context, rec *domain.ApplyRecord) error {
	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(rec).Error
}
