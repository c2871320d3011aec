package domain

import "time"

// FetchRecord journals one wallpaper downloaded into the cache.
type FetchRecord struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	StartDate   string     `gorm:"type:text;not null;uniqueIndex" json:"start_date"`
	URL         string     `gorm:"type:text" json:"url"`
	Description string     `gorm:"type:text" json:"description"`
	Size        int64      `json:"size"`
	FetchedAt   time.Time  `json:"fetched_at"`
	PurgedAt    *time.Time `json:"purged_at,omitempty"`
}

// TableName returns the database table name for FetchRecord.
func (FetchRecord) TableName() string {
	return "fetches"
}

// ApplyRecord journals one change of the desktop background.
type ApplyRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Path      string    `gorm:"type:text;not null" json:"path"`
	StartDate string    `gorm:"type:text;index" json:"start_date"`
	RunID     string    `gorm:"type:text" json:"run_id"`
	AppliedAt time.Time `gorm:"index" json:"applied_at"`
}

// TableName returns the database table name for ApplyRecord.
func (ApplyRecord) TableName() string {
	return "applies"
}
