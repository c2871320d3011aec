package repository

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/timmy/bingwall/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// InitDB opens the SQLite history database and runs migrations.
// Parameters:
//   - path: database file path; its directory is created if needed.
//
// Returns:
//   - *gorm.DB: initialized database handle.
//   - error: non-nil if connection or migration fails.
func InitDB(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// A scheduled run and a manual one may overlap; wait instead of failing.
	db.Exec("PRAGMA busy_timeout=5000")

	if err := db.AutoMigrate(&domain.FetchRecord{}, &domain.ApplyRecord{}); err != nil {
		CloseDB(db)
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return db, nil
}

// CloseDB closes the underlying connection pool.
func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
