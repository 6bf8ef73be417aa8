// Package history records finished and skipped listens in a local SQLite
// database.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mkohlmann/cadence/internal/logger"
	"github.com/mkohlmann/cadence/internal/playback"
)

// PlayRecord is one row of listening history
type PlayRecord struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey" json:"id"`
	TrackID   string    `gorm:"index" json:"trackId"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `gorm:"index" json:"endedAt"`
	Completed bool      `json:"completed"`
}

// TableName sets the table name for GORM
func (PlayRecord) TableName() string {
	return "play_records"
}

// Repository stores and queries listening history
type Repository struct {
	db *gorm.DB
}

// Open opens (creating if needed) the history database at path and migrates
// its schema.
func Open(path string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if err := db.AutoMigrate(&PlayRecord{}); err != nil {
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}

	logger.Log.Debug().Str("path", path).Msg("History database opened")
	return &Repository{db: db}, nil
}

// Record implements playback.Recorder. Failures are logged, never surfaced:
// history must not interfere with playback.
func (r *Repository) Record(rec playback.PlayRecord) {
	row := PlayRecord{
		ID:        uuid.New(),
		TrackID:   rec.TrackID,
		Title:     rec.Title,
		Artist:    rec.Artist,
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
		Completed: rec.Completed,
	}

	if err := r.db.Create(&row).Error; err != nil {
		logger.Log.Warn().
			Err(err).
			Str("track_id", rec.TrackID).
			Msg("Failed to record play history")
		return
	}

	logger.Log.Debug().
		Str("track_id", rec.TrackID).
		Bool("completed", rec.Completed).
		Msg("Play recorded")
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Recent returns the most recent records, newest first
func (r *Repository) Recent(ctx context.Context, limit int) ([]PlayRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []PlayRecord
	err := r.db.WithContext(ctx).
		Order("ended_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return records, nil
}
