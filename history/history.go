// Package history keeps a sqlite log of finished conversions.
package history

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConversionRecord is one converted (or failed) file.
type ConversionRecord struct {
	ID           string `gorm:"primaryKey"`
	Source       string
	Dest         string
	Direction    string
	Profile      string
	ProfileIndex int
	Pages        int
	Bytes        int64
	MaxSize      int64
	BudgetMet    bool
	Fallbacks    int
	Error        string
	DurationMS   int64
	CreatedAt    time.Time `gorm:"index"`
}

// Store handles database operations
type Store struct {
	db *gorm.DB
}

// Open opens or creates the database at path and migrates the schema.
// ":memory:" gives a throwaway store.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open history database")
	}
	if err := db.AutoMigrate(&ConversionRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate history database")
	}
	return &Store{db: db}, nil
}

// Record saves rec, assigning an ID and timestamp when missing.
func (s *Store) Record(rec *ConversionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return s.db.Create(rec).Error
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]ConversionRecord, error) {
	var recs []ConversionRecord
	err := s.db.Order("created_at desc").Limit(limit).Find(&recs).Error
	return recs, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
