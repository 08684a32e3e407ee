// Package server manages the tsmreport snapshot database and the report
// HTTP server. The database is SQLite through GORM; it caches collected
// record sets and keeps the mail delivery history.
package server

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vesaa/tsmreport/internal/models"
)

// ErrNoSnapshot is returned when no usable snapshot is cached.
var ErrNoSnapshot = errors.New("no cached snapshot")

// Store wraps the snapshot database.
type Store struct {
	db *gorm.DB
}

// OpenStore opens the database at path and runs AutoMigrate.
func OpenStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&models.Snapshot{}, &models.Delivery{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	log.Printf("[db] opened sqlite/%s", path)
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveSnapshot persists snap.
func (s *Store) SaveSnapshot(snap *models.Snapshot) error {
	if err := s.db.Create(snap).Error; err != nil {
		return fmt.Errorf("saving snapshot %s/%s: %w", snap.Instance, snap.RunID, err)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot of instance. With maxAge > 0 a
// snapshot collected more than maxAge before now is ErrNoSnapshot.
func (s *Store) LatestSnapshot(instance string, maxAge time.Duration, now time.Time) (*models.Snapshot, error) {
	var snap models.Snapshot
	err := s.db.Where("instance = ?", instance).Order("collected_at desc").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	if maxAge > 0 && now.Sub(snap.CollectedAt) > maxAge {
		return nil, ErrNoSnapshot
	}
	return &snap, nil
}

// ListInstances returns the names of all instances with a snapshot, sorted.
func (s *Store) ListInstances() ([]string, error) {
	var names []string
	err := s.db.Model(&models.Snapshot{}).Distinct("instance").Order("instance").Pluck("instance", &names).Error
	return names, err
}

// Prune hard-deletes snapshots collected before olderThan and returns how
// many were removed.
func (s *Store) Prune(olderThan time.Time) (int64, error) {
	res := s.db.Unscoped().Where("collected_at < ?", olderThan.UTC()).Delete(&models.Snapshot{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("[db] pruned %d snapshots older than %s", res.RowsAffected, olderThan.Format(time.RFC3339))
	}
	return res.RowsAffected, nil
}

// SaveDelivery records a report mail attempt.
func (s *Store) SaveDelivery(d *models.Delivery) error {
	if d.SentAt.IsZero() {
		d.SentAt = time.Now()
	}
	return s.db.Create(d).Error
}

// ListDeliveries returns the newest deliveries of instance, at most limit.
func (s *Store) ListDeliveries(instance string, limit int) ([]models.Delivery, error) {
	var out []models.Delivery
	q := s.db.Where("instance = ?", instance).Order("sent_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
