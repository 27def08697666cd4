// Package kvstore provides the durable string key-value store that session
// state is persisted to.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/coinchat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is a durable string key-value store. Get reports whether the key
// was present.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// GormStore keeps entries in the kv_entries table.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore returns a Store backed by db. The kv_entries table must
// already be migrated.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("kvstore: db is required")
	}
	return &GormStore{db: db, now: time.Now}, nil
}

// Get returns the value stored under key.
func (s *GormStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry models.KVEntry
	err := s.db.WithContext(ctx).Where("`key` = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvstore: get %q: %w", key, err)
	}
	return entry.Value, true, nil
}

// Set writes value under key, replacing any previous value.
func (s *GormStore) Set(ctx context.Context, key, value string) error {
	entry := models.KVEntry{Key: key, Value: value, UpdatedAt: s.now()}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry)
	if result.Error != nil {
		return fmt.Errorf("kvstore: set %q: %w", key, result.Error)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *GormStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("`key` = ?", key).Delete(&models.KVEntry{}).Error; err != nil {
		return fmt.Errorf("kvstore: delete %q: %w", key, err)
	}
	return nil
}
