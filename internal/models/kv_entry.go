package models

import "time"

// KVEntry is one row of the durable key-value store. Session state blobs are
// stored here, one per user-scoped key.
type KVEntry struct {
	Key       string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"type:mediumtext;not null"`
	UpdatedAt time.Time
}
