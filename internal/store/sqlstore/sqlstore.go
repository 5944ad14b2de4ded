package sqlstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Blob struct {
	Key       string    `gorm:"primaryKey;column:blob_key;type:varchar(128)"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time
}

func (Blob) TableName() string { return "kv_blobs" }

type Store struct {
	db *gorm.DB
}

// New migrates the blob table and returns a store backed by it.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Blob{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Get returns nil, nil for a missing key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var b Blob
	err := s.db.WithContext(ctx).Where("blob_key = ?", key).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b.Value, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blob_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&Blob{Key: key, Value: data, UpdatedAt: time.Now()}).Error
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("blob_key = ?", key).Delete(&Blob{}).Error
}
