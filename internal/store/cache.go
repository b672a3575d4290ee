package store

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/autopilot-ops/extraction-store/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var contentHashPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// CacheStore is the content-addressable extraction result cache. At most one
// entry exists per content hash.
type CacheStore struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewCacheStore(logger *logrus.Logger, db *gorm.DB) *CacheStore {
	return &CacheStore{
		db:  db,
		log: logger.WithField("component", "cache_store"),
	}
}

// Get returns the entry for contentHash and touches its access fields. The
// touch is a single UPDATE with an in-database increment, so concurrent hits
// on the same hash never lose counts. A miss is ErrNotFound.
func (s *CacheStore) Get(ctx context.Context, contentHash string) (*models.CacheEntry, error) {
	if !contentHashPattern.MatchString(contentHash) {
		return nil, invalid("contentHash", "must be a 64-char lowercase hex sha256 digest")
	}

	var entry models.CacheEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.CacheEntry{}).
			Where("content_hash = ?", contentHash).
			Updates(map[string]interface{}{
				"access_count":     gorm.Expr("access_count + 1"),
				"last_accessed_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return storageErr("cache touch", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("content_hash = ?", contentHash).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// The entry was evicted between touch and read; a valid miss.
				return ErrNotFound
			}
			return storageErr("cache read", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Put stores a freshly computed result under contentHash. When an entry
// already exists, a byte-identical payload succeeds as a no-op (the existing
// entry is returned, access fields untouched) and a divergent payload fails
// with ErrConflict. Payload equality governs idempotence; confidence is not
// compared.
func (s *CacheStore) Put(ctx context.Context, contentHash string, result []byte, confidence *float64) (*models.CacheEntry, error) {
	if !contentHashPattern.MatchString(contentHash) {
		return nil, invalid("contentHash", "must be a 64-char lowercase hex sha256 digest")
	}
	if len(result) == 0 {
		return nil, invalid("result", "must not be empty")
	}
	if confidence != nil && (*confidence < 0 || *confidence > 1) {
		return nil, invalid("confidence", "must be within [0,1]")
	}

	now := time.Now().UTC()
	entry := models.CacheEntry{
		ContentHash:    contentHash,
		Result:         result,
		Confidence:     confidence,
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    1,
	}

	var out models.CacheEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_hash"}},
			DoNothing: true,
		}).Create(&entry)
		if res.Error != nil {
			return storageErr("cache insert", res.Error)
		}
		if res.RowsAffected > 0 {
			out = entry
			return nil
		}

		var existing models.CacheEntry
		if err := tx.Where("content_hash = ?", contentHash).First(&existing).Error; err != nil {
			return storageErr("cache read", err)
		}
		if !bytes.Equal(existing.Result, result) {
			return ErrConflict
		}
		out = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type CacheStats struct {
	Entries       int64   `json:"entries"`
	TotalAccesses int64   `json:"total_accesses"`
	AvgConfidence float64 `json:"avg_confidence"`
}

func (s *CacheStore) Stats(ctx context.Context) (*CacheStats, error) {
	var stats CacheStats
	err := s.db.WithContext(ctx).Model(&models.CacheEntry{}).
		Select("count(*) as entries, coalesce(sum(access_count), 0) as total_accesses, coalesce(avg(confidence), 0) as avg_confidence").
		Scan(&stats).Error
	if err != nil {
		return nil, storageErr("cache stats", err)
	}
	return &stats, nil
}
