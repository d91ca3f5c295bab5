package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// CacheStorage implements fingerprint-keyed result caching on Badger.
type CacheStorage struct {
	db       *BadgerDB
	ttlHours int
	logger   arbor.ILogger
}

// NewCacheStorage creates a new CacheStorage instance. ttlHours is the
// configured default TTL reported in stats.
func NewCacheStorage(db *BadgerDB, ttlHours int, logger arbor.ILogger) *CacheStorage {
	return &CacheStorage{
		db:       db,
		ttlHours: ttlHours,
		logger:   logger,
	}
}

// Get returns the entry for a fingerprint. Entries past their TTL are
// deleted and reported as a miss; store errors are logged and reported
// as a miss so an unavailable cache never fails a request.
func (s *CacheStorage) Get(ctx context.Context, fingerprint string) (*models.CacheEntry, bool) {
	var entry models.CacheEntry
	if err := s.db.Store().Get(fingerprint, &entry); err != nil {
		if err != badgerhold.ErrNotFound {
			s.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Cache read failed, treating as miss")
		}
		return nil, false
	}

	if entry.IsExpired(time.Now().UTC()) {
		if err := s.db.Store().Delete(fingerprint, &models.CacheEntry{}); err != nil && err != badgerhold.ErrNotFound {
			s.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Failed to delete expired cache entry")
		}
		s.logger.Debug().Str("fingerprint", fingerprint).Msg("Cache entry expired")
		return nil, false
	}

	return &entry, true
}

// Put overwrites the entry for a fingerprint.
func (s *CacheStorage) Put(ctx context.Context, fingerprint string, payload models.Content, metadata map[string]interface{}, sourceURL, locale string, ttl time.Duration) error {
	entry := models.NewCacheEntry(fingerprint, payload, metadata, sourceURL, locale, ttl)
	if err := s.db.Store().Upsert(fingerprint, entry); err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

// Invalidate deletes the entry if present.
func (s *CacheStorage) Invalidate(ctx context.Context, fingerprint string) (bool, error) {
	err := s.db.Store().Delete(fingerprint, &models.CacheEntry{})
	if err == badgerhold.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return true, nil
}

// Stats samples up to sampleLimit entries for observability.
func (s *CacheStorage) Stats(ctx context.Context, sampleLimit int) (*models.CacheStats, error) {
	if sampleLimit <= 0 || sampleLimit > 1000 {
		sampleLimit = 1000
	}

	var entries []models.CacheEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where(badgerhold.Key).Ne("").Limit(sampleLimit)); err != nil {
		return nil, fmt.Errorf("failed to sample cache entries: %w", err)
	}

	stats := &models.CacheStats{TotalSampled: len(entries), TTLHours: s.ttlHours}
	now := time.Now().UTC()
	for i := range entries {
		if entries[i].IsExpired(now) {
			stats.ExpiredInSample++
		}
	}
	return stats, nil
}
