package firestore

import (
	"context"
	"fmt"
	"time"

	firestoredb "cloud.google.com/go/firestore"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CacheStorage implements fingerprint-keyed result caching on a
// Firestore collection.
type CacheStorage struct {
	client     *firestoredb.Client
	collection string
	ttlHours   int
	logger     arbor.ILogger
}

// NewCacheStorage creates a new CacheStorage instance. ttlHours is the
// configured default TTL reported in stats.
func NewCacheStorage(client *firestoredb.Client, collection string, ttlHours int, logger arbor.ILogger) *CacheStorage {
	if collection == "" {
		collection = "video_cache"
	}
	return &CacheStorage{
		client:     client,
		collection: collection,
		ttlHours:   ttlHours,
		logger:     logger,
	}
}

func (s *CacheStorage) doc(fingerprint string) *firestoredb.DocumentRef {
	return s.client.Collection(s.collection).Doc(fingerprint)
}

// Get returns the entry for a fingerprint. Expired entries are deleted
// and reported as a miss; read failures are logged and reported as a
// miss.
func (s *CacheStorage) Get(ctx context.Context, fingerprint string) (*models.CacheEntry, bool) {
	snap, err := s.doc(fingerprint).Get(ctx)
	if err != nil {
		if status.Code(err) != codes.NotFound {
			s.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Cache read failed, treating as miss")
		}
		return nil, false
	}

	var entry models.CacheEntry
	if err := snap.DataTo(&entry); err != nil {
		s.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Failed to decode cache entry, treating as miss")
		return nil, false
	}

	if entry.IsExpired(time.Now().UTC()) {
		if _, err := s.doc(fingerprint).Delete(ctx); err != nil {
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
	if _, err := s.doc(fingerprint).Set(ctx, entry); err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

// Invalidate deletes the entry if present.
func (s *CacheStorage) Invalidate(ctx context.Context, fingerprint string) (bool, error) {
	_, err := s.doc(fingerprint).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check cache entry: %w", err)
	}
	if _, err := s.doc(fingerprint).Delete(ctx); err != nil {
		return false, fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return true, nil
}

// Stats samples up to sampleLimit entries for observability.
func (s *CacheStorage) Stats(ctx context.Context, sampleLimit int) (*models.CacheStats, error) {
	if sampleLimit <= 0 || sampleLimit > 1000 {
		sampleLimit = 1000
	}

	stats := &models.CacheStats{TTLHours: s.ttlHours}
	now := time.Now().UTC()

	iter := s.client.Collection(s.collection).Limit(sampleLimit).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to sample cache entries: %w", err)
		}

		var entry models.CacheEntry
		if err := snap.DataTo(&entry); err != nil {
			continue
		}
		stats.TotalSampled++
		if entry.IsExpired(now) {
			stats.ExpiredInSample++
		}
	}
	return stats, nil
}
