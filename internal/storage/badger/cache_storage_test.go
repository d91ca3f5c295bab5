package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func setupDB(t *testing.T) *BadgerDB {
	t.Helper()

	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store, logger: arbor.NewLogger()}
}

func setupCache(t *testing.T) *CacheStorage {
	t.Helper()
	return NewCacheStorage(setupDB(t), 24, arbor.NewLogger())
}

func TestCachePutGet(t *testing.T) {
	cache := setupCache(t)
	ctx := context.Background()

	payload := models.Content{Title: "pasta", Niche: "food", Tags: []string{"recipe"}}
	require.NoError(t, cache.Put(ctx, "fp-1", payload, map[string]interface{}{"author": "chef"}, "https://tiktok.com/@c/video/1", "en", time.Hour))

	entry, ok := cache.Get(ctx, "fp-1")
	require.True(t, ok)
	assert.Equal(t, "pasta", entry.Payload.Title)
	assert.Equal(t, "en", entry.Locale)
	assert.Equal(t, 1, entry.TTLHours)
	assert.True(t, entry.ExpiresAt.After(entry.CreatedAt))
}

func TestCacheGetMiss(t *testing.T) {
	cache := setupCache(t)

	_, ok := cache.Get(context.Background(), "never-written")
	assert.False(t, ok)
}

func TestCachePutOverwrites(t *testing.T) {
	cache := setupCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "fp-1", models.Content{Title: "first"}, nil, "u", "", time.Hour))
	require.NoError(t, cache.Put(ctx, "fp-1", models.Content{Title: "second"}, nil, "u", "", time.Hour))

	entry, ok := cache.Get(ctx, "fp-1")
	require.True(t, ok)
	assert.Equal(t, "second", entry.Payload.Title)
}

func TestCacheExpiredEntryIsDeletedOnRead(t *testing.T) {
	cache := setupCache(t)
	ctx := context.Background()

	// Negative TTL writes an already-expired entry.
	require.NoError(t, cache.Put(ctx, "fp-old", models.Content{Title: "stale"}, nil, "u", "", -time.Hour))

	_, ok := cache.Get(ctx, "fp-old")
	assert.False(t, ok, "expired entry reads as a miss")

	var entry models.CacheEntry
	err := cache.db.Store().Get("fp-old", &entry)
	assert.Equal(t, badgerhold.ErrNotFound, err, "expired entry is deleted by the read")
}

func TestCacheInvalidate(t *testing.T) {
	cache := setupCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "fp-1", models.Content{Title: "x"}, nil, "u", "", time.Hour))

	invalidated, err := cache.Invalidate(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, invalidated)

	_, ok := cache.Get(ctx, "fp-1")
	assert.False(t, ok)

	invalidated, err = cache.Invalidate(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, invalidated, "second invalidation reports absence")
}

func TestCacheStats(t *testing.T) {
	cache := setupCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "fp-live", models.Content{Title: "a"}, nil, "u", "", 2*time.Hour))
	require.NoError(t, cache.Put(ctx, "fp-dead", models.Content{Title: "b"}, nil, "u", "", -time.Hour))

	stats, err := cache.Stats(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSampled)
	assert.Equal(t, 1, stats.ExpiredInSample)
	assert.Equal(t, 24, stats.TTLHours, "stats report the configured default, not per-entry TTLs")
}
