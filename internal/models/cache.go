// -----------------------------------------------------------------------
// Cache Entry - fingerprint-keyed analysis results with TTL expiry
// -----------------------------------------------------------------------

package models

import "time"

// CacheEntry is the persistent record stored per URL fingerprint. A read
// that observes ExpiresAt in the past must delete the entry and report a
// miss.
type CacheEntry struct {
	Fingerprint string                 `json:"fingerprint" badgerhold:"key" firestore:"fingerprint"`
	Payload     Content                `json:"payload" firestore:"payload"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" firestore:"metadata,omitempty"`
	SourceURL   string                 `json:"source_url" firestore:"sourceUrl"`
	Locale      string                 `json:"locale,omitempty" firestore:"locale,omitempty"`
	CreatedAt   time.Time              `json:"created_at" firestore:"createdAt"`
	ExpiresAt   time.Time              `json:"expires_at" firestore:"expiresAt"`
	TTLHours    int                    `json:"ttl_hours" firestore:"ttlHours"`
}

// IsExpired reports whether the entry has passed its TTL at the given
// instant.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// NewCacheEntry builds an entry with CreatedAt=now and
// ExpiresAt=now+ttl. The TTL is recorded in whole hours for
// observability.
func NewCacheEntry(fingerprint string, payload Content, metadata map[string]interface{}, sourceURL, locale string, ttl time.Duration) *CacheEntry {
	now := time.Now().UTC()
	return &CacheEntry{
		Fingerprint: fingerprint,
		Payload:     payload,
		Metadata:    metadata,
		SourceURL:   sourceURL,
		Locale:      locale,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		TTLHours:    int(ttl / time.Hour),
	}
}

// CacheStats is a bounded-size sample of the cache collection used for
// observability endpoints.
type CacheStats struct {
	TotalSampled    int `json:"total_sampled"`
	ExpiredInSample int `json:"expired_in_sample"`
	// TTLHours is the configured default entry lifetime, not a value
	// derived from the sample.
	TTLHours int `json:"ttl_hours"`
}
