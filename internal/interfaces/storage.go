// Package interfaces provides service interfaces for dependency injection.
package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/reelscan/internal/models"
)

// CacheStorage persists analysis results keyed by URL fingerprint with
// TTL expiry. Implementations must treat store failures on Get as a miss
// (logged, non-fatal) so an unavailable cache never blocks processing.
type CacheStorage interface {
	// Get returns the entry for a fingerprint, or found=false on miss.
	// An entry past its TTL is deleted and reported as a miss.
	Get(ctx context.Context, fingerprint string) (*models.CacheEntry, bool)

	// Put overwrites the entry for a fingerprint with
	// createdAt=now, expiresAt=now+ttl.
	Put(ctx context.Context, fingerprint string, payload models.Content, metadata map[string]interface{}, sourceURL, locale string, ttl time.Duration) error

	// Invalidate deletes the entry if present and reports whether an
	// entry was removed.
	Invalidate(ctx context.Context, fingerprint string) (bool, error)

	// Stats samples up to sampleLimit entries for observability.
	Stats(ctx context.Context, sampleLimit int) (*models.CacheStats, error)
}

// JobStorage is the distributed job queue: at-least-once delivery,
// lease-by-status claims, bounded retries, and terminal-state GC. Any
// dispatcher or worker may share one store.
type JobStorage interface {
	// Enqueue creates a pending job and returns its ID.
	Enqueue(ctx context.Context, url, requestID, locale, priority string) (string, error)

	// FindByURL returns the most recent job for a URL and locale in the
	// given status, or nil when none matches. An empty status matches
	// any.
	FindByURL(ctx context.Context, url string, status models.JobStatus, locale string) (*models.Job, error)

	// ClaimNext atomically leases the oldest claimable pending job for
	// the worker: status pending->processing, workerId set, startedAt
	// stamped, attempts incremented. Returns nil when the queue has no
	// claimable job.
	ClaimNext(ctx context.Context, workerID string) (*models.Job, error)

	// MarkComplete writes the result document, then moves the job to
	// completed. If either write fails the job stays processing and the
	// error is returned; the caller must not acknowledge the job.
	MarkComplete(ctx context.Context, jobID string, payload models.Content) error

	// MarkFailed records a failure. The job returns to pending while
	// attempts remain, otherwise it moves to terminal failed.
	MarkFailed(ctx context.Context, jobID, errorString string) error

	// FailPermanently forces attempts to maxAttempts and moves the job
	// straight to terminal failed. Used for non-retryable errors.
	FailPermanently(ctx context.Context, jobID, errorString string) error

	// GetResult joins the queue and results views for a job ID.
	GetResult(ctx context.Context, jobID string) (*models.JobStatusView, error)

	// CleanupOld deletes terminal jobs created before the retention
	// window, together with their results, in batches of at most
	// batchSize writes. Returns the number of jobs deleted.
	CleanupOld(ctx context.Context, olderThan time.Duration, batchSize int) (int, error)

	// ReapStale promotes processing jobs whose lease is older than the
	// given age back to pending. Returns the number reaped. Disabled by
	// default; crashed workers otherwise leave jobs processing forever.
	ReapStale(ctx context.Context, olderThan time.Duration) (int, error)

	// PendingCount reports the queue depth for health endpoints.
	PendingCount(ctx context.Context) (int, error)
}

// StorageManager owns backend connections and hands out the storage
// interfaces.
type StorageManager interface {
	CacheStorage() CacheStorage
	JobStorage() JobStorage
	Close() error
}
