// Package firestore implements the shared storage backend used when
// multiple dispatcher and worker processes coordinate through one store.
//
// Required composite indexes:
//   - video_jobs: (status asc, createdAt asc)
//   - video_jobs: (url asc, status asc, createdAt desc)
package firestore

import (
	"context"
	"fmt"

	firestoredb "cloud.google.com/go/firestore"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/common"
	"github.com/ternarybob/reelscan/internal/interfaces"
)

// Manager owns the Firestore client and hands out storage interfaces.
type Manager struct {
	client *firestoredb.Client
	cache  *CacheStorage
	jobs   *JobStorage
	logger arbor.ILogger
}

// NewManager connects to Firestore and wires the storage
// implementations.
func NewManager(ctx context.Context, config *common.Config, logger arbor.ILogger) (*Manager, error) {
	fc := config.Storage.Firestore
	if fc.ProjectID == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}

	client, err := firestoredb.NewClient(ctx, fc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	logger.Debug().Str("project", fc.ProjectID).Msg("Firestore client initialized")

	return &Manager{
		client: client,
		cache:  NewCacheStorage(client, fc.CacheCollection, config.Cache.TTLHours, logger),
		jobs:   NewJobStorage(client, fc.JobsCollection, fc.ResultsCollection, config.Queue.MaxAttempts, logger),
		logger: logger,
	}, nil
}

// CacheStorage returns the cache store.
func (m *Manager) CacheStorage() interfaces.CacheStorage {
	return m.cache
}

// JobStorage returns the job queue store.
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

// Close closes the Firestore client.
func (m *Manager) Close() error {
	return m.client.Close()
}
