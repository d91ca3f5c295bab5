// Package badger implements the embedded storage backend on BadgerDB.
package badger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/common"
	"github.com/ternarybob/reelscan/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// Manager owns the Badger connection and hands out storage interfaces.
type Manager struct {
	db     *BadgerDB
	cache  *CacheStorage
	jobs   *JobStorage
	logger arbor.ILogger
	gcStop chan struct{}
	gcDone chan struct{}
}

// BadgerDB manages the Badger database connection
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// NewManager opens the embedded database and wires the storage
// implementations.
func NewManager(config *common.Config, logger arbor.ILogger) (*Manager, error) {
	db, err := NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		db:     db,
		cache:  NewCacheStorage(db, config.Cache.TTLHours, logger),
		jobs:   NewJobStorage(db, config.Queue.MaxAttempts, logger),
		logger: logger,
		gcStop: make(chan struct{}),
		gcDone: make(chan struct{}),
	}
	go m.valueLogGCLoop()
	return m, nil
}

// NewBadgerDB creates a new Badger database connection
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	// If reset_on_startup is enabled, delete the existing database
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			logger.Debug().Str("path", config.Path).Msg("Deleting existing database (reset_on_startup=true)")
			if err := os.RemoveAll(config.Path); err != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to delete database directory")
			}
		}
	}

	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("Opening Badger database connection")

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // Disable default badger logger to use arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("Badger database initialized")

	return &BadgerDB{store: store, logger: logger}, nil
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Badger returns the raw Badger handle for maintenance operations.
func (b *BadgerDB) Badger() *badgerdb.DB {
	return b.store.Badger()
}

// CacheStorage returns the cache store.
func (m *Manager) CacheStorage() interfaces.CacheStorage {
	return m.cache
}

// JobStorage returns the job queue store.
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

// Close stops maintenance and closes the database connection.
func (m *Manager) Close() error {
	close(m.gcStop)
	<-m.gcDone
	if m.db != nil && m.db.store != nil {
		return m.db.store.Close()
	}
	return nil
}

// valueLogGCLoop reclaims Badger value-log space periodically. Cache
// payloads carry base64 frames, so the value log grows quickly without
// this.
func (m *Manager) valueLogGCLoop() {
	defer close(m.gcDone)

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.gcStop:
			return
		case <-ticker.C:
			// RunValueLogGC reclaims at most one file per call
			for {
				if err := m.db.Badger().RunValueLogGC(0.5); err != nil {
					if err != badgerdb.ErrNoRewrite {
						m.logger.Debug().Err(err).Msg("Badger value log GC pass finished")
					}
					break
				}
			}
		}
	}
}
