// Package storage selects and wires the persistence backend.
package storage

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/common"
	"github.com/ternarybob/reelscan/internal/interfaces"
	"github.com/ternarybob/reelscan/internal/storage/badger"
	"github.com/ternarybob/reelscan/internal/storage/firestore"
)

// NewStorageManager creates the configured storage backend: "badger" for
// the embedded single-node store, "firestore" for the shared store that
// dispatchers and workers coordinate through in production.
func NewStorageManager(ctx context.Context, config *common.Config, logger arbor.ILogger) (interfaces.StorageManager, error) {
	switch config.Storage.Backend {
	case "badger":
		return badger.NewManager(config, logger)
	case "firestore":
		return firestore.NewManager(ctx, config, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", config.Storage.Backend)
	}
}
