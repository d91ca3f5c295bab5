package handlers

import (
	"context"

	"github.com/ternarybob/reelscan/internal/dispatch"
	"github.com/ternarybob/reelscan/internal/models"
)

// Dispatcher is the submission surface the video handlers route to.
type Dispatcher interface {
	Submit(ctx context.Context, url, locale string) (*dispatch.Result, error)
	JobStatus(ctx context.Context, jobID string) (*models.JobStatusView, error)
	QueueDepth(ctx context.Context) (int, error)
	ActiveDirect() int
}
