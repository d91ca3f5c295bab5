// Package dispatch is the per-request entry point: cache read, dedupe
// against queued and in-flight jobs, then inline processing or enqueue.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/common"
	"github.com/ternarybob/reelscan/internal/interfaces"
	"github.com/ternarybob/reelscan/internal/models"
)

// Queued result statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
)

// Result is what Submit returns: either the content payload (direct hit
// or inline compute) or a queued handle the caller polls.
type Result struct {
	Payload  *models.Content `json:"payload,omitempty"`
	Status   string          `json:"status,omitempty"`
	JobID    string          `json:"jobId,omitempty"`
	CheckURL string          `json:"checkUrl,omitempty"`
}

// Queued reports whether the result is a job handle rather than a
// payload.
func (r *Result) Queued() bool {
	return r.Payload == nil
}

// Dispatcher implements the cache-read, dedupe, direct-or-enqueue
// decision for each submitted URL.
type Dispatcher struct {
	cache         interfaces.CacheStorage
	jobs          interfaces.JobStorage
	pipeline      interfaces.Pipeline
	gate          *AdmissionGate
	directTimeout time.Duration
	logger        arbor.ILogger
}

// NewDispatcher creates a dispatcher over the given stores and pipeline.
func NewDispatcher(cache interfaces.CacheStorage, jobs interfaces.JobStorage, pipeline interfaces.Pipeline, maxDirect int, directTimeout time.Duration, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		cache:         cache,
		jobs:          jobs,
		pipeline:      pipeline,
		gate:          NewAdmissionGate(maxDirect),
		directTimeout: directTimeout,
		logger:        logger,
	}
}

// Submit handles one URL submission. Dedupe runs before admission: a
// URL that is already queued or in flight gets its existing job handle
// even when inline capacity is available.
func (d *Dispatcher) Submit(ctx context.Context, url, locale string) (*Result, error) {
	requestID := common.NewRequestID()
	fingerprint := common.Fingerprint(url, locale)

	if entry, ok := d.cache.Get(ctx, fingerprint); ok {
		payload := entry.Payload.Clone()
		payload.Cached = true
		d.logger.Debug().Str("fingerprint", fingerprint).Str("request_id", requestID).Msg("Cache hit")
		return &Result{Payload: payload}, nil
	}

	if pending, err := d.jobs.FindByURL(ctx, url, models.JobStatusPending, locale); err != nil {
		return nil, err
	} else if pending != nil {
		d.logger.Debug().Str("job_id", pending.ID).Msg("Duplicate submission joined pending job")
		return queuedResult(pending.ID, StatusQueued), nil
	}

	if inflight, err := d.jobs.FindByURL(ctx, url, models.JobStatusProcessing, locale); err != nil {
		return nil, err
	} else if inflight != nil {
		d.logger.Debug().Str("job_id", inflight.ID).Msg("Duplicate submission joined in-flight job")
		return queuedResult(inflight.ID, StatusProcessing), nil
	}

	if d.gate.TryAcquire() {
		payload, err := d.runDirect(ctx, url, requestID, locale)
		if err == nil {
			return &Result{Payload: payload}, nil
		}
		// Client errors go back to the caller; queueing them would only
		// burn worker attempts on the same rejection.
		switch models.ErrorKindOf(err) {
		case models.ErrKindValidation, models.ErrKindUnsupportedPlatform:
			return nil, err
		}
		d.logger.Info().
			Str("request_id", requestID).
			Str("error", models.ErrorString(err)).
			Msg("Direct processing failed, falling back to queue")
	}

	jobID, err := d.jobs.Enqueue(ctx, url, requestID, locale, "normal")
	if err != nil {
		return nil, err
	}
	return queuedResult(jobID, StatusQueued), nil
}

// runDirect executes the pipeline inline under the direct deadline.
func (d *Dispatcher) runDirect(ctx context.Context, url, requestID, locale string) (*models.Content, error) {
	defer d.gate.Release()

	ctx, cancel := context.WithTimeout(ctx, d.directTimeout)
	defer cancel()

	payload, err := d.pipeline.Process(ctx, url, requestID, locale)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, models.NewProcessingError(models.ErrKindTimeout, "direct processing deadline exceeded", err)
		}
		return nil, err
	}
	return payload, nil
}

// JobStatus returns the joined queue and results view for a job ID.
func (d *Dispatcher) JobStatus(ctx context.Context, jobID string) (*models.JobStatusView, error) {
	return d.jobs.GetResult(ctx, jobID)
}

// QueueDepth reports the pending job count for health reporting.
func (d *Dispatcher) QueueDepth(ctx context.Context) (int, error) {
	return d.jobs.PendingCount(ctx)
}

// ActiveDirect reports the current inline execution count.
func (d *Dispatcher) ActiveDirect() int {
	return d.gate.Active()
}

func queuedResult(jobID, status string) *Result {
	return &Result{
		Status:   status,
		JobID:    jobID,
		CheckURL: "/api/videos/status/" + jobID,
	}
}
