package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const (
	// claimSampleSize bounds how many of the oldest pending jobs a
	// single claim pass inspects.
	claimSampleSize = 5

	// claimRetries bounds internal re-sampling when every sampled job
	// was claimed by a concurrent worker.
	claimRetries = 3
)

// JobStorage implements the job queue on Badger. The embedded store is
// single-process, so a mutex stands in for the per-document CAS the
// shared backend uses; the claim/transition contract is identical.
type JobStorage struct {
	db          *BadgerDB
	maxAttempts int
	logger      arbor.ILogger

	mu sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, maxAttempts int, logger arbor.ILogger) *JobStorage {
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}
	return &JobStorage{
		db:          db,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Enqueue creates a pending job and returns its ID.
func (s *JobStorage) Enqueue(ctx context.Context, url, requestID, locale, priority string) (string, error) {
	job := models.NewJob(url, requestID, locale, priority, s.maxAttempts)

	err := s.db.Store().Insert(job.ID, job)
	if err == badgerhold.ErrKeyExists {
		// Same request enqueued twice within one millisecond
		job.ID = fmt.Sprintf("%s_%d", requestID, time.Now().UTC().UnixMilli()+1)
		err = s.db.Store().Insert(job.ID, job)
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Debug().Str("job_id", job.ID).Str("url", url).Msg("Job enqueued")
	return job.ID, nil
}

// FindByURL returns the most recent job for a URL in the given status.
func (s *JobStorage) FindByURL(ctx context.Context, url string, status models.JobStatus, locale string) (*models.Job, error) {
	query := badgerhold.Where("URL").Eq(url)
	if status != "" {
		query = query.And("Status").Eq(status)
	}
	if locale != "" {
		query = query.And("Locale").Eq(locale)
	}
	query = query.SortBy("CreatedAt").Reverse().Limit(1)

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to find job by url: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// ClaimNext leases the oldest claimable pending job for the worker.
func (s *JobStorage) ClaimNext(ctx context.Context, workerID string) (*models.Job, error) {
	for attempt := 0; attempt < claimRetries; attempt++ {
		var candidates []models.Job
		query := badgerhold.Where("Status").Eq(models.JobStatusPending).SortBy("CreatedAt").Limit(claimSampleSize)
		if err := s.db.Store().Find(&candidates, query); err != nil {
			return nil, fmt.Errorf("failed to query pending jobs: %w", err)
		}
		if len(candidates) == 0 {
			return nil, nil
		}

		for i := range candidates {
			job, ok := s.tryClaim(candidates[i].ID, workerID)
			if ok {
				return job, nil
			}
		}
		// Every sampled job was taken between query and claim; re-sample.
	}
	return nil, nil
}

// tryClaim performs the pending->processing transition for one job,
// re-checking the stored status under the lock.
func (s *JobStorage) tryClaim(jobID, workerID string) (*models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		return nil, false
	}
	if job.Status != models.JobStatusPending {
		return nil, false
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusProcessing
	job.WorkerID = workerID
	job.StartedAt = &now
	job.Attempts++

	if err := s.db.Store().Update(jobID, &job); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to claim job")
		return nil, false
	}
	return &job, true
}

// MarkComplete writes the result document, then completes the job. When
// either write fails the job stays processing and the error propagates.
func (s *JobStorage) MarkComplete(ctx context.Context, jobID string, payload models.Content) error {
	result := &models.JobResult{
		JobID:       jobID,
		Payload:     payload,
		CompletedAt: time.Now().UTC(),
		Status:      models.JobStatusCompleted,
	}
	if err := s.db.Store().Upsert(jobID, result); err != nil {
		return fmt.Errorf("failed to write job result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		return fmt.Errorf("failed to load job for completion: %w", err)
	}
	if !models.ValidTransition(job.Status, models.JobStatusCompleted) {
		return fmt.Errorf("illegal transition %s -> completed for job %s", job.Status, jobID)
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &now
	if err := s.db.Store().Update(jobID, &job); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	s.logger.Debug().Str("job_id", jobID).Msg("Job completed")
	return nil
}

// MarkFailed records a failure: back to pending while attempts remain,
// terminal failed otherwise. The lease is released either way.
func (s *JobStorage) MarkFailed(ctx context.Context, jobID, errorString string) error {
	return s.fail(jobID, errorString, false)
}

// FailPermanently forces the job straight to terminal failed.
func (s *JobStorage) FailPermanently(ctx context.Context, jobID, errorString string) error {
	return s.fail(jobID, errorString, true)
}

func (s *JobStorage) fail(jobID, errorString string, permanent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		return fmt.Errorf("failed to load job for failure: %w", err)
	}
	if job.IsTerminal() {
		return fmt.Errorf("illegal transition %s -> failed for job %s", job.Status, jobID)
	}

	if permanent {
		job.Attempts = job.MaxAttempts
	}

	job.LastError = errorString
	job.WorkerID = ""

	now := time.Now().UTC()
	if job.Attempts >= job.MaxAttempts {
		job.Status = models.JobStatusFailed
		job.FailedAt = &now
		s.logger.Debug().Str("job_id", jobID).Int("attempts", job.Attempts).Msg("Job failed permanently")
	} else {
		job.Status = models.JobStatusPending
		s.logger.Debug().Str("job_id", jobID).Int("attempts", job.Attempts).Msg("Job requeued for retry")
	}

	if err := s.db.Store().Update(jobID, &job); err != nil {
		return fmt.Errorf("failed to record job failure: %w", err)
	}
	return nil
}

// GetResult joins the queue and results views for a job ID.
func (s *JobStorage) GetResult(ctx context.Context, jobID string) (*models.JobStatusView, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return &models.JobStatusView{JobID: jobID, Status: models.StatusNotFound}, nil
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	view := &models.JobStatusView{
		JobID:     jobID,
		Status:    string(job.Status),
		CreatedAt: &job.CreatedAt,
		Attempts:  job.Attempts,
		LastError: job.LastError,
	}

	if job.Status == models.JobStatusCompleted {
		var result models.JobResult
		if err := s.db.Store().Get(jobID, &result); err == nil {
			view.Result = &result.Payload
			view.CompletedAt = &result.CompletedAt
		} else if err != badgerhold.ErrNotFound {
			return nil, fmt.Errorf("failed to load job result: %w", err)
		}
	}

	return view, nil
}

// CleanupOld deletes terminal jobs created before the retention window,
// together with their results, in batches.
func (s *JobStorage) CleanupOld(ctx context.Context, olderThan time.Duration, batchSize int) (int, error) {
	if batchSize <= 0 || batchSize > 250 {
		batchSize = 250
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	deleted := 0

	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		var batch []models.Job
		query := badgerhold.Where("Status").In(models.JobStatusCompleted, models.JobStatusFailed).
			And("CreatedAt").Lt(cutoff).Limit(batchSize)
		if err := s.db.Store().Find(&batch, query); err != nil {
			return deleted, fmt.Errorf("failed to query old jobs: %w", err)
		}
		if len(batch) == 0 {
			return deleted, nil
		}

		for i := range batch {
			if err := s.db.Store().Delete(batch[i].ID, &models.Job{}); err != nil && err != badgerhold.ErrNotFound {
				return deleted, fmt.Errorf("failed to delete job %s: %w", batch[i].ID, err)
			}
			if err := s.db.Store().Delete(batch[i].ID, &models.JobResult{}); err != nil && err != badgerhold.ErrNotFound {
				return deleted, fmt.Errorf("failed to delete result %s: %w", batch[i].ID, err)
			}
			deleted++
		}
	}
}

// ReapStale promotes processing jobs with leases older than the given
// age back to pending. Attempts are not decremented; a repeatedly
// reaped job eventually exhausts its retries.
func (s *JobStorage) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	// StartedAt is a pointer field, so the age filter happens in code
	var processing []models.Job
	if err := s.db.Store().Find(&processing, badgerhold.Where("Status").Eq(models.JobStatusProcessing)); err != nil {
		return 0, fmt.Errorf("failed to query stale jobs: %w", err)
	}

	var stale []models.Job
	for i := range processing {
		if processing[i].StartedAt != nil && processing[i].StartedAt.Before(cutoff) {
			stale = append(stale, processing[i])
		}
	}

	reaped := 0
	for i := range stale {
		s.mu.Lock()
		var job models.Job
		if err := s.db.Store().Get(stale[i].ID, &job); err == nil &&
			job.Status == models.JobStatusProcessing &&
			job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			job.Status = models.JobStatusPending
			job.WorkerID = ""
			if err := s.db.Store().Update(job.ID, &job); err == nil {
				reaped++
				s.logger.Warn().Str("job_id", job.ID).Msg("Reaped stale processing job")
			}
		}
		s.mu.Unlock()
	}
	return reaped, nil
}

// PendingCount reports the queue depth.
func (s *JobStorage) PendingCount(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, badgerhold.Where("Status").Eq(models.JobStatusPending))
	if err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return int(count), nil
}
