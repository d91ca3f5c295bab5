package firestore

import (
	"context"
	"fmt"
	"time"

	firestoredb "cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// claimSampleSize bounds how many of the oldest pending jobs a
	// single claim pass inspects.
	claimSampleSize = 5

	// claimRetries bounds internal re-sampling when every sampled job
	// was claimed by a concurrent worker.
	claimRetries = 3
)

// JobStorage implements the job queue on Firestore. Status transitions
// run inside transactions that re-read the document, so concurrent
// workers racing for one job serialize on the stored status.
type JobStorage struct {
	client      *firestoredb.Client
	jobs        string
	results     string
	maxAttempts int
	logger      arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(client *firestoredb.Client, jobsCollection, resultsCollection string, maxAttempts int, logger arbor.ILogger) *JobStorage {
	if jobsCollection == "" {
		jobsCollection = "video_jobs"
	}
	if resultsCollection == "" {
		resultsCollection = "video_results"
	}
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}
	return &JobStorage{
		client:      client,
		jobs:        jobsCollection,
		results:     resultsCollection,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

func (s *JobStorage) jobDoc(jobID string) *firestoredb.DocumentRef {
	return s.client.Collection(s.jobs).Doc(jobID)
}

func (s *JobStorage) resultDoc(jobID string) *firestoredb.DocumentRef {
	return s.client.Collection(s.results).Doc(jobID)
}

// Enqueue creates a pending job and returns its ID.
func (s *JobStorage) Enqueue(ctx context.Context, url, requestID, locale, priority string) (string, error) {
	job := models.NewJob(url, requestID, locale, priority, s.maxAttempts)
	if _, err := s.jobDoc(job.ID).Create(ctx, job); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			// Same request enqueued twice within one millisecond
			job.ID = fmt.Sprintf("%s_%d", requestID, time.Now().UTC().UnixMilli()+1)
			if _, err := s.jobDoc(job.ID).Create(ctx, job); err != nil {
				return "", fmt.Errorf("failed to enqueue job: %w", err)
			}
		} else {
			return "", fmt.Errorf("failed to enqueue job: %w", err)
		}
	}

	s.logger.Debug().Str("job_id", job.ID).Str("url", url).Msg("Job enqueued")
	return job.ID, nil
}

// FindByURL returns the most recent job for a URL in the given status.
func (s *JobStorage) FindByURL(ctx context.Context, url string, jobStatus models.JobStatus, locale string) (*models.Job, error) {
	query := s.client.Collection(s.jobs).Query.Where("url", "==", url)
	if jobStatus != "" {
		query = query.Where("status", "==", string(jobStatus))
	}
	if locale != "" {
		query = query.Where("locale", "==", locale)
	}
	query = query.OrderBy("createdAt", firestoredb.Desc).Limit(1)

	iter := query.Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job by url: %w", err)
	}

	var job models.Job
	if err := snap.DataTo(&job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// ClaimNext leases the oldest claimable pending job for the worker. The
// pending sample is read outside a transaction; each candidate claim
// re-reads the document transactionally, so a job lost to another
// worker simply moves the scan to the next candidate.
func (s *JobStorage) ClaimNext(ctx context.Context, workerID string) (*models.Job, error) {
	for attempt := 0; attempt < claimRetries; attempt++ {
		ids, err := s.samplePending(ctx)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}

		for _, jobID := range ids {
			job, claimed, err := s.tryClaim(ctx, jobID, workerID)
			if err != nil {
				s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Claim transaction failed")
				continue
			}
			if claimed {
				return job, nil
			}
		}
	}
	return nil, nil
}

func (s *JobStorage) samplePending(ctx context.Context) ([]string, error) {
	query := s.client.Collection(s.jobs).Query.
		Where("status", "==", string(models.JobStatusPending)).
		OrderBy("createdAt", firestoredb.Asc).
		Limit(claimSampleSize)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query pending jobs: %w", err)
		}
		ids = append(ids, snap.Ref.ID)
	}
	return ids, nil
}

func (s *JobStorage) tryClaim(ctx context.Context, jobID, workerID string) (*models.Job, bool, error) {
	var claimed models.Job
	won := false

	err := s.client.RunTransaction(ctx, func(ctx context.Context, t *firestoredb.Transaction) error {
		snap, err := t.Get(s.jobDoc(jobID))
		if err != nil {
			return err
		}
		var job models.Job
		if err := snap.DataTo(&job); err != nil {
			return err
		}
		if job.Status != models.JobStatusPending {
			// Lost the race; not an error
			return nil
		}

		now := time.Now().UTC()
		job.Status = models.JobStatusProcessing
		job.WorkerID = workerID
		job.StartedAt = &now
		job.Attempts++

		if err := t.Set(s.jobDoc(jobID), job); err != nil {
			return err
		}
		claimed = job
		won = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !won {
		return nil, false, nil
	}
	return &claimed, true, nil
}

// MarkComplete writes the result document, then completes the job in a
// transaction. When either write fails the job stays processing and the
// error propagates so the caller leaves the job unacknowledged.
func (s *JobStorage) MarkComplete(ctx context.Context, jobID string, payload models.Content) error {
	result := &models.JobResult{
		JobID:       jobID,
		Payload:     payload,
		CompletedAt: time.Now().UTC(),
		Status:      models.JobStatusCompleted,
	}
	if _, err := s.resultDoc(jobID).Set(ctx, result); err != nil {
		return fmt.Errorf("failed to write job result: %w", err)
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, t *firestoredb.Transaction) error {
		snap, err := t.Get(s.jobDoc(jobID))
		if err != nil {
			return err
		}
		var job models.Job
		if err := snap.DataTo(&job); err != nil {
			return err
		}
		if !models.ValidTransition(job.Status, models.JobStatusCompleted) {
			return fmt.Errorf("illegal transition %s -> completed", job.Status)
		}

		now := time.Now().UTC()
		job.Status = models.JobStatusCompleted
		job.CompletedAt = &now
		return t.Set(s.jobDoc(jobID), job)
	})
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}

	s.logger.Debug().Str("job_id", jobID).Msg("Job completed")
	return nil
}

// MarkFailed records a failure: back to pending while attempts remain,
// terminal failed otherwise.
func (s *JobStorage) MarkFailed(ctx context.Context, jobID, errorString string) error {
	return s.fail(ctx, jobID, errorString, false)
}

// FailPermanently forces the job straight to terminal failed.
func (s *JobStorage) FailPermanently(ctx context.Context, jobID, errorString string) error {
	return s.fail(ctx, jobID, errorString, true)
}

func (s *JobStorage) fail(ctx context.Context, jobID, errorString string, permanent bool) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, t *firestoredb.Transaction) error {
		snap, err := t.Get(s.jobDoc(jobID))
		if err != nil {
			return err
		}
		var job models.Job
		if err := snap.DataTo(&job); err != nil {
			return err
		}
		if job.IsTerminal() {
			return fmt.Errorf("illegal transition %s -> failed", job.Status)
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
		} else {
			job.Status = models.JobStatusPending
		}
		return t.Set(s.jobDoc(jobID), job)
	})
	if err != nil {
		return fmt.Errorf("failed to record job failure for %s: %w", jobID, err)
	}
	return nil
}

// GetResult joins the queue and results views for a job ID.
func (s *JobStorage) GetResult(ctx context.Context, jobID string) (*models.JobStatusView, error) {
	snap, err := s.jobDoc(jobID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return &models.JobStatusView{JobID: jobID, Status: models.StatusNotFound}, nil
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	var job models.Job
	if err := snap.DataTo(&job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}

	view := &models.JobStatusView{
		JobID:     jobID,
		Status:    string(job.Status),
		CreatedAt: &job.CreatedAt,
		Attempts:  job.Attempts,
		LastError: job.LastError,
	}

	if job.Status == models.JobStatusCompleted {
		resultSnap, err := s.resultDoc(jobID).Get(ctx)
		if err == nil {
			var result models.JobResult
			if err := resultSnap.DataTo(&result); err == nil {
				view.Result = &result.Payload
				view.CompletedAt = &result.CompletedAt
			}
		} else if status.Code(err) != codes.NotFound {
			return nil, fmt.Errorf("failed to load job result: %w", err)
		}
	}

	return view, nil
}

// CleanupOld deletes terminal jobs created before the retention window,
// together with their results, in bulk-writer batches.
func (s *JobStorage) CleanupOld(ctx context.Context, olderThan time.Duration, batchSize int) (int, error) {
	if batchSize <= 0 || batchSize > 250 {
		batchSize = 250
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	deleted := 0

	for _, terminal := range []models.JobStatus{models.JobStatusCompleted, models.JobStatusFailed} {
		for {
			if err := ctx.Err(); err != nil {
				return deleted, err
			}

			query := s.client.Collection(s.jobs).Query.
				Where("status", "==", string(terminal)).
				Where("createdAt", "<", cutoff).
				Limit(batchSize)

			iter := query.Documents(ctx)
			var refs []*firestoredb.DocumentRef
			for {
				snap, err := iter.Next()
				if err == iterator.Done {
					break
				}
				if err != nil {
					iter.Stop()
					return deleted, fmt.Errorf("failed to query old jobs: %w", err)
				}
				refs = append(refs, snap.Ref)
			}
			iter.Stop()

			if len(refs) == 0 {
				break
			}

			bw := s.client.BulkWriter(ctx)
			for _, ref := range refs {
				if _, err := bw.Delete(ref); err != nil {
					bw.End()
					return deleted, fmt.Errorf("failed to delete job %s: %w", ref.ID, err)
				}
				if _, err := bw.Delete(s.resultDoc(ref.ID)); err != nil {
					bw.End()
					return deleted, fmt.Errorf("failed to delete result %s: %w", ref.ID, err)
				}
			}
			bw.End()
			deleted += len(refs)
		}
	}
	return deleted, nil
}

// ReapStale promotes processing jobs with leases older than the given
// age back to pending.
func (s *JobStorage) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	query := s.client.Collection(s.jobs).Query.
		Where("status", "==", string(models.JobStatusProcessing)).
		Where("startedAt", "<", cutoff)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to query stale jobs: %w", err)
		}
		ids = append(ids, snap.Ref.ID)
	}

	reaped := 0
	for _, jobID := range ids {
		err := s.client.RunTransaction(ctx, func(ctx context.Context, t *firestoredb.Transaction) error {
			snap, err := t.Get(s.jobDoc(jobID))
			if err != nil {
				return err
			}
			var job models.Job
			if err := snap.DataTo(&job); err != nil {
				return err
			}
			if job.Status != models.JobStatusProcessing || job.StartedAt == nil || !job.StartedAt.Before(cutoff) {
				return nil
			}
			job.Status = models.JobStatusPending
			job.WorkerID = ""
			return t.Set(s.jobDoc(jobID), job)
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to reap stale job")
			continue
		}
		reaped++
		s.logger.Warn().Str("job_id", jobID).Msg("Reaped stale processing job")
	}
	return reaped, nil
}

// PendingCount reports the queue depth.
func (s *JobStorage) PendingCount(ctx context.Context) (int, error) {
	// Aggregation queries avoid streaming every pending document
	query := s.client.Collection(s.jobs).Query.
		Where("status", "==", string(models.JobStatusPending))
	result, err := query.NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}

	value, ok := result["count"]
	if !ok {
		return 0, fmt.Errorf("count aggregation missing from result")
	}
	countValue, ok := value.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count aggregation type %T", value)
	}
	return int(countValue.GetIntegerValue()), nil
}
