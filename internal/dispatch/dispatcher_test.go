package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/reelscan/internal/common"
	"github.com/ternarybob/reelscan/internal/models"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]*models.CacheEntry{}}
}

func (c *memCache) Get(ctx context.Context, fingerprint string) (*models.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fingerprint]
	if !ok || entry.IsExpired(time.Now().UTC()) {
		return nil, false
	}
	return entry, true
}

func (c *memCache) Put(ctx context.Context, fingerprint string, payload models.Content, metadata map[string]interface{}, sourceURL, locale string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = models.NewCacheEntry(fingerprint, payload, metadata, sourceURL, locale, ttl)
	return nil
}

func (c *memCache) Invalidate(ctx context.Context, fingerprint string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[fingerprint]
	delete(c.entries, fingerprint)
	return ok, nil
}

func (c *memCache) Stats(ctx context.Context, sampleLimit int) (*models.CacheStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &models.CacheStats{TotalSampled: len(c.entries)}, nil
}

type memJobs struct {
	mu       sync.Mutex
	jobs     map[string]*models.Job
	results  map[string]*models.JobResult
	enqueues int
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[string]*models.Job{}, results: map[string]*models.JobResult{}}
}

func (s *memJobs) Enqueue(ctx context.Context, url, requestID, locale, priority string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueues++
	job := models.NewJob(url, requestID, locale, priority, models.DefaultMaxAttempts)
	job.ID = fmt.Sprintf("%s_%d", requestID, s.enqueues)
	s.jobs[job.ID] = job
	return job.ID, nil
}

func (s *memJobs) FindByURL(ctx context.Context, url string, status models.JobStatus, locale string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest *models.Job
	for _, job := range s.jobs {
		if job.URL != url || job.Status != status {
			continue
		}
		if locale != "" && job.Locale != locale {
			continue
		}
		if newest == nil || job.CreatedAt.After(newest.CreatedAt) {
			newest = job
		}
	}
	return newest, nil
}

func (s *memJobs) ClaimNext(ctx context.Context, workerID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *models.Job
	for _, job := range s.jobs {
		if job.Status != models.JobStatusPending {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	oldest.Status = models.JobStatusProcessing
	oldest.WorkerID = workerID
	oldest.StartedAt = &now
	oldest.Attempts++
	copied := *oldest
	return &copied, nil
}

func (s *memJobs) MarkComplete(ctx context.Context, jobID string, payload models.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	now := time.Now().UTC()
	s.results[jobID] = &models.JobResult{JobID: jobID, Payload: payload, CompletedAt: now, Status: models.JobStatusCompleted}
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &now
	return nil
}

func (s *memJobs) MarkFailed(ctx context.Context, jobID, errorString string) error {
	return s.fail(jobID, errorString, false)
}

func (s *memJobs) FailPermanently(ctx context.Context, jobID, errorString string) error {
	return s.fail(jobID, errorString, true)
}

func (s *memJobs) fail(jobID, errorString string, permanent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
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
	return nil
}

func (s *memJobs) GetResult(ctx context.Context, jobID string) (*models.JobStatusView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return &models.JobStatusView{JobID: jobID, Status: models.StatusNotFound}, nil
	}
	view := &models.JobStatusView{
		JobID:     jobID,
		Status:    string(job.Status),
		CreatedAt: &job.CreatedAt,
		Attempts:  job.Attempts,
		LastError: job.LastError,
	}
	if result, ok := s.results[jobID]; ok {
		view.Result = &result.Payload
		view.CompletedAt = &result.CompletedAt
	}
	return view, nil
}

func (s *memJobs) CleanupOld(ctx context.Context, olderThan time.Duration, batchSize int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	deleted := 0
	for id, job := range s.jobs {
		if job.IsTerminal() && job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			delete(s.results, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memJobs) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	reaped := 0
	for _, job := range s.jobs {
		if job.Status == models.JobStatusProcessing && job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			job.Status = models.JobStatusPending
			job.WorkerID = ""
			reaped++
		}
	}
	return reaped, nil
}

func (s *memJobs) PendingCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, job := range s.jobs {
		if job.Status == models.JobStatusPending {
			count++
		}
	}
	return count, nil
}

// blockingPipeline lets tests hold inline executions open to fill the
// admission gate.
type blockingPipeline struct {
	payload *models.Content
	err     error
	release chan struct{}
	started chan struct{}
}

func (p *blockingPipeline) Process(ctx context.Context, url, requestID, locale string) (*models.Content, error) {
	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.payload.Clone(), nil
}

func newDispatcher(cache *memCache, jobs *memJobs, pipe *blockingPipeline, maxDirect int, timeout time.Duration) *Dispatcher {
	return NewDispatcher(cache, jobs, pipe, maxDirect, timeout, common.GetLogger())
}

func TestSubmitCacheHit(t *testing.T) {
	cache := newMemCache()
	jobs := newMemJobs()
	url := "https://www.tiktok.com/@user/video/1"

	require.NoError(t, cache.Put(context.Background(), common.Fingerprint(url, ""),
		models.Content{Title: "stored"}, nil, url, "", time.Hour))

	d := newDispatcher(cache, jobs, &blockingPipeline{payload: &models.Content{Title: "fresh"}}, 15, time.Second)

	result, err := d.Submit(context.Background(), url, "")
	require.NoError(t, err)
	require.False(t, result.Queued())
	assert.Equal(t, "stored", result.Payload.Title)
	assert.True(t, result.Payload.Cached)
	assert.Equal(t, 0, jobs.enqueues, "cache hit must not touch the queue")
}

func TestSubmitCacheHitDoesNotMutateStoredEntry(t *testing.T) {
	cache := newMemCache()
	url := "https://www.tiktok.com/@user/video/1"
	fp := common.Fingerprint(url, "")
	require.NoError(t, cache.Put(context.Background(), fp, models.Content{Title: "stored"}, nil, url, "", time.Hour))

	d := newDispatcher(cache, newMemJobs(), &blockingPipeline{payload: &models.Content{Title: "fresh"}}, 15, time.Second)

	_, err := d.Submit(context.Background(), url, "")
	require.NoError(t, err)

	entry, ok := cache.Get(context.Background(), fp)
	require.True(t, ok)
	assert.False(t, entry.Payload.Cached, "stored payload must stay unmarked")
}

func TestSubmitDirectSuccess(t *testing.T) {
	d := newDispatcher(newMemCache(), newMemJobs(), &blockingPipeline{payload: &models.Content{Title: "fresh"}}, 15, time.Second)

	result, err := d.Submit(context.Background(), "https://www.tiktok.com/@user/video/2", "")
	require.NoError(t, err)
	require.False(t, result.Queued())
	assert.Equal(t, "fresh", result.Payload.Title)
	assert.False(t, result.Payload.Cached)
	assert.Equal(t, 0, d.ActiveDirect(), "slot released after inline run")
}

func TestSubmitDedupePendingBeforeAdmission(t *testing.T) {
	jobs := newMemJobs()
	url := "https://www.tiktok.com/@user/video/3"
	jobID, err := jobs.Enqueue(context.Background(), url, "req_a", "", "normal")
	require.NoError(t, err)

	d := newDispatcher(newMemCache(), jobs, &blockingPipeline{payload: &models.Content{Title: "fresh"}}, 15, time.Second)

	result, err := d.Submit(context.Background(), url, "")
	require.NoError(t, err)
	require.True(t, result.Queued())
	assert.Equal(t, jobID, result.JobID)
	assert.Equal(t, StatusQueued, result.Status)
	assert.Equal(t, "/api/videos/status/"+jobID, result.CheckURL)
	assert.Equal(t, 1, jobs.enqueues, "duplicate submission must not enqueue again")
}

func TestSubmitDedupeInFlight(t *testing.T) {
	jobs := newMemJobs()
	url := "https://www.tiktok.com/@user/video/4"
	jobID, err := jobs.Enqueue(context.Background(), url, "req_a", "", "normal")
	require.NoError(t, err)
	_, err = jobs.ClaimNext(context.Background(), "worker-test-1")
	require.NoError(t, err)

	d := newDispatcher(newMemCache(), jobs, &blockingPipeline{payload: &models.Content{Title: "fresh"}}, 15, time.Second)

	result, err := d.Submit(context.Background(), url, "")
	require.NoError(t, err)
	require.True(t, result.Queued())
	assert.Equal(t, jobID, result.JobID)
	assert.Equal(t, StatusProcessing, result.Status)
}

func TestSubmitLocaleScopedDedupe(t *testing.T) {
	jobs := newMemJobs()
	url := "https://www.tiktok.com/@user/video/5"
	_, err := jobs.Enqueue(context.Background(), url, "req_a", "en", "normal")
	require.NoError(t, err)

	d := newDispatcher(newMemCache(), jobs, &blockingPipeline{payload: &models.Content{Title: "fresh"}}, 15, time.Second)

	// Different locale is a different unit of work.
	result, err := d.Submit(context.Background(), url, "de")
	require.NoError(t, err)
	require.False(t, result.Queued())
}

func TestSubmitAdmissionCeiling(t *testing.T) {
	const maxDirect = 3

	jobs := newMemJobs()
	pipe := &blockingPipeline{
		payload: &models.Content{Title: "slow"},
		release: make(chan struct{}),
		started: make(chan struct{}, maxDirect),
	}
	d := newDispatcher(newMemCache(), jobs, pipe, maxDirect, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < maxDirect; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			url := fmt.Sprintf("https://www.tiktok.com/@user/video/1%d", n)
			result, err := d.Submit(context.Background(), url, "")
			assert.NoError(t, err)
			assert.False(t, result.Queued())
		}(i)
	}

	for i := 0; i < maxDirect; i++ {
		<-pipe.started
	}
	assert.Equal(t, maxDirect, d.ActiveDirect())

	// Gate is full: the next submission goes straight to the queue.
	result, err := d.Submit(context.Background(), "https://www.tiktok.com/@user/video/99", "")
	require.NoError(t, err)
	require.True(t, result.Queued())
	assert.Equal(t, StatusQueued, result.Status)
	assert.Equal(t, 1, jobs.enqueues)

	close(pipe.release)
	wg.Wait()
	assert.Equal(t, 0, d.ActiveDirect())
}

func TestSubmitDirectTimeoutFallsBackToQueue(t *testing.T) {
	jobs := newMemJobs()
	pipe := &blockingPipeline{
		payload: &models.Content{Title: "never"},
		release: make(chan struct{}), // never released; the deadline fires first
	}
	d := newDispatcher(newMemCache(), jobs, pipe, 15, 30*time.Millisecond)

	result, err := d.Submit(context.Background(), "https://www.tiktok.com/@user/video/6", "")
	require.NoError(t, err)
	require.True(t, result.Queued())
	assert.Equal(t, 1, jobs.enqueues)
	assert.Equal(t, 0, d.ActiveDirect())
}

func TestSubmitDirectErrorFallsBackToQueue(t *testing.T) {
	jobs := newMemJobs()
	pipe := &blockingPipeline{err: models.FetchError("scrape api returned status 502", nil)}
	d := newDispatcher(newMemCache(), jobs, pipe, 15, time.Second)

	result, err := d.Submit(context.Background(), "https://www.tiktok.com/@user/video/7", "")
	require.NoError(t, err)
	require.True(t, result.Queued())
	assert.Equal(t, 1, jobs.enqueues)
}

func TestSubmitClientErrorIsNotEnqueued(t *testing.T) {
	jobs := newMemJobs()
	pipe := &blockingPipeline{err: models.UnsupportedPlatformError("youtube.com")}
	d := newDispatcher(newMemCache(), jobs, pipe, 15, time.Second)

	_, err := d.Submit(context.Background(), "https://youtube.com/watch?v=1", "")
	require.Error(t, err)
	assert.Equal(t, models.ErrKindUnsupportedPlatform, models.ErrorKindOf(err))
	assert.Equal(t, 0, jobs.enqueues)
	assert.Equal(t, 0, d.ActiveDirect())
}

func TestJobStatusViews(t *testing.T) {
	jobs := newMemJobs()
	d := newDispatcher(newMemCache(), jobs, &blockingPipeline{payload: &models.Content{Title: "x"}}, 15, time.Second)
	ctx := context.Background()

	view, err := d.JobStatus(ctx, "missing_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotFound, view.Status)

	url := "https://www.tiktok.com/@user/video/8"
	jobID, err := jobs.Enqueue(ctx, url, "req_b", "", "normal")
	require.NoError(t, err)

	view, err = d.JobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, string(models.JobStatusPending), view.Status)

	_, err = jobs.ClaimNext(ctx, "worker-test-1")
	require.NoError(t, err)
	require.NoError(t, jobs.MarkComplete(ctx, jobID, models.Content{Title: "done"}))

	view, err = d.JobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, string(models.JobStatusCompleted), view.Status)
	require.NotNil(t, view.Result)
	assert.Equal(t, "done", view.Result.Title)
	assert.NotNil(t, view.CompletedAt)
}

func TestAdmissionGate(t *testing.T) {
	gate := NewAdmissionGate(2)
	assert.True(t, gate.TryAcquire())
	assert.True(t, gate.TryAcquire())
	assert.False(t, gate.TryAcquire(), "gate at ceiling rejects")
	gate.Release()
	assert.True(t, gate.TryAcquire())
	gate.Release()
	gate.Release()
	gate.Release() // extra release must not underflow
	assert.Equal(t, 0, gate.Active())
}
