package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/models"
)

func setupJobs(t *testing.T) *JobStorage {
	t.Helper()
	return NewJobStorage(setupDB(t), models.DefaultMaxAttempts, arbor.NewLogger())
}

func TestEnqueueAndFindByURL(t *testing.T) {
	jobs := setupJobs(t)
	ctx := context.Background()
	url := "https://tiktok.com/@u/video/1"

	jobID, err := jobs.Enqueue(ctx, url, "req_1", "en", "normal")
	require.NoError(t, err)
	assert.Contains(t, jobID, "req_1_")

	found, err := jobs.FindByURL(ctx, url, models.JobStatusPending, "en")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, jobID, found.ID)
	assert.Equal(t, models.JobStatusPending, found.Status)

	// Wrong status or locale finds nothing.
	found, err = jobs.FindByURL(ctx, url, models.JobStatusProcessing, "en")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = jobs.FindByURL(ctx, url, models.JobStatusPending, "de")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindByURLReturnsMostRecent(t *testing.T) {
	jobs := setupJobs(t)
	ctx := context.Background()
	url := "https://tiktok.com/@u/video/2"

	_, err := jobs.Enqueue(ctx, url, "req_old", "", "normal")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	newest, err := jobs.Enqueue(ctx, url, "req_new", "", "normal")
	require.NoError(t, err)

	found, err := jobs.FindByURL(ctx, url, models.JobStatusPending, "")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, newest, found.ID)
}

func TestClaimNext(t *testing.T) {
	jobs := setupJobs(t)
	ctx := context.Background()

	first, err := jobs.Enqueue(ctx, "https://tiktok.com/@u/video/3", "req_a", "", "normal")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = jobs.Enqueue(ctx, "https://tiktok.com/@u/video/4", "req_b", "", "normal")
	require.NoError(t, err)

	claimed, err := jobs.ClaimNext(ctx, "worker-test-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first, claimed.ID, "oldest pending job is claimed first")
	assert.Equal(t, models.JobStatusProcessing, claimed.Status)
	assert.Equal(t, "worker-test-1", claimed.WorkerID)
	assert.Equal(t, 1, claimed.Attempts)
	assert.NotNil(t, claimed.StartedAt)
}

func TestClaimNextSkipsClaimedJobs(t *testing.T) {
	jobs := setupJobs(t)
	ctx := context.Background()

	_, err := jobs.Enqueue(ctx, "https://tiktok.com/@u/video/5", "req_a", "", "normal")
	require.NoError(t, err)

	claimed, err := jobs.ClaimNext(ctx, "worker-test-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	second, err := jobs.ClaimNext(ctx, "worker-test-2")
	require.NoError(t, err)
	assert.Nil(t, second, "a leased job cannot be claimed twice")
}

func TestClaimNextEmptyQueue(t *testing.T) {
	jobs := setupJobs(t)

	claimed, err := jobs.ClaimNext(context.Background(), "worker-test-1")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestMarkComplete(t *testing.T) {
	jobs := setupJobs(t)
	ctx := context.Background()

	jobID, err := jobs.Enqueue(ctx, "https://tiktok.com/@u/video/6", "req_a", "", "normal")
	require.NoError(t, err)
	_, err = jobs.ClaimNext(ctx, "worker-test-1")
	require.NoError(t, err)

	require.NoError(t, jobs.MarkComplete(ctx, jobID, models.Content{Title: "done"}))

	view, err := jobs.GetResult(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, string(models.JobStatusCompleted), view.Status)
	require.NotNil(t, view.Result)
	assert.Equal(t, "done", view.Result.Title)
	assert.NotNil(t, view.CompletedAt)

	// Terminal jobs reject further transitions.
	assert.Error(t, jobs.MarkComplete(ctx, jobID, models.Content{Title: "again"}))
	assert.Error(t, jobs.MarkFailed(ctx, jobID, "late failure"))
}

func TestMarkCompleteWithoutClaim(t *testing.T) {
	jobs := setupJobs(t)
	ctx := context.Background()

	jobID, err := jobs.Enqueue(ctx, "https://tiktok.com/@u/video/7", "req_a", "", "normal")
	require.NoError(t, err)

	assert.Error(t, jobs.MarkComplete(ctx, jobID, models.Content{Title: "x"}), "pending -> completed is illegal")
}

func TestMarkFailedRequeuesUntilExhausted(t *testing.T) {
	jobs := setupJobs(t)
	ctx := context.Background()

	jobID, err := jobs.Enqueue(ctx, "https://tiktok.com/@u/video/8", "req_a", "", "normal")
	require.NoError(t, err)

	for attempt := 1; attempt < models.DefaultMaxAttempts; attempt++ {
		claimed, err := jobs.ClaimNext(ctx, "worker-test-1")
		require.NoError(t, err)
		require.NotNil(t, claimed)
		require.NoError(t, jobs.MarkFailed(ctx, jobID, "FetchError: scrape api returned status 502"))

		view, err := jobs.GetResult(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, string(models.JobStatusPending), view.Status, "attempt %d requeues", attempt)
		assert.Equal(t, attempt, view.Attempts)
	}

	// Final attempt exhausts the retries.
	claimed, err := jobs.ClaimNext(ctx, "worker-test-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, jobs.MarkFailed(ctx, jobID, "FetchError: scrape api returned status 502"))

	view, err := jobs.GetResult(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, string(models.JobStatusFailed), view.Status)
	assert.Equal(t, models.DefaultMaxAttempts, view.Attempts)
	assert.Contains(t, view.LastError, "FetchError")
}

func TestFailPermanently(t *testing.T) {
	jobs := setupJobs(t)
	ctx := context.Background()

	jobID, err := jobs.Enqueue(ctx, "https://youtube.com/watch?v=1", "req_a", "", "normal")
	require.NoError(t, err)
	_, err = jobs.ClaimNext(ctx, "worker-test-1")
	require.NoError(t, err)

	require.NoError(t, jobs.FailPermanently(ctx, jobID, "UnsupportedPlatformError: unsupported platform: youtube.com"))

	view, err := jobs.GetResult(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, string(models.JobStatusFailed), view.Status, "first attempt jumps straight to failed")
	assert.Equal(t, models.DefaultMaxAttempts, view.Attempts)
}

func TestGetResultUnknownJob(t *testing.T) {
	jobs := setupJobs(t)

	view, err := jobs.GetResult(context.Background(), "missing_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotFound, view.Status)
}

func TestCleanupOld(t *testing.T) {
	jobs := setupJobs(t)
	ctx := context.Background()

	oldID, err := jobs.Enqueue(ctx, "https://tiktok.com/@u/video/9", "req_old", "", "normal")
	require.NoError(t, err)
	_, err = jobs.ClaimNext(ctx, "worker-test-1")
	require.NoError(t, err)
	require.NoError(t, jobs.MarkComplete(ctx, oldID, models.Content{Title: "old"}))

	// Backdate the completed job past the retention window.
	var old models.Job
	require.NoError(t, jobs.db.Store().Get(oldID, &old))
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, jobs.db.Store().Update(oldID, &old))

	freshID, err := jobs.Enqueue(ctx, "https://tiktok.com/@u/video/10", "req_new", "", "normal")
	require.NoError(t, err)

	deleted, err := jobs.CleanupOld(ctx, 24*time.Hour, 250)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	view, err := jobs.GetResult(ctx, oldID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotFound, view.Status, "job and result are both removed")

	view, err = jobs.GetResult(ctx, freshID)
	require.NoError(t, err)
	assert.Equal(t, string(models.JobStatusPending), view.Status, "pending jobs survive GC regardless of age")
}

func TestReapStale(t *testing.T) {
	jobs := setupJobs(t)
	ctx := context.Background()

	jobID, err := jobs.Enqueue(ctx, "https://tiktok.com/@u/video/11", "req_a", "", "normal")
	require.NoError(t, err)
	_, err = jobs.ClaimNext(ctx, "worker-crashed-1")
	require.NoError(t, err)

	// Backdate the lease.
	var job models.Job
	require.NoError(t, jobs.db.Store().Get(jobID, &job))
	staleStart := time.Now().UTC().Add(-3 * time.Hour)
	job.StartedAt = &staleStart
	require.NoError(t, jobs.db.Store().Update(jobID, &job))

	reaped, err := jobs.ReapStale(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	view, err := jobs.GetResult(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, string(models.JobStatusPending), view.Status)
	assert.Equal(t, 1, view.Attempts, "reaping keeps the attempt count")
}

func TestReapStaleIgnoresFreshLeases(t *testing.T) {
	jobs := setupJobs(t)
	ctx := context.Background()

	_, err := jobs.Enqueue(ctx, "https://tiktok.com/@u/video/12", "req_a", "", "normal")
	require.NoError(t, err)
	_, err = jobs.ClaimNext(ctx, "worker-test-1")
	require.NoError(t, err)

	reaped, err := jobs.ReapStale(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, reaped)
}

func TestPendingCount(t *testing.T) {
	jobs := setupJobs(t)
	ctx := context.Background()

	count, err := jobs.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = jobs.Enqueue(ctx, "https://tiktok.com/@u/video/13", "req_a", "", "normal")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = jobs.Enqueue(ctx, "https://tiktok.com/@u/video/14", "req_b", "", "normal")
	require.NoError(t, err)

	count, err = jobs.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = jobs.ClaimNext(ctx, "worker-test-1")
	require.NoError(t, err)

	count, err = jobs.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEnqueueDuplicateWithinMillisecond(t *testing.T) {
	jobs := setupJobs(t)
	ctx := context.Background()

	first, err := jobs.Enqueue(ctx, "https://tiktok.com/@u/video/15", "req_same", "", "normal")
	require.NoError(t, err)
	second, err := jobs.Enqueue(ctx, "https://tiktok.com/@u/video/15", "req_same", "", "normal")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "colliding IDs get a distinct suffix")
}
