// Package worker drains the job queue: claim, process through the
// pipeline, acknowledge. It also hosts the periodic GC sweep.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/common"
	"github.com/ternarybob/reelscan/internal/interfaces"
	"github.com/ternarybob/reelscan/internal/models"
)

// busyInterval is the short sleep when every concurrency slot is taken.
const busyInterval = 50 * time.Millisecond

// maxBackoffShift caps the exponential poll backoff at base * 2^5.
const maxBackoffShift = 5

// Options configures a Pool.
type Options struct {
	WorkerID        string
	MaxConcurrency  int
	PollInterval    time.Duration
	MaxBackoff      time.Duration
	ShutdownTimeout time.Duration
	CacheTTL        time.Duration

	// GC sweep settings; SweepInterval <= 0 disables the sweeper.
	SweepInterval  time.Duration
	GCRetention    time.Duration
	GCBatchSize    int
	ReapStaleAfter time.Duration
}

// Pool is one worker process: a single scheduler loop driving up to
// MaxConcurrency in-flight jobs.
type Pool struct {
	jobs     interfaces.JobStorage
	cache    interfaces.CacheStorage
	pipeline interfaces.Pipeline
	opts     Options
	logger   arbor.ILogger

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup

	sweeping bool
}

// NewPool creates a worker pool. Zero option values fall back to the
// documented defaults.
func NewPool(jobs interfaces.JobStorage, cache interfaces.CacheStorage, pipeline interfaces.Pipeline, opts Options, logger arbor.ILogger) *Pool {
	if opts.WorkerID == "" {
		opts.WorkerID = common.WorkerID()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 168 * time.Hour
	}

	return &Pool{
		jobs:     jobs,
		cache:    cache,
		pipeline: pipeline,
		opts:     opts,
		logger:   logger,
		active:   map[string]struct{}{},
	}
}

// Run drives the claim loop until ctx is cancelled, then drains. Active
// jobs get up to ShutdownTimeout to finish before their contexts are
// cancelled.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info().
		Str("worker_id", p.opts.WorkerID).
		Int("concurrency", p.opts.MaxConcurrency).
		Msg("Worker started")

	// Jobs keep running during the drain window after ctx is cancelled.
	taskCtx, cancelTasks := context.WithCancel(context.Background())
	defer cancelTasks()

	if sweeper := p.startSweeper(taskCtx); sweeper != nil {
		defer sweeper.Stop()
	}

	emptyPolls := 0

	for {
		select {
		case <-ctx.Done():
			p.drain(cancelTasks)
			return
		default:
		}

		if p.activeCount() >= p.opts.MaxConcurrency {
			if !sleepCtx(ctx, busyInterval) {
				p.drain(cancelTasks)
				return
			}
			continue
		}

		job, err := p.jobs.ClaimNext(ctx, p.opts.WorkerID)
		if err != nil {
			p.logger.Warn().Err(err).Msg("Failed to claim job")
			if !sleepCtx(ctx, p.opts.PollInterval) {
				p.drain(cancelTasks)
				return
			}
			continue
		}

		if job == nil {
			emptyPolls++
			if !sleepCtx(ctx, pollBackoff(p.opts.PollInterval, p.opts.MaxBackoff, emptyPolls)) {
				p.drain(cancelTasks)
				return
			}
			continue
		}

		emptyPolls = 0
		p.trackStart(job.ID)
		common.SafeGo(p.logger, "process-job", func() {
			defer p.trackDone(job.ID)
			p.processJob(taskCtx, job)
		})
	}
}

// processJob runs one claimed job through the pipeline and acknowledges
// the outcome.
func (p *Pool) processJob(ctx context.Context, job *models.Job) {
	start := time.Now()

	// Another worker or the direct path may have finished this URL while
	// the job sat in the queue.
	fingerprint := common.Fingerprint(job.URL, job.Locale)
	if entry, ok := p.cache.Get(ctx, fingerprint); ok {
		payload := entry.Payload.Clone()
		payload.Cached = true
		if err := p.jobs.MarkComplete(ctx, job.ID, *payload); err != nil {
			p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to complete job from cache")
			return
		}
		p.logger.Debug().Str("job_id", job.ID).Msg("Job completed from cache")
		return
	}

	payload, err := p.pipeline.Process(ctx, job.URL, job.ID, job.Locale)
	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}

	if err := p.jobs.MarkComplete(ctx, job.ID, *payload); err != nil {
		// Leave the job leased; the stale-lease sweeper or an operator
		// promotes it back to pending.
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to acknowledge completed job")
		return
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Int("attempts", job.Attempts).
		Dur("duration", time.Since(start)).
		Msg("Job processed")
}

// handleFailure classifies the error and records the failure: permanent
// errors skip the remaining attempts.
func (p *Pool) handleFailure(ctx context.Context, job *models.Job, procErr error) {
	errStr := models.ErrorString(procErr)

	if !models.IsRetryable(procErr) {
		if err := p.jobs.FailPermanently(ctx, job.ID, errStr); err != nil {
			p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record permanent failure")
		}
		p.logger.Info().Str("job_id", job.ID).Str("error", errStr).Msg("Job failed permanently")
		return
	}

	if err := p.jobs.MarkFailed(ctx, job.ID, errStr); err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record job failure")
		return
	}
	p.logger.Info().
		Str("job_id", job.ID).
		Int("attempts", job.Attempts).
		Str("error", errStr).
		Msg("Job failed")
}

// startSweeper schedules the periodic GC sweep. Sweeps are
// fire-and-forget and single-flight per pool; a slow sweep skips the
// next tick rather than stacking.
func (p *Pool) startSweeper(ctx context.Context) *cron.Cron {
	if p.opts.SweepInterval <= 0 || p.opts.GCRetention <= 0 {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", p.opts.SweepInterval), func() {
		p.mu.Lock()
		if p.sweeping {
			p.mu.Unlock()
			return
		}
		p.sweeping = true
		p.mu.Unlock()

		common.SafeGo(p.logger, "gc-sweep", func() {
			defer func() {
				p.mu.Lock()
				p.sweeping = false
				p.mu.Unlock()
			}()
			p.sweep(ctx)
		})
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to schedule GC sweep")
		return nil
	}

	c.Start()
	p.logger.Debug().Str("interval", p.opts.SweepInterval.String()).Msg("GC sweeper scheduled")
	return c
}

// sweep deletes terminal jobs beyond retention and optionally reaps
// stale processing leases.
func (p *Pool) sweep(ctx context.Context) {
	deleted, err := p.jobs.CleanupOld(ctx, p.opts.GCRetention, p.opts.GCBatchSize)
	if err != nil {
		p.logger.Warn().Err(err).Msg("GC sweep failed")
	} else if deleted > 0 {
		p.logger.Info().Int("deleted", deleted).Msg("GC sweep removed old jobs")
	}

	if p.opts.ReapStaleAfter > 0 {
		reaped, err := p.jobs.ReapStale(ctx, p.opts.ReapStaleAfter)
		if err != nil {
			p.logger.Warn().Err(err).Msg("Stale lease reap failed")
		} else if reaped > 0 {
			p.logger.Warn().Int("reaped", reaped).Msg("Promoted stale processing jobs back to pending")
		}
	}
}

// drain waits up to ShutdownTimeout for active jobs, then cancels the
// survivors.
func (p *Pool) drain(cancelTasks context.CancelFunc) {
	remaining := p.activeCount()
	p.logger.Info().
		Str("worker_id", p.opts.WorkerID).
		Int("active", remaining).
		Msg("Worker draining")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Str("worker_id", p.opts.WorkerID).Msg("Worker drained")
	case <-time.After(p.opts.ShutdownTimeout):
		p.logger.Warn().
			Int("abandoned", p.activeCount()).
			Msg("Drain window expired, cancelling remaining jobs")
		cancelTasks()
		<-done
	}
}

func (p *Pool) trackStart(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[jobID] = struct{}{}
	p.wg.Add(1)
}

func (p *Pool) trackDone(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, jobID)
	p.wg.Done()
}

func (p *Pool) activeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// pollBackoff computes the empty-queue poll delay: base * 2^(n-1),
// shift-capped, then clamped to maxBackoff.
func pollBackoff(base, maxBackoff time.Duration, emptyPolls int) time.Duration {
	if emptyPolls < 1 {
		emptyPolls = 1
	}
	shift := emptyPolls - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	delay := base << shift
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

// sleepCtx sleeps for d unless ctx is cancelled first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
