// -----------------------------------------------------------------------
// Queue Job - persistent job document with CAS-ordered status lifecycle
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// JobStatus is the closed status set for queued analysis jobs.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// DefaultMaxAttempts bounds retries for a single job.
const DefaultMaxAttempts = 3

// Job is the persistent queue document. Status transitions are serialized
// by CAS on the stored document; a job is leased while Status is
// processing and WorkerID is set. There is no automatic lease expiry.
//
// Lifecycle:
//
//	enqueue -> pending -> (claim) processing -> completed
//	                                        -> pending (retry, attempts < max)
//	                                        -> failed  (attempts >= max)
type Job struct {
	ID          string     `json:"id" badgerhold:"key" firestore:"id"`
	URL         string     `json:"url" firestore:"url"`
	Locale      string     `json:"locale,omitempty" firestore:"locale,omitempty"`
	Priority    string     `json:"priority" firestore:"priority"`
	Status      JobStatus  `json:"status" firestore:"status"`
	Attempts    int        `json:"attempts" firestore:"attempts"`
	MaxAttempts int        `json:"max_attempts" firestore:"maxAttempts"`
	WorkerID    string     `json:"worker_id,omitempty" firestore:"workerId,omitempty"`
	CreatedAt   time.Time  `json:"created_at" firestore:"createdAt"`
	StartedAt   *time.Time `json:"started_at,omitempty" firestore:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" firestore:"completedAt,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty" firestore:"failedAt,omitempty"`
	LastError   string     `json:"last_error,omitempty" firestore:"lastError,omitempty"`
}

// NewJob creates a pending job. The ID combines the request ID with epoch
// millis so IDs are unique and monotonic within a request.
func NewJob(url, requestID, locale, priority string, maxAttempts int) *Job {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if priority == "" {
		priority = "normal"
	}
	now := time.Now().UTC()
	return &Job{
		ID:          fmt.Sprintf("%s_%d", requestID, now.UnixMilli()),
		URL:         url,
		Locale:      locale,
		Priority:    priority,
		Status:      JobStatusPending,
		Attempts:    0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
	}
}

// IsTerminal reports whether the job has reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// ValidTransition reports whether a status move is legal. Terminal states
// never transition out; every mutation in the job store must check this
// against the currently stored document before writing.
func ValidTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusProcessing
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed || to == JobStatusPending
	default:
		return false
	}
}

// JobResult is the per-job results document written alongside the job's
// terminal completed transition.
type JobResult struct {
	JobID       string    `json:"job_id" badgerhold:"key" firestore:"jobId"`
	Payload     Content   `json:"payload" firestore:"payload"`
	CompletedAt time.Time `json:"completed_at" firestore:"completedAt"`
	Status      JobStatus `json:"status" firestore:"status"`
}

// JobStatusView is the joined queue+results view returned to status
// queries.
type JobStatusView struct {
	JobID       string     `json:"job_id"`
	Status      string     `json:"status"`
	Result      *Content   `json:"result,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Attempts    int        `json:"attempts,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// StatusNotFound is the sentinel status for unknown job IDs.
const StatusNotFound = "not_found"
