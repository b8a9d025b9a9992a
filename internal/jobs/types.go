// Package jobs defines background maintenance jobs that run outside the
// request path, such as rebuilding the search index from the archive.
package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeRebuildIndex re-indexes every archived batch.
	JobTypeRebuildIndex JobType = "rebuild_index"
	// JobTypeSyncNotion mirrors the archive into Notion.
	JobTypeSyncNotion JobType = "sync_notion"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ErrJobNotFound is returned by JobStore.GetJob for an unknown id.
var ErrJobNotFound = errors.New("job not found")

// Job is one unit of background work and its execution record.
type Job struct {
	JobID  string    `json:"job_id"`
	Type   JobType   `json:"type"`
	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result is the handler's report, such as a rebuild summary.
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Publisher enqueues jobs.
type Publisher interface {
	// Publish assigns an id when missing, records the job and enqueues it.
	Publish(ctx context.Context, job *Job) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer runs queued jobs.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job and returns its result. A non-nil error marks
// the job failed or schedules a retry.
type JobHandler func(ctx context.Context, job *Job) (interface{}, error)

// JobStore records job state so callers can poll for completion.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	Type   JobType
	Status JobStatus
	Limit  int
	Offset int
}

// Dispatch routes jobs to a handler per type.
type Dispatch map[JobType]JobHandler

// Handler returns a JobHandler that fails jobs of unregistered types.
func (d Dispatch) Handler() JobHandler {
	return func(ctx context.Context, job *Job) (interface{}, error) {
		h, ok := d[job.Type]
		if !ok {
			return nil, errors.New("no handler for job type " + string(job.Type))
		}
		return h(ctx, job)
	}
}
