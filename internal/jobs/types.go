package jobs

import (
	"context"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeIngestStatement ingests one uploaded statement.
	JobTypeIngestStatement JobType = "ingest_statement"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// IngestStatementJob asks a worker to ingest the statement at SourceRef
// for UserID.
type IngestStatementJob struct {
	JobID      string `json:"job_id"`
	UserID     string `json:"user_id"`
	SourceRef  string `json:"source_ref"`
	SourceFile string `json:"source_file,omitempty"`
	ForceAI    bool   `json:"force_ai,omitempty"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error and ErrorCode describe the last failed attempt.
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	// Result is set by the handler once ingestion succeeds.
	Result *IngestOutcome `json:"result,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// IngestOutcome is the count summary recorded on a completed job.
type IngestOutcome struct {
	IngestionRunID    string `json:"ingestion_run_id"`
	Tier              string `json:"tier"`
	TotalExtracted    int    `json:"total_extracted"`
	Unique            int    `json:"unique"`
	Stored            int    `json:"stored"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
	SkippedRows       int    `json:"skipped_rows"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *IngestStatementJob) GetID() string {
	return j.JobID
}

func (j *IngestStatementJob) GetType() JobType {
	return JobTypeIngestStatement
}

func (j *IngestStatementJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues jobs.
type Publisher interface {
	PublishIngestStatement(ctx context.Context, job *IngestStatementJob) error
	Close() error
}

// Consumer delivers queued jobs to a handler.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error is retried unless the
// queue's retry policy marks it terminal.
type JobHandler func(ctx context.Context, job Job) error

// JobStore tracks job state for status queries.
type JobStore interface {
	SaveJob(ctx context.Context, job *IngestStatementJob) error
	GetJob(ctx context.Context, jobID string) (*IngestStatementJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*IngestStatementJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	UserID string
	Status JobStatus
	Limit  int
	Offset int
}
