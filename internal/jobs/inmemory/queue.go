package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/n3xfin/finance-tracker/internal/jobs"
	"github.com/n3xfin/finance-tracker/internal/logger"
	"github.com/n3xfin/finance-tracker/internal/pipeline"
)

// ErrQueueClosed is returned when publishing to or starting a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// Config sizes the queue and sets its retry policy.
type Config struct {
	BufferSize int
	Workers    int
	MaxRetries int
	// Backoff is multiplied by the retry number before a job is re-enqueued.
	Backoff time.Duration
	// Retryable decides whether a failed job is retried. Defaults to
	// retrying everything except file-scoped ingestion errors.
	Retryable func(error) bool
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 100
	}
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.Retryable == nil {
		c.Retryable = func(err error) bool { return !pipeline.IsFileScoped(err) }
	}
	return c
}

// Queue is an in-memory job publisher and consumer backed by a buffered
// channel. It suits single-instance deployments and tests.
type Queue struct {
	cfg       Config
	jobChan   chan *jobs.IngestStatementJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool
}

// NewQueue creates a new in-memory job queue. store may be nil.
func NewQueue(cfg Config, store jobs.JobStore) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		cfg:       cfg,
		jobChan:   make(chan *jobs.IngestStatementJob, cfg.BufferSize),
		closeChan: make(chan struct{}),
		store:     store,
	}
}

// PublishIngestStatement enqueues an ingestion job, filling in its ID,
// status, creation time and retry budget when unset. Workers process a
// copy; the caller's job is not touched after this returns.
func (q *Queue) PublishIngestStatement(ctx context.Context, job *jobs.IngestStatementJob) error {
	if q.isClosed() {
		return ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.cfg.MaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("PublishIngestStatement: saving job: %w", err)
		}
	}

	select {
	case q.jobChan <- copyJob(job):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return ErrQueueClosed
	}
}

// Start launches the configured number of workers.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	if q.isClosed() {
		return ErrQueueClosed
	}

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs one attempt of job and decides whether to retry it.
func (q *Queue) processJob(ctx context.Context, job *jobs.IngestStatementJob, handler jobs.JobHandler) {
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"job_id":  job.JobID,
		"user_id": job.UserID,
	})
	ctx = logger.WithContext(ctx, log)

	job.Status = jobs.JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	job.CompletedAt = nil
	q.save(ctx, job)

	err := handler(ctx, job)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		job.ErrorCode = ""
	case q.cfg.Retryable(err) && job.RetryCount < job.MaxRetries:
		job.Error = err.Error()
		job.ErrorCode = string(pipeline.KindOf(err))
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying

		backoff := time.Duration(job.RetryCount) * q.cfg.Backoff
		log.Warn().Err(err).Int("retry", job.RetryCount).Dur("backoff", backoff).Msg("job failed, retrying")
		time.AfterFunc(backoff, func() { q.requeue(ctx, job) })
	default:
		job.Error = err.Error()
		job.ErrorCode = string(pipeline.KindOf(err))
		job.Status = jobs.JobStatusFailed
		log.Error().Err(err).Int("retries", job.RetryCount).Msg("job failed")
	}

	q.save(ctx, job)
}

func (q *Queue) requeue(ctx context.Context, job *jobs.IngestStatementJob) {
	job.Status = jobs.JobStatusPending
	job.StartedAt = nil
	job.CompletedAt = nil

	if err := q.PublishIngestStatement(ctx, job); err != nil {
		job.Status = jobs.JobStatusFailed
		q.save(context.WithoutCancel(ctx), job)
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", job.JobID).Msg("could not re-enqueue job")
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.IngestStatementJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to save job state")
	}
}

func (q *Queue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Stop closes the queue and waits for in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
)
