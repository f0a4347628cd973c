// Package memory provides a process-local job queue for development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/product-url-crawler/internal/clock/system"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
	"github.com/JakeFAU/product-url-crawler/internal/id/uuid"
	"github.com/JakeFAU/product-url-crawler/internal/queue"
)

// Scheduler runs f after d. It exists so tests can observe backoff delays.
type Scheduler func(d time.Duration, f func())

// Config tunes the queue.
type Config struct {
	Retry     queue.RetryPolicy
	IDs       crawler.IDGenerator
	Clock     crawler.Clock
	Scheduler Scheduler
}

// Queue implements crawler.JobQueue in memory. Jobs are lost on restart.
type Queue struct {
	mu      sync.Mutex
	jobs    map[string]*crawler.CrawlJob
	waiting []string
	ready   chan struct{}
	done    chan struct{}
	closed  bool

	retry    queue.RetryPolicy
	ids      crawler.IDGenerator
	clock    crawler.Clock
	schedule Scheduler
}

// NewQueue constructs an empty queue.
func NewQueue(cfg Config) *Queue {
	if cfg.IDs == nil {
		cfg.IDs = uuid.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return &Queue{
		jobs:     make(map[string]*crawler.CrawlJob),
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
		retry:    cfg.Retry,
		ids:      cfg.IDs,
		clock:    cfg.Clock,
		schedule: cfg.Scheduler,
	}
}

// Add creates a waiting job for payload.
func (q *Queue) Add(_ context.Context, payload crawler.JobPayload) (crawler.CrawlJob, error) {
	id, err := q.ids.NewID()
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("add job: %w", err)
	}
	job := &crawler.CrawlJob{
		ID:          id,
		Domain:      payload.Domain,
		State:       crawler.JobStateWaiting,
		MaxAttempts: q.retry.Attempts(),
		CreatedAt:   q.clock.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return crawler.CrawlJob{}, crawler.ErrQueueClosed
	}
	q.jobs[id] = job
	q.pushLocked(id)
	return clone(job), nil
}

// Claim blocks until a waiting job is available and hands it out as active.
func (q *Queue) Claim(ctx context.Context) (crawler.CrawlJob, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return crawler.CrawlJob{}, crawler.ErrQueueClosed
		}
		if len(q.waiting) > 0 {
			id := q.waiting[0]
			q.waiting = q.waiting[1:]
			if len(q.waiting) > 0 {
				q.signal()
			}
			job := q.jobs[id]
			now := q.clock.Now()
			job.State = crawler.JobStateActive
			job.Attempts++
			job.ProcessedAt = &now
			out := clone(job)
			q.mu.Unlock()
			return out, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return crawler.CrawlJob{}, fmt.Errorf("claim canceled: %w", ctx.Err())
		case <-q.done:
			return crawler.CrawlJob{}, crawler.ErrQueueClosed
		case <-q.ready:
		}
	}
}

// UpdateProgress records progress on a job.
func (q *Queue) UpdateProgress(_ context.Context, jobID string, progress int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	if job.State.Terminal() {
		return nil
	}
	job.Progress = &progress
	return nil
}

// Complete marks an active job completed.
func (q *Queue) Complete(_ context.Context, jobID string, result crawler.JobResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, err := q.activeLocked(jobID)
	if err != nil {
		return err
	}
	now := q.clock.Now()
	job.State = crawler.JobStateCompleted
	job.Result = &result
	job.FailedReason = ""
	job.FinishedAt = &now
	return nil
}

// Fail records a failed attempt, scheduling a delayed retry or marking the job failed.
func (q *Queue) Fail(_ context.Context, jobID string, cause error) (crawler.CrawlJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, err := q.activeLocked(jobID)
	if err != nil {
		return crawler.CrawlJob{}, err
	}
	if cause == nil {
		cause = errors.New("unknown error")
	}
	job.FailedReason = cause.Error()

	if !q.retry.ShouldRetry(job.Attempts) {
		now := q.clock.Now()
		job.State = crawler.JobStateFailed
		job.FinishedAt = &now
		return clone(job), nil
	}

	job.State = crawler.JobStateDelayed
	q.schedule(q.retry.Backoff(job.Attempts), func() { q.promote(jobID) })
	return clone(job), nil
}

// GetJob returns a snapshot of the job.
func (q *Queue) GetJob(_ context.Context, jobID string) (crawler.CrawlJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return crawler.CrawlJob{}, fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	return clone(job), nil
}

// Close wakes blocked claimers and rejects further work.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

func (q *Queue) promote(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok || q.closed || job.State != crawler.JobStateDelayed {
		return
	}
	job.State = crawler.JobStateWaiting
	q.pushLocked(jobID)
}

func (q *Queue) activeLocked(jobID string) (*crawler.CrawlJob, error) {
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	if job.State != crawler.JobStateActive {
		return nil, fmt.Errorf("%w: %s is %s", queue.ErrNotActive, jobID, job.State)
	}
	return job, nil
}

func (q *Queue) pushLocked(id string) {
	q.waiting = append(q.waiting, id)
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func clone(job *crawler.CrawlJob) crawler.CrawlJob {
	out := *job
	if job.Progress != nil {
		p := *job.Progress
		out.Progress = &p
	}
	if job.Result != nil {
		r := *job.Result
		out.Result = &r
	}
	if job.ProcessedAt != nil {
		t := *job.ProcessedAt
		out.ProcessedAt = &t
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
