package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// ContentFetcher returns page content for a URL, or ErrNoContent.
type ContentFetcher interface {
	FetchContent(ctx context.Context, url string) ([]byte, error)
}

// ResultStore persists discovered product URLs per domain.
type ResultStore interface {
	UpsertDomain(ctx context.Context, record DomainRecord) error
	GetDomain(ctx context.Context, domain string) (DomainRecord, error)
}

// ProgressFunc receives the number of pages visited so far.
type ProgressFunc func(pagesVisited int)

// DomainCrawler runs a full traversal for one root domain.
type DomainCrawler interface {
	Crawl(ctx context.Context, domain string, progress ProgressFunc) ([]string, error)
}

// JobQueue is a retryable work queue of crawl jobs.
type JobQueue interface {
	// Add creates a waiting job for the payload.
	Add(ctx context.Context, payload JobPayload) (CrawlJob, error)
	// Claim blocks until a job is handed to the caller in the active state.
	Claim(ctx context.Context) (CrawlJob, error)
	// UpdateProgress records progress for an active job.
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	// Complete marks an active job completed with its result.
	Complete(ctx context.Context, jobID string, result JobResult) error
	// Fail records a failed attempt and either schedules a retry or marks
	// the job failed. The job is returned in its new state.
	Fail(ctx context.Context, jobID string, cause error) (CrawlJob, error)
	// GetJob looks a job up by id, returning ErrJobNotFound when unknown.
	GetJob(ctx context.Context, jobID string) (CrawlJob, error)
	Close() error
}

// Notifier publishes job completion events.
type Notifier interface {
	Publish(ctx context.Context, event CompletionEvent) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
