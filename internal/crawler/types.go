package crawler

import (
	"net/http"
	"time"
)

// JobState represents the lifecycle state of a crawl job.
type JobState string

// Job states reported by the queue.
const (
	JobStateWaiting   JobState = "waiting"
	JobStateDelayed   JobState = "delayed"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// ResultStatusSuccess is the status recorded on completed jobs.
const ResultStatusSuccess = "success"

// JobPayload is the queued unit of work: crawl one domain.
type JobPayload struct {
	Domain string `json:"domain"`
}

// JobResult is attached to a job once it completes.
type JobResult struct {
	Domain    string `json:"domain"`
	Status    string `json:"status"`
	URLsFound int    `json:"urlsFound"`
}

// CrawlJob is the queue-managed record for one domain crawl.
type CrawlJob struct {
	ID           string     `json:"id"`
	Domain       string     `json:"domain"`
	State        JobState   `json:"state"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"maxAttempts"`
	Progress     *int       `json:"progress,omitempty"`
	Result       *JobResult `json:"result,omitempty"`
	FailedReason string     `json:"failedReason,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ProcessedAt  *time.Time `json:"processedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// JobStatus is the view returned to callers polling a job.
type JobStatus struct {
	JobID        string     `json:"jobId"`
	State        JobState   `json:"state"`
	Progress     *int       `json:"progress"`
	Result       *JobResult `json:"result"`
	Attempts     int        `json:"attempts"`
	FailedReason string     `json:"failedReason,omitempty"`
}

// StatusOf projects a job into its polling view.
func StatusOf(job CrawlJob) JobStatus {
	return JobStatus{
		JobID:        job.ID,
		State:        job.State,
		Progress:     job.Progress,
		Result:       job.Result,
		Attempts:     job.Attempts,
		FailedReason: job.FailedReason,
	}
}

// DomainRecord is the persisted product-URL set for one domain.
type DomainRecord struct {
	Domain    string    `json:"domain"`
	URLs      []string  `json:"urls"`
	CrawlDate time.Time `json:"crawlingDate"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// CompletionEvent is published when a job reaches a terminal state.
type CompletionEvent struct {
	JobID      string    `json:"jobId"`
	Domain     string    `json:"domain"`
	State      JobState  `json:"status"`
	URLsFound  int       `json:"urlsFound"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}
