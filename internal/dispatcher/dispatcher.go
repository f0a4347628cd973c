// Package dispatcher manages worker fan-out over the job queue and is the
// entry point for submitting and polling crawl jobs.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
	"github.com/JakeFAU/product-url-crawler/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   crawler.JobQueue
	workers []*worker.Worker
	logger  *zap.Logger
}

// New creates a Dispatcher. workers may be empty when this process only submits.
func New(queue crawler.JobQueue, workers []*worker.Worker, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		logger:  logger.Named("dispatcher"),
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	d.logger.Info("workers started", zap.Int("count", len(d.workers)))
	<-ctx.Done()
	wg.Wait()
	d.logger.Info("workers stopped")
}

// Submit enqueues one independent job per domain and returns their ids in
// input order. An empty list or any blank entry is a ValidationError.
func (d *Dispatcher) Submit(ctx context.Context, domains []string) ([]string, error) {
	if len(domains) == 0 {
		return nil, crawler.NewValidationError("urls")
	}
	for _, domain := range domains {
		if crawler.IsBlank(domain) {
			return nil, crawler.NewValidationError("urls")
		}
	}

	ids := make([]string, 0, len(domains))
	for _, domain := range domains {
		job, err := d.queue.Add(ctx, crawler.JobPayload{Domain: strings.TrimSpace(domain)})
		if err != nil {
			return ids, fmt.Errorf("queue add %q: %w", domain, err)
		}
		d.logger.Debug("job queued", zap.String("job_id", job.ID), zap.String("domain", job.Domain))
		ids = append(ids, job.ID)
	}
	return ids, nil
}

// Status returns the polling view of a job.
func (d *Dispatcher) Status(ctx context.Context, jobID string) (crawler.JobStatus, error) {
	if crawler.IsBlank(jobID) {
		return crawler.JobStatus{}, crawler.NewValidationError("jobId")
	}
	job, err := d.queue.GetJob(ctx, strings.TrimSpace(jobID))
	if err != nil {
		return crawler.JobStatus{}, fmt.Errorf("get job: %w", err)
	}
	return crawler.StatusOf(job), nil
}
