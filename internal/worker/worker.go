// Package worker runs crawl jobs claimed from the job queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/clock/system"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
	"github.com/JakeFAU/product-url-crawler/internal/metrics"
	"github.com/JakeFAU/product-url-crawler/internal/telemetry"
)

const (
	claimErrorBackoff = time.Second
	finalizeTimeout   = 10 * time.Second
)

// Job outcome labels for metrics.
const (
	outcomeCompleted = "completed"
	outcomeRetried   = "retried"
	outcomeFailed    = "failed"
)

// Worker claims jobs one at a time and runs the traversal for each.
type Worker struct {
	id       int
	queue    crawler.JobQueue
	crawler  crawler.DomainCrawler
	notifier crawler.Notifier
	clock    crawler.Clock
	logger   *zap.Logger
}

// New constructs a Worker. notifier and clock may be nil.
func New(
	id int,
	queue crawler.JobQueue,
	domainCrawler crawler.DomainCrawler,
	notifier crawler.Notifier,
	clock crawler.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	return &Worker{
		id:       id,
		queue:    queue,
		crawler:  domainCrawler,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, claiming and processing jobs until ctx ends or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue claim failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(claimErrorBackoff):
			}
			continue
		}
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job crawler.CrawlJob) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	ctx, span := telemetry.Tracer().Start(ctx, "worker.job", trace.WithAttributes(
		attribute.String("job_id", job.ID),
		attribute.String("domain", job.Domain),
		attribute.Int("attempt", job.Attempts),
	))
	defer span.End()

	logger := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("domain", job.Domain),
		zap.Int("attempt", job.Attempts),
	)
	logger.Info("crawl job started")
	start := time.Now()

	urls, err := w.crawl(ctx, job)

	// Shutdown must not strand the job in active, so bookkeeping outlives ctx.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "crawl attempt failed")
		w.handleFailure(finalCtx, logger, job, err)
		return
	}
	span.SetAttributes(attribute.Int("urls_found", len(urls)))

	result := crawler.JobResult{Domain: job.Domain, Status: crawler.ResultStatusSuccess, URLsFound: len(urls)}
	if err := w.queue.Complete(finalCtx, job.ID, result); err != nil {
		logger.Error("failed to complete job", zap.Error(err))
		return
	}
	metrics.ObserveJob(outcomeCompleted)
	logger.Info("crawl job completed",
		zap.Int("urls_found", len(urls)),
		zap.Duration("duration", time.Since(start)),
	)
	w.notify(finalCtx, logger, crawler.CompletionEvent{
		JobID:     job.ID,
		Domain:    job.Domain,
		State:     crawler.JobStateCompleted,
		URLsFound: len(urls),
	})
}

func (w *Worker) crawl(ctx context.Context, job crawler.CrawlJob) (urls []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			urls = nil
			err = fmt.Errorf("%w: worker panic: %v", crawler.ErrTraversal, r)
		}
	}()
	progress := func(pages int) {
		if err := w.queue.UpdateProgress(ctx, job.ID, pages); err != nil && ctx.Err() == nil {
			w.logger.Warn("failed to record progress", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	return w.crawler.Crawl(ctx, job.Domain, progress)
}

func (w *Worker) handleFailure(ctx context.Context, logger *zap.Logger, job crawler.CrawlJob, cause error) {
	updated, err := w.queue.Fail(ctx, job.ID, cause)
	if err != nil {
		logger.Error("failed to record job failure", zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	if updated.State != crawler.JobStateFailed {
		metrics.ObserveJob(outcomeRetried)
		logger.Warn("crawl attempt failed, retry scheduled", zap.Error(cause))
		return
	}
	metrics.ObserveJob(outcomeFailed)
	logger.Error("crawl job failed", zap.Error(cause))
	w.notify(ctx, logger, crawler.CompletionEvent{
		JobID:  job.ID,
		Domain: job.Domain,
		State:  crawler.JobStateFailed,
		Error:  cause.Error(),
	})
}

func (w *Worker) notify(ctx context.Context, logger *zap.Logger, event crawler.CompletionEvent) {
	if w.notifier == nil {
		return
	}
	event.FinishedAt = w.clock.Now()
	if err := w.notifier.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish completion event", zap.Error(err))
	}
}
