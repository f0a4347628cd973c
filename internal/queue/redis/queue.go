// Package redisqueue implements a durable job queue on Redis, shared by the
// API and worker processes.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/clock/system"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
	"github.com/JakeFAU/product-url-crawler/internal/queue"
)

const (
	defaultPrefix       = "pcrawl"
	defaultName         = "crawl"
	defaultLockDuration = 30 * time.Second
	defaultPollInterval = 250 * time.Millisecond
)

// Job hash fields.
const (
	fieldDomain       = "domain"
	fieldState        = "state"
	fieldAttempts     = "attempts"
	fieldMaxAttempts  = "maxAttempts"
	fieldProgress     = "progress"
	fieldResult       = "result"
	fieldFailedReason = "failedReason"
	fieldCreatedAt    = "createdAt"
	fieldProcessedAt  = "processedAt"
	fieldFinishedAt   = "finishedAt"
)

// Config tunes the queue.
type Config struct {
	Prefix       string
	Name         string
	Retry        queue.RetryPolicy
	LockDuration time.Duration
	PollInterval time.Duration
	Clock        crawler.Clock
	Logger       *zap.Logger
}

type claim struct {
	token  string
	cancel context.CancelFunc
}

// StalledReason is the failure reason recorded for a job whose worker
// stopped renewing its lock on the final attempt.
const StalledReason = "job stalled more than allowable limit"

// Queue implements crawler.JobQueue. Job ids come from a Redis counter, so
// they stay unique across processes. The Lua scripts touch job keys derived
// from ids, so the queue needs a single-node (or sentinel) Redis, not Cluster.
type Queue struct {
	client *redis.Client
	cfg    Config
	base   string

	mu     sync.Mutex
	claims map[string]claim
	done   chan struct{}
	closed bool
}

// New wraps client. The caller keeps ownership of the client.
func New(client *redis.Client, cfg Config) *Queue {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.Name == "" {
		cfg.Name = defaultName
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = defaultLockDuration
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue{
		client: client,
		cfg:    cfg,
		base:   cfg.Prefix + ":" + cfg.Name + ":",
		claims: make(map[string]claim),
		done:   make(chan struct{}),
	}
}

func (q *Queue) key(parts ...string) string {
	k := q.base
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (q *Queue) waitKey() string    { return q.key("wait") }
func (q *Queue) activeKey() string  { return q.key("active") }
func (q *Queue) delayedKey() string { return q.key("delayed") }
func (q *Queue) jobPrefix() string       { return q.key("job") + ":" }
func (q *Queue) jobKey(id string) string  { return q.jobPrefix() + id }
func (q *Queue) lockKey(id string) string { return q.jobKey(id) + ":lock" }

// validID reports whether id can name a job. Ids are decimal counters.
func validID(id string) bool {
	n, err := strconv.ParseUint(id, 10, 64)
	return err == nil && n > 0 && strconv.FormatUint(n, 10) == id
}

func notFound(jobID string) error {
	return fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
}

// Add stores a waiting job and appends it to the wait list.
func (q *Queue) Add(ctx context.Context, payload crawler.JobPayload) (crawler.CrawlJob, error) {
	if q.isClosed() {
		return crawler.CrawlJob{}, crawler.ErrQueueClosed
	}
	n, err := q.client.Incr(ctx, q.key("id")).Result()
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("allocate job id: %w", err)
	}
	job := crawler.CrawlJob{
		ID:          strconv.FormatInt(n, 10),
		Domain:      payload.Domain,
		State:       crawler.JobStateWaiting,
		MaxAttempts: q.cfg.Retry.Attempts(),
		CreatedAt:   q.now(),
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(job.ID), map[string]any{
			fieldDomain:      job.Domain,
			fieldState:       string(job.State),
			fieldAttempts:    0,
			fieldMaxAttempts: job.MaxAttempts,
			fieldCreatedAt:   job.CreatedAt.UnixMilli(),
		})
		pipe.RPush(ctx, q.waitKey(), job.ID)
		return nil
	})
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("add job: %w", err)
	}
	return job, nil
}

// Claim polls until a job can be moved to active, then keeps its lock alive
// until Complete or Fail.
func (q *Queue) Claim(ctx context.Context) (crawler.CrawlJob, error) {
	for {
		if q.isClosed() {
			return crawler.CrawlJob{}, crawler.ErrQueueClosed
		}
		job, ok, err := q.tryClaim(ctx)
		if err != nil {
			return crawler.CrawlJob{}, err
		}
		if ok {
			return job, nil
		}

		timer := time.NewTimer(q.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return crawler.CrawlJob{}, fmt.Errorf("claim canceled: %w", ctx.Err())
		case <-q.done:
			timer.Stop()
			return crawler.CrawlJob{}, crawler.ErrQueueClosed
		case <-timer.C:
		}
	}
}

func (q *Queue) tryClaim(ctx context.Context) (crawler.CrawlJob, bool, error) {
	token := uuid.NewString()
	id, err := claimScript.Run(ctx, q.client,
		[]string{q.waitKey(), q.activeKey(), q.delayedKey()},
		q.now().UnixMilli(), token, q.cfg.LockDuration.Milliseconds(), q.jobPrefix(), StalledReason,
	).Text()
	if errors.Is(err, redis.Nil) {
		return crawler.CrawlJob{}, false, nil
	}
	if err != nil {
		return crawler.CrawlJob{}, false, fmt.Errorf("claim job: %w", err)
	}

	job, err := q.GetJob(ctx, id)
	if err != nil {
		return crawler.CrawlJob{}, false, err
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	q.mu.Lock()
	q.claims[id] = claim{token: token, cancel: cancel}
	q.mu.Unlock()
	go q.keepLocked(renewCtx, id, token)

	return job, true, nil
}

func (q *Queue) keepLocked(ctx context.Context, id, token string) {
	ticker := time.NewTicker(q.cfg.LockDuration / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := renewScript.Run(ctx, q.client, []string{q.lockKey(id)}, token, q.cfg.LockDuration.Milliseconds()).Int()
			if err != nil {
				if ctx.Err() == nil {
					q.cfg.Logger.Warn("failed to renew job lock", zap.String("job_id", id), zap.Error(err))
				}
				continue
			}
			if ok == 0 {
				q.cfg.Logger.Warn("job lock lost", zap.String("job_id", id))
				return
			}
		}
	}
}

// UpdateProgress records progress on a non-terminal job.
func (q *Queue) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	if !validID(jobID) {
		return notFound(jobID)
	}
	state, err := q.client.HGet(ctx, q.jobKey(jobID), fieldState).Result()
	if errors.Is(err, redis.Nil) {
		return notFound(jobID)
	}
	if err != nil {
		return fmt.Errorf("read job state: %w", err)
	}
	if crawler.JobState(state).Terminal() {
		return nil
	}
	if err := q.client.HSet(ctx, q.jobKey(jobID), fieldProgress, progress).Err(); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Complete marks a job claimed by this queue completed.
func (q *Queue) Complete(ctx context.Context, jobID string, result crawler.JobResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return q.finish(ctx, jobID, crawler.JobStateCompleted, 0,
		fieldResult, string(data),
		fieldFailedReason, "",
		fieldFinishedAt, q.now().UnixMilli(),
	)
}

// Fail records a failed attempt and either delays a retry or fails the job.
func (q *Queue) Fail(ctx context.Context, jobID string, cause error) (crawler.CrawlJob, error) {
	if cause == nil {
		cause = errors.New("unknown error")
	}
	if !validID(jobID) {
		return crawler.CrawlJob{}, notFound(jobID)
	}
	attempts, err := q.client.HGet(ctx, q.jobKey(jobID), fieldAttempts).Int()
	if errors.Is(err, redis.Nil) {
		return crawler.CrawlJob{}, fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("read attempts: %w", err)
	}

	now := q.now()
	if q.cfg.Retry.ShouldRetry(attempts) {
		due := now.Add(q.cfg.Retry.Backoff(attempts))
		err = q.finish(ctx, jobID, crawler.JobStateDelayed, due.UnixMilli(),
			fieldFailedReason, cause.Error(),
		)
	} else {
		err = q.finish(ctx, jobID, crawler.JobStateFailed, 0,
			fieldFailedReason, cause.Error(),
			fieldFinishedAt, now.UnixMilli(),
		)
	}
	if err != nil {
		return crawler.CrawlJob{}, err
	}
	return q.GetJob(ctx, jobID)
}

func (q *Queue) finish(ctx context.Context, jobID string, state crawler.JobState, delayedUntil int64, fields ...any) error {
	q.mu.Lock()
	c, ok := q.claims[jobID]
	q.mu.Unlock()
	if !ok {
		if _, err := q.GetJob(ctx, jobID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", queue.ErrNotActive, jobID)
	}

	args := append([]any{c.token, jobID, string(state), delayedUntil}, fields...)
	res, err := finishScript.Run(ctx, q.client,
		[]string{q.activeKey(), q.jobKey(jobID), q.lockKey(jobID), q.delayedKey()},
		args...,
	).Int()
	if err != nil {
		return fmt.Errorf("finish job %s: %w", jobID, err)
	}

	q.mu.Lock()
	delete(q.claims, jobID)
	q.mu.Unlock()
	c.cancel()

	if res == 0 {
		return fmt.Errorf("%w: %s lock expired", queue.ErrNotActive, jobID)
	}
	return nil
}

// GetJob loads a job hash.
func (q *Queue) GetJob(ctx context.Context, jobID string) (crawler.CrawlJob, error) {
	if !validID(jobID) {
		return crawler.CrawlJob{}, notFound(jobID)
	}
	values, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if len(values) == 0 {
		return crawler.CrawlJob{}, fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	return decodeJob(jobID, values)
}

// Close stops lock renewal and wakes pollers. The Redis client is left open.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	for id, c := range q.claims {
		c.cancel()
		delete(q.claims, id)
	}
	return nil
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) now() time.Time {
	return q.cfg.Clock.Now()
}

func decodeJob(id string, values map[string]string) (crawler.CrawlJob, error) {
	job := crawler.CrawlJob{
		ID:           id,
		Domain:       values[fieldDomain],
		State:        crawler.JobState(values[fieldState]),
		FailedReason: values[fieldFailedReason],
	}
	var err error
	if job.Attempts, err = atoi(values[fieldAttempts]); err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("decode attempts: %w", err)
	}
	if job.MaxAttempts, err = atoi(values[fieldMaxAttempts]); err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("decode max attempts: %w", err)
	}
	if raw, ok := values[fieldProgress]; ok {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return crawler.CrawlJob{}, fmt.Errorf("decode progress: %w", err)
		}
		job.Progress = &p
	}
	if raw := values[fieldResult]; raw != "" {
		var result crawler.JobResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return crawler.CrawlJob{}, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &result
	}
	if t := millis(values[fieldCreatedAt]); t != nil {
		job.CreatedAt = *t
	}
	job.ProcessedAt = millis(values[fieldProcessedAt])
	job.FinishedAt = millis(values[fieldFinishedAt])
	return job, nil
}

func atoi(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func millis(raw string) *time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
