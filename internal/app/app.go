// Package app initializes and holds long-lived services, acting as the
// dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/clock/system"
	"github.com/JakeFAU/product-url-crawler/internal/config"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
	"github.com/JakeFAU/product-url-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/product-url-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/product-url-crawler/internal/fetcher/fallback"
	headlessfetcher "github.com/JakeFAU/product-url-crawler/internal/fetcher/headless"
	pubsubpublisher "github.com/JakeFAU/product-url-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/product-url-crawler/internal/queue"
	queueMemory "github.com/JakeFAU/product-url-crawler/internal/queue/memory"
	redisqueue "github.com/JakeFAU/product-url-crawler/internal/queue/redis"
	"github.com/JakeFAU/product-url-crawler/internal/ratelimit"
	storageMemory "github.com/JakeFAU/product-url-crawler/internal/storage/memory"
	"github.com/JakeFAU/product-url-crawler/internal/storage/postgres"
	"github.com/JakeFAU/product-url-crawler/internal/telemetry"
	"github.com/JakeFAU/product-url-crawler/internal/traversal"
	"github.com/JakeFAU/product-url-crawler/internal/worker"
)

const serviceName = "product-url-crawler"

// App holds the shared services built from one Config.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    crawler.ResultStore
	Queue    crawler.JobQueue
	Notifier crawler.Notifier
	Engine   *traversal.Engine

	clock   crawler.Clock
	closers []func()
}

// New builds every service cfg asks for. It fails fast; anything already
// started is closed before the error is returned.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, clock: system.New()}

	tp, err := telemetry.InitTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("error shutting down tracer provider", zap.Error(err))
		}
	})

	if err := a.initStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initQueue(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initNotifier(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = traversal.New(
		traversal.Config{MaxDepth: cfg.Crawler.MaxDepth},
		a.newContentFetcher(),
		a.Store,
		a.clock,
		logger.Named("traversal"),
	)
	logger.Info("application services initialized")
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.Config.DB.DSN == "" {
		a.Logger.Info("using in-memory result store; results are lost on restart")
		a.Store = storageMemory.NewDomainStore()
		return nil
	}
	store, err := postgres.NewDomainStore(ctx, postgres.Config{
		DSN:      a.Config.DB.DSN,
		Table:    a.Config.DB.Table,
		MaxConns: a.Config.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("init result store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("init result store: %w", err)
	}
	a.Logger.Info("using postgres result store", zap.String("table", a.Config.DB.Table))
	a.Store = store
	return nil
}

func (a *App) initQueue(ctx context.Context) error {
	retry := queue.RetryPolicy{MaxAttempts: a.Config.Queue.MaxAttempts, BaseDelay: a.Config.RetryBackoff()}

	switch a.Config.Queue.Backend {
	case config.QueueBackendRedis:
		client, err := redisqueue.NewClient(ctx, redisqueue.ClientConfig{
			Address:  a.Config.Redis.Address,
			Username: a.Config.Redis.Username,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
			TLS:      a.Config.Redis.TLS,
		})
		if err != nil {
			return fmt.Errorf("init job queue: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.Logger.Warn("error closing redis client", zap.Error(err))
			}
		})
		q := redisqueue.New(client, redisqueue.Config{
			Name:         a.Config.Queue.Name,
			Retry:        retry,
			LockDuration: a.Config.LockDuration(),
			PollInterval: a.Config.PollInterval(),
			Clock:        a.clock,
			Logger:       a.Logger.Named("queue"),
		})
		a.Logger.Info("using redis job queue", zap.String("address", a.Config.Redis.Address), zap.String("queue", a.Config.Queue.Name))
		a.Queue = q
	default:
		a.Logger.Info("using in-memory job queue")
		a.Queue = queueMemory.NewQueue(queueMemory.Config{Retry: retry, Clock: a.clock})
	}
	a.closers = append(a.closers, func() {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn("error closing job queue", zap.Error(err))
		}
	})
	return nil
}

func (a *App) initNotifier(ctx context.Context) error {
	if a.Config.PubSub.ProjectID == "" && a.Config.PubSub.TopicName == "" {
		return nil
	}
	p, err := pubsubpublisher.Dial(ctx, a.Config.PubSub.ProjectID, a.Config.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := p.Close(); err != nil {
			a.Logger.Warn("error closing pubsub publisher", zap.Error(err))
		}
	})
	a.Logger.Info("publishing completion events", zap.String("topic", a.Config.PubSub.TopicName))
	a.Notifier = p
	return nil
}

func (a *App) newContentFetcher() crawler.ContentFetcher {
	cfg := a.Config
	var renderer crawler.Fetcher = headlessfetcher.Disabled{}
	renderEnabled := false
	if cfg.Headless.Enabled {
		f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
		})
		if err != nil {
			a.Logger.Warn("headless fetcher init failed, using light fetch only", zap.Error(err))
		} else {
			renderer = f
			renderEnabled = true
			a.closers = append(a.closers, f.Close)
		}
	}

	light := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.HTTPTimeout(),
	}, nil)

	return fallback.New(
		renderer,
		light,
		ratelimit.New(ratelimit.Config{RPS: cfg.Fetch.RatePerSecond, Burst: cfg.Fetch.RateBurst}),
		fallback.Config{
			MinBodyLength: cfg.Fetch.MinBodyLength,
			UserAgent:     cfg.Crawler.UserAgent,
			RenderEnabled: renderEnabled,
		},
		a.Logger.Named("fetch"),
	)
}

// Workers builds n workers over the shared queue and engine.
func (a *App) Workers(n int) []*worker.Worker {
	workers := make([]*worker.Worker, 0, n)
	for i := 0; i < n; i++ {
		workers = append(workers, worker.New(i, a.Queue, a.Engine, a.Notifier, a.clock, a.Logger.Named("worker")))
	}
	return workers
}

// Dispatcher builds a dispatcher owning n workers.
func (a *App) Dispatcher(n int) *dispatcher.Dispatcher {
	return dispatcher.New(a.Queue, a.Workers(n), a.Logger)
}

// Close shuts services down in reverse start order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
