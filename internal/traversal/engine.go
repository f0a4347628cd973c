// Package traversal walks a shop's pages to a bounded depth and collects
// product URLs.
package traversal

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/classifier"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
	"github.com/JakeFAU/product-url-crawler/internal/metrics"
	"github.com/JakeFAU/product-url-crawler/internal/telemetry"
)

// DefaultMaxDepth bounds a crawl to the root page plus one hop.
const DefaultMaxDepth = 2

// Page statuses reported to metrics.
const (
	pageOK        = "ok"
	pageNoContent = "no_content"
	pageBadHTML   = "parse_error"
)

// Config holds traversal settings.
type Config struct {
	MaxDepth int
}

// Engine implements crawler.DomainCrawler.
type Engine struct {
	cfg        Config
	fetcher    crawler.ContentFetcher
	classifier *classifier.Classifier
	store      crawler.ResultStore
	clock      crawler.Clock
	logger     *zap.Logger
}

// New builds an Engine. store may be nil, in which case nothing is persisted.
func New(cfg Config, fetcher crawler.ContentFetcher, store crawler.ResultStore, clock crawler.Clock, logger *zap.Logger) *Engine {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:        cfg,
		fetcher:    fetcher,
		classifier: classifier.New(logger.Named("classifier")),
		store:      store,
		clock:      clock,
		logger:     logger,
	}
}

// Crawl traverses domain with a fresh VisitedSet and the configured depth,
// then upserts a non-empty result keyed by domain. A failed upsert is logged
// and the URLs are still returned.
func (e *Engine) Crawl(ctx context.Context, domain string, progress crawler.ProgressFunc) ([]string, error) {
	urls, err := e.Traverse(ctx, domain, NewVisitedSet(), e.cfg.MaxDepth, progress)
	if err != nil {
		return nil, err
	}
	metrics.ObserveProductURLs(len(urls))

	if len(urls) == 0 || e.store == nil {
		return urls, nil
	}
	record := crawler.DomainRecord{Domain: domain, URLs: urls, CrawlDate: e.clock.Now()}
	if err := e.store.UpsertDomain(ctx, record); err != nil {
		e.logger.Error("failed to persist product urls",
			zap.String("domain", domain),
			zap.Int("urls", len(urls)),
			zap.Error(err),
		)
	}
	return urls, nil
}

type node struct {
	url   string
	depth int
}

// Traverse walks from root in depth-first discovery order, entering each URL
// at most once per visited set. Fetch and parse failures only drop the page;
// cancellation and panics are returned wrapped in crawler.ErrTraversal.
func (e *Engine) Traverse(
	ctx context.Context,
	root string,
	visited *VisitedSet,
	depth int,
	progress crawler.ProgressFunc,
) (urls []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			urls = nil
			err = fmt.Errorf("%w: panic: %v", crawler.ErrTraversal, r)
		}
	}()

	products := newOrderedSet()
	stack := []node{{url: root, depth: depth}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", crawler.ErrTraversal, err)
		}

		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.depth <= 0 || !visited.Add(n.url) {
			continue
		}

		links, err := e.visit(ctx, n.url, n.depth, visited)
		if progress != nil {
			progress(visited.Len())
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", crawler.ErrTraversal, ctx.Err())
			}
			continue
		}

		products.addAll(links.ProductURLs)
		for i := len(links.InternalLinks) - 1; i >= 0; i-- {
			stack = append(stack, node{url: links.InternalLinks[i], depth: n.depth - 1})
		}
	}
	return products.items, nil
}

// visit fetches and classifies one page. Errors are already logged.
func (e *Engine) visit(ctx context.Context, pageURL string, depth int, visited *VisitedSet) (res classifier.Result, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "traversal.visit", trace.WithAttributes(
		attribute.String("url", pageURL),
		attribute.Int("depth", depth),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "page dropped")
		} else {
			span.SetAttributes(
				attribute.Int("products", len(res.ProductURLs)),
				attribute.Int("internal_links", len(res.InternalLinks)),
			)
		}
		span.End()
	}()
	logger := e.logger.With(zap.String("url", pageURL))

	origin, err := crawler.Origin(pageURL)
	if err != nil {
		logger.Warn("skipping page with invalid url", zap.Error(err))
		metrics.ObservePage(pageURL, pageNoContent)
		return classifier.Result{}, err
	}

	body, err := e.fetcher.FetchContent(ctx, pageURL)
	if err != nil {
		level := zap.WarnLevel
		if errors.Is(err, crawler.ErrNoContent) {
			level = zap.InfoLevel
		}
		logger.Log(level, "no content for page", zap.Error(err))
		metrics.ObservePage(pageURL, pageNoContent)
		return classifier.Result{}, err
	}

	links, err := classifier.Extract(body)
	if err != nil {
		logger.Warn("failed to parse page", zap.Error(err))
		metrics.ObservePage(pageURL, pageBadHTML)
		return classifier.Result{}, err
	}

	res, err = e.classifier.Classify(origin, links, visited)
	if err != nil {
		logger.Warn("failed to classify links", zap.Error(err))
		metrics.ObservePage(pageURL, pageBadHTML)
		return classifier.Result{}, err
	}
	metrics.ObservePage(pageURL, pageOK)
	logger.Debug("page classified",
		zap.Int("products", len(res.ProductURLs)),
		zap.Int("internal_links", len(res.InternalLinks)),
	)
	return res, nil
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]struct{}{}}
}

func (s *orderedSet) addAll(values []string) {
	for _, v := range values {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}
