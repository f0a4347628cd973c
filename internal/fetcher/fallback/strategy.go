// Package fallback picks between rendered and lightweight page retrieval.
package fallback

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
	"github.com/JakeFAU/product-url-crawler/internal/metrics"
)

// DefaultMinBodyLength is the smallest trimmed light body accepted as a real page.
const DefaultMinBodyLength = 500

// Waiter paces outbound requests.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config tunes the strategy.
type Config struct {
	MinBodyLength int
	UserAgent     string
	// RenderEnabled false skips the renderer entirely.
	RenderEnabled bool
}

// Strategy implements crawler.ContentFetcher: render first, then fall back to a plain GET.
type Strategy struct {
	renderer crawler.Fetcher
	light    crawler.Fetcher
	waiter   Waiter
	cfg      Config
	logger   *zap.Logger
}

// New wires a Strategy. waiter and logger may be nil.
func New(renderer, light crawler.Fetcher, waiter Waiter, cfg Config, logger *zap.Logger) *Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinBodyLength < 0 {
		cfg.MinBodyLength = DefaultMinBodyLength
	}
	return &Strategy{renderer: renderer, light: light, waiter: waiter, cfg: cfg, logger: logger}
}

// FetchContent returns page markup or an error wrapping crawler.ErrNoContent.
func (s *Strategy) FetchContent(ctx context.Context, rawURL string) ([]byte, error) {
	if s.waiter != nil {
		if err := s.waiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("%w: %w", crawler.ErrNoContent, err)
		}
	}

	if s.cfg.RenderEnabled && s.renderer != nil {
		body, err := s.fetch(ctx, s.renderer, metrics.MethodHeadless, rawURL)
		if err == nil && len(body) > 0 {
			metrics.ObserveFetch(metrics.MethodHeadless, metrics.OutcomeSuccess)
			return body, nil
		}
		if err == nil {
			metrics.ObserveFetch(metrics.MethodHeadless, metrics.OutcomeEmpty)
		}
		s.logger.Debug("render fetch failed, falling back to light fetch", zap.String("url", rawURL), zap.Error(err))
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrNoContent, ctx.Err())
	}

	body, err := s.fetch(ctx, s.light, metrics.MethodLight, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrNoContent, err)
	}
	if n := len(strings.TrimSpace(string(body))); n < s.cfg.MinBodyLength {
		metrics.ObserveFetch(metrics.MethodLight, metrics.OutcomeShort)
		return nil, fmt.Errorf("%w: light body of %d chars below %d", crawler.ErrNoContent, n, s.cfg.MinBodyLength)
	}
	metrics.ObserveFetch(metrics.MethodLight, metrics.OutcomeSuccess)
	return body, nil
}

func (s *Strategy) fetch(ctx context.Context, f crawler.Fetcher, method, rawURL string) ([]byte, error) {
	req := crawler.FetchRequest{URL: rawURL}
	if s.cfg.UserAgent != "" {
		req.Headers = http.Header{"User-Agent": {s.cfg.UserAgent}}
	}
	resp, err := f.Fetch(ctx, req)
	if err != nil {
		metrics.ObserveFetch(method, metrics.OutcomeError)
		return nil, fmt.Errorf("%s fetch %s: %w", method, rawURL, err)
	}
	return resp.Body, nil
}
