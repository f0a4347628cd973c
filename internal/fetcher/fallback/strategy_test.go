package fallback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

var _ crawler.ContentFetcher = (*Strategy)(nil)

type fakeFetcher struct {
	mu    sync.Mutex
	body  string
	err   error
	calls []crawler.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return crawler.FetchResponse{}, f.err
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(f.body)}, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type stubWaiter struct{ err error }

func (w stubWaiter) Wait(context.Context, string) error { return w.err }

func enabled() Config {
	return Config{MinBodyLength: DefaultMinBodyLength, RenderEnabled: true, UserAgent: "ua"}
}

func TestRenderSuccessSkipsLightFetch(t *testing.T) {
	t.Parallel()

	renderer := &fakeFetcher{body: "<html>rendered</html>"}
	light := &fakeFetcher{body: strings.Repeat("x", 1000)}
	s := New(renderer, light, nil, enabled(), nil)

	body, err := s.FetchContent(context.Background(), "https://shop.example.com")
	require.NoError(t, err)
	require.Equal(t, "<html>rendered</html>", string(body))
	require.Zero(t, light.count())
	require.Equal(t, "ua", renderer.calls[0].Headers.Get("User-Agent"))
}

func TestRenderFailureFallsBack(t *testing.T) {
	t.Parallel()

	renderer := &fakeFetcher{err: errors.New("navigation timeout")}
	light := &fakeFetcher{body: strings.Repeat("a", 600)}
	s := New(renderer, light, nil, enabled(), nil)

	body, err := s.FetchContent(context.Background(), "https://shop.example.com")
	require.NoError(t, err)
	require.Len(t, body, 600)
	require.Equal(t, 1, light.count())
}

func TestEmptyRenderFallsBack(t *testing.T) {
	t.Parallel()

	renderer := &fakeFetcher{body: ""}
	light := &fakeFetcher{body: strings.Repeat("a", 600)}
	s := New(renderer, light, nil, enabled(), nil)

	_, err := s.FetchContent(context.Background(), "https://shop.example.com")
	require.NoError(t, err)
	require.Equal(t, 1, light.count())
}

func TestLightBodyBoundary(t *testing.T) {
	t.Parallel()

	renderer := &fakeFetcher{err: errors.New("down")}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "499 chars", body: strings.Repeat("b", 499), wantErr: true},
		{name: "500 chars", body: strings.Repeat("b", 500)},
		{name: "padded short body", body: "   " + strings.Repeat("b", 499) + "\n\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := New(renderer, &fakeFetcher{body: tt.body}, nil, enabled(), nil)
			_, err := s.FetchContent(context.Background(), "https://shop.example.com")
			if tt.wantErr {
				require.ErrorIs(t, err, crawler.ErrNoContent)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestBothFail(t *testing.T) {
	t.Parallel()

	s := New(&fakeFetcher{err: errors.New("render")}, &fakeFetcher{err: errors.New("refused")}, nil, enabled(), nil)
	_, err := s.FetchContent(context.Background(), "https://shop.example.com")
	require.ErrorIs(t, err, crawler.ErrNoContent)
	require.Contains(t, err.Error(), "refused")
}

func TestRenderDisabled(t *testing.T) {
	t.Parallel()

	renderer := &fakeFetcher{body: "rendered"}
	light := &fakeFetcher{body: strings.Repeat("c", 700)}
	cfg := enabled()
	cfg.RenderEnabled = false
	s := New(renderer, light, nil, cfg, nil)

	_, err := s.FetchContent(context.Background(), "https://shop.example.com")
	require.NoError(t, err)
	require.Zero(t, renderer.count())
	require.Equal(t, 1, light.count())
}

func TestWaiterErrorIsNoContent(t *testing.T) {
	t.Parallel()

	light := &fakeFetcher{body: strings.Repeat("c", 700)}
	s := New(nil, light, stubWaiter{err: context.Canceled}, enabled(), nil)
	_, err := s.FetchContent(context.Background(), "https://shop.example.com")
	require.ErrorIs(t, err, crawler.ErrNoContent)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, light.count())
}
