package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

var (
	_ crawler.Fetcher = (*Fetcher)(nil)
	_ crawler.Fetcher = Disabled{}
)

func TestNewChromedpSlots(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2, UserAgent: "test-agent"})
	require.NoError(t, err)
	defer fetcher.Close()
	require.Equal(t, 2, cap(fetcher.slots))
}

func TestFetcherNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	require.Equal(t, 30*time.Second, fetcher.navTimeout())
	fetcher.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, fetcher.navTimeout())
}

func TestAcquireHonoursContext(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{slots: make(chan struct{}, 1)}
	require.NoError(t, fetcher.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, fetcher.acquire(ctx), context.Canceled)

	fetcher.release()
	require.NoError(t, fetcher.acquire(context.Background()))
}

func TestWaitForIdle(t *testing.T) {
	t.Parallel()

	idle := make(chan struct{})
	close(idle)
	require.NoError(t, waitFor(idle).Do(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, waitFor(make(chan struct{})).Do(ctx), context.DeadlineExceeded)
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := toNetworkHeaders(http.Header{"X-One": {"a"}, "X-Many": {"a", "b"}, "X-None": {}})
	require.Equal(t, "a", got["X-One"])
	require.Equal(t, []string{"a", "b"}, got["X-Many"])
	require.NotContains(t, got, "X-None")
}

func TestResponseMetaKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.capture(&network.EventResponseReceived{
		Type: network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://shop.example.com/app.js"},
	})
	meta.capture(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  203,
			URL:     "https://shop.example.com/",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404, URL: "https://shop.example.com/frame"},
	})

	status, headers, url := meta.snapshotWithFallbacks("https://shop.example.com", "")
	require.Equal(t, 203, status)
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
	require.Equal(t, "https://shop.example.com/", url)
}

func TestResponseMetaFallbacks(t *testing.T) {
	t.Parallel()

	status, headers, url := newResponseMeta().snapshotWithFallbacks("https://req.example.com", "")
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, headers)
	require.Equal(t, "https://req.example.com", url)

	_, _, url = newResponseMeta().snapshotWithFallbacks("https://req.example.com", "https://final.example.com")
	require.Equal(t, "https://final.example.com", url)
}

func TestDisabled(t *testing.T) {
	t.Parallel()

	_, err := Disabled{}.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com"})
	require.ErrorIs(t, err, ErrDisabled)
}
