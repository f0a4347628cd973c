package traversal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
	"github.com/JakeFAU/product-url-crawler/internal/storage/memory"
)

var _ crawler.DomainCrawler = (*Engine)(nil)

const root = "https://shop.example.com"

// site serves canned pages keyed by absolute URL.
type site struct {
	mu      sync.Mutex
	pages   map[string]string
	fetched []string
	panicOn string
	onFetch func(url string)
}

func (s *site) FetchContent(_ context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, url)
	s.mu.Unlock()
	if s.onFetch != nil {
		s.onFetch(url)
	}
	if url == s.panicOn {
		panic("renderer crashed")
	}
	body, ok := s.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: 404", crawler.ErrNoContent)
	}
	return []byte(body), nil
}

func (s *site) fetchedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fetched...)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type failingStore struct{ calls int }

func (f *failingStore) UpsertDomain(context.Context, crawler.DomainRecord) error {
	f.calls++
	return errors.New("db down")
}

func (f *failingStore) GetDomain(context.Context, string) (crawler.DomainRecord, error) {
	return crawler.DomainRecord{}, crawler.ErrDomainNotFound
}

func anchors(hrefs ...string) string {
	out := "<html><body>"
	for _, h := range hrefs {
		out += fmt.Sprintf(`<a href=%q>link</a>`, h)
	}
	return out + "</body></html>"
}

func shop() *site {
	return &site{pages: map[string]string{
		root:                    anchors("/product/1", "/category/a", "/category/b", "https://elsewhere.example.com/x"),
		root + "/category/a":    anchors("/product/2", "/category/deep", "/category/b"),
		root + "/category/b":    anchors("/product/3", "/product/1", "/"),
		root + "/category/deep": anchors("/product/99"),
	}}
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestCrawlCollectsProductsToDepth(t *testing.T) {
	t.Parallel()

	s := shop()
	store := memory.NewDomainStore()
	engine := New(Config{}, s, store, fixedClock{now}, nil)

	urls, err := engine.Crawl(context.Background(), root, nil)
	require.NoError(t, err)
	require.Equal(t, []string{root + "/product/1", root + "/product/2", root + "/product/3"}, urls)
	require.Equal(t, []string{root, root + "/category/a", root + "/category/b"}, s.fetchedURLs())

	record, err := store.GetDomain(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, urls, record.URLs)
	require.Equal(t, now, record.CrawlDate)
	require.Equal(t, 1, store.Len())
}

func TestCrawlDeeperFollowsMoreHops(t *testing.T) {
	t.Parallel()

	s := shop()
	engine := New(Config{MaxDepth: 3}, s, nil, fixedClock{now}, nil)

	urls, err := engine.Crawl(context.Background(), root, nil)
	require.NoError(t, err)
	require.Contains(t, urls, root+"/product/99")
	// Depth-first order: category/a's children are visited before category/b.
	require.Equal(t, []string{root, root + "/category/a", root + "/category/deep", root + "/category/b"}, s.fetchedURLs())
}

func TestTraverseTerminalCases(t *testing.T) {
	t.Parallel()

	s := shop()
	engine := New(Config{}, s, nil, fixedClock{now}, nil)

	urls, err := engine.Traverse(context.Background(), root, NewVisitedSet(), 0, nil)
	require.NoError(t, err)
	require.Empty(t, urls)

	visited := NewVisitedSet()
	visited.Add(root)
	urls, err = engine.Traverse(context.Background(), root, visited, 2, nil)
	require.NoError(t, err)
	require.Empty(t, urls)
	require.Empty(t, s.fetchedURLs())
}

func TestTraverseHandlesCycles(t *testing.T) {
	t.Parallel()

	s := &site{pages: map[string]string{
		root:        anchors("/a"),
		root + "/a": anchors("/b", "/product/a"),
		root + "/b": anchors("/a", "/", "/product/b"),
	}}
	engine := New(Config{MaxDepth: 10}, s, nil, fixedClock{now}, nil)

	urls, err := engine.Crawl(context.Background(), root, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{root + "/product/a", root + "/product/b"}, urls)
	require.Len(t, s.fetchedURLs(), 4) // root, /a, /b, and "/" which differs from root by its trailing slash
}

func TestCrawlFetchFailureIsAbsorbed(t *testing.T) {
	t.Parallel()

	s := &site{pages: map[string]string{
		root: anchors("/broken", "/product/1"),
	}}
	store := memory.NewDomainStore()
	engine := New(Config{}, s, store, fixedClock{now}, nil)

	urls, err := engine.Crawl(context.Background(), root, nil)
	require.NoError(t, err)
	require.Equal(t, []string{root + "/product/1"}, urls)
}

func TestCrawlRootFailureYieldsEmptyAndSkipsStore(t *testing.T) {
	t.Parallel()

	store := memory.NewDomainStore()
	engine := New(Config{}, &site{pages: map[string]string{}}, store, fixedClock{now}, nil)

	urls, err := engine.Crawl(context.Background(), root, nil)
	require.NoError(t, err)
	require.Empty(t, urls)
	require.Zero(t, store.Len())
}

func TestCrawlIsIdempotentAcrossRuns(t *testing.T) {
	t.Parallel()

	store := memory.NewDomainStore()
	engine := New(Config{}, shop(), store, fixedClock{now}, nil)

	first, err := engine.Crawl(context.Background(), root, nil)
	require.NoError(t, err)
	second, err := engine.Crawl(context.Background(), root, nil)
	require.NoError(t, err)
	require.Equal(t, first, second)

	record, err := store.GetDomain(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, first, record.URLs)
	require.Equal(t, 1, store.Len())
}

func TestCrawlStoreErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	store := &failingStore{}
	engine := New(Config{}, shop(), store, fixedClock{now}, nil)

	urls, err := engine.Crawl(context.Background(), root, nil)
	require.NoError(t, err)
	require.NotEmpty(t, urls)
	require.Equal(t, 1, store.calls)
}

func TestCrawlReportsProgress(t *testing.T) {
	t.Parallel()

	var seen []int
	engine := New(Config{}, shop(), nil, fixedClock{now}, nil)
	_, err := engine.Crawl(context.Background(), root, func(pages int) { seen = append(seen, pages) })
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, seen)
}

func TestCrawlCancellationIsTraversalFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	s := shop()
	s.onFetch = func(string) { cancel() }
	store := memory.NewDomainStore()
	engine := New(Config{}, s, store, fixedClock{now}, nil)

	urls, err := engine.Crawl(ctx, root, nil)
	require.ErrorIs(t, err, crawler.ErrTraversal)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, urls)
	require.Zero(t, store.Len())
}

func TestCrawlPanicIsTraversalFailure(t *testing.T) {
	t.Parallel()

	s := shop()
	s.panicOn = root + "/category/a"
	engine := New(Config{}, s, nil, fixedClock{now}, nil)

	_, err := engine.Crawl(context.Background(), root, nil)
	require.ErrorIs(t, err, crawler.ErrTraversal)
	require.ErrorContains(t, err, "renderer crashed")
}

func TestVisitedSet(t *testing.T) {
	t.Parallel()

	v := NewVisitedSet()
	var wg sync.WaitGroup
	added := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added <- v.Add("https://shop.example.com/x")
		}()
	}
	wg.Wait()
	close(added)

	wins := 0
	for ok := range added {
		if ok {
			wins++
		}
	}
	require.Equal(t, 1, wins)
	require.True(t, v.Has("https://shop.example.com/x"))
	require.False(t, v.Add(""))
	require.Equal(t, 1, v.Len())
}
