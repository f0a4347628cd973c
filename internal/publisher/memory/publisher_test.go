package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

var _ crawler.Notifier = (*Publisher)(nil)

func TestPublisherStoresEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	require.NoError(t, pub.Publish(context.Background(), crawler.CompletionEvent{JobID: "1", State: crawler.JobStateCompleted}))
	require.NoError(t, pub.Publish(context.Background(), crawler.CompletionEvent{JobID: "2", State: crawler.JobStateFailed}))

	events := pub.Events()
	require.Len(t, events, 2)
	require.Equal(t, "1", events[0].JobID)
	require.Equal(t, crawler.JobStateFailed, events[1].State)
	<-pub.Published()

	events[0].JobID = "modified"
	require.Equal(t, "1", pub.Events()[0].JobID)
}
