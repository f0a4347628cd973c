// Package pubsub publishes job completion events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// Message attribute keys.
const (
	AttrJobID  = "job_id"
	AttrStatus = "status"
)

// Publisher implements crawler.Notifier on a Pub/Sub topic.
type Publisher struct {
	Client *pubsub.Client
	Topic  *pubsub.Topic
}

// Dial creates a client for projectID bound to topicID.
// Application Default Credentials are used.
func Dial(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	if projectID == "" || topicID == "" {
		return nil, fmt.Errorf("pubsub project id and topic name are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Publisher{Client: client, Topic: client.Topic(topicID)}, nil
}

// Publish marshals the event to JSON and waits for the server ack.
func (p *Publisher) Publish(ctx context.Context, event crawler.CompletionEvent) error {
	if p.Topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	result := p.Topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			AttrJobID:  event.JobID,
			AttrStatus: string(event.State),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	if p.Topic != nil {
		p.Topic.Stop()
	}
	if p.Client == nil {
		return nil
	}
	if err := p.Client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
