// Package pubsub implements the pipeline queues on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/telemetry"
)

const storeName = "pubsub"

// Client publishes to topics and receives from subscriptions of one project.
type Client struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewClient dials Pub/Sub for projectID using Application Default Credentials.
func NewClient(ctx context.Context, projectID string) (*Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("pubsub project id is required")
	}
	c, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return New(c)
}

// New wraps an existing client.
func New(client *pubsub.Client) (*Client, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	return &Client{client: client, topics: make(map[string]*pubsub.Topic)}, nil
}

func (c *Client) topic(name string) *pubsub.Topic {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.topics[name]
	if !ok {
		t = c.client.Topic(name)
		c.topics[name] = t
	}
	return t
}

// Publish marshals payload to JSON and waits for the server to accept it.
// The trace context of ctx travels in the message attributes.
func (c *Client) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	result := c.topic(topic).Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: telemetry.Inject(ctx, nil),
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", jobs.PrimaryError(storeName, "publish "+topic, err)
	}
	return id, nil
}

// Receive pulls one message at a time from subscription. The message is
// acked when fn returns nil and nacked otherwise. It returns nil once ctx ends.
func (c *Client) Receive(ctx context.Context, subscription string, fn jobs.ReceiveFunc) error {
	sub := c.client.Subscription(subscription)
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	sub.ReceiveSettings.NumGoroutines = 1
	err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := fn(telemetry.Extract(ctx, msg.Attributes), msg.Data); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return jobs.PrimaryError(storeName, "receive "+subscription, err)
	}
	return nil
}

// Close flushes pending publishes and closes the client.
func (c *Client) Close() error {
	c.mu.Lock()
	for _, t := range c.topics {
		t.Stop()
	}
	c.topics = make(map[string]*pubsub.Topic)
	c.mu.Unlock()
	return c.client.Close()
}
