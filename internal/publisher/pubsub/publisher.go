// Package pubsub implements a Google Cloud Pub/Sub publisher for run
// completions.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for the named topic.
func New(client *pubsub.Client, topic string) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return &Publisher{topic: client.Topic(topic)}, nil
}

// Publish marshals the payload to JSON and publishes it, returning the
// server-assigned message id.
func (p *Publisher) Publish(ctx context.Context, payload any) (string, error) {
	if p == nil || p.topic == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Stop flushes outstanding messages; call during shutdown.
func (p *Publisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}
