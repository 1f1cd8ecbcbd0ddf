package notify

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubPublisher publishes notification envelopes to a Pub/Sub topic.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher constructs a Pub/Sub backed publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub publisher: topic is required")
	}
	return &PubSubPublisher{topic: topic}, nil
}

// Publish sends msg and waits for the server to acknowledge it.
func (p *PubSubPublisher) Publish(ctx context.Context, msg Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	attrs := make(map[string]string, len(msg.Attributes))
	for k, v := range msg.Attributes {
		if v != "" {
			attrs[k] = v
		}
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Kind, err)
	}
	return nil
}

// Stop flushes pending messages. The topic is unusable afterwards.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
}
