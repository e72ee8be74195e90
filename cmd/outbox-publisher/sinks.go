package main

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type gcpPublisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// pubSubPublishers resolves one Pub/Sub publisher per topic.
func pubSubPublishers(client gcpPublisherSource) publisherFactory {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		return &gcpPublisher{Publisher: p}
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

// Publish waits for the broker ack. A failed ordered publish pauses its key,
// so the key is resumed before the row is retried.
func (p *gcpPublisher) Publish(ctx context.Context, msg message) error {
	if p == nil || p.Publisher == nil {
		return errors.New("pubsub publisher is nil")
	}
	key := string(msg.Key)
	result := p.Publisher.Publish(ctx, &gcppubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: key,
	})
	if result == nil {
		return errors.New("publish result is nil")
	}
	if _, err := result.Get(ctx); err != nil {
		if key != "" {
			p.Publisher.ResumePublish(key)
		}
		return err
	}
	return nil
}

type kafkaTopicWriter interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// kafkaPublishers binds the shared kafka writer to each topic.
func kafkaPublishers(writer kafkaTopicWriter) publisherFactory {
	return func(topic string) publisher {
		if writer == nil {
			return nil
		}
		return &kafkaPublisher{writer: writer, topic: topic}
	}
}

type kafkaPublisher struct {
	writer kafkaTopicWriter
	topic  string
}

func (p *kafkaPublisher) Publish(ctx context.Context, msg message) error {
	return p.writer.Publish(ctx, p.topic, msg.Key, msg.Data, msg.Attributes)
}
