package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"helpdesk/internal/platform/config"
)

// Producer wraps a franz-go client for fire-and-forget publishing to a single
// topic. Delivery outcomes are reported through the produce callback; callers
// decide how to count failures.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer connects to the configured brokers and ensures the topic exists.
// Returns nil if no brokers are configured (Kafka fan-out disabled).
func NewProducer(ctx context.Context, cfg config.Kafka) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, 3, 1, nil, cfg.Topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("create topic %s: %w", cfg.Topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("create topic %s: %w", cfg.Topic, resp.Err)
	}

	return &Producer{client: client, topic: cfg.Topic}, nil
}

// Produce publishes a record asynchronously. The callback runs on a client
// goroutine once delivery succeeds or fails; it must not block.
func (p *Producer) Produce(ctx context.Context, key, value []byte, done func(error)) {
	record := &kgo.Record{Topic: p.topic, Key: key, Value: value}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if done != nil {
			done(err)
		}
	})
}

// Close flushes buffered records and releases the client.
func (p *Producer) Close() {
	p.client.Close()
}
