// Package kafka wraps the franz-go client for producing audit stream
// records and bootstrapping topics.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"cradle/internal/platform/config"
)

// Producer wraps a kgo client for synchronous produces from background
// workers. Not intended for request-path use.
type Producer struct {
	client *kgo.Client
}

// NewProducer connects a producer to the configured brokers.
// Returns nil if no brokers are configured (kafka disabled).
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &Producer{client: client}, nil
}

// Produce writes one record and waits for broker acknowledgement.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// EnsureTopics creates the given topics if they do not exist yet.
func (p *Producer) EnsureTopics(ctx context.Context, cfg config.KafkaConfig, topics ...string) error {
	adm := kadm.NewClient(p.client)

	res, err := adm.CreateTopics(ctx, cfg.Partitions, cfg.Replication, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, t := range res.Sorted() {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

// Health pings the brokers.
func (p *Producer) Health(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered records and closes the client.
func (p *Producer) Close() {
	p.client.Close()
}
