// Package consumer runs a kafka consumer group over the audit stream topics.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"cradle/internal/platform/config"
)

// Message is one record delivered to a Handler.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes consumed messages. Returning nil commits the message;
// returning an error stops the consumer so the message is redelivered after
// restart from the last committed offset.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Consumer polls the subscribed topics as part of a consumer group and
// dispatches each record to the handler.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger
}

// New joins the consumer group for the given topics.
func New(cfg config.KafkaConfig, topics []string, handler Handler, logger *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(topics...),
		kgo.AutoCommitMarks(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run polls until ctx is cancelled. Records are marked for commit only after
// the handler returns nil; a handler error aborts the run so uncommitted
// records are redelivered.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var handleErr error
		fetches.EachRecord(func(rec *kgo.Record) {
			if handleErr != nil {
				return
			}
			msg := &Message{
				Topic:     rec.Topic,
				Key:       rec.Key,
				Value:     rec.Value,
				Timestamp: rec.Timestamp,
			}
			if err := c.handler.Handle(ctx, msg); err != nil {
				handleErr = fmt.Errorf("handle message from %s: %w", rec.Topic, err)
				return
			}
			c.client.MarkCommitRecords(rec)
		})
		if handleErr != nil {
			return handleErr
		}
	}
}

// Close commits marked offsets and leaves the group.
func (c *Consumer) Close() {
	c.client.Close()
}
