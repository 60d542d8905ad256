// Package consumer routes audit stream messages to per-topic handlers.
package consumer

import (
	"context"
	"log/slog"
	"sort"

	"cradle/internal/platform/kafka/consumer"
)

// TopicHandler handles messages from one topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router dispatches messages to topic-specific handlers. It satisfies the
// kafka consumer's Handler interface, so one group subscription can fan out
// to several handlers.
type Router struct {
	handlers map[string]TopicHandler
	fallback TopicHandler
	logger   *slog.Logger
}

// NewRouter creates a router with an optional fallback handler for
// unregistered topics.
func NewRouter(logger *slog.Logger, fallback TopicHandler) *Router {
	return &Router{
		handlers: make(map[string]TopicHandler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register adds a handler for a topic. Later registrations win.
func (r *Router) Register(topic string, handler TopicHandler) {
	r.handlers[topic] = handler
}

// Topics returns the registered topics, sorted, for group subscription.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Tee fans one message out to several handlers in order. The first error
// stops the fan-out, so on redelivery every handler sees the message again.
// Handlers behind a Tee must tolerate duplicates.
type Tee []TopicHandler

func (t Tee) Handle(ctx context.Context, msg *consumer.Message) error {
	for _, h := range t {
		if err := h.Handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Handle routes one message. Messages for unregistered topics without a
// fallback are logged and committed.
func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, msg)
		}
		r.logger.Warn("no handler for topic, skipping message",
			"topic", msg.Topic,
			"key", string(msg.Key),
		)
		return nil // Commit to avoid redelivery
	}
	return handler.Handle(ctx, msg)
}
