// Package stream fans recorded audit entries out to kafka for downstream
// consumers. Publication is strictly best-effort: Announce never blocks the
// caller, a full buffer drops its oldest entries, and broker outages trip a
// breaker instead of queueing forever. The durable store written by the
// recorder stays authoritative; an announced entry may still belong to a
// transaction that later rolls back.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	audit "cradle/pkg/platform/audit"
	"cradle/pkg/platform/circuit"
)

// DefaultTopic carries every published entry unless overridden.
const DefaultTopic = "cradle.audit.entries"

const (
	publishBatchSize = 256
	produceTimeout   = 5 * time.Second
	probeInterval    = 15 * time.Second
)

// Sink produces one encoded record. A kafka producer satisfies it.
type Sink interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Publisher buffers announced entries and publishes them from a background
// worker goroutine. Entries are JSON-encoded and keyed by their id so
// consumers can deduplicate redeliveries.
type Publisher struct {
	sink    Sink
	topic   string
	buf     *RingBuffer
	sampler *Sampler
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *Metrics

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithTopic overrides the destination topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		p.topic = topic
	}
}

// WithBufferSize bounds the announce buffer.
func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		p.buf = NewRingBuffer(n)
	}
}

// WithSampler thins entries per action before publication.
func WithSampler(s *Sampler) Option {
	return func(p *Publisher) {
		p.sampler = s
	}
}

// WithBreaker replaces the default breaker guarding the sink.
func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) {
		p.breaker = b
	}
}

// WithLogger sets a logger for drop and outage reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// NewPublisher creates a publisher and starts its worker goroutine.
func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:    sink,
		topic:   DefaultTopic,
		buf:     NewRingBuffer(0),
		breaker: circuit.New("audit-stream"),
		logger:  slog.Default(),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// Announce queues one entry for publication and returns immediately. The
// context is unused: publication happens on the worker goroutine and must
// outlive the request that triggered it.
func (p *Publisher) Announce(_ context.Context, entry audit.Entry) {
	if p.sampler != nil && !p.sampler.Keep(entry.Action) {
		if p.metrics != nil {
			p.metrics.IncSampledOut()
		}
		return
	}

	if p.buf.Enqueue(entry) {
		if p.metrics != nil {
			p.metrics.IncBufferDropped()
		}
		p.logger.Warn("audit stream buffer full, dropped oldest entry",
			"buffered", p.buf.Len(),
			"dropped_total", p.buf.Dropped(),
		)
	}

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Close drains buffered entries and stops the worker. With the sink down the
// breaker bounds the drain instead of burning a timeout per entry.
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.stop)
	})
	<-p.done
}

func (p *Publisher) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			p.drain()
			return
		case <-p.wake:
			p.drain()
		}
	}
}

// drain publishes until the buffer is empty.
func (p *Publisher) drain() {
	for {
		batch := p.buf.DequeueBatch(publishBatchSize)
		if len(batch) == 0 {
			return
		}
		for _, entry := range batch {
			p.publish(entry)
		}
	}
}

func (p *Publisher) publish(entry audit.Entry) {
	if !p.breaker.Probe(probeInterval) {
		if p.metrics != nil {
			p.metrics.IncBreakerDropped()
		}
		return
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		p.logger.Error("failed to encode audit entry for stream",
			"audit_id", entry.ID.String(),
			"error", err,
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), produceTimeout)
	err = p.sink.Produce(ctx, p.topic, []byte(entry.ID.String()), payload)
	cancel()
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncPublishFailures()
		}
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.Error("audit stream circuit opened; dropping entries until a probe succeeds",
				"topic", p.topic,
				"error", err,
			)
		} else {
			p.logger.Warn("failed to publish audit entry",
				"topic", p.topic,
				"audit_id", entry.ID.String(),
				"error", err,
			)
		}
		if p.metrics != nil {
			p.metrics.SetBreakerState(p.breaker.IsOpen())
		}
		return
	}

	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.Info("audit stream circuit closed", "topic", p.topic)
	}
	if p.metrics != nil {
		p.metrics.IncPublished()
		p.metrics.SetBreakerState(p.breaker.IsOpen())
	}
}
