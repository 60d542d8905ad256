// Package recorder implements the write-side propagation policy around an
// audit.Logger.
//
// Record is fail-closed: a persistence failure propagates to the caller,
// which must fail the business operation it was about to attribute. Services
// recording inside a transaction get commit-or-neither coupling for free,
// since the store joins the context's transaction.
//
// RecordDegraded is fail-open: on a persistence failure the entry is
// diverted to the fallback sink together with an explicit degradation marker
// entry, a metric, and an error log. Degradation is never silent and never
// equivalent to a durable write.
//
// For actions that must be recorded on every exit path, defer the call with
// a cancellation-free context:
//
//	defer func() {
//		_, _ = rec.RecordDegraded(context.WithoutCancel(ctx), entry())
//	}()
package recorder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	audit "cradle/pkg/platform/audit"
	"cradle/pkg/platform/circuit"
)

const tracerName = "cradle/pkg/platform/audit/recorder"

// recorderActor identifies the recorder itself in degradation marker entries.
const recorderActor = "audit-recorder"

// probeInterval spaces primary write attempts while the breaker is open.
const probeInterval = 30 * time.Second

// ErrCircuitOpen marks writes skipped because the primary breaker is open.
// It surfaces wrapped in a PersistenceError.
var ErrCircuitOpen = errors.New("audit primary circuit open")

// Announcer receives successfully recorded entries for downstream fan-out.
// Announcements are advisory: one may refer to an entry whose surrounding
// transaction later rolls back, and the durable store stays authoritative.
type Announcer interface {
	Announce(ctx context.Context, entry audit.Entry)
}

// Recorder applies the write-side propagation policy around audit loggers.
type Recorder struct {
	primary    audit.Logger
	fallback   audit.Logger
	logger     *slog.Logger
	metrics    *Metrics
	announcer  Announcer
	breaker    *circuit.Breaker
	probeEvery time.Duration
	failOpen   bool
	tracer     trace.Tracer
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithFallback sets the sink used by RecordDegraded when the primary fails.
func WithFallback(fallback audit.Logger) Option {
	return func(r *Recorder) {
		r.fallback = fallback
	}
}

// WithLogger sets a logger for failure and degradation reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithAnnouncer sets the post-record fan-out hook.
func WithAnnouncer(a Announcer) Option {
	return func(r *Recorder) {
		r.announcer = a
	}
}

// WithBreaker guards the primary store with a circuit breaker. While open,
// writes skip the primary and fail immediately with ErrCircuitOpen instead of
// burning a timeout against a known-down store; one probe per interval keeps
// checking for recovery.
func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Recorder) {
		r.breaker = b
	}
}

// WithFailOpen makes Record divert like RecordDegraded instead of failing
// the caller's operation. Deployment-level policy (AUDIT_MODE=degraded) for
// installations that rank availability above audit strictness.
func WithFailOpen() Option {
	return func(r *Recorder) {
		r.failOpen = true
	}
}

// New creates a Recorder writing through primary.
func New(primary audit.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		primary:    primary,
		probeEvery: probeInterval,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record durably writes one entry with fail-closed semantics. On a
// persistence failure the caller MUST fail the operation it was recording;
// continuing would leave an attributed action without its audit record.
// Under WithFailOpen the call degrades instead.
func (r *Recorder) Record(ctx context.Context, entry audit.Entry) (uuid.UUID, error) {
	if r.failOpen {
		return r.RecordDegraded(ctx, entry)
	}

	ctx, span := r.startSpan(ctx, "audit.record", entry)
	defer span.End()

	entryID, err := r.record(ctx, &entry)
	if err != nil {
		span.RecordError(err)
		return uuid.Nil, err
	}
	return entryID, nil
}

// RecordDegraded writes one entry, diverting to the fallback sink when the
// durable write fails. The diversion is visible: an error log, a metric, and
// a marker entry accompany the diverted original. Without a configured
// fallback it behaves exactly like Record. Validation failures are the
// caller's bug and propagate without diversion.
func (r *Recorder) RecordDegraded(ctx context.Context, entry audit.Entry) (uuid.UUID, error) {
	ctx, span := r.startSpan(ctx, "audit.record_degraded", entry)
	defer span.End()

	entryID, err := r.record(ctx, &entry)
	if err == nil {
		return entryID, nil
	}

	var persistErr *audit.PersistenceError
	if !errors.As(err, &persistErr) || r.fallback == nil {
		span.RecordError(err)
		return uuid.Nil, err
	}

	if r.metrics != nil {
		r.metrics.IncDegraded()
	}
	if r.logger != nil {
		r.logger.ErrorContext(ctx, "audit degraded: diverting entry to fallback sink",
			"action", string(entry.Action),
			"tenant_id", entry.TenantID.String(),
			"request_id", entry.RequestID,
			"error", err,
		)
	}
	span.AddEvent("audit.degraded")

	fallbackID, fbErr := r.fallback.Log(ctx, entry)
	if fbErr != nil {
		// Both sinks down. Nothing was recorded anywhere; fail closed.
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "CRITICAL: fallback audit sink failed after durable failure",
				"action", string(entry.Action),
				"tenant_id", entry.TenantID.String(),
				"error", fbErr,
			)
		}
		span.RecordError(err)
		return uuid.Nil, err
	}

	r.writeDegradationMarker(ctx, entry, fallbackID, persistErr)
	return fallbackID, nil
}

// record defaults the id and capture time before the write so that announced
// payloads match the persisted row exactly, then writes through the primary.
func (r *Recorder) record(ctx context.Context, entry *audit.Entry) (uuid.UUID, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	if r.breaker != nil && !r.breaker.Probe(r.probeEvery) {
		err := &audit.PersistenceError{Op: "primary write", Err: ErrCircuitOpen}
		r.reportPersistFailure(ctx, entry, err)
		return uuid.Nil, err
	}

	start := time.Now()
	entryID, err := r.primary.Log(ctx, *entry)
	r.observePrimary(ctx, err)
	if err != nil {
		r.reportPersistFailure(ctx, entry, err)
		return uuid.Nil, err
	}

	if r.metrics != nil {
		r.metrics.ObservePersistDuration(time.Since(start).Seconds())
		r.metrics.IncRecorded()
	}
	if r.announcer != nil {
		r.announcer.Announce(ctx, *entry)
	}
	return entryID, nil
}

// observePrimary feeds the primary write outcome to the breaker. Validation
// errors are the caller's bug, not store health, and count as neither.
func (r *Recorder) observePrimary(ctx context.Context, err error) {
	if r.breaker == nil {
		return
	}
	if err == nil {
		if _, change := r.breaker.RecordSuccess(); change.Closed && r.logger != nil {
			r.logger.InfoContext(ctx, "audit primary circuit closed",
				"breaker", r.breaker.Name(),
			)
		}
		return
	}

	var persistErr *audit.PersistenceError
	if !errors.As(err, &persistErr) {
		return
	}
	if _, change := r.breaker.RecordFailure(); change.Opened && r.logger != nil {
		r.logger.ErrorContext(ctx, "audit primary circuit opened; skipping writes until a probe succeeds",
			"breaker", r.breaker.Name(),
		)
	}
}

func (r *Recorder) reportPersistFailure(ctx context.Context, entry *audit.Entry, err error) {
	if r.metrics != nil {
		r.metrics.IncPersistFailures()
	}
	if r.logger != nil {
		r.logger.ErrorContext(ctx, "CRITICAL: audit persistence failed",
			"action", string(entry.Action),
			"tenant_id", entry.TenantID.String(),
			"request_id", entry.RequestID,
			"error", err,
		)
	}
}

// writeDegradationMarker records the degradation itself as a first-class
// entry on the fallback sink, referencing the diverted original. Marker
// failures are logged and dropped; the original is already in the sink.
func (r *Recorder) writeDegradationMarker(ctx context.Context, original audit.Entry, fallbackID uuid.UUID, persistErr *audit.PersistenceError) {
	marker := audit.Entry{
		ActorID:        recorderActor,
		ActorType:      audit.ActorTypeSystem,
		Action:         audit.ActionCreate,
		ActionDetail:   "durable audit write failed; entry diverted to fallback sink",
		ResourceType:   "audit_entry",
		ResourceID:     fallbackID.String(),
		TenantID:       original.TenantID,
		RequestID:      original.RequestID,
		Timestamp:      time.Now().UTC(),
		Success:        false,
		ErrorMessage:   persistErr.Error(),
		Classification: audit.ClassificationInternal,
	}
	if _, err := r.fallback.Log(ctx, marker); err != nil && r.logger != nil {
		r.logger.ErrorContext(ctx, "failed to record degradation marker",
			"tenant_id", original.TenantID.String(),
			"error", err,
		)
	}
}

func (r *Recorder) startSpan(ctx context.Context, name string, entry audit.Entry) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("audit.action", string(entry.Action)),
		attribute.String("audit.resource_type", entry.ResourceType),
		attribute.String("audit.tenant_id", entry.TenantID.String()),
	))
}
