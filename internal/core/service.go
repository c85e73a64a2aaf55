// Package core implements the blueprint engine: the editing-lock protocol,
// layout reflow operations, the revision ledger, the inventory ledger and
// blueprint lifecycle. Every operation takes an explicit CallerContext and
// runs as one store transaction.
package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"binmap/internal/blob"
	"binmap/internal/infra/persistence/memory"
	"binmap/pkg/domain"
)

// Clock provides the current time. Lock validity is evaluated against it.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// MetricsRecorder observes operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// LockContentionRecorder is implemented by recorders that also count
// acquire attempts refused because another user holds the lock.
type LockContentionRecorder interface {
	LockContended(ctx context.Context)
}

// Tracer starts a span per operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation's error.
type TraceSpan interface {
	End(err error)
}

// Notifier receives layout events after a successful commit.
type Notifier interface {
	Publish(ctx context.Context, event domain.LayoutEvent) error
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the clock used for lock timestamps and validity.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithNotifier sets the layout event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithBlobStore sets the store used for background images.
func WithBlobStore(store blob.Store) Option {
	return func(s *Service) { s.blobs = store }
}

// WithLockTTL overrides the lock expiration.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithRevisionLimit overrides the number of live revisions kept per blueprint.
func WithRevisionLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxRevisions = limit
		}
	}
}

// Service is the blueprint engine.
type Service struct {
	store        domain.PersistentStore
	blobs        blob.Store
	logger       *zap.Logger
	metrics      MetricsRecorder
	tracer       Tracer
	clock        Clock
	notifier     Notifier
	lockTTL      time.Duration
	maxRevisions int
}

// NewService constructs a service backed by store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:        store,
		logger:       zap.NewNop(),
		metrics:      noopMetrics{},
		tracer:       noopTracer{},
		clock:        systemClock{},
		lockTTL:      domain.DefaultLockExpiration,
		maxRevisions: domain.DefaultMaxRevisions,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.syncClock()
	return s
}

// NewInMemoryService creates a service over a fresh memory store using the
// default rules engine.
func NewInMemoryService(opts ...Option) *Service {
	s := NewService(nil, opts...)
	s.store = memory.NewStore(NewDefaultRulesEngine(s.maxRevisions))
	s.syncClock()
	return s
}

// clockSetter is implemented by stores that stamp createdAt/updatedAt.
type clockSetter interface {
	SetClock(func() time.Time)
}

// syncClock makes the store stamp records with the service clock.
func (s *Service) syncClock() {
	if cs, ok := s.store.(clockSetter); ok {
		cs.SetClock(s.now)
	}
}

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore { return s.store }

// LockTTL returns the configured lock expiration.
func (s *Service) LockTTL() time.Duration { return s.lockTTL }

// RevisionLimit returns the configured revision bound.
func (s *Service) RevisionLimit() int { return s.maxRevisions }

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

// run executes fn as one store transaction wrapped in tracing, metrics and
// logging. Events are published only after a successful commit.
func (s *Service) run(ctx context.Context, op string, caller domain.CallerContext, retryable bool, fn func(tx domain.Transaction, emit func(domain.LayoutEvent)) error) error {
	var events []domain.LayoutEvent
	err := s.observe(ctx, op, caller, retryable, func(ctx context.Context) error {
		events = events[:0]
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return fn(tx, func(e domain.LayoutEvent) {
				e.Operation = op
				if e.UserID == "" {
					e.UserID = caller.UserID
				}
				if e.OrgID == "" {
					e.OrgID = caller.OrgID
				}
				if e.At.IsZero() {
					e.At = s.now()
				}
				events = append(events, e)
			})
		})
		return err
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events)
	return nil
}

// view executes fn against a read-only snapshot. Queries are always
// retryable.
func (s *Service) view(ctx context.Context, op string, caller domain.CallerContext, fn func(domain.TransactionView) error) error {
	return s.observe(ctx, op, caller, true, func(ctx context.Context) error {
		return s.store.View(ctx, fn)
	})
}

func (s *Service) observe(ctx context.Context, op string, caller domain.CallerContext, retryable bool, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := classify(fn(ctx), retryable)
	span.End(err)
	elapsed := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)

	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("org_id", caller.OrgID),
		zap.String("user_id", caller.UserID),
		zap.Duration("duration", elapsed),
	}
	if err != nil {
		s.logger.Warn("operation failed", append(fields, zap.String("code", string(domain.CodeOf(err))), zap.Error(err))...)
		return err
	}
	s.logger.Debug("operation completed", fields...)
	return nil
}

// classify leaves engine errors, rule violations and context errors intact
// and wraps anything else as a storage failure.
func classify(err error, retryable bool) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	var rv domain.RuleViolationError
	switch {
	case errors.As(err, &de), errors.As(err, &rv):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return domain.Storage(err, retryable)
}

func (s *Service) publish(ctx context.Context, events []domain.LayoutEvent) {
	if s.notifier == nil {
		return
	}
	for _, e := range events {
		if err := s.notifier.Publish(context.WithoutCancel(ctx), e); err != nil {
			s.logger.Warn("publish layout event",
				zap.String("event", string(e.Type)),
				zap.String("blueprint_id", e.BlueprintID),
				zap.Error(err))
		}
	}
}

func (s *Service) recordContention(ctx context.Context) {
	if rec, ok := s.metrics.(LockContentionRecorder); ok {
		rec.LockContended(ctx)
	}
}
