// Package service orchestrates Nisab year records: calculation, hawl
// evaluation against a record, lifecycle transitions and the audit trail.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"zakat/internal/audit"
	"zakat/internal/calendar"
	"zakat/internal/hawl"
	"zakat/internal/methodology"
	"zakat/internal/money"
	"zakat/internal/record/metrics"
	"zakat/internal/record/models"
	"zakat/internal/wealth"
	"zakat/internal/zakat"
	id "zakat/pkg/domain"
	dErrors "zakat/pkg/domain-errors"
	"zakat/pkg/platform/sentinel"
	"zakat/pkg/requestcontext"
)

// Store persists records and appends their audit events atomically.
type Store interface {
	Create(ctx context.Context, r *models.Record, events []audit.Event) ([]audit.Event, error)
	FindByID(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	FindOpenByUser(ctx context.Context, userID id.UserID) (*models.Record, error)
	ListByUser(ctx context.Context, userID id.UserID, statuses ...models.Status) ([]*models.Record, error)
	Save(ctx context.Context, r *models.Record, expectedVersion int64, events []audit.Event) ([]audit.Event, error)
	Delete(ctx context.Context, recordID id.RecordID, expectedVersion int64) error
	ListEvents(ctx context.Context, recordID id.RecordID) ([]audit.Event, error)
}

// AssetStore is the read side of the user's holdings.
type AssetStore interface {
	ListEligibleAssets(ctx context.Context, userID id.UserID) ([]wealth.Asset, error)
}

// Calculator runs one zakat calculation.
type Calculator interface {
	Calculate(ctx context.Context, req zakat.Request) (*zakat.Result, error)
}

// AuditPublisher receives events after they are committed.
type AuditPublisher interface {
	Publish(ctx context.Context, events ...audit.Event) error
}

// TxRunner runs fn atomically. Store calls made with the ctx handed to fn
// join the transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// noTx runs fn directly for stores without transactions.
type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Service coordinates records with the calculation engine and hawl tracker.
type Service struct {
	store          Store
	tx             TxRunner
	assets         AssetStore
	calc           Calculator
	tracker        *hawl.Tracker
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTx lets OpenRecord roll back a created record when its first evaluation
// fails. Without it the two steps commit separately.
func WithTx(runner TxRunner) Option {
	return func(s *Service) {
		if runner != nil {
			s.tx = runner
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service.
func New(store Store, assets AssetStore, calc Calculator, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	if assets == nil {
		return nil, errors.New("asset store is required")
	}
	if calc == nil {
		return nil, errors.New("calculator is required")
	}
	s := &Service{
		store:   store,
		tx:      noTx{},
		assets:  assets,
		calc:    calc,
		tracker: hawl.NewTracker(calc),
		tracer:  otel.Tracer("zakat/internal/record/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateRequest opens a new record for a user.
type CreateRequest struct {
	UserID       id.UserID
	Methodology  methodology.Name
	Custom       *methodology.CustomRules
	CalendarType calendar.Type
	Currency     money.Currency
	Notes        string
}

// CreateRecord opens a DRAFT record. A user may hold only one open record.
func (s *Service) CreateRecord(ctx context.Context, req CreateRequest) (*models.Record, error) {
	r, sealed, err := s.createRecord(ctx, req)
	if err != nil {
		return nil, err
	}
	s.recordCreated(ctx, r)
	s.publish(ctx, sealed)
	return r, nil
}

// OpenRecord creates a record and runs its first hawl evaluation on date as
// one unit. If the evaluation fails no record is left behind, provided the
// service was built WithTx. Events from both steps are published after commit.
func (s *Service) OpenRecord(ctx context.Context, req CreateRequest, date calendar.Date) (*HawlOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "record.OpenRecord")
	defer span.End()

	var (
		r      *models.Record
		out    *HawlOutcome
		events []audit.Event
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		created, sealed, err := s.createRecord(ctx, req)
		if err != nil {
			return err
		}
		o, err := s.evaluateHawl(ctx, created.ID, date)
		if err != nil {
			return err
		}
		r, out = created, o
		events = append(sealed, o.Events...)
		return nil
	})
	if err != nil {
		err = translate(err, "record not found")
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("record.id", r.ID.String()),
		attribute.String("hawl.status", string(out.State.Status)),
	)
	s.recordCreated(ctx, r)
	s.hawlCommitted(ctx, out)
	s.publish(ctx, events)
	return out, nil
}

func (s *Service) createRecord(ctx context.Context, req CreateRequest) (*models.Record, []audit.Event, error) {
	now := requestcontext.Now(ctx)
	if req.CalendarType == "" {
		req.CalendarType = calendar.TypeLunar
	}
	r, err := models.NewRecord(id.NewRecordID(), req.UserID, req.Methodology, req.Custom,
		req.CalendarType, req.Currency, req.Notes, now)
	if err != nil {
		return nil, nil, err
	}
	r.Version = 1
	created := s.newEvent(ctx, r, audit.EventCreated, now)
	created.After = r.Snapshot()

	sealed, err := s.store.Create(ctx, r, []audit.Event{created})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeConflict, "user already has an open record")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create record")
	}
	return r, sealed, nil
}

func (s *Service) recordCreated(ctx context.Context, r *models.Record) {
	s.logAudit(ctx, string(audit.EventCreated),
		"record_id", r.ID.String(),
		"user_id", r.UserID.String(),
		"methodology", string(r.Methodology),
	)
	if s.metrics != nil {
		s.metrics.IncrementRecordCreated()
	}
}

// GetRecord loads a record by ID.
func (s *Service) GetRecord(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	return s.load(ctx, recordID)
}

// CurrentRecord returns the user's open record.
func (s *Service) CurrentRecord(ctx context.Context, userID id.UserID) (*models.Record, error) {
	r, err := s.store.FindOpenByUser(ctx, userID)
	if err != nil {
		return nil, translate(err, "no open record for user")
	}
	return r, nil
}

// ListRecords returns the user's records newest first, optionally filtered by
// status.
func (s *Service) ListRecords(ctx context.Context, userID id.UserID, statuses ...models.Status) ([]*models.Record, error) {
	for _, st := range statuses {
		if !st.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "invalid status %q", st)
		}
	}
	records, err := s.store.ListByUser(ctx, userID, statuses...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list records")
	}
	return records, nil
}

// ComputeZakat runs a standalone calculation. No record is touched.
func (s *Service) ComputeZakat(ctx context.Context, req zakat.Request) (*zakat.Result, error) {
	ctx, span := s.tracer.Start(ctx, "record.ComputeZakat",
		trace.WithAttributes(attribute.String("zakat.methodology", string(req.Methodology))))
	defer span.End()

	start := time.Now()
	res, err := s.calc.Calculate(ctx, req)
	s.observeCalculation(req.Methodology, err, start)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return res, nil
}

func (s *Service) load(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	r, err := s.store.FindByID(ctx, recordID)
	if err != nil {
		return nil, translate(err, "record not found")
	}
	return r, nil
}

// newEvent stamps the common audit fields. The actor defaults to the record's
// owner when the context carries none.
func (s *Service) newEvent(ctx context.Context, r *models.Record, t audit.EventType, now time.Time) audit.Event {
	actor := requestcontext.ActorID(ctx)
	if actor.IsNil() {
		actor = r.UserID
	}
	return audit.Event{
		ID:        id.NewEventID(),
		RecordID:  r.ID,
		UserID:    r.UserID,
		Type:      t,
		Timestamp: now,
		ActorID:   actor,
		RequestID: requestcontext.RequestID(ctx),
	}
}

// publish hands committed events downstream. Failures never undo the commit.
func (s *Service) publish(ctx context.Context, events []audit.Event) {
	if s.auditPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.auditPublisher.Publish(ctx, events...); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "audit publish failed",
				"error", err,
				"record_id", events[0].RecordID.String(),
				"events", len(events),
			)
		}
		if s.metrics != nil {
			s.metrics.IncrementPublishFailure()
		}
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

func (s *Service) observeCalculation(m methodology.Name, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveCalculation(string(m), outcome(err), start)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(dErrors.CodeOf(err))
}

// translate maps store facts onto domain codes. Domain errors pass through.
func translate(err error, notFoundMsg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "record was modified concurrently")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeSourceUnavailable, "dependency unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "record store failure")
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
}
