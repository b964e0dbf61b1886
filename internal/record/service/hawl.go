package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"zakat/internal/audit"
	"zakat/internal/calendar"
	"zakat/internal/hawl"
	"zakat/internal/record/models"
	"zakat/internal/wealth"
	"zakat/internal/zakat"
	id "zakat/pkg/domain"
	dErrors "zakat/pkg/domain-errors"
	"zakat/pkg/platform/sentinel"
	"zakat/pkg/requestcontext"
)

// HawlOutcome is what one hawl evaluation produced.
type HawlOutcome struct {
	Record      *models.Record
	State       hawl.State
	Result      *zakat.Result
	Transitions []hawl.Transition
	Events      []audit.Event
	// Persisted is false for FINALIZED records, which are read but never
	// recalculated.
	Persisted bool

	date      calendar.Date
	completed bool
}

// EvaluateHawl observes the user's current eligible wealth for the record on
// date (today when zero) and advances the hawl. Open records store the new
// calculation and state together with any NISAB_ACHIEVED or HAWL_INTERRUPTED
// events. A FINALIZED record only has its days remaining refreshed.
func (s *Service) EvaluateHawl(ctx context.Context, recordID id.RecordID, date calendar.Date) (*HawlOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "record.EvaluateHawl",
		trace.WithAttributes(attribute.String("record.id", recordID.String())))
	defer span.End()

	out, err := s.evaluateHawl(ctx, recordID, date)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("hawl.status", string(out.State.Status)))
	s.hawlCommitted(ctx, out)
	s.publish(ctx, out.Events)
	return out, nil
}

func (s *Service) evaluateHawl(ctx context.Context, recordID id.RecordID, date calendar.Date) (*HawlOutcome, error) {
	now := requestcontext.Now(ctx)
	if date.IsZero() {
		today, err := calendar.FromTime(now.UTC())
		if err != nil {
			return nil, err
		}
		date = today
	}

	r, err := s.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !r.IsOpen() {
		return &HawlOutcome{Record: r, State: r.Hawl.Refresh(date), Result: r.Result}, nil
	}
	if err := r.CanRecalculate(); err != nil {
		return nil, err
	}

	req, err := s.requestFor(ctx, r, date)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	ev, res, err := s.tracker.Observe(ctx, r.Hawl, req)
	s.observeCalculation(r.Methodology, err, start)
	if err != nil {
		return nil, err
	}

	expected := r.Version
	before := r.Snapshot()
	r.ApplyCalculation(date, ev.State, res, now)
	r.Version = expected + 1
	after := r.Snapshot()

	events := make([]audit.Event, 0, len(ev.Events))
	for _, he := range ev.Events {
		e, err := s.hawlAuditEvent(ctx, r, he, now)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			e.Before = before
		}
		events = append(events, e)
	}
	if len(events) > 0 {
		events[len(events)-1].After = after
	}

	sealed, err := s.store.Save(ctx, r, expected, events)
	if err != nil {
		return nil, translate(err, "record not found")
	}

	return &HawlOutcome{
		Record:      r,
		State:       ev.State,
		Result:      res,
		Transitions: ev.Transitions,
		Events:      sealed,
		Persisted:   true,
		date:        date,
		completed:   ev.Completed(),
	}, nil
}

// hawlCommitted logs and counts the events of a stored evaluation.
func (s *Service) hawlCommitted(ctx context.Context, out *HawlOutcome) {
	if !out.Persisted {
		return
	}
	r := out.Record
	for _, e := range out.Events {
		s.logAudit(ctx, string(e.Type),
			"record_id", r.ID.String(),
			"user_id", r.UserID.String(),
			"current_wealth", e.Details["current_wealth"],
			"nisab", e.Details["nisab"],
		)
		if s.metrics != nil {
			s.metrics.IncrementHawlEvent(string(e.Type))
		}
	}
	if out.completed && s.logger != nil {
		s.logger.InfoContext(ctx, "hawl completed",
			"record_id", r.ID.String(),
			"user_id", r.UserID.String(),
			"observation_date", out.date.Gregorian.String(),
		)
	}
}

// requestFor builds the calculation for a record from the user's eligible
// assets. A user without countable assets is observed at zero wealth rather
// than failing the evaluation.
func (s *Service) requestFor(ctx context.Context, r *models.Record, date calendar.Date) (zakat.Request, error) {
	assets, err := s.assets.ListEligibleAssets(ctx, r.UserID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		if errors.Is(err, sentinel.ErrUnavailable) {
			return zakat.Request{}, dErrors.Wrap(err, dErrors.CodeSourceUnavailable, "asset store unavailable")
		}
		return zakat.Request{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list assets")
	}
	countable := make([]wealth.Asset, 0, len(assets))
	for _, a := range assets {
		if a.Countable() {
			countable = append(countable, a)
		}
	}

	req := zakat.Request{
		CalculationDate: date,
		CalendarType:    r.CalendarType,
		Methodology:     r.Methodology,
		Custom:          r.Custom,
		Currency:        r.Currency,
	}
	if len(countable) == 0 {
		zero := decimal.Zero
		req.Wealth = &zero
	} else {
		req.Assets = countable
	}
	return req, nil
}

func (s *Service) hawlAuditEvent(ctx context.Context, r *models.Record, he hawl.Event, now time.Time) (audit.Event, error) {
	e := s.newEvent(ctx, r, audit.EventType(he.Type), now)
	e.Details = map[string]string{
		"observation_date": he.Date.Gregorian.String(),
		"previous_wealth":  he.PreviousWealth.StringFixed(2),
		"current_wealth":   he.CurrentWealth.StringFixed(2),
		"nisab":            he.Nisab.StringFixed(2),
		"nisab_basis":      string(he.Basis),
	}
	if he.After.StartDate != nil && he.After.CompletionDate != nil {
		e.Details["start_date"] = he.After.StartDate.Gregorian.String()
		e.Details["completion_date"] = he.After.CompletionDate.Gregorian.String()
	}
	states, err := json.Marshal(struct {
		Before hawl.State `json:"before"`
		After  hawl.State `json:"after"`
	}{he.Before, he.After})
	if err != nil {
		return audit.Event{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode hawl states")
	}
	e.Details["hawl_states"] = string(states)
	return e, nil
}
