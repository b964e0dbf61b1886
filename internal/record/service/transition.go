package service

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"zakat/internal/audit"
	"zakat/internal/record/models"
	id "zakat/pkg/domain"
	dErrors "zakat/pkg/domain-errors"
	"zakat/pkg/requestcontext"
)

// Action is a record lifecycle command.
type Action string

const (
	ActionFinalize Action = "FINALIZE"
	ActionUnlock   Action = "UNLOCK"
	ActionEdit     Action = "EDIT"
	ActionDelete   Action = "DELETE"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionFinalize, ActionUnlock, ActionEdit, ActionDelete:
		return true
	}
	return false
}

// Payload carries action arguments. ExpectedVersion, when non-zero, must
// match the stored record or the call fails with CONFLICT.
type Payload struct {
	Reason          string
	Changes         models.Changes
	ExpectedVersion int64
}

// TransitionResult reports the record after a transition. HawlComplete is
// set on FINALIZE: false means the record was finalized before its hawl
// completed.
type TransitionResult struct {
	Record       *models.Record
	HawlComplete bool
	Deleted      bool
	Events       []audit.Event
}

// Transition applies one lifecycle action. A failed transition leaves the
// record and its audit trail unchanged.
func (s *Service) Transition(ctx context.Context, recordID id.RecordID, action Action, payload Payload) (*TransitionResult, error) {
	ctx, span := s.tracer.Start(ctx, "record.Transition", trace.WithAttributes(
		attribute.String("record.id", recordID.String()),
		attribute.String("record.action", string(action)),
	))
	defer span.End()

	res, err := s.transition(ctx, recordID, action, payload)
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(action), outcome(err))
	}
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return res, nil
}

func (s *Service) transition(ctx context.Context, recordID id.RecordID, action Action, payload Payload) (*TransitionResult, error) {
	if !action.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown action %q", action)
	}
	r, err := s.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if payload.ExpectedVersion != 0 && payload.ExpectedVersion != r.Version {
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"record is at version %d, not %d", r.Version, payload.ExpectedVersion)
	}

	switch action {
	case ActionFinalize:
		return s.finalize(ctx, r)
	case ActionUnlock:
		return s.unlock(ctx, r, payload.Reason)
	case ActionEdit:
		return s.edit(ctx, r, payload.Changes)
	default:
		return s.delete(ctx, r)
	}
}

func (s *Service) finalize(ctx context.Context, r *models.Record) (*TransitionResult, error) {
	if err := r.CanFinalize(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	expected, before := r.Version, r.Snapshot()
	hawlComplete := r.Hawl.IsCompleted()

	eventType := r.ApplyFinalize(now)
	e := s.newEvent(ctx, r, eventType, now)
	e.Before = before
	e.Details = map[string]string{
		"hawl_complete": strconv.FormatBool(hawlComplete),
		"hawl_status":   string(r.Hawl.Status),
	}
	if r.Result != nil {
		e.Details["zakat_due"] = r.Result.ZakatDue.StringFixed(2)
	}

	sealed, err := s.commit(ctx, r, expected, e)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, string(eventType),
		"record_id", r.ID.String(),
		"user_id", r.UserID.String(),
		"hawl_complete", hawlComplete,
	)
	if !hawlComplete && s.logger != nil {
		s.logger.WarnContext(ctx, "record finalized before hawl completion",
			"record_id", r.ID.String(),
			"hawl_status", string(r.Hawl.Status),
		)
	}
	return &TransitionResult{Record: r, HawlComplete: hawlComplete, Events: sealed}, nil
}

func (s *Service) unlock(ctx context.Context, r *models.Record, reason string) (*TransitionResult, error) {
	if err := r.CanUnlock(reason); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	expected, before := r.Version, r.Snapshot()

	r.ApplyUnlock(reason, now)
	e := s.newEvent(ctx, r, audit.EventUnlocked, now)
	e.Before = before
	e.UnlockReason = reason

	sealed, err := s.commit(ctx, r, expected, e)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, string(audit.EventUnlocked),
		"record_id", r.ID.String(),
		"user_id", r.UserID.String(),
		"actor_user_id", e.ActorID.String(),
		"unlock_reason", reason,
	)
	return &TransitionResult{Record: r, Events: sealed}, nil
}

func (s *Service) edit(ctx context.Context, r *models.Record, changes models.Changes) (*TransitionResult, error) {
	if err := r.CanEdit(); err != nil {
		return nil, err
	}
	summary, err := r.Diff(changes)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	expected, before := r.Version, r.Snapshot()

	r.ApplyEdit(changes, now)
	e := s.newEvent(ctx, r, audit.EventEdited, now)
	e.Before = before
	e.Changes = summary

	sealed, err := s.commit(ctx, r, expected, e)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, string(audit.EventEdited),
		"record_id", r.ID.String(),
		"user_id", r.UserID.String(),
		"fields_changed", summary.FieldsChanged,
	)
	return &TransitionResult{Record: r, Events: sealed}, nil
}

// delete removes a DRAFT record. No event is appended; the existing trail is
// kept and stays readable through GetAuditTrail.
func (s *Service) delete(ctx context.Context, r *models.Record) (*TransitionResult, error) {
	if err := r.CanDelete(); err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, r.ID, r.Version); err != nil {
		return nil, translate(err, "record not found")
	}
	s.logAudit(ctx, "RECORD_DELETED",
		"record_id", r.ID.String(),
		"user_id", r.UserID.String(),
	)
	return &TransitionResult{Record: r, Deleted: true}, nil
}

// commit saves r against expected, stamping the after-state onto e, and
// publishes the sealed result.
func (s *Service) commit(ctx context.Context, r *models.Record, expected int64, e audit.Event) ([]audit.Event, error) {
	r.Version = expected + 1
	e.After = r.Snapshot()
	sealed, err := s.store.Save(ctx, r, expected, []audit.Event{e})
	if err != nil {
		r.Version = expected
		return nil, translate(err, "record not found")
	}
	s.publish(ctx, sealed)
	return sealed, nil
}
