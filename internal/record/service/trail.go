package service

import (
	"context"
	"errors"

	"zakat/internal/audit"
	id "zakat/pkg/domain"
	dErrors "zakat/pkg/domain-errors"
	"zakat/pkg/platform/sentinel"
)

// GetAuditTrail returns the record's events newest first. The trail of a
// deleted record remains readable.
func (s *Service) GetAuditTrail(ctx context.Context, recordID id.RecordID, filter audit.Filter) ([]audit.Event, error) {
	for _, t := range filter.EventTypes {
		if !t.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown event type %q", t)
		}
	}
	events, err := s.trail(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return audit.View(events, filter), nil
}

// GetAuditTrailByDate is GetAuditTrail grouped by UTC day, newest day first.
func (s *Service) GetAuditTrailByDate(ctx context.Context, recordID id.RecordID, filter audit.Filter) ([]audit.DayGroup, error) {
	events, err := s.GetAuditTrail(ctx, recordID, filter)
	if err != nil {
		return nil, err
	}
	return audit.GroupByDate(events), nil
}

// VerifyAuditTrail checks the record's hash chain.
func (s *Service) VerifyAuditTrail(ctx context.Context, recordID id.RecordID) error {
	events, err := s.trail(ctx, recordID)
	if err != nil {
		return err
	}
	if err := audit.Verify(events); err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "audit chain verification failed",
				"record_id", recordID.String(),
				"error", err,
			)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "audit trail failed verification")
	}
	return nil
}

// trail loads events in append order. An empty trail for an unknown record
// is NOT_FOUND.
func (s *Service) trail(ctx context.Context, recordID id.RecordID) ([]audit.Event, error) {
	events, err := s.store.ListEvents(ctx, recordID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail")
	}
	if len(events) > 0 {
		return events, nil
	}
	if _, err := s.store.FindByID(ctx, recordID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, translate(err, "record not found")
	}
	return events, nil
}
