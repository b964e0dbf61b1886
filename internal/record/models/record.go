package models

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"zakat/internal/audit"
	"zakat/internal/calendar"
	"zakat/internal/hawl"
	"zakat/internal/methodology"
	"zakat/internal/money"
	"zakat/internal/zakat"
	id "zakat/pkg/domain"
	dErrors "zakat/pkg/domain-errors"
)

// Record is the Nisab year record, the aggregate root for one hawl cycle.
//
// Invariants:
//   - Status transitions: DRAFT → FINALIZED, FINALIZED → UNLOCKED,
//     UNLOCKED → FINALIZED. Nothing returns to DRAFT.
//   - Only DRAFT records can be deleted.
//   - Result and inputs are frozen while FINALIZED.
//   - A user has at most one open (DRAFT or UNLOCKED) record; the store
//     enforces this on create.
//   - Version increases by one on every persisted change and is the
//     optimistic-concurrency token. The audit trail is stored separately and
//     does not touch Version.
type Record struct {
	ID              id.RecordID              `json:"id"`
	UserID          id.UserID                `json:"user_id"`
	Status          Status                   `json:"status"`
	Methodology     methodology.Name         `json:"methodology"`
	Custom          *methodology.CustomRules `json:"custom,omitempty"`
	CalendarType    calendar.Type            `json:"calendar_type"`
	Currency        money.Currency           `json:"currency"`
	CalculationDate calendar.Date            `json:"calculation_date"`
	Hawl            hawl.State               `json:"hawl"`
	Result          *zakat.Result            `json:"result,omitempty"`
	UnlockReason    string                   `json:"unlock_reason,omitempty"`
	UserNotes       string                   `json:"user_notes,omitempty"`
	Version         int64                    `json:"version"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
	FinalizedAt     *time.Time               `json:"finalized_at,omitempty"`
}

// NewRecord opens a DRAFT record with no hawl.
func NewRecord(recordID id.RecordID, userID id.UserID, m methodology.Name, custom *methodology.CustomRules,
	calType calendar.Type, currency money.Currency, notes string, now time.Time) (*Record, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user ID is required")
	}
	if err := validText("notes", notes); err != nil {
		return nil, err
	}
	if _, err := methodology.Lookup(m, custom); err != nil {
		return nil, err
	}
	if !calType.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid calendar type %q", calType)
	}
	cur, err := money.ParseCurrency(string(currency))
	if err != nil {
		return nil, err
	}
	date, err := calendar.FromTime(now.UTC())
	if err != nil {
		return nil, err
	}
	return &Record{
		ID:              recordID,
		UserID:          userID,
		Status:          StatusDraft,
		Methodology:     m,
		Custom:          custom,
		CalendarType:    calType,
		Currency:        cur,
		CalculationDate: date,
		Hawl:            hawl.NewState(),
		UserNotes:       strings.TrimSpace(notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (r *Record) IsOpen() bool { return r.Status.IsOpen() }

// CanFinalize checks the FINALIZE transition. An incomplete hawl is allowed
// and reported to the caller separately.
func (r *Record) CanFinalize() error {
	if !r.Status.CanTransitionTo(StatusFinalized) {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot finalize a %s record", r.Status)
	}
	if r.Result == nil {
		return dErrors.New(dErrors.CodeValidation, "record has no calculation to finalize")
	}
	return nil
}

// ApplyFinalize freezes the record and returns the audit event type:
// FINALIZED from DRAFT, REFINALIZED from UNLOCKED.
func (r *Record) ApplyFinalize(now time.Time) audit.EventType {
	event := audit.EventFinalized
	if r.Status == StatusUnlocked {
		event = audit.EventRefinalized
	}
	r.Status = StatusFinalized
	r.FinalizedAt = &now
	r.UpdatedAt = now
	return event
}

// CanUnlock requires a FINALIZED record and a non-blank, valid UTF-8 reason.
func (r *Record) CanUnlock(reason string) error {
	if !r.Status.CanTransitionTo(StatusUnlocked) {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot unlock a %s record", r.Status)
	}
	if strings.TrimSpace(reason) == "" {
		return dErrors.New(dErrors.CodeUnlockReasonRequired, "an unlock reason is required")
	}
	return validText("unlock reason", reason)
}

// ApplyUnlock reopens the record. The reason is stored verbatim.
func (r *Record) ApplyUnlock(reason string, now time.Time) {
	r.Status = StatusUnlocked
	r.UnlockReason = reason
	r.UpdatedAt = now
}

// CanEdit rejects edits to a FINALIZED record.
func (r *Record) CanEdit() error {
	if !r.Status.IsOpen() {
		return dErrors.Newf(dErrors.CodeRecordLocked, "record is %s; unlock it before editing", r.Status)
	}
	return nil
}

// CanRecalculate guards calculation and hawl updates, which are edits of the
// stored result.
func (r *Record) CanRecalculate() error {
	return r.CanEdit()
}

// ApplyCalculation stores a fresh calculation and hawl state.
func (r *Record) ApplyCalculation(date calendar.Date, state hawl.State, res *zakat.Result, now time.Time) {
	r.CalculationDate = date
	r.Hawl = state
	r.Result = res
	r.UpdatedAt = now
}

// CanDelete allows deletion of DRAFT records only.
func (r *Record) CanDelete() error {
	if r.Status != StatusDraft {
		return dErrors.Newf(dErrors.CodeDeleteNotAllowed, "cannot delete a %s record", r.Status)
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without touching the
// original. Result and hawl state hold only values and pointers to immutable
// values.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Custom != nil {
		custom := *r.Custom
		custom.IncludedCategories = append(custom.IncludedCategories[:0:0], r.Custom.IncludedCategories...)
		c.Custom = &custom
	}
	if r.FinalizedAt != nil {
		t := *r.FinalizedAt
		c.FinalizedAt = &t
	}
	return &c
}

// Snapshot is the record state captured in audit events.
type Snapshot struct {
	Status          Status           `json:"status"`
	Methodology     methodology.Name `json:"methodology"`
	Currency        money.Currency   `json:"currency"`
	CalendarType    calendar.Type    `json:"calendar_type"`
	CalculationDate string           `json:"calculation_date"`
	Hawl            hawl.State       `json:"hawl"`
	Result          *zakat.Result    `json:"result,omitempty"`
	UnlockReason    string           `json:"unlock_reason,omitempty"`
	UserNotes       string           `json:"user_notes,omitempty"`
	Version         int64            `json:"version"`
}

// Snapshot renders the audit view of the record.
func (r *Record) Snapshot() json.RawMessage {
	raw, err := json.Marshal(Snapshot{
		Status:          r.Status,
		Methodology:     r.Methodology,
		Currency:        r.Currency,
		CalendarType:    r.CalendarType,
		CalculationDate: r.CalculationDate.Gregorian.String(),
		Hawl:            r.Hawl,
		Result:          r.Result,
		UnlockReason:    r.UnlockReason,
		UserNotes:       r.UserNotes,
		Version:         r.Version,
	})
	if err != nil {
		// every field is a plain value type; Marshal cannot fail here
		panic(err)
	}
	return raw
}

// validText rejects free text that could not be stored verbatim.
func validText(field, v string) error {
	if !utf8.ValidString(v) {
		return dErrors.Newf(dErrors.CodeValidation, "%s must be valid UTF-8", field)
	}
	return nil
}
