// Package hawl tracks the uninterrupted lunar year during which wealth must
// stay at or above Nisab.
//
//	NONE ──meets Nisab──▶ ACTIVE ──below Nisab──▶ INTERRUPTED ──▶ NONE
//	                        │
//	                        └──completion date reached──▶ COMPLETED
//
// INTERRUPTED is never persisted: an evaluation that interrupts a hawl reports
// both transitions and leaves the state at NONE, ready for the next crossing.
// COMPLETED is terminal for the cycle.
package hawl

import (
	"github.com/shopspring/decimal"

	"zakat/internal/calendar"
	"zakat/internal/nisab"
)

type Status string

const (
	StatusNone        Status = "NONE"
	StatusActive      Status = "ACTIVE"
	StatusCompleted   Status = "COMPLETED"
	StatusInterrupted Status = "INTERRUPTED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusNone, StatusActive, StatusCompleted, StatusInterrupted:
		return true
	}
	return false
}

// State is owned by one record and changed only through Evaluate.
type State struct {
	Status            Status         `json:"status"`
	StartDate         *calendar.Date `json:"start_date,omitempty"`
	CompletionDate    *calendar.Date `json:"completion_date,omitempty"`
	DaysRemaining     *int           `json:"days_remaining,omitempty"`
	NisabBasisAtStart nisab.Metal    `json:"nisab_basis_at_start,omitempty"`

	// LastWealth and LastObservedAt remember the previous observation so an
	// interruption can report the drop.
	LastWealth     *decimal.Decimal `json:"last_wealth,omitempty"`
	LastObservedAt *calendar.Date   `json:"last_observed_at,omitempty"`
}

// NewState returns the NONE state of a fresh record.
func NewState() State {
	return State{Status: StatusNone}
}

func (s State) IsActive() bool    { return s.Status == StatusActive }
func (s State) IsCompleted() bool { return s.Status == StatusCompleted }

// Refresh recomputes DaysRemaining for today without transitioning. An ACTIVE
// hawl can read 0 days remaining; the next evaluation completes it.
func (s State) Refresh(today calendar.Date) State {
	if s.Status != StatusActive || s.CompletionDate == nil {
		return s
	}
	out := s
	days := daysRemaining(*s.CompletionDate, today)
	out.DaysRemaining = &days
	return out
}

// Eligible reports whether the completion date has been reached as of today.
func (s State) Eligible(today calendar.Date) bool {
	switch s.Status {
	case StatusCompleted:
		return true
	case StatusActive:
		return s.CompletionDate != nil && !today.Before(*s.CompletionDate)
	}
	return false
}

func daysRemaining(completion, today calendar.Date) int {
	return max(0, calendar.DaysBetween(today, completion))
}
