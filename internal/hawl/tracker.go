package hawl

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"zakat/internal/calendar"
	"zakat/internal/nisab"
	"zakat/internal/zakat"
	dErrors "zakat/pkg/domain-errors"
)

// EventType values match the audit event names they are recorded under.
type EventType string

const (
	EventNisabAchieved   EventType = "NISAB_ACHIEVED"
	EventHawlInterrupted EventType = "HAWL_INTERRUPTED"
)

// Observation is wealth measured against Nisab on one day.
type Observation struct {
	Date   calendar.Date
	Wealth decimal.Decimal
	Nisab  decimal.Decimal
	Basis  nisab.Metal
}

func (o Observation) meetsNisab() bool {
	return o.Wealth.GreaterThanOrEqual(o.Nisab)
}

// Transition is one status edge taken during an evaluation.
type Transition struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

// Event is a hawl-level fact worth auditing.
type Event struct {
	Type           EventType       `json:"type"`
	Date           calendar.Date   `json:"date"`
	PreviousWealth decimal.Decimal `json:"previous_wealth"`
	CurrentWealth  decimal.Decimal `json:"current_wealth"`
	Nisab          decimal.Decimal `json:"nisab"`
	Basis          nisab.Metal     `json:"basis,omitempty"`
	Before         State           `json:"before"`
	After          State           `json:"after"`
}

// Evaluation is the outcome of applying one observation.
type Evaluation struct {
	State       State
	Transitions []Transition
	Events      []Event
}

// Changed reports whether any status edge was taken.
func (e Evaluation) Changed() bool {
	return len(e.Transitions) > 0
}

// Completed reports whether this evaluation moved the hawl to COMPLETED.
func (e Evaluation) Completed() bool {
	for _, t := range e.Transitions {
		if t.To == StatusCompleted {
			return true
		}
	}
	return false
}

// Evaluate applies obs to prev. Observations must not go back in time.
// Wealth below Nisab on or after the completion date still interrupts:
// completion requires Nisab at the observation that closes the year.
func Evaluate(prev State, obs Observation) (Evaluation, error) {
	if obs.Date.IsZero() {
		return Evaluation{}, dErrors.New(dErrors.CodeValidation, "observation date is required")
	}
	if prev.LastObservedAt != nil && obs.Date.Before(*prev.LastObservedAt) {
		return Evaluation{}, dErrors.Newf(dErrors.CodeValidation,
			"observation %s precedes last observation %s", obs.Date.Gregorian, prev.LastObservedAt.Gregorian)
	}
	if !prev.Status.IsValid() && prev.Status != "" {
		return Evaluation{}, dErrors.Newf(dErrors.CodeInternal, "unknown hawl status %q", prev.Status)
	}

	if prev.Status == StatusCompleted {
		return Evaluation{State: prev}, nil
	}

	next := prev
	next.LastWealth = ptr(obs.Wealth)
	next.LastObservedAt = ptr(obs.Date)
	ev := Evaluation{}

	switch prev.Status {
	case StatusActive:
		switch {
		case !obs.meetsNisab():
			cleared := reset(next)
			ev.Transitions = append(ev.Transitions,
				Transition{From: StatusActive, To: StatusInterrupted},
				Transition{From: StatusInterrupted, To: StatusNone},
			)
			ev.Events = append(ev.Events, Event{
				Type:           EventHawlInterrupted,
				Date:           obs.Date,
				PreviousWealth: lastWealth(prev),
				CurrentWealth:  obs.Wealth,
				Nisab:          obs.Nisab,
				Basis:          obs.Basis,
				Before:         prev,
				After:          cleared,
			})
			next = cleared
		case !obs.Date.Before(*prev.CompletionDate):
			zero := 0
			next.Status = StatusCompleted
			next.DaysRemaining = &zero
			ev.Transitions = append(ev.Transitions, Transition{From: StatusActive, To: StatusCompleted})
		default:
			next = next.Refresh(obs.Date)
		}

	default: // NONE, or an INTERRUPTED state persisted by an older writer
		if prev.Status == StatusInterrupted {
			next = reset(next)
			ev.Transitions = append(ev.Transitions, Transition{From: StatusInterrupted, To: StatusNone})
		}
		if obs.meetsNisab() {
			next = start(next, obs)
			ev.Transitions = append(ev.Transitions, Transition{From: StatusNone, To: StatusActive})
			ev.Events = append(ev.Events, Event{
				Type:           EventNisabAchieved,
				Date:           obs.Date,
				PreviousWealth: lastWealth(prev),
				CurrentWealth:  obs.Wealth,
				Nisab:          obs.Nisab,
				Basis:          obs.Basis,
				Before:         prev,
				After:          next,
			})
		} else {
			next.Status = StatusNone
		}
	}

	ev.State = next
	return ev, nil
}

func start(s State, obs Observation) State {
	period := calendar.LunarYearBoundary(obs.Date)
	days := period.Days()
	s.Status = StatusActive
	s.StartDate = ptr(period.Start)
	s.CompletionDate = ptr(period.End)
	s.DaysRemaining = &days
	s.NisabBasisAtStart = obs.Basis
	return s
}

func reset(s State) State {
	s.Status = StatusNone
	s.StartDate = nil
	s.CompletionDate = nil
	s.DaysRemaining = nil
	s.NisabBasisAtStart = ""
	return s
}

func lastWealth(s State) decimal.Decimal {
	if s.LastWealth == nil {
		return decimal.Zero
	}
	return *s.LastWealth
}

func ptr[T any](v T) *T { return &v }

// Calculator is the slice of the zakat engine the tracker needs.
type Calculator interface {
	Calculate(ctx context.Context, req zakat.Request) (*zakat.Result, error)
}

// Tracker evaluates a hawl against a fresh calculation.
type Tracker struct {
	calc Calculator
}

func NewTracker(calc Calculator) *Tracker {
	return &Tracker{calc: calc}
}

// Observe runs the calculation for req and applies its zakatable wealth and
// effective Nisab as an observation dated req.CalculationDate.
func (t *Tracker) Observe(ctx context.Context, prev State, req zakat.Request) (Evaluation, *zakat.Result, error) {
	res, err := t.calc.Calculate(ctx, req)
	if err != nil {
		return Evaluation{}, nil, err
	}
	ev, err := Evaluate(prev, ObservationFrom(req.CalculationDate, res))
	if err != nil {
		return Evaluation{}, nil, err
	}
	return ev, res, nil
}

// ObservationFrom builds an observation from a calculation result.
func ObservationFrom(date calendar.Date, res *zakat.Result) Observation {
	return Observation{
		Date:   date,
		Wealth: res.ZakatableWealth,
		Nisab:  res.Nisab.EffectiveNisab,
		Basis:  res.Nisab.Basis,
	}
}

func (e EventType) String() string { return string(e) }

func (t Transition) String() string { return fmt.Sprintf("%s->%s", t.From, t.To) }
