package models

import dErrors "zakat/pkg/domain-errors"

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusFinalized Status = "FINALIZED"
	StatusUnlocked  Status = "UNLOCKED"
)

var transitions = map[Status][]Status{
	StatusDraft:     {StatusFinalized},
	StatusFinalized: {StatusUnlocked},
	StatusUnlocked:  {StatusFinalized},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid record status %q", s)
	}
	return st, nil
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsOpen reports whether the record still accepts edits and calculations.
func (s Status) IsOpen() bool {
	return s == StatusDraft || s == StatusUnlocked
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }
