// Package audit is the append-only history of a Nisab year record.
//
// Events live in their own log keyed by record ID, separate from the record's
// optimistic-concurrency version. Each event is sealed into a per-record hash
// chain when it is appended, so any later edit, removal or reordering is
// detectable with Verify.
package audit

import (
	"context"
	"encoding/json"
	"time"

	id "zakat/pkg/domain"
)

type EventType string

const (
	EventCreated         EventType = "CREATED"
	EventNisabAchieved   EventType = "NISAB_ACHIEVED"
	EventHawlInterrupted EventType = "HAWL_INTERRUPTED"
	EventFinalized       EventType = "FINALIZED"
	EventUnlocked        EventType = "UNLOCKED"
	EventEdited          EventType = "EDITED"
	EventRefinalized     EventType = "REFINALIZED"
)

var eventTypes = map[EventType]struct{}{
	EventCreated: {}, EventNisabAchieved: {}, EventHawlInterrupted: {},
	EventFinalized: {}, EventUnlocked: {}, EventEdited: {}, EventRefinalized: {},
}

func (t EventType) IsValid() bool {
	_, ok := eventTypes[t]
	return ok
}

// IsSecurityRelevant flags events that reopen or alter a record. Consumers
// highlight them.
func IsSecurityRelevant(t EventType) bool {
	return t == EventUnlocked || t == EventEdited
}

// ChangesSummary is the field-level diff of an edit.
type ChangesSummary struct {
	FieldsChanged []string          `json:"fields_changed"`
	OldValues     map[string]string `json:"old_values"`
	NewValues     map[string]string `json:"new_values"`
}

// Event is one immutable audit entry. Sequence, PrevHash and Hash are set by
// Seal inside the store's append.
type Event struct {
	ID        id.EventID  `json:"id"`
	RecordID  id.RecordID `json:"record_id"`
	UserID    id.UserID   `json:"user_id"`
	Type      EventType   `json:"event_type"`
	Timestamp time.Time   `json:"timestamp"`
	ActorID   id.UserID   `json:"actor_user_id"`
	RequestID string      `json:"request_id,omitempty"`

	UnlockReason string            `json:"unlock_reason,omitempty"`
	Changes      *ChangesSummary   `json:"changes_summary,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	Before       json.RawMessage   `json:"before_state,omitempty"`
	After        json.RawMessage   `json:"after_state,omitempty"`

	Sequence int64  `json:"sequence"`
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// SecurityRelevant is IsSecurityRelevant for this event's type.
func (e Event) SecurityRelevant() bool {
	return IsSecurityRelevant(e.Type)
}

// Publisher fans committed events out to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}
