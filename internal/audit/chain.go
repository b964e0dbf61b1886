package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	id "zakat/pkg/domain"
)

// ErrChainBroken reports a trail whose hashes or sequence do not line up.
var ErrChainBroken = errors.New("audit chain broken")

// ErrInvalidText rejects event text that a JSON round trip would rewrite.
var ErrInvalidText = errors.New("audit event text is not valid UTF-8")

// GenesisHash is the PrevHash of a record's first event.
const GenesisHash = ""

// hashed is the canonical form covered by Hash. Timestamps are UTC with
// microsecond precision so values survive a database round trip.
type hashed struct {
	ID           id.EventID        `json:"id"`
	RecordID     id.RecordID       `json:"record_id"`
	UserID       id.UserID         `json:"user_id"`
	Type         EventType         `json:"event_type"`
	Timestamp    string            `json:"timestamp"`
	ActorID      id.UserID         `json:"actor_user_id"`
	RequestID    string            `json:"request_id"`
	UnlockReason string            `json:"unlock_reason"`
	Changes      *ChangesSummary   `json:"changes_summary"`
	Details      map[string]string `json:"details"`
	Before       json.RawMessage   `json:"before_state"`
	After        json.RawMessage   `json:"after_state"`
	Sequence     int64             `json:"sequence"`
	PrevHash     string            `json:"prev_hash"`
}

// Seal assigns the next sequence and links e to the previous event. Text
// fields must be valid UTF-8 so the hash still matches after storage.
func Seal(prev *Event, e Event) (Event, error) {
	if field, ok := invalidText(e); ok {
		return Event{}, fmt.Errorf("%w: %s", ErrInvalidText, field)
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)
	e.Sequence = 1
	e.PrevHash = GenesisHash
	if prev != nil {
		e.Sequence = prev.Sequence + 1
		e.PrevHash = prev.Hash
	}
	h, err := computeHash(e)
	if err != nil {
		return Event{}, err
	}
	e.Hash = h
	return e, nil
}

// Verify checks a trail in any order: sequences must run 1..n without gaps,
// each event must link to its predecessor, and every hash must match.
func Verify(trail []Event) error {
	ordered := Oldest(trail)
	prevHash := GenesisHash
	for i, e := range ordered {
		if e.Sequence != int64(i+1) {
			return fmt.Errorf("%w: expected sequence %d, found %d", ErrChainBroken, i+1, e.Sequence)
		}
		if e.PrevHash != prevHash {
			return fmt.Errorf("%w: event %d does not link to its predecessor", ErrChainBroken, e.Sequence)
		}
		h, err := computeHash(e)
		if err != nil {
			return err
		}
		if h != e.Hash {
			return fmt.Errorf("%w: event %d hash mismatch", ErrChainBroken, e.Sequence)
		}
		prevHash = e.Hash
	}
	return nil
}

func computeHash(e Event) (string, error) {
	raw, err := json.Marshal(hashed{
		ID:           e.ID,
		RecordID:     e.RecordID,
		UserID:       e.UserID,
		Type:         e.Type,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
		ActorID:      e.ActorID,
		RequestID:    e.RequestID,
		UnlockReason: e.UnlockReason,
		Changes:      e.Changes,
		Details:      e.Details,
		Before:       e.Before,
		After:        e.After,
		Sequence:     e.Sequence,
		PrevHash:     e.PrevHash,
	})
	if err != nil {
		return "", fmt.Errorf("encode audit event: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func invalidText(e Event) (string, bool) {
	if !utf8.ValidString(e.RequestID) {
		return "request_id", true
	}
	if !utf8.ValidString(e.UnlockReason) {
		return "unlock_reason", true
	}
	for k, v := range e.Details {
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return "details", true
		}
	}
	if c := e.Changes; c != nil {
		for _, f := range c.FieldsChanged {
			if !utf8.ValidString(f) || !utf8.ValidString(c.OldValues[f]) || !utf8.ValidString(c.NewValues[f]) {
				return "changes_summary", true
			}
		}
	}
	return "", false
}
