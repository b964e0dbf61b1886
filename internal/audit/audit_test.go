package audit

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "zakat/pkg/domain"
)

func sealedTrail(t *testing.T, types ...EventType) []Event {
	t.Helper()
	rid := id.NewRecordID()
	base := time.Date(2025, 10, 27, 9, 0, 0, 0, time.UTC)
	var trail []Event
	var prev *Event
	for i, typ := range types {
		e, err := Seal(prev, Event{
			ID:        id.NewEventID(),
			RecordID:  rid,
			Type:      typ,
			Timestamp: base.Add(time.Duration(i) * 20 * time.Hour),
			After:     json.RawMessage(`{"status":"DRAFT"}`),
		})
		require.NoError(t, err)
		trail = append(trail, e)
		prev = &trail[len(trail)-1]
	}
	return trail
}

func TestSealLinksEvents(t *testing.T) {
	trail := sealedTrail(t, EventCreated, EventNisabAchieved, EventFinalized)

	assert.Equal(t, int64(1), trail[0].Sequence)
	assert.Equal(t, GenesisHash, trail[0].PrevHash)
	assert.Equal(t, trail[0].Hash, trail[1].PrevHash)
	assert.Equal(t, trail[1].Hash, trail[2].PrevHash)
	assert.Len(t, trail[2].Hash, 64)
	require.NoError(t, Verify(trail))
}

func TestSealTruncatesToMicroseconds(t *testing.T) {
	e, err := Seal(nil, Event{Type: EventCreated, Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 123456789, time.FixedZone("x", 3600))})
	require.NoError(t, err)
	assert.Equal(t, 123456000, e.Timestamp.Nanosecond())
	assert.Equal(t, time.UTC, e.Timestamp.Location())
}

func TestSealedTrailSurvivesJSONRoundTrip(t *testing.T) {
	created := sealedTrail(t, EventCreated)[0]
	unlocked, err := Seal(&created, Event{
		ID:           id.NewEventID(),
		RecordID:     created.RecordID,
		Type:         EventUnlocked,
		Timestamp:    created.Timestamp.Add(time.Hour),
		RequestID:    "req-7",
		UnlockReason: "تصحيح correcting valuation",
		Details:      map[string]string{"note": "gold re-weighed"},
	})
	require.NoError(t, err)

	raw, err := json.Marshal([]Event{created, unlocked})
	require.NoError(t, err)
	var stored []Event
	require.NoError(t, json.Unmarshal(raw, &stored))

	assert.Equal(t, unlocked.UnlockReason, stored[1].UnlockReason)
	require.NoError(t, Verify(stored))
}

func TestSealRejectsInvalidUTF8(t *testing.T) {
	created := sealedTrail(t, EventCreated)[0]
	cases := map[string]Event{
		"unlock reason": {Type: EventUnlocked, UnlockReason: "correcting valuation \xff"},
		"request id":    {Type: EventUnlocked, UnlockReason: "ok", RequestID: "req-\xff"},
		"details":       {Type: EventNisabAchieved, Details: map[string]string{"nisab": "\xfe"}},
		"changes": {Type: EventEdited, Changes: &ChangesSummary{
			FieldsChanged: []string{"user_notes"},
			OldValues:     map[string]string{"user_notes": ""},
			NewValues:     map[string]string{"user_notes": "\xff"},
		}},
	}
	for name, e := range cases {
		t.Run(name, func(t *testing.T) {
			e.RecordID = created.RecordID
			_, err := Seal(&created, e)
			assert.ErrorIs(t, err, ErrInvalidText)
		})
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	t.Run("edited field", func(t *testing.T) {
		trail := sealedTrail(t, EventCreated, EventFinalized, EventUnlocked)
		trail[2].UnlockReason = "something else"
		assert.True(t, errors.Is(Verify(trail), ErrChainBroken))
	})

	t.Run("removed event", func(t *testing.T) {
		trail := sealedTrail(t, EventCreated, EventFinalized, EventUnlocked)
		assert.True(t, errors.Is(Verify([]Event{trail[0], trail[2]}), ErrChainBroken))
	})

	t.Run("swapped payloads", func(t *testing.T) {
		trail := sealedTrail(t, EventCreated, EventEdited, EventEdited)
		trail[1].Sequence, trail[2].Sequence = trail[2].Sequence, trail[1].Sequence
		assert.True(t, errors.Is(Verify(trail), ErrChainBroken))
	})

	t.Run("input order does not matter", func(t *testing.T) {
		trail := sealedTrail(t, EventCreated, EventFinalized, EventUnlocked)
		assert.NoError(t, Verify(NewestFirst(trail)))
	})
}

func TestReadModel(t *testing.T) {
	trail := sealedTrail(t, EventCreated, EventNisabAchieved, EventFinalized, EventUnlocked, EventEdited)

	view := View(trail, Filter{})
	require.Len(t, view, 5)
	assert.Equal(t, EventEdited, view[0].Type)
	assert.Equal(t, EventCreated, view[4].Type)

	unlocks := View(trail, Filter{EventTypes: []EventType{EventUnlocked}})
	require.Len(t, unlocks, 1)
	assert.True(t, unlocks[0].SecurityRelevant())

	// 20h spacing from 09:00 puts events on 27, 28, 29, 29, 30 Oct
	groups := GroupByDate(view)
	require.Len(t, groups, 4)
	assert.Equal(t, "2025-10-30", groups[0].Date)
	assert.Equal(t, "2025-10-27", groups[3].Date)
	assert.Len(t, groups[1].Events, 2)
	assert.Equal(t, EventUnlocked, groups[1].Events[0].Type)
}

func TestIsSecurityRelevant(t *testing.T) {
	for typ := range eventTypes {
		want := typ == EventUnlocked || typ == EventEdited
		assert.Equal(t, want, IsSecurityRelevant(typ), typ)
	}
	assert.True(t, EventRefinalized.IsValid())
	assert.False(t, EventType("DELETED").IsValid())
}
