// Package store persists Nisab year records together with their audit log.
//
// Every write takes the events it documents and appends them in the same
// atomic step, sealing each into the record's hash chain. Writes are guarded
// by the record's Version: a stale expectedVersion returns sentinel.ErrConflict
// and nothing is written.
package store

import (
	"cmp"
	"slices"

	"zakat/internal/audit"
	"zakat/internal/record/models"
)

// sealAll chains events onto the tail of an existing trail.
func sealAll(tail *audit.Event, events []audit.Event) ([]audit.Event, error) {
	sealed := make([]audit.Event, 0, len(events))
	prev := tail
	for _, e := range events {
		s, err := audit.Seal(prev, e)
		if err != nil {
			return nil, err
		}
		sealed = append(sealed, s)
		prev = &sealed[len(sealed)-1]
	}
	return sealed, nil
}

func newestFirst(records []*models.Record) {
	slices.SortStableFunc(records, func(a, b *models.Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
}
