package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"zakat/internal/audit"
	"zakat/internal/record/models"
	id "zakat/pkg/domain"
	"zakat/pkg/platform/sentinel"
)

// InMemory keeps records and their audit logs in maps behind one mutex, so a
// record write and its event append are atomic. The audit log outlives
// record deletion.
//
// RunInTx serializes transactions against each other and against plain
// writes. Reads are not isolated and may see a transaction's writes before it
// finishes.
type InMemory struct {
	txMu    sync.RWMutex
	mu      sync.RWMutex
	records map[id.RecordID]*models.Record
	events  map[id.RecordID][]audit.Event
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[id.RecordID]*models.Record),
		events:  make(map[id.RecordID][]audit.Event),
	}
}

// Create stores a new record at Version 1. It fails with ErrConflict when the
// ID is taken or the user already has an open record.
func (s *InMemory) Create(ctx context.Context, r *models.Record, events []audit.Event) ([]audit.Event, error) {
	defer s.writeGuard(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[r.ID]; ok {
		return nil, fmt.Errorf("record %s already exists: %w", r.ID, sentinel.ErrConflict)
	}
	if r.IsOpen() {
		for _, existing := range s.records {
			if existing.UserID == r.UserID && existing.IsOpen() {
				return nil, fmt.Errorf("user already has open record %s: %w", existing.ID, sentinel.ErrConflict)
			}
		}
	}
	sealed, err := sealAll(s.tail(r.ID), events)
	if err != nil {
		return nil, err
	}
	r.Version = 1
	s.records[r.ID] = r.Clone()
	s.events[r.ID] = append(s.events[r.ID], sealed...)
	return sealed, nil
}

func (s *InMemory) FindByID(_ context.Context, recordID id.RecordID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// FindOpenByUser returns the user's DRAFT or UNLOCKED record.
func (s *InMemory) FindOpenByUser(_ context.Context, userID id.UserID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.UserID == userID && r.IsOpen() {
			return r.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ListByUser returns the user's records newest first, optionally restricted
// to the given statuses.
func (s *InMemory) ListByUser(_ context.Context, userID id.UserID, statuses ...models.Status) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, r := range s.records {
		if r.UserID != userID {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, r.Status) {
			continue
		}
		out = append(out, r.Clone())
	}
	newestFirst(out)
	return out, nil
}

// Save replaces the record if its stored Version equals expectedVersion and
// appends the events. On success r.Version is advanced.
func (s *InMemory) Save(ctx context.Context, r *models.Record, expectedVersion int64, events []audit.Event) ([]audit.Event, error) {
	defer s.writeGuard(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[r.ID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, fmt.Errorf("record %s at version %d, expected %d: %w",
			r.ID, current.Version, expectedVersion, sentinel.ErrConflict)
	}
	if r.IsOpen() && !current.IsOpen() {
		for _, other := range s.records {
			if other.ID != r.ID && other.UserID == r.UserID && other.IsOpen() {
				return nil, fmt.Errorf("user already has open record %s: %w", other.ID, sentinel.ErrConflict)
			}
		}
	}
	sealed, err := sealAll(s.tail(r.ID), events)
	if err != nil {
		return nil, err
	}
	r.Version = expectedVersion + 1
	s.records[r.ID] = r.Clone()
	s.events[r.ID] = append(s.events[r.ID], sealed...)
	return sealed, nil
}

// Delete removes the record. Its audit log is kept.
func (s *InMemory) Delete(ctx context.Context, recordID id.RecordID, expectedVersion int64) error {
	defer s.writeGuard(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[recordID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("record %s at version %d, expected %d: %w",
			recordID, current.Version, expectedVersion, sentinel.ErrConflict)
	}
	delete(s.records, recordID)
	return nil
}

// ListEvents returns the record's audit log in append order.
func (s *InMemory) ListEvents(_ context.Context, recordID id.RecordID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[recordID]...), nil
}

type memTxKey struct{}

// RunInTx runs fn with exclusive write access. If fn fails, every record and
// event written through its ctx is discarded. A ctx already inside a
// transaction on s joins it.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	records := maps.Clone(s.records)
	events := make(map[id.RecordID][]audit.Event, len(s.events))
	for k, v := range s.events {
		events[k] = slices.Clip(v)
	}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, s)); err != nil {
		s.mu.Lock()
		s.records = records
		s.events = events
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *InMemory) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(memTxKey{}).(*InMemory)
	return owner == s
}

// writeGuard holds off plain writes while a transaction runs. Writes made
// inside the transaction already own txMu.
func (s *InMemory) writeGuard(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.txMu.RLock()
	return s.txMu.RUnlock
}

// tail must be called with mu held.
func (s *InMemory) tail(recordID id.RecordID) *audit.Event {
	trail := s.events[recordID]
	if len(trail) == 0 {
		return nil
	}
	last := trail[len(trail)-1]
	return &last
}
