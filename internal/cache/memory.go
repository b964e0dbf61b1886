package cache

import (
	"context"
	"sync"
	"time"

	"zakat/pkg/platform/sentinel"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]Entry
	clock   Clock
}

type MemoryOption func(*MemoryStore)

// WithClock overrides time.Now for expiry checks.
func WithClock(clock Clock) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[Key]Entry),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key Key) (Entry, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return Entry{}, sentinel.ErrNotFound
	}
	if e.Expired(s.clock()) {
		s.mu.Lock()
		// re-check: a concurrent Put may have refreshed the entry
		if cur, ok := s.entries[key]; ok && cur.Expired(s.clock()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return Entry{}, sentinel.ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) Put(_ context.Context, key Key, entry Entry) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = s.clock()
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
