package wealth

import (
	"context"
	"sync"

	id "zakat/pkg/domain"
)

// InMemoryAssets is an asset store for development and tests. Production
// deployments read holdings from the owning service.
type InMemoryAssets struct {
	mu     sync.RWMutex
	assets map[id.UserID][]Asset
}

func NewInMemoryAssets() *InMemoryAssets {
	return &InMemoryAssets{assets: make(map[id.UserID][]Asset)}
}

// Replace sets the user's full holdings.
func (s *InMemoryAssets) Replace(_ context.Context, userID id.UserID, assets []Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[userID] = append([]Asset(nil), assets...)
}

// ListEligibleAssets returns the user's assets flagged zakat-eligible. Users
// with no holdings get an empty list.
func (s *InMemoryAssets) ListEligibleAssets(_ context.Context, userID id.UserID) ([]Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Asset, 0, len(s.assets[userID]))
	for _, a := range s.assets[userID] {
		if a.ZakatEligible {
			out = append(out, a)
		}
	}
	return out, nil
}
