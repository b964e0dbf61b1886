// Package pricing supplies precious-metal spot prices and exchange rates to
// the calculation core.
//
// Source is the port. StaticSource serves configured quotes; Guarded and
// Cached decorate any Source with a timeout, a circuit breaker and the cache
// side-table. Decorators compose: Cached(Guarded(upstream)).
package pricing

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"zakat/internal/money"
	"zakat/internal/nisab"
	"zakat/pkg/platform/sentinel"
)

// Source is an external price and rate feed. A missing quote is reported as
// sentinel.ErrNotFound; a failing feed returns any other error.
type Source interface {
	MetalPrice(ctx context.Context, metal nisab.Metal, currency money.Currency) (decimal.Decimal, error)
	ExchangeRate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error)
}

// StaticSource serves fixed quotes. Metal prices are held in one base currency
// and converted through the rate table for other currencies.
type StaticSource struct {
	mu    sync.RWMutex
	base  money.Currency
	metal map[nisab.Metal]decimal.Decimal
	rates map[[2]money.Currency]decimal.Decimal
}

// NewStaticSource creates a source quoting gold and silver per gram in base.
func NewStaticSource(base money.Currency, goldPerGram, silverPerGram decimal.Decimal) *StaticSource {
	return &StaticSource{
		base: base,
		metal: map[nisab.Metal]decimal.Decimal{
			nisab.MetalGold:   goldPerGram,
			nisab.MetalSilver: silverPerGram,
		},
		rates: make(map[[2]money.Currency]decimal.Decimal),
	}
}

// SetRate records from->to and its inverse.
func (s *StaticSource) SetRate(from, to money.Currency, rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[[2]money.Currency{from, to}] = rate
	if rate.IsPositive() {
		s.rates[[2]money.Currency{to, from}] = decimal.NewFromInt(1).DivRound(rate, 10)
	}
}

// SetMetalPrice replaces a base-currency quote.
func (s *StaticSource) SetMetalPrice(metal nisab.Metal, perGram decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metal[metal] = perGram
}

func (s *StaticSource) MetalPrice(ctx context.Context, metal nisab.Metal, currency money.Currency) (decimal.Decimal, error) {
	s.mu.RLock()
	price, ok := s.metal[metal]
	s.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%s price: %w", metal, sentinel.ErrNotFound)
	}
	if currency == "" || currency == s.base {
		return price, nil
	}
	rate, err := s.ExchangeRate(ctx, s.base, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return price.Mul(rate), nil
}

func (s *StaticSource) ExchangeRate(_ context.Context, from, to money.Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	s.mu.RLock()
	rate, ok := s.rates[[2]money.Currency{from, to}]
	s.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("rate %s->%s: %w", from, to, sentinel.ErrNotFound)
	}
	return rate, nil
}
