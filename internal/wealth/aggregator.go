// Package wealth sums a user's eligible holdings into a single currency.
package wealth

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"zakat/internal/money"
	dErrors "zakat/pkg/domain-errors"
	"zakat/pkg/platform/sentinel"
)

// RateSource quotes how many units of `to` one unit of `from` buys.
type RateSource interface {
	ExchangeRate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error)
}

// Aggregate is the converted, eligible wealth of one asset set.
type Aggregate struct {
	Currency   money.Currency
	Total      decimal.Decimal
	ByCategory map[Category]decimal.Decimal
	Included   int
	Excluded   int
}

// Categories returns the categories present, sorted for stable iteration.
func (a *Aggregate) Categories() []Category {
	out := make([]Category, 0, len(a.ByCategory))
	for c := range a.ByCategory {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type Aggregator struct {
	rates RateSource
}

func NewAggregator(rates RateSource) *Aggregator {
	return &Aggregator{rates: rates}
}

// Aggregate converts every countable asset into target and sums it.
//
// An empty or entirely ineligible set fails with NO_VALID_ASSETS. A missing
// rate fails with CURRENCY_CONVERSION_UNAVAILABLE; conversion never assumes 1:1
// across different currencies.
func (a *Aggregator) Aggregate(ctx context.Context, assets []Asset, target money.Currency) (*Aggregate, error) {
	if target == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "target currency is required")
	}
	out := &Aggregate{
		Currency:   target,
		Total:      decimal.Zero,
		ByCategory: make(map[Category]decimal.Decimal),
	}
	rates := make(map[money.Currency]decimal.Decimal)

	for _, asset := range assets {
		if !asset.Countable() {
			out.Excluded++
			continue
		}
		if asset.Currency == "" {
			return nil, dErrors.Newf(dErrors.CodeValidation, "asset %s has no currency", asset.ID)
		}
		rate, err := a.rateFor(ctx, rates, asset.Currency, target)
		if err != nil {
			return nil, err
		}
		value := asset.Value.Mul(rate)
		category := asset.Category
		if category == "" {
			category = CategoryOther
		}
		out.ByCategory[category] = out.ByCategory[category].Add(value)
		out.Total = out.Total.Add(value)
		out.Included++
	}

	if out.Included == 0 {
		return nil, dErrors.New(dErrors.CodeNoValidAssets, "no zakat-eligible assets with a positive value")
	}
	return out, nil
}

func (a *Aggregator) rateFor(ctx context.Context, seen map[money.Currency]decimal.Decimal, from, to money.Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if rate, ok := seen[from]; ok {
		return rate, nil
	}
	if a.rates == nil {
		return decimal.Zero, dErrors.Newf(dErrors.CodeCurrencyConversionUnavailable, "no rate source for %s->%s", from, to)
	}
	rate, err := a.rates.ExchangeRate(ctx, from, to)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return decimal.Zero, dErrors.Wrap(err, dErrors.CodeCurrencyConversionUnavailable, "no rate for "+string(from)+"->"+string(to))
		case dErrors.HasCode(err, dErrors.CodeSourceUnavailable):
			return decimal.Zero, err
		default:
			return decimal.Zero, dErrors.Wrap(err, dErrors.CodeSourceUnavailable, "exchange rate lookup failed")
		}
	}
	if !rate.IsPositive() {
		return decimal.Zero, dErrors.Newf(dErrors.CodeCurrencyConversionUnavailable, "non-positive rate for %s->%s", from, to)
	}
	seen[from] = rate
	return rate, nil
}
