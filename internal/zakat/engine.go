// Package zakat computes a zakat obligation from holdings, live metal prices
// and a methodology.
package zakat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"zakat/internal/calendar"
	"zakat/internal/methodology"
	"zakat/internal/money"
	"zakat/internal/nisab"
	"zakat/internal/wealth"
	dErrors "zakat/pkg/domain-errors"
	"zakat/pkg/platform/sentinel"
)

const priceFetchTimeout = 10 * time.Second

var lunarToSolar = decimal.NewFromInt(calendar.LunarYearDays).Div(decimal.NewFromFloat(calendar.SolarYearLength))

// PriceSource quotes metal prices and exchange rates.
type PriceSource interface {
	MetalPrice(ctx context.Context, metal nisab.Metal, currency money.Currency) (decimal.Decimal, error)
	ExchangeRate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error)
}

// Engine orchestrates aggregation, Nisab resolution and the due amount.
// It holds no per-calculation state.
type Engine struct {
	prices     PriceSource
	aggregator *wealth.Aggregator
	logger     *slog.Logger
	tracer     trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

func New(prices PriceSource, opts ...Option) *Engine {
	e := &Engine{
		prices: prices,
		tracer: otel.Tracer("zakat/internal/zakat"),
	}
	e.aggregator = wealth.NewAggregator(prices)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calculate produces a fresh Result. Given identical inputs and quotes it
// returns identical output.
func (e *Engine) Calculate(ctx context.Context, req Request) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "zakat.Calculate",
		trace.WithAttributes(
			attribute.String("zakat.methodology", string(req.Methodology)),
			attribute.String("zakat.calendar_type", string(req.CalendarType)),
			attribute.String("zakat.currency", string(req.Currency)),
		))
	defer span.End()

	res, err := e.calculate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.Bool("zakat.meets_nisab", res.MeetsNisab))
	return res, nil
}

func (e *Engine) calculate(ctx context.Context, req Request) (*Result, error) {
	currency, err := validateRequest(req)
	if err != nil {
		return nil, err
	}
	rules, err := methodology.Lookup(req.Methodology, req.Custom)
	if err != nil {
		return nil, err
	}

	prices, err := e.resolvePrices(ctx, req.Prices, currency)
	if err != nil {
		return nil, err
	}
	goldNisab, silverNisab := rules.Weights.Thresholds(prices)
	resolved := rules.Resolve(goldNisab, silverNisab)

	res := &Result{
		Liabilities: req.Liabilities,
		Nisab: NisabSnapshot{
			GoldNisab:          goldNisab,
			SilverNisab:        silverNisab,
			EffectiveNisab:     resolved.EffectiveNisab,
			Basis:              resolved.Basis,
			Methodology:        rules.Name,
			GoldPricePerGram:   prices.GoldPerGram,
			SilverPricePerGram: prices.SilverPerGram,
			Currency:           currency,
			AsOf:               req.CalculationDate,
		},
		Methodology:  rules.Name,
		Rate:         rules.Rate,
		CalendarType: req.CalendarType,
		Currency:     currency,
	}

	var zakatable decimal.Decimal
	if req.Wealth != nil {
		res.TotalWealth = *req.Wealth
		zakatable = *req.Wealth
	} else {
		agg, err := e.aggregator.Aggregate(ctx, req.Assets, currency)
		if err != nil {
			return nil, err
		}
		res.TotalWealth = money.Round2(agg.Total)
		res.AssetBreakdown = make(map[wealth.Category]CategoryBreakdown, len(agg.ByCategory))
		zakatable = decimal.Zero
		for _, cat := range agg.Categories() {
			value := agg.ByCategory[cat]
			share := value.Mul(rules.CategoryWeight(cat))
			zakatable = zakatable.Add(share)
			res.AssetBreakdown[cat] = CategoryBreakdown{
				Value:          money.Round2(value),
				ZakatableValue: money.Round2(share),
			}
		}
	}

	res.ZakatableWealth = money.NonNegative(money.Round2(zakatable.Sub(req.Liabilities)))
	res.MeetsNisab = res.ZakatableWealth.GreaterThanOrEqual(res.Nisab.EffectiveNisab)
	res.ZakatDue = decimal.Zero
	if res.MeetsNisab {
		res.ZakatDue = money.Round2(res.ZakatableWealth.Mul(rules.Rate))
	}
	for cat, b := range res.AssetBreakdown {
		b.ZakatDue = decimal.Zero
		if res.MeetsNisab {
			b.ZakatDue = money.Round2(b.ZakatableValue.Mul(rules.Rate))
		}
		res.AssetBreakdown[cat] = b
	}

	if req.CalendarType == calendar.TypeLunar {
		solar := money.Round2(res.ZakatDue.Mul(lunarToSolar))
		res.SolarEquivalentDue = &solar
	}

	if e.logger != nil {
		e.logger.DebugContext(ctx, "zakat calculated",
			"methodology", rules.Name,
			"basis", resolved.Basis,
			"meets_nisab", res.MeetsNisab,
		)
	}
	return res, nil
}

func validateRequest(req Request) (money.Currency, error) {
	if req.CalculationDate.IsZero() {
		return "", dErrors.New(dErrors.CodeValidation, "calculation date is required")
	}
	if !req.CalendarType.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid calendar type %q", req.CalendarType)
	}
	currency, err := money.ParseCurrency(string(req.Currency))
	if err != nil {
		return "", err
	}
	if req.Wealth == nil && req.Assets == nil {
		return "", dErrors.New(dErrors.CodeValidation, "wealth or assets are required")
	}
	if req.Wealth != nil && req.Assets != nil {
		return "", dErrors.New(dErrors.CodeValidation, "wealth and assets are mutually exclusive")
	}
	if req.Wealth != nil && req.Wealth.IsNegative() {
		return "", dErrors.New(dErrors.CodeValidation, "wealth cannot be negative")
	}
	if req.Liabilities.IsNegative() {
		return "", dErrors.New(dErrors.CodeValidation, "liabilities cannot be negative")
	}
	if req.Prices != nil && req.Prices.Currency != "" && req.Prices.Currency != currency {
		return "", dErrors.Newf(dErrors.CodeValidation, "prices quoted in %s, request in %s", req.Prices.Currency, currency)
	}
	return currency, nil
}

// resolvePrices fetches gold and silver concurrently. Either failure cancels
// the other.
func (e *Engine) resolvePrices(ctx context.Context, given *nisab.Prices, currency money.Currency) (nisab.Prices, error) {
	if given != nil {
		p := *given
		p.Currency = currency
		return p, nil
	}
	if e.prices == nil {
		return nisab.Prices{}, dErrors.New(dErrors.CodeSourceUnavailable, "no price source configured")
	}

	ctx, cancel := context.WithTimeout(ctx, priceFetchTimeout)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	out := nisab.Prices{Currency: currency}
	g.Go(func() error {
		p, err := e.prices.MetalPrice(ctx, nisab.MetalGold, currency)
		if err != nil {
			return priceError(nisab.MetalGold, err)
		}
		out.GoldPerGram = p
		return nil
	})
	g.Go(func() error {
		p, err := e.prices.MetalPrice(ctx, nisab.MetalSilver, currency)
		if err != nil {
			return priceError(nisab.MetalSilver, err)
		}
		out.SilverPerGram = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nisab.Prices{}, err
	}
	return out, nil
}

func priceError(metal nisab.Metal, err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeSourceUnavailable, "no "+string(metal)+" quote available")
	}
	return dErrors.Wrap(err, dErrors.CodeSourceUnavailable, string(metal)+" price lookup failed")
}
