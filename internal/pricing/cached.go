package pricing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"zakat/internal/cache"
	"zakat/internal/money"
	"zakat/internal/nisab"
	"zakat/pkg/platform/sentinel"
	"zakat/pkg/requestcontext"
)

const defaultCacheTTL = 15 * time.Minute

// Cached serves quotes from the cache side-table, keyed by metric, day and
// currency pair. Concurrent misses for one key share a single upstream call.
// Cache failures degrade to the upstream source.
type Cached struct {
	next    Source
	store   cache.Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *Metrics
	logger  *slog.Logger
}

type CacheOption func(*Cached)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cached) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCacheMetrics(m *Metrics) CacheOption {
	return func(c *Cached) { c.metrics = m }
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cached) { c.logger = logger }
}

func NewCached(next Source, store cache.Store, opts ...CacheOption) *Cached {
	c := &Cached{next: next, store: store, ttl: defaultCacheTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) MetalPrice(ctx context.Context, metal nisab.Metal, currency money.Currency) (decimal.Decimal, error) {
	metric := cache.MetricGoldPrice
	if metal == nisab.MetalSilver {
		metric = cache.MetricSilverPrice
	}
	key := cache.Key{MetricType: metric, Range: day(ctx) + ":" + string(currency)}
	return c.lookup(ctx, key, func(ctx context.Context) (decimal.Decimal, error) {
		return c.next.MetalPrice(ctx, metal, currency)
	})
}

func (c *Cached) ExchangeRate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error) {
	key := cache.Key{MetricType: cache.MetricExchangeRate, Range: day(ctx) + ":" + string(from) + ":" + string(to)}
	return c.lookup(ctx, key, func(ctx context.Context) (decimal.Decimal, error) {
		return c.next.ExchangeRate(ctx, from, to)
	})
}

func (c *Cached) lookup(ctx context.Context, key cache.Key, fetch func(context.Context) (decimal.Decimal, error)) (decimal.Decimal, error) {
	metric := string(key.MetricType)
	entry, err := c.store.Get(ctx, key)
	if err == nil {
		c.metrics.incCache(metric, true)
		return entry.Value, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) && c.logger != nil {
		c.logger.Warn("price cache read failed", "key", key.String(), "error", err)
	}
	c.metrics.incCache(metric, false)

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		entry := cache.Entry{Value: value, TTL: c.ttl}
		if perr := c.store.Put(ctx, key, entry); perr != nil && c.logger != nil {
			c.logger.Warn("price cache write failed", "key", key.String(), "error", perr)
		}
		return value, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

func day(ctx context.Context) string {
	return requestcontext.Now(ctx).UTC().Format(time.DateOnly)
}
