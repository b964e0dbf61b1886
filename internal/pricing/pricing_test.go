package pricing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zakat/internal/cache"
	"zakat/internal/money"
	"zakat/internal/nisab"
	dErrors "zakat/pkg/domain-errors"
	"zakat/pkg/platform/circuit"
	"zakat/pkg/platform/sentinel"
	"zakat/pkg/requestcontext"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeSource counts calls and returns a scripted result.
type fakeSource struct {
	calls atomic.Int32
	value decimal.Decimal
	err   error
	block chan struct{}
}

func (f *fakeSource) MetalPrice(ctx context.Context, _ nisab.Metal, _ money.Currency) (decimal.Decimal, error) {
	return f.answer(ctx)
}

func (f *fakeSource) ExchangeRate(ctx context.Context, _, _ money.Currency) (decimal.Decimal, error) {
	return f.answer(ctx)
}

func (f *fakeSource) answer(ctx context.Context) (decimal.Decimal, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	return f.value, f.err
}

func TestStaticSource(t *testing.T) {
	ctx := context.Background()
	src := NewStaticSource("USD", dec("65"), dec("0.85"))
	src.SetRate("USD", "EUR", dec("0.5"))

	gold, err := src.MetalPrice(ctx, nisab.MetalGold, "USD")
	require.NoError(t, err)
	assert.True(t, gold.Equal(dec("65")))

	goldEUR, err := src.MetalPrice(ctx, nisab.MetalGold, "EUR")
	require.NoError(t, err)
	assert.True(t, goldEUR.Equal(dec("32.5")))

	inverse, err := src.ExchangeRate(ctx, "EUR", "USD")
	require.NoError(t, err)
	assert.True(t, inverse.Equal(dec("2")))

	_, err = src.ExchangeRate(ctx, "USD", "GBP")
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))

	_, err = src.MetalPrice(ctx, nisab.MetalSilver, "GBP")
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestGuarded_TimeoutIsSourceUnavailable(t *testing.T) {
	upstream := &fakeSource{block: make(chan struct{})}
	defer close(upstream.block)
	g := NewGuarded(upstream, WithTimeout(20*time.Millisecond))

	_, err := g.MetalPrice(context.Background(), nisab.MetalGold, "USD")

	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSourceUnavailable))
	assert.False(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestGuarded_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	upstream := &fakeSource{err: errors.New("connection refused")}
	now := time.Date(2025, 10, 27, 0, 0, 0, 0, time.UTC)
	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }))
	g := NewGuarded(upstream, WithBreaker(breaker), WithMetrics(NewMetrics(prometheus.NewRegistry())))
	ctx := context.Background()

	for range 2 {
		_, err := g.ExchangeRate(ctx, "EUR", "USD")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeSourceUnavailable))
	}
	assert.True(t, breaker.IsOpen())

	_, err := g.ExchangeRate(ctx, "EUR", "USD")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSourceUnavailable))
	assert.Equal(t, int32(2), upstream.calls.Load(), "open breaker short-circuits")

	now = now.Add(time.Minute)
	upstream.err = nil
	upstream.value = dec("1.08")
	rate, err := g.ExchangeRate(ctx, "EUR", "USD")
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("1.08")))
}

func TestGuarded_NotFoundPassesThrough(t *testing.T) {
	upstream := &fakeSource{err: sentinel.ErrNotFound}
	breaker := circuit.New("test", circuit.WithFailureThreshold(1))
	g := NewGuarded(upstream, WithBreaker(breaker))

	_, err := g.ExchangeRate(context.Background(), "XAU", "USD")

	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	assert.False(t, breaker.IsOpen())
}

func TestCached(t *testing.T) {
	ctx := requestcontext.WithTime(context.Background(), time.Date(2025, 10, 27, 9, 0, 0, 0, time.UTC))

	t.Run("second lookup is a hit", func(t *testing.T) {
		upstream := &fakeSource{value: dec("65")}
		c := NewCached(upstream, cache.NewMemoryStore(), WithCacheMetrics(NewMetrics(prometheus.NewRegistry())))

		for range 3 {
			v, err := c.MetalPrice(ctx, nisab.MetalGold, "USD")
			require.NoError(t, err)
			assert.True(t, v.Equal(dec("65")))
		}
		assert.Equal(t, int32(1), upstream.calls.Load())
	})

	t.Run("gold and silver are cached separately", func(t *testing.T) {
		upstream := &fakeSource{value: dec("1")}
		c := NewCached(upstream, cache.NewMemoryStore())

		_, _ = c.MetalPrice(ctx, nisab.MetalGold, "USD")
		_, _ = c.MetalPrice(ctx, nisab.MetalSilver, "USD")
		assert.Equal(t, int32(2), upstream.calls.Load())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		upstream := &fakeSource{err: errors.New("boom")}
		c := NewCached(upstream, cache.NewMemoryStore())

		_, err := c.ExchangeRate(ctx, "EUR", "USD")
		require.Error(t, err)
		_, err = c.ExchangeRate(ctx, "EUR", "USD")
		require.Error(t, err)
		assert.Equal(t, int32(2), upstream.calls.Load())
	})

	t.Run("expired entry refetches", func(t *testing.T) {
		now := time.Now()
		store := cache.NewMemoryStore(cache.WithClock(func() time.Time { return now }))
		upstream := &fakeSource{value: dec("65")}
		c := NewCached(upstream, store, WithTTL(time.Minute))

		_, _ = c.MetalPrice(ctx, nisab.MetalGold, "USD")
		now = now.Add(2 * time.Minute)
		_, _ = c.MetalPrice(ctx, nisab.MetalGold, "USD")
		assert.Equal(t, int32(2), upstream.calls.Load())
	})

	t.Run("concurrent misses share one upstream call", func(t *testing.T) {
		upstream := &fakeSource{value: dec("0.85"), block: make(chan struct{})}
		c := NewCached(upstream, cache.NewMemoryStore())

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := c.MetalPrice(ctx, nisab.MetalSilver, "USD")
				assert.NoError(t, err)
				assert.True(t, v.Equal(dec("0.85")))
			}()
		}
		// let the goroutines pile up behind the in-flight call
		time.Sleep(20 * time.Millisecond)
		close(upstream.block)
		wg.Wait()

		assert.LessOrEqual(t, upstream.calls.Load(), int32(2))
	})
}
