package pricing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"zakat/internal/money"
	"zakat/internal/nisab"
	dErrors "zakat/pkg/domain-errors"
	"zakat/pkg/platform/circuit"
	"zakat/pkg/platform/sentinel"
)

const defaultSourceTimeout = 5 * time.Second

// Guarded bounds every upstream call with a timeout and a circuit breaker.
// Feed failures surface as SOURCE_UNAVAILABLE; a missing quote passes through
// as sentinel.ErrNotFound and does not count against the breaker.
type Guarded struct {
	next    Source
	timeout time.Duration
	breaker *circuit.Breaker
	metrics *Metrics
	logger  *slog.Logger
}

type GuardOption func(*Guarded)

func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) GuardOption {
	return func(g *Guarded) {
		if b != nil {
			g.breaker = b
		}
	}
}

func WithMetrics(m *Metrics) GuardOption {
	return func(g *Guarded) { g.metrics = m }
}

func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guarded) { g.logger = logger }
}

func NewGuarded(next Source, opts ...GuardOption) *Guarded {
	g := &Guarded{
		next:    next,
		timeout: defaultSourceTimeout,
		breaker: circuit.New("price-source"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guarded) MetalPrice(ctx context.Context, metal nisab.Metal, currency money.Currency) (decimal.Decimal, error) {
	return g.call(ctx, "metal_price", func(ctx context.Context) (decimal.Decimal, error) {
		return g.next.MetalPrice(ctx, metal, currency)
	})
}

func (g *Guarded) ExchangeRate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error) {
	return g.call(ctx, "exchange_rate", func(ctx context.Context) (decimal.Decimal, error) {
		return g.next.ExchangeRate(ctx, from, to)
	})
}

type quote struct {
	value decimal.Decimal
	err   error
}

func (g *Guarded) call(ctx context.Context, lookup string, fn func(context.Context) (decimal.Decimal, error)) (decimal.Decimal, error) {
	if !g.breaker.Allow() {
		g.metrics.incFailure(lookup, "circuit_open")
		return decimal.Zero, dErrors.New(dErrors.CodeSourceUnavailable, "price source circuit open")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan quote, 1)
	go func() {
		v, err := fn(callCtx)
		done <- quote{value: v, err: err}
	}()

	var q quote
	select {
	case q = <-done:
	case <-callCtx.Done():
		q = quote{err: callCtx.Err()}
	}
	g.metrics.observeLatency(lookup, time.Since(start).Seconds())

	switch {
	case q.err == nil:
		g.recordSuccess()
		return q.value, nil
	case errors.Is(q.err, sentinel.ErrNotFound):
		g.recordSuccess()
		return decimal.Zero, q.err
	case ctx.Err() != nil:
		// caller gave up; not the feed's fault
		return decimal.Zero, dErrors.Wrap(ctx.Err(), dErrors.CodeSourceUnavailable, lookup+" cancelled")
	}

	reason := "error"
	if errors.Is(q.err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	g.metrics.incFailure(lookup, reason)
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.metrics.setBreakerOpen(true)
		if g.logger != nil {
			g.logger.Warn("price source circuit opened", "breaker", g.breaker.Name(), "lookup", lookup)
		}
	}
	return decimal.Zero, dErrors.Wrap(errors.Join(sentinel.ErrUnavailable, q.err), dErrors.CodeSourceUnavailable, lookup+" "+reason)
}

func (g *Guarded) recordSuccess() {
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.metrics.setBreakerOpen(false)
		if g.logger != nil {
			g.logger.Info("price source circuit closed", "breaker", g.breaker.Name())
		}
	}
}
