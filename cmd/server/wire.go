package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib"

	"zakat/internal/audit"
	"zakat/internal/audit/kafka"
	"zakat/internal/cache"
	"zakat/internal/money"
	"zakat/internal/nisab"
	"zakat/internal/platform/config"
	"zakat/internal/platform/httpserver"
	platformmetrics "zakat/internal/platform/metrics"
	"zakat/internal/platform/redis"
	"zakat/internal/pricing"
	recordmetrics "zakat/internal/record/metrics"
	"zakat/internal/record/service"
	"zakat/internal/record/store"
	"zakat/internal/wealth"
	"zakat/internal/zakat"
	"zakat/pkg/platform/fieldcrypt"
)

// app holds the wired core. The records service is the entry point the API
// layer mounts; this binary only serves the operational surface.
type app struct {
	records *service.Service
	assets  *wealth.InMemoryAssets
	router  http.Handler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Server, log *slog.Logger) (*app, error) {
	a := &app{}
	checks := map[string]httpserver.HealthCheck{}
	m := platformmetrics.New(version)

	fail := func(err error) (*app, error) {
		a.close()
		return nil, err
	}

	// Price path: static quotes behind timeout + breaker, then the cache.
	var cacheStore cache.Store = cache.NewMemoryStore()
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fail(err)
	}
	if rc != nil {
		cacheStore = cache.NewRedisStore(rc.Client)
		checks["redis"] = rc.Health
		a.closers = append(a.closers, func() { _ = rc.Close() })
	}
	base := money.Currency(cfg.Pricing.DefaultCurrency)
	static := pricing.NewStaticSource(base, cfg.Pricing.GoldPricePerGram, cfg.Pricing.SilverPricePerGram)
	priceMetrics := pricing.NewMetrics(m.Registry)
	prices := pricing.NewCached(
		pricing.NewGuarded(static,
			pricing.WithTimeout(cfg.Pricing.SourceTimeout),
			pricing.WithMetrics(priceMetrics),
			pricing.WithLogger(log),
		),
		cacheStore,
		pricing.WithTTL(cfg.Pricing.CacheTTL),
		pricing.WithCacheMetrics(priceMetrics),
		pricing.WithCacheLogger(log),
	)
	checks["prices"] = func(ctx context.Context) error {
		_, err := prices.MetalPrice(ctx, nisab.MetalGold, base)
		return err
	}
	engine := zakat.New(prices, zakat.WithLogger(log))

	// Records: Postgres when configured, memory otherwise.
	var (
		records service.Store
		tx      service.TxRunner
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("open database: %w", err))
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := db.PingContext(ctx); err != nil {
			return fail(fmt.Errorf("ping database: %w", err))
		}
		checks["postgres"] = db.PingContext

		var cipher fieldcrypt.Cipher = fieldcrypt.Plaintext{}
		if cfg.FieldEncryptionKey != "" {
			aead, err := fieldcrypt.NewFromBase64(cfg.FieldEncryptionKey, "zakat-records")
			if err != nil {
				return fail(err)
			}
			cipher = aead
		} else {
			log.Warn("FIELD_ENCRYPTION_KEY not set; record payloads are stored unencrypted")
		}
		pg := store.NewPostgres(db, cipher)
		if err := pg.Migrate(ctx); err != nil {
			return fail(err)
		}
		records, tx = pg, pg
	} else {
		log.Info("DATABASE_URL not set; using in-memory record store")
		mem := store.NewInMemory()
		records, tx = mem, mem
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithTx(tx),
		service.WithMetrics(recordmetrics.New(m.Registry)),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := kafka.New(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, kafka.WithLogger(log))
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, kp.Close)
		if err := kp.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("audit topic not ensured", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		checks["kafka"] = kp.Health

		worker := audit.NewWorker(kp, 1024, log)
		workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = worker.Run(workerCtx)
		}()
		// Runs before kp.Close so queued batches drain to a live client.
		a.closers = append(a.closers, func() { cancel(); <-done })
		opts = append(opts, service.WithAuditPublisher(worker))
	}

	a.assets = wealth.NewInMemoryAssets()
	a.records, err = service.New(records, a.assets, engine, opts...)
	if err != nil {
		return fail(err)
	}
	a.router = httpserver.NewOpsRouter(checks, m.Handler())
	return a, nil
}
