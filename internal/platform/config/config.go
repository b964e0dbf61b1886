package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	platformstrings "zakat/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr     string
	LogLevel string

	DatabaseURL        string
	FieldEncryptionKey string

	Redis   RedisConfig
	Kafka   KafkaConfig
	Pricing PricingConfig
}

// RedisConfig configures the price cache client. An empty URL disables Redis
// and the in-memory cache is used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures audit fan-out. No brokers means events are only
// stored, not published.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// PricingConfig configures the metal price and exchange rate path.
type PricingConfig struct {
	DefaultCurrency    string
	SourceTimeout      time.Duration
	CacheTTL           time.Duration
	GoldPricePerGram   decimal.Decimal
	SilverPricePerGram decimal.Decimal
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Defaults run the process locally with in-memory stores and static prices.
func FromEnv() (Server, error) {
	var errs []string
	dur := func(key string, def time.Duration) time.Duration {
		v := os.Getenv(key)
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return def
		}
		return d
	}
	num := func(key string, def int) int {
		v := os.Getenv(key)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return def
		}
		return n
	}
	dec := func(key, def string) decimal.Decimal {
		v := os.Getenv(key)
		if v == "" {
			v = def
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return decimal.RequireFromString(def)
		}
		return d
	}

	cfg := Server{
		Addr:               envOr("ZAKAT_ADDR", ":8080"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		FieldEncryptionKey: os.Getenv("FIELD_ENCRYPTION_KEY"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     num("REDIS_POOL_SIZE", 10),
			MinIdleConns: num("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  dur("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  dur("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: dur("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    platformstrings.DedupeAndTrim(strings.Split(os.Getenv("KAFKA_BROKERS"), ",")),
			AuditTopic: envOr("AUDIT_TOPIC", "zakat.record-audit"),
		},
		Pricing: PricingConfig{
			DefaultCurrency:    strings.ToUpper(envOr("DEFAULT_CURRENCY", "USD")),
			SourceTimeout:      dur("PRICE_SOURCE_TIMEOUT", 5*time.Second),
			CacheTTL:           dur("PRICE_CACHE_TTL", 15*time.Minute),
			GoldPricePerGram:   dec("GOLD_PRICE_PER_GRAM", "65"),
			SilverPricePerGram: dec("SILVER_PRICE_PER_GRAM", "0.85"),
		},
	}
	if len(errs) > 0 {
		return Server{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
