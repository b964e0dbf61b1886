package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ZAKAT_ADDR", "REDIS_URL", "KAFKA_BROKERS", "PRICE_CACHE_TTL", "GOLD_PRICE_PER_GRAM", "DEFAULT_CURRENCY"} {
		t.Setenv(k, "")
	}
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Minute, cfg.Pricing.CacheTTL)
	assert.Equal(t, "USD", cfg.Pricing.DefaultCurrency)
	assert.True(t, cfg.Pricing.GoldPricePerGram.Equal(decimal.NewFromInt(65)))
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,a:9092,")
	t.Setenv("PRICE_SOURCE_TIMEOUT", "2s")
	t.Setenv("DEFAULT_CURRENCY", "eur")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Second, cfg.Pricing.SourceTimeout)
	assert.Equal(t, "EUR", cfg.Pricing.DefaultCurrency)
}

func TestFromEnv_RejectsMalformedValues(t *testing.T) {
	t.Setenv("PRICE_CACHE_TTL", "soon")
	t.Setenv("SILVER_PRICE_PER_GRAM", "cheap")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRICE_CACHE_TTL")
	assert.Contains(t, err.Error(), "SILVER_PRICE_PER_GRAM")
}
