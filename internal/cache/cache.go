// Package cache is the side-table for price and analytics lookups.
//
// Entries are keyed by (user, metric, date range) and carry their own TTL, so
// expiry is a property of the entry rather than of the process. Global lookups
// such as spot prices use an empty UserID.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MetricType names the kind of value cached.
type MetricType string

const (
	MetricGoldPrice    MetricType = "gold_price"
	MetricSilverPrice  MetricType = "silver_price"
	MetricExchangeRate MetricType = "exchange_rate"
	MetricTotalWealth  MetricType = "total_wealth"
)

// Key identifies one cached value.
type Key struct {
	UserID     string
	MetricType MetricType
	// Range is the date range or qualifier the value applies to,
	// e.g. "2025-10-27" or "USD:EUR".
	Range string
}

// String renders the key as a flat, colon-separated identifier.
func (k Key) String() string {
	user := k.UserID
	if user == "" {
		user = "_"
	}
	return strings.Join([]string{user, string(k.MetricType), k.Range}, ":")
}

// Entry is one cached value with its own expiry.
type Entry struct {
	Value    decimal.Decimal `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      time.Duration   `json:"ttl"`
}

// ExpiresAt is StoredAt + TTL. A zero TTL never expires.
func (e Entry) ExpiresAt() time.Time {
	if e.TTL <= 0 {
		return time.Time{}
	}
	return e.StoredAt.Add(e.TTL)
}

// Expired reports whether the entry is stale at now.
func (e Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return !now.Before(e.ExpiresAt())
}

// Store is the side-table contract. Get returns sentinel.ErrNotFound for
// missing or expired entries.
type Store interface {
	Get(ctx context.Context, key Key) (Entry, error)
	Put(ctx context.Context, key Key, entry Entry) error
	Delete(ctx context.Context, key Key) error
}

// Clock returns the current time. Stores take it as a dependency.
type Clock func() time.Time
