package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zakat/pkg/platform/sentinel"
)

const keyPrefix = "zakat:cache:"

// RedisStore keeps entries in Redis. The Redis TTL mirrors Entry.TTL so stale
// keys are reclaimed by the server; Get still checks expiry against its own
// clock.
type RedisStore struct {
	client *redis.Client
	clock  Clock
}

type RedisOption func(*RedisStore)

func WithRedisClock(clock Clock) RedisOption {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Get(ctx context.Context, key Key) (Entry, error) {
	raw, err := s.client.Get(ctx, keyPrefix+key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("redis get %s: %w", key, errors.Join(sentinel.ErrUnavailable, err))
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	if e.Expired(s.clock()) {
		return Entry{}, sentinel.ErrNotFound
	}
	return e, nil
}

func (s *RedisStore) Put(ctx context.Context, key Key, entry Entry) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = s.clock()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	// TTL 0 means no expiry for both Entry and redis SET
	if err := s.client.Set(ctx, keyPrefix+key.String(), raw, entry.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, keyPrefix+key.String()).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}
