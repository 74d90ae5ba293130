package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares first-seen markers across processes using SET NX.
// Markers expire after TTL, which must cover at least one hour bucket.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration

	Now func() time.Time
}

func NewRedisStore(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "dedup:"
	}
	if ttl < time.Hour {
		ttl = 2 * time.Hour
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl, Now: time.Now}
}

func (s *RedisStore) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.prefix+bucketKey(key, s.Now()), 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: redis setnx: %w", err)
	}
	return ok, nil
}
