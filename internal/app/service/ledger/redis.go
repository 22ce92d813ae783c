package ledger

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Locker interface implementation
var _ Locker = (*RedisLocker)(nil)

// RedisLocker reserves idempotency keys with SETNX. Keys are kept without a
// TTL: an applied mutation stays applied.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, key, 1, 0).Result()
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	return ok, nil
}

func (r *RedisLocker) Release(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}
