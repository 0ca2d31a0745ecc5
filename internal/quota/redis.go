package quota

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter adapts a Redis client to the Counter contract. Redis's INCRBY
// is the single atomic primitive all quota coordination relies on, which also
// makes the counters safe to share between horizontally scaled instances.
type RedisCounter struct {
	rdb *redis.Client
}

// NewRedisCounter connects to the Redis instance at addr using the given
// credential and logical database index.
func NewRedisCounter(addr, password string, db int) *RedisCounter {
	return &RedisCounter{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (c *RedisCounter) Get(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c *RedisCounter) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return c.rdb.IncrBy(ctx, key, delta).Result()
}

func (c *RedisCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

// Close releases the underlying connection pool.
func (c *RedisCounter) Close() error {
	return c.rdb.Close()
}
