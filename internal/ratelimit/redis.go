package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter shares window counters between instances through Redis.
type RedisLimiter struct {
	client  *redis.Client
	limit   int
	prefix  string
	nowFunc func() time.Time
}

// NewRedisLimiter allows limit requests per key per minute across every instance using client.
func NewRedisLimiter(client *redis.Client, limit int) *RedisLimiter {
	return &RedisLimiter{
		client:  client,
		limit:   limit,
		prefix:  "ratelimit",
		nowFunc: time.Now,
	}
}

func (l *RedisLimiter) counterKey(key string, window int64) string {
	return l.prefix + ":" + key + ":" + strconv.FormatInt(window, 10)
}

// Allow runs INCR and EXPIRE in one MULTI so a counter never outlives two windows.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.nowFunc()
	window, resetAt := epochMinute(now)
	k := l.counterKey(key, window)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, 2*Window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("redis incr %s: %w", k, err)
	}
	return decide(incr.Val(), l.limit, now, resetAt), nil
}

var (
	_ Limiter = (*WindowLimiter)(nil)
	_ Limiter = (*RedisLimiter)(nil)
)
