package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow is a sliding-window limiter backed by a Redis sorted set per
// key, usable across multiple API instances.
type RedisWindow struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisWindow(client *redis.Client, limit int, window time.Duration) *RedisWindow {
	return &RedisWindow{
		client: client,
		limit:  limit,
		window: window,
		prefix: "rl:",
	}
}

func (l *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	now := time.Now()
	cutoff := now.Add(-l.window).UnixNano()
	redisKey := l.prefix + key

	if err := l.client.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return false, fmt.Errorf("trim rate window: %w", err)
	}
	count, err := l.client.ZCard(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("count rate window: %w", err)
	}
	if count >= int64(l.limit) {
		return false, nil
	}

	member := strconv.FormatInt(now.UnixNano(), 10)
	if err := l.client.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member}).Err(); err != nil {
		return false, fmt.Errorf("record request: %w", err)
	}
	if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
		return false, fmt.Errorf("expire rate window: %w", err)
	}
	return true, nil
}
