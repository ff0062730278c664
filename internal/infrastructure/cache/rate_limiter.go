// Package cache holds Redis-backed infrastructure: the per-identity request
// rate limiter used by the API layer.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter implements a sliding-window counter per identity in Redis.
// Each request writes a member into a sorted set scored by timestamp; the
// window is trimmed on every check, so limits recover smoothly instead of
// resetting at interval boundaries.
type RateLimiter struct {
	client *redis.Client
	logger *zap.Logger

	limit  int
	window time.Duration
}

func NewRateLimiter(client *redis.Client, logger *zap.Logger, requestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		limit:  requestsPerMinute,
		window: time.Minute,
	}
}

// Allow records one request for the identity and reports whether it stays
// within the limit. On Redis failure the request is allowed; the limiter
// protects the service, it must not become an outage of its own.
func (rl *RateLimiter) Allow(ctx context.Context, identity string) bool {
	now := time.Now()
	key := "ratelimit:" + identity
	cutoff := now.Add(-rl.window)

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff.UnixNano()))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, rl.window)

	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn("rate limiter unavailable, allowing request",
			zap.String("identity", identity), zap.Error(err))
		return true
	}
	return count.Val() < int64(rl.limit)
}

// NewClient builds a Redis client from an address plus credentials.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}
