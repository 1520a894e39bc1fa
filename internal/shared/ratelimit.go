package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts actions per key over a fixed window, backed by Redis.
// It is passed to handlers explicitly so tests can run with isolated
// instances instead of sharing process-wide state.
type RateLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRateLimiter constructs a limiter allowing limit hits per window.
func NewRateLimiter(client *redis.Client, prefix string, limit int64, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow consumes one hit for key and reports whether the budget is exceeded.
// When Redis is unavailable the limiter allows the request; availability is
// preferred over strict limiting for this layer.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	bucket := time.Now().Unix() / int64(l.window.Seconds())
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		_ = l.client.Expire(ctx, redisKey, l.window).Err()
	}
	return count <= l.limit, nil
}

// Check is Allow folded into the package error taxonomy.
func (l *RateLimiter) Check(ctx context.Context, key string) error {
	ok, err := l.Allow(ctx, key)
	if err != nil {
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the current window for key, used after a successful login so
// earlier failed attempts stop counting against the actor.
func (l *RateLimiter) Reset(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	bucket := time.Now().Unix() / int64(l.window.Seconds())
	return l.client.Del(ctx, fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)).Err()
}
