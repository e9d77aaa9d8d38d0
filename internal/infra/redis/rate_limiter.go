package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter counts hits in clock-aligned fixed windows. Every window has its
// own key, so a failed EXPIRE leaks one bucket instead of blocking a client
// forever.
type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow reports whether one more hit on key fits within limit for the current window.
// A non-positive limit or window disables the check.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	bucket := fmt.Sprintf("%s:%d", key, r.now().UnixNano()/int64(window))

	n, err := r.client.Incr(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, bucket, 2*window); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return n <= int64(limit), nil
}

func RequestKey(scope, clientIP string) string {
	return "codes:rl:" + scope + ":" + clientIP
}
