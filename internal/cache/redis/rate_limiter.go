package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

//go:embed scripts/fixed_window.lua
var fixedWindowLua string

// RateLimiter implements domain.RateLimiter using a fixed-window counter
// backed by an atomic Lua script (INCR + PEXPIRE on first hit).
type RateLimiter struct {
	rdb         *redis.Client
	fixedWindow *redis.Script
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:         c.rdb,
		fixedWindow: c.script(fixedWindowLua),
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// Allow checks whether a request for the given key is permitted under the
// fixed-window limit. The request is counted whether or not it is allowed;
// the decision carries the remaining budget and window reset time for the
// gateway's rate-limit headers.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	result, err := rl.fixedWindow.Run(
		ctx,
		rl.rdb,
		[]string{rateLimitKey(key)},
		limit,
		window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(result) < 3 {
		return domain.RateLimitDecision{}, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}

	count := int(result[1])
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return domain.RateLimitDecision{
		Allowed:   result[0] == 1,
		Limit:     limit,
		Remaining: remaining,
		Reset:     time.Now().Add(time.Duration(result[2]) * time.Millisecond),
	}, nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
