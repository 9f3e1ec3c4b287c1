// Package limiter throttles password login attempts with Redis counters.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"accountd/internal/config"
	"accountd/internal/errs"
)

// ErrRedisUnavailable wraps transport failures talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// LoginLimiter tracks failed password logins per identifier.
type LoginLimiter interface {
	// Check returns errs.ErrLoginRateLimited when the identifier has
	// exhausted its attempt budget for the current window.
	Check(ctx context.Context, identifier string) error
	// Failure records a failed attempt.
	Failure(ctx context.Context, identifier string) error
	// Reset clears the counter after a successful login.
	Reset(ctx context.Context, identifier string) error
}

// Redis implements LoginLimiter with fixed-window counters: the TTL is set
// on the first failure of a window and counts accumulate until it expires.
type Redis struct {
	client redis.UniversalClient
	cfg    config.LimiterConfig
}

// New creates a Redis-backed login limiter.
func New(client redis.UniversalClient, cfg config.LimiterConfig) *Redis {
	return &Redis{client: client, cfg: cfg}
}

// Check reports whether login attempts are still allowed for the identifier.
func (l *Redis) Check(ctx context.Context, identifier string) error {
	count, err := l.client.Get(ctx, loginKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.cfg.MaxAttempts) {
		return errs.ErrLoginRateLimited
	}
	return nil
}

// Failure records a failed attempt for the identifier.
func (l *Redis) Failure(ctx context.Context, identifier string) error {
	key := loginKey(identifier)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	// Fixed-window semantics: the first failure of a window owns the TTL.
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.cfg.Cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// Reset clears the counter for the identifier.
func (l *Redis) Reset(ctx context.Context, identifier string) error {
	if err := l.client.Del(ctx, loginKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func loginKey(identifier string) string {
	return "login:attempts:" + strings.ToLower(identifier)
}

// Disabled is a no-op limiter used when throttling is turned off.
type Disabled struct{}

func (Disabled) Check(context.Context, string) error   { return nil }
func (Disabled) Failure(context.Context, string) error { return nil }
func (Disabled) Reset(context.Context, string) error   { return nil }
