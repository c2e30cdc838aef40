package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Login throttling parameters.
const (
	loginMaxAttempts = 5
	loginWindow      = 15 * time.Minute
)

// LoginLimiter throttles failed web logins per (ip, username) using Redis
// INCR + EXPIRE. A nil Redis client disables the limiter silently.
type LoginLimiter struct {
	redis *redis.Client
}

// NewLoginLimiter creates a login limiter. rdb may be nil.
func NewLoginLimiter(rdb *redis.Client) *LoginLimiter {
	return &LoginLimiter{redis: rdb}
}

func loginKey(ip, username string) string {
	return fmt.Sprintf("web_login_attempts:%s:%s", ip, strings.ToLower(username))
}

// TooMany reports whether the caller has exhausted its failed attempts.
// Checked before the password hash is touched.
func (l *LoginLimiter) TooMany(ctx context.Context, ip, username string) (bool, error) {
	if l.redis == nil {
		return false, nil
	}

	count, err := l.redis.Get(ctx, loginKey(ip, username)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("checking rate limit: %w", err)
	}
	return count >= loginMaxAttempts, nil
}

// RecordFailure increments the counter, setting the TTL on the first write.
func (l *LoginLimiter) RecordFailure(ctx context.Context, ip, username string) error {
	if l.redis == nil {
		return nil
	}

	key := loginKey(ip, username)
	pipe := l.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording failed login: %w", err)
	}

	if incr.Val() == 1 {
		if err := l.redis.Expire(ctx, key, loginWindow).Err(); err != nil {
			return fmt.Errorf("setting rate limit TTL: %w", err)
		}
	}
	return nil
}

// Reset clears the counter after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, ip, username string) error {
	if l.redis == nil {
		return nil
	}
	return l.redis.Del(ctx, loginKey(ip, username)).Err()
}
