package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ErrThrottled is returned when a login attempt exceeds a limit or the
// account is temporarily locked.
var ErrThrottled = errors.New("too many login attempts")

// ThrottleLimits configures LoginThrottle.
type ThrottleLimits struct {
	IPLimit      int
	EmailLimit   int
	Window       time.Duration
	FailLimit    int
	LockDuration time.Duration
}

// DefaultThrottleLimits mirrors the production defaults.
func DefaultThrottleLimits() ThrottleLimits {
	return ThrottleLimits{
		IPLimit:      20,
		EmailLimit:   10,
		Window:       time.Minute,
		FailLimit:    5,
		LockDuration: 15 * time.Minute,
	}
}

// LoginThrottle counts login attempts per ip and per email in redis and locks
// an email after repeated failures. A nil *LoginThrottle allows everything.
type LoginThrottle struct {
	rdb    redis.Cmdable
	limits ThrottleLimits
}

// NewLoginThrottle builds a throttle; zero-valued limits take defaults.
func NewLoginThrottle(rdb redis.Cmdable, limits ThrottleLimits) *LoginThrottle {
	def := DefaultThrottleLimits()
	if limits.IPLimit <= 0 {
		limits.IPLimit = def.IPLimit
	}
	if limits.EmailLimit <= 0 {
		limits.EmailLimit = def.EmailLimit
	}
	if limits.Window <= 0 {
		limits.Window = def.Window
	}
	if limits.FailLimit <= 0 {
		limits.FailLimit = def.FailLimit
	}
	if limits.LockDuration <= 0 {
		limits.LockDuration = def.LockDuration
	}
	return &LoginThrottle{rdb: rdb, limits: limits}
}

// Allow counts one attempt and returns ErrThrottled when over a limit.
func (l *LoginThrottle) Allow(ctx context.Context, email, ip string) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	email = domain.NormalizeEmail(email)

	if email != "" {
		locked, err := l.rdb.Exists(ctx, lockKey(email)).Result()
		if err != nil {
			return err
		}
		if locked > 0 {
			return ErrThrottled
		}
	}

	if ip != "" {
		count, err := l.increment(ctx, "login:rate:ip:"+ip, l.limits.Window)
		if err != nil {
			return err
		}
		if count > int64(l.limits.IPLimit) {
			return ErrThrottled
		}
	}

	if email != "" {
		count, err := l.increment(ctx, "login:rate:user:"+email, l.limits.Window)
		if err != nil {
			return err
		}
		if count > int64(l.limits.EmailLimit) {
			return ErrThrottled
		}
	}
	return nil
}

// RecordFailure counts a failed attempt and locks the email at the limit.
func (l *LoginThrottle) RecordFailure(ctx context.Context, email string) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	email = domain.NormalizeEmail(email)
	count, err := l.increment(ctx, failKey(email), l.limits.LockDuration)
	if err != nil {
		return err
	}
	if count >= int64(l.limits.FailLimit) {
		return l.rdb.Set(ctx, lockKey(email), "1", l.limits.LockDuration).Err()
	}
	return nil
}

// Reset clears the failure counter after a successful login.
func (l *LoginThrottle) Reset(ctx context.Context, email string) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Del(ctx, failKey(domain.NormalizeEmail(email))).Err()
}

func (l *LoginThrottle) increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func failKey(email string) string { return "login:fail:user:" + email }
func lockKey(email string) string { return "login:lock:user:" + email }
