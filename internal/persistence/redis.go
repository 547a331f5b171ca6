package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

// ErrRedisUnavailable is returned by Ping when no client is configured.
var ErrRedisUnavailable = errors.New("redis client not configured")

// Counter round-trips sit on the login path.
const (
	throttleDialTimeout = 2 * time.Second
	throttleIOTimeout   = 500 * time.Millisecond
	throttlePoolSize    = 10
)

// ThrottleStore is the redis connection holding login throttle counters and
// lockout keys.
type ThrottleStore struct {
	addr   string
	client *redis.Client
}

// OpenThrottleStore connects to cfg.Addr. An unreachable server is only
// logged: the throttle fails open and readiness reports the outage.
func OpenThrottleStore(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *ThrottleStore {
	store := &ThrottleStore{
		addr: cfg.Addr,
		client: redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  throttleDialTimeout,
			ReadTimeout:  throttleIOTimeout,
			WriteTimeout: throttleIOTimeout,
			PoolSize:     throttlePoolSize,
		}),
	}

	pingCtx, cancel := context.WithTimeout(ctx, throttleDialTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		logger.Warn("login throttle store unreachable", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("login throttle store connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}
	return store
}

// Counters exposes the client to the throttle. It is nil on a nil store,
// which the throttle treats as disabled.
func (s *ThrottleStore) Counters() redis.Cmdable {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client
}

// Ping reports whether the store answers, naming the address on failure.
func (s *ThrottleStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return ErrRedisUnavailable
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", s.addr, err)
	}
	return nil
}

// Close releases pooled connections.
func (s *ThrottleStore) Close() {
	if s != nil && s.client != nil {
		_ = s.client.Close()
	}
}
