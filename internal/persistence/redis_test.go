package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

func TestThrottleStoreServesCounters(t *testing.T) {
	mr := miniredis.RunT(t)
	store := OpenThrottleStore(context.Background(), config.RedisConfig{Addr: mr.Addr(), DB: 0}, zap.NewNop())
	t.Cleanup(store.Close)

	require.NoError(t, store.Ping(context.Background()))
	counters := store.Counters()
	require.NotNil(t, counters)
	n, err := counters.Incr(context.Background(), "login:ip:10.0.0.1").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.NoError(t, counters.Expire(context.Background(), "login:ip:10.0.0.1", time.Minute).Err())
	assert.Equal(t, time.Minute, mr.TTL("login:ip:10.0.0.1"))
}

func TestThrottleStoreReportsOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	store := OpenThrottleStore(context.Background(), config.RedisConfig{Addr: addr}, zap.NewNop())
	t.Cleanup(store.Close)
	err := store.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}

func TestNilThrottleStoreIsDisabled(t *testing.T) {
	var store *ThrottleStore
	assert.ErrorIs(t, store.Ping(context.Background()), ErrRedisUnavailable)
	assert.Nil(t, store.Counters())
	assert.NotPanics(t, store.Close)
}
