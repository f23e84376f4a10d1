package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "payout:1", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "payout:1", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	_, err = l.Acquire(ctx, "payout:2", time.Minute)
	assert.NoError(t, err)

	release()
	release()
	_, err = l.Acquire(ctx, "payout:1", time.Minute)
	assert.NoError(t, err)
}

func TestLocalLockerExpiry(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()
	stale, err := l.Acquire(ctx, "k", time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// releasing the expired holder must not drop the new lock
	stale()
	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	l := NewRedisLocker(rdb)
	ctx := context.Background()
	key := "test:" + time.Now().Format("150405.000000")

	release, err := l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, key, 5*time.Second)
	assert.ErrorIs(t, err, ErrLocked)
	release()
	again, err := l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	again()
}
