package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunetree/tunetree/pkg/adapters/redis"
)

func newTestLocker(t *testing.T) (*miniredis.Miniredis, *redis.Locker) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, redis.NewLocker(client, "tunetree:")
}

func TestLockerLockUnlock(t *testing.T) {
	mr, locker := newTestLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "repo", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("tunetree:lock:repo"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("tunetree:lock:repo"))
}

func TestLockerContention(t *testing.T) {
	mr, locker := newTestLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "repo", 5*time.Second)
	require.NoError(t, err)

	// A second holder cannot acquire while the first one holds the lock.
	shortCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(shortCtx, "repo", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(ctx))

	unlock2, err := locker.Lock(ctx, "repo", 5*time.Second)
	require.NoError(t, err)
	defer unlock2(ctx)
	assert.True(t, mr.Exists("tunetree:lock:repo"))
}

func TestLockerUnlockIsOwnershipChecked(t *testing.T) {
	mr, locker := newTestLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "repo", 5*time.Second)
	require.NoError(t, err)

	// Simulate TTL expiry followed by reacquisition by someone else.
	mr.Del("tunetree:lock:repo")
	require.NoError(t, mr.Set("tunetree:lock:repo", "other-owner"))

	require.NoError(t, unlock(ctx))
	got, err := mr.Get("tunetree:lock:repo")
	require.NoError(t, err)
	assert.Equal(t, "other-owner", got, "a stale unlock must not release another holder's lock")
}
