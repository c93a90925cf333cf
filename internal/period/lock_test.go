package period

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client), mr
}

func TestRedisLockerExcludesConcurrentTransitions(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, TransitionLockKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists(TransitionLockKey))

	_, err = locker.Acquire(ctx, TransitionLockKey, time.Minute)
	assert.ErrorIs(t, err, ErrTransitionLocked)

	release(ctx)
	assert.False(t, mr.Exists(TransitionLockKey))

	again, err := locker.Acquire(ctx, TransitionLockKey, time.Minute)
	require.NoError(t, err)
	again(ctx)
}

func TestRedisLockerReleaseKeepsForeignOwner(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, TransitionLockKey, time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	other, err := locker.Acquire(ctx, TransitionLockKey, time.Minute)
	require.NoError(t, err)

	release(ctx)
	assert.True(t, mr.Exists(TransitionLockKey), "expired owner must not delete the new lock")
	other(ctx)
	assert.False(t, mr.Exists(TransitionLockKey))
}

func TestServiceUsesRedisLock(t *testing.T) {
	locker, mr := newTestLocker(t)
	store := fixture()
	svc := NewService(store, ServiceConfig{Locker: locker})

	require.NoError(t, mr.Set(TransitionLockKey, "someone-else"))
	_, err := svc.Close(context.Background(), "admin", "A", ClosePeriodInput{NewPeriodID: "B"})
	assert.ErrorIs(t, err, ErrTransitionLocked)
	assert.True(t, store.periods["A"].IsActive)

	mr.Del(TransitionLockKey)
	_, err = svc.Close(context.Background(), "admin", "A", ClosePeriodInput{NewPeriodID: "B"})
	require.NoError(t, err)
	assert.False(t, mr.Exists(TransitionLockKey))
}
