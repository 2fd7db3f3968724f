package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	locker := NewRedisLocker(client, time.Minute, zap.NewNop())
	locker.pollInterval = 5 * time.Millisecond
	return locker, mr
}

func TestRedisLockerExclusive(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, KioskKey(7))
	require.NoError(t, err)
	assert.True(t, mr.Exists("kiosksync:lock:kiosk:7"))

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, KioskKey(7))
	assert.True(t, errors.Is(err, ErrNotAcquired))

	unlock()
	assert.False(t, mr.Exists("kiosksync:lock:kiosk:7"))

	unlock, err = locker.Lock(ctx, KioskKey(7))
	require.NoError(t, err)
	unlock()
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, KioskKey(1))
	require.NoError(t, err)

	// Our lease expires and another holder takes the key.
	mr.FastForward(2 * time.Minute)
	require.NoError(t, mr.Set("kiosksync:lock:kiosk:1", "someone-else"))

	unlock()
	got, err := mr.Get("kiosksync:lock:kiosk:1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockerRenewsWhileHeld(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	locker.ttl = time.Second
	locker.renewInterval = 10 * time.Millisecond
	ctx := context.Background()
	key := "kiosksync:lock:kiosk:3"

	unlock, err := locker.Lock(ctx, KioskKey(3))
	require.NoError(t, err)

	mr.FastForward(800 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL(key) > 500*time.Millisecond
	}, time.Second, 5*time.Millisecond)

	mr.FastForward(800 * time.Millisecond)
	assert.True(t, mr.Exists(key))

	unlock()
	assert.False(t, mr.Exists(key))
	unlock()
}

func TestRedisLockerStopsRenewingLostLock(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	locker.ttl = time.Second
	locker.renewInterval = 10 * time.Millisecond
	ctx := context.Background()
	key := "kiosksync:lock:kiosk:4"

	unlock, err := locker.Lock(ctx, KioskKey(4))
	require.NoError(t, err)
	require.NoError(t, mr.Set(key, "someone-else"))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, mr.TTL(key))

	unlock()
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockerIndependentKeys(t *testing.T) {
	locker, _ := newTestRedisLocker(t)
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, KioskKey(1))
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := locker.Lock(ctx, KioskKey(2))
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "k")
	assert.True(t, errors.Is(err, ErrNotAcquired))

	unlock()
	unlock() // second release is a no-op

	acquired := make(chan struct{})
	go func() {
		u, err := locker.Lock(ctx, "k")
		if err == nil {
			u()
		}
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was not released")
	}
}
