// internal/lock/lock_test.go
package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentor-points/internal/util"
)

func TestKeyedLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("SerializesSameOwner", func(t *testing.T) {
		l := NewKeyedLocker(time.Second)
		var inside, maxInside int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := l.Acquire(ctx, "u1")
				if !assert.NoError(t, err) {
					return
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				unlock()
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, maxInside)
		assert.Zero(t, l.size(), "entries are dropped once nobody holds them")
	})

	t.Run("DifferentOwnersDoNotBlock", func(t *testing.T) {
		l := NewKeyedLocker(50 * time.Millisecond)
		unlockA, err := l.Acquire(ctx, "a")
		require.NoError(t, err)
		defer unlockA()

		unlockB, err := l.Acquire(ctx, "b")
		require.NoError(t, err)
		unlockB()
	})

	t.Run("TimesOut", func(t *testing.T) {
		l := NewKeyedLocker(20 * time.Millisecond)
		unlock, err := l.Acquire(ctx, "u1")
		require.NoError(t, err)

		_, err = l.Acquire(ctx, "u1")
		assert.ErrorIs(t, err, util.ErrAccountLockTimeout)

		unlock()
		unlock() // second call is a no-op
		assert.Zero(t, l.size())
	})

	t.Run("ContextCancelled", func(t *testing.T) {
		l := NewKeyedLocker(time.Second)
		unlock, err := l.Acquire(ctx, "u1")
		require.NoError(t, err)
		defer unlock()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = l.Acquire(cctx, "u1")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func setupRedisLocker(t *testing.T, timeout, lease time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, timeout, lease, util.DiscardLogger()), mr
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("AcquireAndRelease", func(t *testing.T) {
		l, mr := setupRedisLocker(t, 50*time.Millisecond, time.Minute)
		unlock, err := l.Acquire(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, mr.Exists(redisKeyPrefix+"u1"))

		_, err = l.Acquire(ctx, "u1")
		assert.ErrorIs(t, err, util.ErrAccountLockTimeout)

		unlock()
		assert.False(t, mr.Exists(redisKeyPrefix+"u1"))

		unlock2, err := l.Acquire(ctx, "u1")
		require.NoError(t, err)
		unlock2()
	})

	t.Run("ExpiredLeaseIsNotReleasedByOldHolder", func(t *testing.T) {
		l, mr := setupRedisLocker(t, 50*time.Millisecond, time.Second)
		stale, err := l.Acquire(ctx, "u1")
		require.NoError(t, err)

		mr.FastForward(2 * time.Second)
		fresh, err := l.Acquire(ctx, "u1")
		require.NoError(t, err)

		stale()
		assert.True(t, mr.Exists(redisKeyPrefix+"u1"), "stale holder must not delete the new lease")
		fresh()
		assert.False(t, mr.Exists(redisKeyPrefix+"u1"))
	})

	t.Run("ConnectRedis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		client, err := ConnectRedis(ctx, RedisOptions{Addr: addr})
		require.NoError(t, err)
		_ = client.Close()

		mr.Close()
		_, err = ConnectRedis(ctx, RedisOptions{Addr: addr})
		assert.Error(t, err)
	})
}
