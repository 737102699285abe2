package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/backend/internal/infrastructure/config"
)

func TestInMemoryLocker_TryLock(t *testing.T) {
	locker := NewInMemoryLocker()
	defer locker.Close()

	ctx := context.Background()

	t.Run("second caller is refused until release", func(t *testing.T) {
		release, ok, err := locker.TryLock(ctx, "shop:SHOPEE:1", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = locker.TryLock(ctx, "shop:SHOPEE:1", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		release()

		release2, ok, err := locker.TryLock(ctx, "shop:SHOPEE:1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		release2()
	})

	t.Run("different keys do not contend", func(t *testing.T) {
		r1, ok1, _ := locker.TryLock(ctx, "shop:LAZADA:a", time.Minute)
		r2, ok2, _ := locker.TryLock(ctx, "shop:LAZADA:b", time.Minute)
		assert.True(t, ok1)
		assert.True(t, ok2)
		r1()
		r2()
	})

	t.Run("expired lease is taken over and stale release is ignored", func(t *testing.T) {
		now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
		locker.now = func() time.Time { return now }
		defer func() { locker.now = time.Now }()

		stale, ok, _ := locker.TryLock(ctx, "shop:TIKTOK:1", time.Minute)
		require.True(t, ok)

		now = now.Add(2 * time.Minute)
		fresh, ok, _ := locker.TryLock(ctx, "shop:TIKTOK:1", time.Minute)
		require.True(t, ok)

		stale()
		_, ok, _ = locker.TryLock(ctx, "shop:TIKTOK:1", time.Minute)
		assert.False(t, ok, "old owner must not release the new lease")
		fresh()
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, ok, err := locker.TryLock(cctx, "shop:X", time.Minute)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, ok)
	})
}

func TestInMemoryLocker_Concurrent(t *testing.T) {
	locker := NewInMemoryLocker()
	defer locker.Close()

	var acquired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := locker.TryLock(context.Background(), "shop:SHOPEE:9", time.Minute); ok {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), acquired.Load())
}

func TestInMemoryLocker_Cleanup(t *testing.T) {
	locker := NewInMemoryLocker()
	defer locker.Close()

	_, ok, _ := locker.TryLock(context.Background(), "short", time.Millisecond)
	require.True(t, ok)
	_, ok, _ = locker.TryLock(context.Background(), "long", time.Hour)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	locker.cleanup()

	assert.Equal(t, 1, locker.Size())
	require.NoError(t, locker.Close())
	require.NoError(t, locker.Close())
}

func TestLockerFactory_CreateLocker(t *testing.T) {
	t.Run("redis disabled", func(t *testing.T) {
		f := NewLockerFactory(config.RedisConfig{Enabled: false})
		l, closeFn, err := f.CreateLocker()
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &InMemoryLocker{}, l)
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		f := NewLockerFactory(config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1})
		l, closeFn, err := f.CreateLocker()
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &InMemoryLocker{}, l)
	})

	t.Run("unreachable redis without fallback", func(t *testing.T) {
		f := NewLockerFactory(config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}, WithInMemoryFallback(false))
		_, _, err := f.CreateLocker()
		assert.Error(t, err)
	})
}
