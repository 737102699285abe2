package ecommerce

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
)

// peerLocker simulates another process holding the refresh lock
type peerLocker struct {
	onTry func()
	calls int32
}

func (l *peerLocker) TryLock(_ context.Context, _ string, _ time.Duration) (func(), bool, error) {
	atomic.AddInt32(&l.calls, 1)
	if l.onTry != nil {
		l.onTry()
	}
	return func() {}, false, nil
}

func expiringShopeeConfig(baseURL string, expiresAt time.Time) *integration.PlatformAdapterConfig {
	cfg := testConfig(integration.PlatformShopee, baseURL)
	cfg.TokenExpiresAt = &expiresAt
	return cfg
}

func shopeeRefreshServer(t *testing.T, calls *int32) *httptest.Server {
	return createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != shopeePathTokenRefresh {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		atomic.AddInt32(calls, 1)
		// Widen the window for concurrent callers
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(`{"access_token": "new-token", "refresh_token": "new-refresh", "expire_in": 14400}`))
	})
}

func TestTokenKeeper_EnsureValid_NotExpiring(t *testing.T) {
	var calls int32
	server := shopeeRefreshServer(t, &calls)
	defer server.Close()

	cfg := expiringShopeeConfig(server.URL, testNow.Add(time.Hour))
	adapter, err := NewShopeeAdapter(cfg, testDeps(newMemTokenStore(cfg), testNow))
	require.NoError(t, err)

	require.NoError(t, adapter.EnsureValidToken(context.Background()))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.Equal(t, "old-token", adapter.snapshot().AccessToken)
}

func TestTokenKeeper_EnsureValid_RefreshesWithinBuffer(t *testing.T) {
	var calls int32
	server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"access_token": "new-token", "expire_in": 14400}`))
	})
	defer server.Close()

	// Expires in 4 minutes: inside the 5 minute buffer
	cfg := expiringShopeeConfig(server.URL, testNow.Add(4*time.Minute))
	store := newMemTokenStore(cfg)
	adapter, err := NewShopeeAdapter(cfg, testDeps(store, testNow))
	require.NoError(t, err)

	require.NoError(t, adapter.EnsureValidToken(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	snap := adapter.snapshot()
	assert.Equal(t, "new-token", snap.AccessToken)
	// Refresh token is kept when the platform does not rotate it
	assert.Equal(t, "refresh-token", snap.RefreshToken)
	require.NotNil(t, snap.TokenExpiresAt)
	assert.Equal(t, testNow.Add(4*time.Hour), *snap.TokenExpiresAt)
	assert.Equal(t, 1, store.updateCount())
}

func TestTokenKeeper_ConcurrentCallersRefreshOnce(t *testing.T) {
	var calls int32
	server := shopeeRefreshServer(t, &calls)
	defer server.Close()

	cfg := expiringShopeeConfig(server.URL, testNow.Add(time.Minute))
	store := newMemTokenStore(cfg)
	deps := testDeps(store, testNow)

	const workers = 10
	adapters := make([]*ShopeeAdapter, workers)
	for i := range adapters {
		a, err := NewShopeeAdapter(cfg, deps)
		require.NoError(t, err)
		adapters[i] = a
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range adapters {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = adapters[i].EnsureValidToken(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, store.updateCount())
	for _, a := range adapters {
		assert.Equal(t, "new-token", a.snapshot().AccessToken)
	}
}

func TestTokenKeeper_NoRefreshToken(t *testing.T) {
	cfg := expiringShopeeConfig("http://127.0.0.1:1", testNow.Add(time.Minute))
	cfg.RefreshToken = ""
	adapter, err := NewShopeeAdapter(cfg, testDeps(newMemTokenStore(cfg), testNow))
	require.NoError(t, err)

	err = adapter.EnsureValidToken(context.Background())
	require.Error(t, err)
	assert.True(t, integration.IsAuthError(err))
	assert.Contains(t, err.Error(), "no refresh token")
}

func TestTokenKeeper_RefreshFailureIsAuthError(t *testing.T) {
	server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "error_param", "message": "refresh token invalid"}`))
	})
	defer server.Close()

	cfg := expiringShopeeConfig(server.URL, testNow.Add(time.Minute))
	store := newMemTokenStore(cfg)
	adapter, err := NewShopeeAdapter(cfg, testDeps(store, testNow))
	require.NoError(t, err)

	err = adapter.EnsureValidToken(context.Background())
	assert.ErrorIs(t, err, integration.ErrPlatformAuthFailed)
	assert.ErrorIs(t, err, integration.ErrPlatformRequestFailed)
	assert.Equal(t, 0, store.updateCount())
}

func TestTokenKeeper_PeerProcessRefreshes(t *testing.T) {
	var calls int32
	server := shopeeRefreshServer(t, &calls)
	defer server.Close()

	cfg := expiringShopeeConfig(server.URL, testNow.Add(time.Minute))
	store := newMemTokenStore(cfg)

	peerExpiry := testNow.Add(4 * time.Hour)
	locker := &peerLocker{onTry: func() {
		_ = store.UpdateTokens(context.Background(), cfg.ID, &integration.TokenSet{
			AccessToken: "peer-token",
			ExpiresAt:   peerExpiry,
		})
	}}

	deps := testDeps(store, testNow)
	deps.Keeper = NewTokenKeeper(DefaultTokenKeeperConfig(), store, locker, zap.NewNop())
	deps.Keeper.now = func() time.Time { return testNow }

	adapter, err := NewShopeeAdapter(cfg, deps)
	require.NoError(t, err)

	require.NoError(t, adapter.EnsureValidToken(context.Background()))
	assert.Equal(t, "peer-token", adapter.snapshot().AccessToken)
	assert.Equal(t, int32(1), atomic.LoadInt32(&locker.calls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestTokenKeeper_PeerNeverFinishes(t *testing.T) {
	cfg := expiringShopeeConfig("http://127.0.0.1:1", time.Now().Add(time.Minute))
	store := newMemTokenStore(cfg)

	keeperCfg := DefaultTokenKeeperConfig()
	keeperCfg.LockWait = 50 * time.Millisecond
	deps := testDeps(store, time.Now())
	deps.Now = time.Now
	deps.Keeper = NewTokenKeeper(keeperCfg, store, &peerLocker{}, zap.NewNop())

	adapter, err := NewShopeeAdapter(cfg, deps)
	require.NoError(t, err)

	err = adapter.EnsureValidToken(context.Background())
	require.Error(t, err)
	assert.True(t, integration.IsAuthError(err))
}
