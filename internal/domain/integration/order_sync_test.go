package integration

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig() *PlatformAdapterConfig {
	return &PlatformAdapterConfig{
		ID:        uuid.New(),
		Platform:  PlatformShopee,
		ShopID:    "1001",
		AppKey:    "2001",
		AppSecret: "secret",
		Enabled:   true,
	}
}

func TestSyncJob_Lifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cfg := newTestConfig()

	t.Run("new job is running", func(t *testing.T) {
		job := NewSyncJob(cfg, now)
		assert.Equal(t, SyncJobRunning, job.Status)
		assert.Equal(t, cfg.ID, job.ConfigID)
		assert.Equal(t, "1001", job.ShopID)
		assert.True(t, job.IsRunning())
		assert.Nil(t, job.FinishedAt)
	})

	t.Run("complete without errors", func(t *testing.T) {
		job := NewSyncJob(cfg, now)
		job.Complete(SyncStats{Fetched: 3, Created: 2, Skipped: 1}, nil, now.Add(time.Second))
		assert.Equal(t, SyncJobSuccess, job.Status)
		assert.Empty(t, job.ErrorMessage)
		assert.Equal(t, 3, job.Fetched)
		require.NotNil(t, job.FinishedAt)
		assert.Equal(t, time.Second, job.Duration(now))
	})

	t.Run("complete with errors", func(t *testing.T) {
		job := NewSyncJob(cfg, now)
		job.Complete(SyncStats{Fetched: 4, Created: 2, Errors: 2}, errors.New("boom"), now)
		assert.Equal(t, SyncJobFailed, job.Status)
		assert.Equal(t, "2 order(s) failed: boom", job.ErrorMessage)
	})

	t.Run("fail", func(t *testing.T) {
		job := NewSyncJob(cfg, now)
		job.Fail("token invalid", now)
		assert.Equal(t, SyncJobFailed, job.Status)
		assert.Equal(t, "token invalid", job.ErrorMessage)
		assert.False(t, job.IsRunning())
	})
}

func TestSyncJob_Staleness(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	job := NewSyncJob(newTestConfig(), start)

	assert.False(t, job.IsStale(start.Add(5*time.Minute), DefaultStaleAfter))
	assert.True(t, job.IsStale(start.Add(11*time.Minute), DefaultStaleAfter))

	job.Expire(start.Add(11 * time.Minute))
	assert.Equal(t, SyncJobFailed, job.Status)
	assert.Equal(t, StaleJobMessage, job.ErrorMessage)
	assert.False(t, job.IsStale(start.Add(time.Hour), DefaultStaleAfter))
}

func TestPlatformAdapterConfig_TokenNeedsRefresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cfg := newTestConfig()

	assert.False(t, cfg.TokenNeedsRefresh(now, DefaultTokenRefreshBuffer), "no expiry known")

	expires := now.Add(10 * time.Minute)
	cfg.TokenExpiresAt = &expires
	assert.False(t, cfg.TokenNeedsRefresh(now, DefaultTokenRefreshBuffer))
	assert.True(t, cfg.TokenNeedsRefresh(now.Add(5*time.Minute), DefaultTokenRefreshBuffer))
	assert.True(t, cfg.TokenNeedsRefresh(now.Add(time.Hour), DefaultTokenRefreshBuffer))
}

func TestPlatformAdapterConfig_ApplyTokens(t *testing.T) {
	cfg := newTestConfig()
	cfg.RefreshToken = "old-refresh"
	expires := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	cfg.ApplyTokens(&TokenSet{AccessToken: "new-access", ExpiresAt: expires})
	assert.Equal(t, "new-access", cfg.AccessToken)
	assert.Equal(t, "old-refresh", cfg.RefreshToken, "empty refresh token keeps the old one")
	require.NotNil(t, cfg.TokenExpiresAt)
	assert.True(t, cfg.TokenExpiresAt.Equal(expires))
}

func TestPlatformAdapterConfig_Validate(t *testing.T) {
	cfg := newTestConfig()
	assert.NoError(t, cfg.Validate())

	cfg.ShopID = ""
	assert.ErrorIs(t, cfg.Validate(), ErrConfigInvalidShop)

	lnw := &PlatformAdapterConfig{Platform: PlatformLnwShop, ShopID: "s", AppKey: "api-key"}
	assert.NoError(t, lnw.Validate(), "LnwShop needs only the API key")

	lnw.AppKey = ""
	assert.ErrorIs(t, lnw.Validate(), ErrConfigInvalidCreds)
}

func TestPlatformAdapterConfig_SyncWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cfg := newTestConfig()

	from, to := cfg.SyncWindow(now, 10*time.Minute, 24*time.Hour)
	assert.Equal(t, now.Add(-24*time.Hour), from)
	assert.Equal(t, now, to)

	last := now.Add(-time.Hour)
	cfg.LastSyncAt = &last
	from, _ = cfg.SyncWindow(now, 10*time.Minute, 24*time.Hour)
	assert.Equal(t, last.Add(-10*time.Minute), from)

	assert.Equal(t, 15*time.Minute, cfg.SyncInterval(15*time.Minute))
	cfg.SyncIntervalMinutes = 5
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval(15*time.Minute))
	assert.Equal(t, "SHOPEE:1001", cfg.ShopKey())
}
