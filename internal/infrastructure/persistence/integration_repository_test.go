package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapterConfig(platform integration.Platform, shopID string) *integration.PlatformAdapterConfig {
	expires := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	return &integration.PlatformAdapterConfig{
		Platform:       platform,
		ShopID:         shopID,
		ShopName:       "Siam Soap",
		AppKey:         "2001887",
		AppSecret:      "secret",
		AccessToken:    "access",
		RefreshToken:   "refresh",
		TokenExpiresAt: &expires,
		Settings:       map[string]string{"shop_cipher": "ROW_abc"},
		Enabled:        true,
	}
}

func TestGormAdapterConfigRepository(t *testing.T) {
	repo := NewGormAdapterConfigRepository(newTestDB(t))
	ctx := context.Background()

	cfg := newTestAdapterConfig(integration.PlatformTikTok, "7001")
	require.NoError(t, repo.Save(ctx, cfg))
	require.NotEqual(t, uuid.Nil, cfg.ID)

	disabled := newTestAdapterConfig(integration.PlatformTikTok, "7002")
	disabled.Enabled = false
	require.NoError(t, repo.Save(ctx, disabled))
	require.NoError(t, repo.Save(ctx, newTestAdapterConfig(integration.PlatformShopee, "100200")))

	t.Run("find by platform and shop", func(t *testing.T) {
		found, err := repo.FindByPlatformAndShop(ctx, integration.PlatformTikTok, "7001")
		require.NoError(t, err)
		assert.Equal(t, cfg.ID, found.ID)
		assert.Equal(t, "ROW_abc", found.Setting("shop_cipher"))

		_, err = repo.FindByPlatformAndShop(ctx, integration.PlatformLazada, "7001")
		assert.ErrorIs(t, err, integration.ErrConfigNotFound)
	})

	t.Run("disabled configs stay disabled", func(t *testing.T) {
		found, err := repo.FindByID(ctx, disabled.ID)
		require.NoError(t, err)
		assert.False(t, found.Enabled)

		enabled, err := repo.FindEnabled(ctx)
		require.NoError(t, err)
		assert.Len(t, enabled, 2)

		tiktok, err := repo.FindEnabledByPlatform(ctx, integration.PlatformTikTok)
		require.NoError(t, err)
		require.Len(t, tiktok, 1)
		assert.Equal(t, "7001", tiktok[0].ShopID)
	})

	t.Run("update tokens writes token columns only", func(t *testing.T) {
		expiresAt := time.Date(2025, 1, 15, 16, 0, 0, 0, time.UTC)
		require.NoError(t, repo.UpdateTokens(ctx, cfg.ID, &integration.TokenSet{AccessToken: "new", ExpiresAt: expiresAt}))

		found, err := repo.FindByID(ctx, cfg.ID)
		require.NoError(t, err)
		assert.Equal(t, "new", found.AccessToken)
		assert.Equal(t, "refresh", found.RefreshToken)
		require.NotNil(t, found.TokenExpiresAt)
		assert.True(t, expiresAt.Equal(*found.TokenExpiresAt))

		assert.ErrorIs(t, repo.UpdateTokens(ctx, uuid.New(), &integration.TokenSet{AccessToken: "x"}), integration.ErrConfigNotFound)
	})

	t.Run("update last sync", func(t *testing.T) {
		at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
		require.NoError(t, repo.UpdateLastSyncAt(ctx, cfg.ID, at))

		found, err := repo.FindByID(ctx, cfg.ID)
		require.NoError(t, err)
		require.NotNil(t, found.LastSyncAt)
		assert.True(t, at.Equal(*found.LastSyncAt))
	})

	t.Run("save rejects invalid config", func(t *testing.T) {
		bad := newTestAdapterConfig(integration.PlatformShopee, "")
		assert.ErrorIs(t, repo.Save(ctx, bad), integration.ErrConfigInvalidShop)
	})
}

func TestGormSyncJobRepository(t *testing.T) {
	repo := NewGormSyncJobRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	cfg := newTestAdapterConfig(integration.PlatformShopee, "100200")
	cfg.ID = uuid.New()

	stale := integration.NewSyncJob(cfg, now.Add(-time.Hour))
	require.NoError(t, repo.Create(ctx, stale))
	fresh := integration.NewSyncJob(cfg, now.Add(-time.Minute))
	require.NoError(t, repo.Create(ctx, fresh))

	done := integration.NewSyncJob(cfg, now.Add(-2*time.Hour))
	done.Complete(integration.SyncStats{Fetched: 3, Created: 2, Updated: 1}, nil, now.Add(-2*time.Hour+time.Minute))
	require.NoError(t, repo.Create(ctx, done))

	t.Run("latest and running", func(t *testing.T) {
		latest, err := repo.FindLatestByConfig(ctx, cfg.ID)
		require.NoError(t, err)
		assert.Equal(t, fresh.ID, latest.ID)

		running, err := repo.FindRunningByConfig(ctx, cfg.ID)
		require.NoError(t, err)
		assert.Len(t, running, 2)

		_, err = repo.FindLatestByConfig(ctx, uuid.New())
		assert.ErrorIs(t, err, integration.ErrSyncJobNotFound)
	})

	t.Run("expire stale only touches old running jobs", func(t *testing.T) {
		expired, err := repo.ExpireStale(ctx, now.Add(-integration.DefaultStaleAfter), now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), expired)

		job, err := repo.FindByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, integration.SyncJobFailed, job.Status)
		assert.Equal(t, integration.StaleJobMessage, job.ErrorMessage)
		require.NotNil(t, job.FinishedAt)

		job, err = repo.FindByID(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, integration.SyncJobRunning, job.Status)

		job, err = repo.FindByID(ctx, done.ID)
		require.NoError(t, err)
		assert.Equal(t, integration.SyncJobSuccess, job.Status)
		assert.Equal(t, 3, job.Fetched)
	})

	t.Run("update and list", func(t *testing.T) {
		fresh.Complete(integration.SyncStats{Fetched: 1, Errors: 1}, assert.AnError, now)
		require.NoError(t, repo.Update(ctx, fresh))

		failed, total, err := repo.List(ctx, integration.SyncJobFilter{ConfigID: &cfg.ID, Status: integration.SyncJobFailed})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, failed, 2)

		all, total, err := repo.List(ctx, integration.SyncJobFilter{Platform: integration.PlatformShopee, PageSize: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, all, 1)
		assert.Equal(t, fresh.ID, all[0].ID)
	})
}

func TestGormWebhookEventRepository(t *testing.T) {
	repo := NewGormWebhookEventRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	var events []*integration.WebhookEvent
	for i := 0; i < 3; i++ {
		e := integration.NewWebhookEvent(integration.PlatformShopee, []byte(`{"code":3}`),
			map[string]string{"Authorization": "sig"}, "sig", "", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, e))
		events = append(events, e)
	}

	t.Run("unprocessed oldest first", func(t *testing.T) {
		pending, err := repo.FindUnprocessed(ctx, 2)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, events[0].ID, pending[0].ID)
		assert.Equal(t, events[1].ID, pending[1].ID)
		assert.Equal(t, "sig", pending[0].Headers["Authorization"])
		assert.Equal(t, `{"code":3}`, string(pending[0].Payload))
	})

	t.Run("mark processed is guarded", func(t *testing.T) {
		ok, err := repo.MarkProcessed(ctx, events[0].ID, integration.WebhookResultCreated, "", base)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.MarkProcessed(ctx, events[0].ID, integration.WebhookResultFailed, "again", base)
		require.NoError(t, err)
		assert.False(t, ok)

		found, err := repo.FindByID(ctx, events[0].ID)
		require.NoError(t, err)
		assert.True(t, found.Processed)
		assert.Equal(t, integration.WebhookResultCreated, found.Result)
		assert.Empty(t, found.ErrorMessage)
	})

	t.Run("concurrent markers win once", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.MarkProcessed(ctx, events[1].ID, integration.WebhookResultUpdated, "", base)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("counts and list", func(t *testing.T) {
		counts, err := repo.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), counts.Total)
		assert.Equal(t, int64(1), counts.Unprocessed)
		assert.Equal(t, int64(1), counts.ByResult[integration.WebhookResultCreated])
		assert.Equal(t, int64(1), counts.ByResult[integration.WebhookResultUpdated])

		processed := true
		list, total, err := repo.List(ctx, integration.WebhookEventFilter{Processed: &processed})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, list, 2)

		_, err = repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, integration.ErrWebhookEventNotFound)
	})
}
