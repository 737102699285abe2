package ecommerce

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
)

// Locker is a cross-process mutual exclusion primitive. The release function
// must be safe to call once.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// tokenHolder is implemented by adapters whose access token the keeper manages
type tokenHolder interface {
	snapshot() integration.PlatformAdapterConfig
	applyTokens(tokens *integration.TokenSet)
	RefreshToken(ctx context.Context) (*integration.TokenSet, error)
}

// TokenKeeperConfig configures the token keeper
type TokenKeeperConfig struct {
	// RefreshBuffer refreshes tokens this long before expiry
	RefreshBuffer time.Duration
	// LockTTL bounds how long a distributed refresh lock is held
	LockTTL time.Duration
	// LockWait is how long a process that lost the distributed lock waits for
	// the winner's token to appear in the store
	LockWait time.Duration
}

// DefaultTokenKeeperConfig returns the default token keeper configuration
func DefaultTokenKeeperConfig() TokenKeeperConfig {
	return TokenKeeperConfig{
		RefreshBuffer: integration.DefaultTokenRefreshBuffer,
		LockTTL:       30 * time.Second,
		LockWait:      5 * time.Second,
	}
}

// TokenKeeper refreshes access tokens at most once per config across
// concurrent callers. In-process callers serialize on a per-config mutex and
// re-read the persisted token after acquiring it; cross-process callers
// serialize on the optional Locker.
type TokenKeeper struct {
	config TokenKeeperConfig
	store  integration.TokenStore
	locker Locker
	logger *zap.Logger
	now    func() time.Time

	locks sync.Map // map[uuid.UUID]*sync.Mutex
}

// NewTokenKeeper creates a token keeper. locker may be nil.
func NewTokenKeeper(config TokenKeeperConfig, store integration.TokenStore, locker Locker, logger *zap.Logger) *TokenKeeper {
	if config.RefreshBuffer <= 0 {
		config.RefreshBuffer = integration.DefaultTokenRefreshBuffer
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenKeeper{
		config: config,
		store:  store,
		locker: locker,
		logger: logger,
		now:    time.Now,
	}
}

// RefreshBuffer returns the configured refresh buffer
func (k *TokenKeeper) RefreshBuffer() time.Duration {
	return k.config.RefreshBuffer
}

func (k *TokenKeeper) lockFor(id uuid.UUID) *sync.Mutex {
	mu, _ := k.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// EnsureValid refreshes the holder's token when it is within the refresh buffer
func (k *TokenKeeper) EnsureValid(ctx context.Context, holder tokenHolder) error {
	cfg := holder.snapshot()
	if !cfg.TokenNeedsRefresh(k.now(), k.config.RefreshBuffer) {
		return nil
	}
	return k.refresh(ctx, holder, func(current integration.PlatformAdapterConfig) bool {
		return current.TokenNeedsRefresh(k.now(), k.config.RefreshBuffer)
	})
}

// ForceRefresh refreshes after the platform rejected rejectedToken. If another
// caller already replaced that token the persisted one is adopted instead.
func (k *TokenKeeper) ForceRefresh(ctx context.Context, holder tokenHolder, rejectedToken string) error {
	return k.refresh(ctx, holder, func(current integration.PlatformAdapterConfig) bool {
		return current.AccessToken == rejectedToken
	})
}

func (k *TokenKeeper) refresh(ctx context.Context, holder tokenHolder, stillNeeded func(integration.PlatformAdapterConfig) bool) error {
	cfg := holder.snapshot()
	mu := k.lockFor(cfg.ID)
	mu.Lock()
	defer mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock
	k.reload(ctx, holder)
	if !stillNeeded(holder.snapshot()) {
		return nil
	}

	if k.locker != nil {
		release, acquired, err := k.locker.TryLock(ctx, "token-refresh:"+cfg.ID.String(), k.config.LockTTL)
		if err != nil {
			k.logger.Warn("Token refresh lock unavailable, refreshing without it",
				zap.String("config_id", cfg.ID.String()),
				zap.Error(err),
			)
		} else if !acquired {
			return k.awaitPeer(ctx, holder, stillNeeded)
		} else {
			defer release()
			k.reload(ctx, holder)
			if !stillNeeded(holder.snapshot()) {
				return nil
			}
		}
	}

	cfg = holder.snapshot()
	if !cfg.HasRefreshToken() && cfg.Platform != integration.PlatformLnwShop {
		k.logger.Error("Token expired and no refresh token available",
			zap.String("platform", cfg.Platform.String()),
			zap.String("shop_id", cfg.ShopID),
		)
		return integration.NewAuthError(cfg.Platform, cfg.ShopID, "token expired and no refresh token", nil)
	}

	tokens, err := holder.RefreshToken(ctx)
	if err != nil {
		k.logger.Error("Token refresh failed",
			zap.String("platform", cfg.Platform.String()),
			zap.String("shop_id", cfg.ShopID),
			zap.Error(err),
		)
		return integration.NewAuthError(cfg.Platform, cfg.ShopID, "refresh failed", err)
	}

	holder.applyTokens(tokens)
	if k.store != nil {
		if err := k.store.UpdateTokens(ctx, cfg.ID, tokens); err != nil {
			k.logger.Error("Failed to persist refreshed token",
				zap.String("platform", cfg.Platform.String()),
				zap.String("shop_id", cfg.ShopID),
				zap.Error(err),
			)
			return integration.NewAuthError(cfg.Platform, cfg.ShopID, "persist refreshed token", err)
		}
	}

	k.logger.Info("Access token refreshed",
		zap.String("platform", cfg.Platform.String()),
		zap.String("shop_id", cfg.ShopID),
		zap.Time("expires_at", tokens.ExpiresAt),
	)
	return nil
}

// reload copies the persisted token set into the holder
func (k *TokenKeeper) reload(ctx context.Context, holder tokenHolder) {
	if k.store == nil {
		return
	}
	cfg := holder.snapshot()
	stored, err := k.store.FindByID(ctx, cfg.ID)
	if err != nil || stored == nil {
		return
	}
	if stored.AccessToken == cfg.AccessToken {
		return
	}
	tokens := &integration.TokenSet{
		AccessToken:      stored.AccessToken,
		RefreshToken:     stored.RefreshToken,
		RefreshExpiresAt: stored.RefreshExpiresAt,
	}
	if stored.TokenExpiresAt != nil {
		tokens.ExpiresAt = *stored.TokenExpiresAt
	}
	holder.applyTokens(tokens)
}

// awaitPeer polls the store while another process holds the refresh lock
func (k *TokenKeeper) awaitPeer(ctx context.Context, holder tokenHolder, stillNeeded func(integration.PlatformAdapterConfig) bool) error {
	cfg := holder.snapshot()
	deadline := k.now().Add(k.config.LockWait)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		k.reload(ctx, holder)
		if !stillNeeded(holder.snapshot()) {
			return nil
		}
		if !k.now().Before(deadline) {
			return integration.NewAuthError(cfg.Platform, cfg.ShopID, "token refresh held by another process", nil)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
