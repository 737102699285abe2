package integration

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTokenRefreshBuffer is how long before expiry a token is refreshed
const DefaultTokenRefreshBuffer = 5 * time.Minute

// PlatformAdapterConfig holds the credentials and sync settings of one shop on
// one marketplace
type PlatformAdapterConfig struct {
	ID       uuid.UUID
	Platform Platform
	ShopID   string
	ShopName string

	// AppKey is the partner id / app key / API key depending on the platform
	AppKey    string
	AppSecret string

	AccessToken      string
	RefreshToken     string
	TokenExpiresAt   *time.Time
	RefreshExpiresAt *time.Time

	// WebhookSecret is the shared secret or token used to verify webhooks.
	// Empty means AppSecret is used.
	WebhookSecret string
	// CallbackURL is the registered webhook URL (part of the Shopee signature base)
	CallbackURL string
	// BaseURL overrides the platform API host
	BaseURL string
	// Region is the platform region, e.g. "TH"
	Region string
	// Settings carries platform-specific values such as the TikTok shop cipher
	Settings map[string]string

	// WarehouseID is the warehouse orders from this shop ship from
	WarehouseID *uuid.UUID

	Enabled             bool
	SyncIntervalMinutes int
	LastSyncAt          *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the config has what an adapter needs
func (c *PlatformAdapterConfig) Validate() error {
	if !c.Platform.IsValid() {
		return ErrPlatformNotSupported
	}
	if c.ShopID == "" {
		return ErrConfigInvalidShop
	}
	if c.AppKey == "" {
		return ErrConfigInvalidCreds
	}
	if c.Platform != PlatformLnwShop && c.AppSecret == "" {
		return ErrConfigInvalidCreds
	}
	return nil
}

// Setting returns a platform-specific setting or ""
func (c *PlatformAdapterConfig) Setting(key string) string {
	if c.Settings == nil {
		return ""
	}
	return c.Settings[key]
}

// ShopKey returns the "PLATFORM:shop_id" key used to serialize syncs per shop
func (c *PlatformAdapterConfig) ShopKey() string {
	return string(c.Platform) + ":" + c.ShopID
}

// HasRefreshToken returns true if a refresh is possible
func (c *PlatformAdapterConfig) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// TokenNeedsRefresh returns true when the access token expires within buffer
func (c *PlatformAdapterConfig) TokenNeedsRefresh(now time.Time, buffer time.Duration) bool {
	if c.TokenExpiresAt == nil {
		return false
	}
	return !now.Before(c.TokenExpiresAt.Add(-buffer))
}

// ApplyTokens stores a new token set on the config
func (c *PlatformAdapterConfig) ApplyTokens(tokens *TokenSet) {
	if tokens == nil {
		return
	}
	c.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		c.RefreshToken = tokens.RefreshToken
	}
	if !tokens.ExpiresAt.IsZero() {
		expiresAt := tokens.ExpiresAt
		c.TokenExpiresAt = &expiresAt
	}
	if tokens.RefreshExpiresAt != nil {
		c.RefreshExpiresAt = tokens.RefreshExpiresAt
	}
}

// EffectiveWebhookSecret returns WebhookSecret, falling back to AppSecret
func (c *PlatformAdapterConfig) EffectiveWebhookSecret() string {
	if c.WebhookSecret != "" {
		return c.WebhookSecret
	}
	return c.AppSecret
}

// SyncInterval returns the polling interval, or fallback when unset
func (c *PlatformAdapterConfig) SyncInterval(fallback time.Duration) time.Duration {
	if c.SyncIntervalMinutes <= 0 {
		return fallback
	}
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// SyncWindow computes the default fetch window: from the last sync minus
// lookback, or now minus initialLookback for a first sync
func (c *PlatformAdapterConfig) SyncWindow(now time.Time, lookback, initialLookback time.Duration) (time.Time, time.Time) {
	if c.LastSyncAt != nil {
		return c.LastSyncAt.Add(-lookback), now
	}
	return now.Add(-initialLookback), now
}
