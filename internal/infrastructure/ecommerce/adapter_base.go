package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/ordersync/backend/internal/domain/integration"
)

// AdapterDeps are the collaborators shared by every adapter a factory builds
type AdapterDeps struct {
	Transport *Transport
	Keeper    *TokenKeeper
	Logger    *zap.Logger
	// BaseURLs overrides the default API host per platform
	BaseURLs map[integration.Platform]string
	// Now is the clock used for signing timestamps and token expiry
	Now func() time.Time
}

func (d *AdapterDeps) normalize() {
	if d.Transport == nil {
		d.Transport = NewTransport(DefaultTransportConfig(), d.Logger)
	}
	if d.Keeper == nil {
		d.Keeper = NewTokenKeeper(DefaultTokenKeeperConfig(), nil, nil, d.Logger)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// adapterBase holds the per-shop state common to all adapters
type adapterBase struct {
	platform  integration.Platform
	transport *Transport
	keeper    *TokenKeeper
	logger    *zap.Logger
	now       func() time.Time
	baseURL   string

	mu  sync.RWMutex
	cfg integration.PlatformAdapterConfig
}

func newAdapterBase(platform integration.Platform, cfg *integration.PlatformAdapterConfig, deps AdapterDeps, defaultBaseURL string) (*adapterBase, error) {
	if cfg == nil {
		return nil, integration.ErrPlatformNotConfigured
	}
	if cfg.Platform != platform {
		return nil, integration.ErrPlatformNotSupported
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	deps.normalize()

	baseURL := defaultBaseURL
	if u, ok := deps.BaseURLs[platform]; ok && u != "" {
		baseURL = u
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	return &adapterBase{
		platform:  platform,
		transport: deps.Transport,
		keeper:    deps.Keeper,
		logger:    deps.Logger.With(zap.String("platform", platform.String()), zap.String("shop_id", cfg.ShopID)),
		now:       deps.Now,
		baseURL:   strings.TrimRight(baseURL, "/"),
		cfg:       *cfg,
	}, nil
}

// Platform returns the marketplace this adapter talks to
func (b *adapterBase) Platform() integration.Platform {
	return b.platform
}

func (b *adapterBase) snapshot() integration.PlatformAdapterConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

func (b *adapterBase) applyTokens(tokens *integration.TokenSet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.ApplyTokens(tokens)
}

// withAuthRetry runs call; on *AuthError it forces one token refresh and
// retries once
func (b *adapterBase) withAuthRetry(ctx context.Context, holder tokenHolder, call func(cfg integration.PlatformAdapterConfig) ([]byte, error)) ([]byte, error) {
	cfg := b.snapshot()
	body, err := call(cfg)
	if err == nil || !integration.IsAuthError(err) {
		return body, err
	}

	b.logger.Warn("Platform rejected access token, forcing refresh", zap.Error(err))
	if refreshErr := b.keeper.ForceRefresh(ctx, holder, cfg.AccessToken); refreshErr != nil {
		return nil, refreshErr
	}
	return call(b.snapshot())
}

// ---------------------------------------------------------------------------
// Status tables
// ---------------------------------------------------------------------------

// foldStatus case-folds a raw status. Casers are stateful, so each call gets its own.
func foldStatus(raw string) string {
	return cases.Fold().String(strings.TrimSpace(raw))
}

// statusTable maps raw platform statuses to canonical statuses, matching
// case-insensitively
type statusTable map[string]integration.CanonicalStatus

func newStatusTable(entries map[string]integration.CanonicalStatus) statusTable {
	t := make(statusTable, len(entries))
	for raw, status := range entries {
		t[foldStatus(raw)] = status
	}
	return t
}

// lookup is total: unknown or blank input maps to StatusNew
func (t statusTable) lookup(raw string) integration.CanonicalStatus {
	if status, ok := t[foldStatus(raw)]; ok {
		return status
	}
	return integration.StatusNew
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// mappingError wraps a decode failure
func mappingError(platform integration.Platform, orderID string, err error) error {
	return &integration.MappingError{Platform: platform, PlatformOrderID: orderID, Err: err}
}

// decodeResponse unmarshals body and maps decode errors to ErrPlatformInvalidResponse
func decodeResponse(endpoint string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %s: %v", integration.ErrPlatformInvalidResponse, endpoint, err)
	}
	return nil
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func parseTime(layout, value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
