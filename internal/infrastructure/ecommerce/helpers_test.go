package ecommerce

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
)

// memTokenStore is an in-memory TokenStore
type memTokenStore struct {
	mu      sync.Mutex
	configs map[uuid.UUID]integration.PlatformAdapterConfig
	updates int
}

func newMemTokenStore(cfgs ...*integration.PlatformAdapterConfig) *memTokenStore {
	s := &memTokenStore{configs: make(map[uuid.UUID]integration.PlatformAdapterConfig)}
	for _, c := range cfgs {
		s.configs[c.ID] = *c
	}
	return s
}

func (s *memTokenStore) FindByID(_ context.Context, id uuid.UUID) (*integration.PlatformAdapterConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[id]
	if !ok {
		return nil, integration.ErrConfigNotFound
	}
	return &c, nil
}

func (s *memTokenStore) UpdateTokens(_ context.Context, id uuid.UUID, tokens *integration.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[id]
	if !ok {
		return integration.ErrConfigNotFound
	}
	c.ApplyTokens(tokens)
	s.configs[id] = c
	s.updates++
	return nil
}

func (s *memTokenStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func createMockServer(_ *testing.T, handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(handler)
}

func testDeps(store integration.TokenStore, now time.Time) AdapterDeps {
	logger := zap.NewNop()
	transportCfg := DefaultTransportConfig()
	transportCfg.RateLimitRPS = 0
	keeper := NewTokenKeeper(DefaultTokenKeeperConfig(), store, nil, logger)
	keeper.now = func() time.Time { return now }
	return AdapterDeps{
		Transport: NewTransport(transportCfg, logger),
		Keeper:    keeper,
		Logger:    logger,
		Now:       func() time.Time { return now },
	}
}

func testConfig(platform integration.Platform, baseURL string) *integration.PlatformAdapterConfig {
	expires := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	return &integration.PlatformAdapterConfig{
		ID:             uuid.New(),
		Platform:       platform,
		ShopID:         "100200",
		ShopName:       "Test Shop",
		AppKey:         "2001887",
		AppSecret:      "test-secret",
		AccessToken:    "old-token",
		RefreshToken:   "refresh-token",
		TokenExpiresAt: &expires,
		BaseURL:        baseURL,
		CallbackURL:    "https://hooks.example.com/shopee",
		Enabled:        true,
	}
}

// testNow is well before testConfig's token expiry
var testNow = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
