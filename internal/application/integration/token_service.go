package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
)

// RefreshReport counts the outcome of one proactive refresh pass
type RefreshReport struct {
	Checked   int
	Refreshed int
	Failed    int
}

// TokenService authorizes shops and keeps their access tokens fresh outside of
// sync runs
type TokenService struct {
	registry *integration.AdapterRegistry
	configs  integration.AdapterConfigRepository
	buffer   time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewTokenService creates a new TokenService. buffer <= 0 uses the default
// refresh buffer.
func NewTokenService(registry *integration.AdapterRegistry, configs integration.AdapterConfigRepository, buffer time.Duration, logger *zap.Logger) *TokenService {
	if buffer <= 0 {
		buffer = integration.DefaultTokenRefreshBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		registry: registry,
		configs:  configs,
		buffer:   buffer,
		logger:   logger,
		now:      time.Now,
	}
}

// Authorize exchanges a shop authorization code and persists the token set
func (s *TokenService) Authorize(ctx context.Context, configID uuid.UUID, authCode string) (*integration.TokenSet, error) {
	if authCode == "" {
		return nil, fmt.Errorf("%w: empty authorization code", integration.ErrPlatformAuthFailed)
	}
	cfg, err := s.configs.FindByID(ctx, configID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.registry.NewAdapter(cfg)
	if err != nil {
		return nil, err
	}
	tokens, err := adapter.Authenticate(ctx, authCode)
	if err != nil {
		return nil, err
	}
	if err := s.configs.UpdateTokens(ctx, cfg.ID, tokens); err != nil {
		return nil, fmt.Errorf("persist tokens: %w", err)
	}
	s.logger.Info("Shop authorized",
		zap.String("platform", cfg.Platform.String()),
		zap.String("shop_id", cfg.ShopID),
		zap.Time("expires_at", tokens.ExpiresAt),
	)
	return tokens, nil
}

// RefreshExpiring refreshes every enabled config whose token expires within
// the buffer. Failures are logged and counted; the pass continues.
func (s *TokenService) RefreshExpiring(ctx context.Context) (RefreshReport, error) {
	var report RefreshReport
	configs, err := s.configs.FindEnabled(ctx)
	if err != nil {
		return report, err
	}

	now := s.now()
	for i := range configs {
		cfg := &configs[i]
		if !cfg.TokenNeedsRefresh(now, s.buffer) {
			continue
		}
		report.Checked++
		if err := ctx.Err(); err != nil {
			return report, err
		}

		adapter, err := s.registry.NewAdapter(cfg)
		if err == nil {
			err = adapter.EnsureValidToken(ctx)
		}
		if err != nil {
			report.Failed++
			s.logger.Error("Proactive token refresh failed",
				zap.String("platform", cfg.Platform.String()),
				zap.String("shop_id", cfg.ShopID),
				zap.Error(err),
			)
			continue
		}
		report.Refreshed++
	}
	return report, nil
}
