package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormAdapterConfigRepository implements integration.AdapterConfigRepository using GORM
type GormAdapterConfigRepository struct {
	db *gorm.DB
}

// NewGormAdapterConfigRepository creates a new GormAdapterConfigRepository
func NewGormAdapterConfigRepository(db *gorm.DB) *GormAdapterConfigRepository {
	return &GormAdapterConfigRepository{db: db}
}

// FindByID finds a config by its ID
func (r *GormAdapterConfigRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.PlatformAdapterConfig, error) {
	var model models.PlatformAdapterConfigModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrConfigNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByPlatformAndShop finds the config of one shop
func (r *GormAdapterConfigRepository) FindByPlatformAndShop(ctx context.Context, platform integration.Platform, shopID string) (*integration.PlatformAdapterConfig, error) {
	var model models.PlatformAdapterConfigModel
	if err := r.db.WithContext(ctx).
		Where("platform = ? AND shop_id = ?", platform, shopID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrConfigNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindEnabled returns every enabled config
func (r *GormAdapterConfigRepository) FindEnabled(ctx context.Context) ([]integration.PlatformAdapterConfig, error) {
	var configModels []models.PlatformAdapterConfigModel
	if err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("platform ASC, shop_id ASC").
		Find(&configModels).Error; err != nil {
		return nil, err
	}
	return toConfigs(configModels), nil
}

// FindEnabledByPlatform returns the enabled configs of one platform
func (r *GormAdapterConfigRepository) FindEnabledByPlatform(ctx context.Context, platform integration.Platform) ([]integration.PlatformAdapterConfig, error) {
	var configModels []models.PlatformAdapterConfigModel
	if err := r.db.WithContext(ctx).
		Where("platform = ? AND enabled = ?", platform, true).
		Order("shop_id ASC").
		Find(&configModels).Error; err != nil {
		return nil, err
	}
	return toConfigs(configModels), nil
}

// Save creates or updates a config
func (r *GormAdapterConfigRepository) Save(ctx context.Context, cfg *integration.PlatformAdapterConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	now := time.Now()
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	model := &models.PlatformAdapterConfigModel{}
	model.FromDomain(cfg)
	return r.db.WithContext(ctx).Save(model).Error
}

// UpdateTokens persists a refreshed token set. Only token columns are written
// so a concurrent config edit is not overwritten.
func (r *GormAdapterConfigRepository) UpdateTokens(ctx context.Context, id uuid.UUID, tokens *integration.TokenSet) error {
	if tokens == nil {
		return nil
	}
	updates := map[string]interface{}{
		"access_token": tokens.AccessToken,
		"updated_at":   time.Now(),
	}
	if tokens.RefreshToken != "" {
		updates["refresh_token"] = tokens.RefreshToken
	}
	if !tokens.ExpiresAt.IsZero() {
		updates["token_expires_at"] = tokens.ExpiresAt
	}
	if tokens.RefreshExpiresAt != nil {
		updates["refresh_expires_at"] = *tokens.RefreshExpiresAt
	}

	result := r.db.WithContext(ctx).
		Model(&models.PlatformAdapterConfigModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrConfigNotFound
	}
	return nil
}

// UpdateLastSyncAt records the end of a sync window
func (r *GormAdapterConfigRepository) UpdateLastSyncAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PlatformAdapterConfigModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"last_sync_at": at, "updated_at": time.Now()}).Error
}

func toConfigs(configModels []models.PlatformAdapterConfigModel) []integration.PlatformAdapterConfig {
	configs := make([]integration.PlatformAdapterConfig, len(configModels))
	for i := range configModels {
		configs[i] = *configModels[i].ToDomain()
	}
	return configs
}

// Ensure GormAdapterConfigRepository implements the repository and the token store
var (
	_ integration.AdapterConfigRepository = (*GormAdapterConfigRepository)(nil)
	_ integration.TokenStore              = (*GormAdapterConfigRepository)(nil)
)
