package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormBacklogProvider implements BacklogProvider using GORM.
// It queries the webhook_events and sync_jobs tables directly.
type GormBacklogProvider struct {
	db *gorm.DB
}

// NewGormBacklogProvider creates a new GormBacklogProvider.
func NewGormBacklogProvider(db *gorm.DB) *GormBacklogProvider {
	return &GormBacklogProvider{db: db}
}

type platformCount struct {
	Platform string `gorm:"column:platform"`
	Total    int64  `gorm:"column:total"`
}

// CountUnprocessedWebhooks returns unprocessed webhook events per platform.
func (p *GormBacklogProvider) CountUnprocessedWebhooks(ctx context.Context) (map[string]int64, error) {
	var results []platformCount
	err := p.db.WithContext(ctx).
		Table("webhook_events").
		Select("platform, COUNT(*) AS total").
		Where("processed = ?", false).
		Group("platform").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return toPlatformMap(results), nil
}

// CountRunningSyncJobs returns RUNNING sync jobs per platform.
func (p *GormBacklogProvider) CountRunningSyncJobs(ctx context.Context) (map[string]int64, error) {
	var results []platformCount
	err := p.db.WithContext(ctx).
		Table("sync_jobs").
		Select("platform, COUNT(*) AS total").
		Where("status = ?", "RUNNING").
		Group("platform").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return toPlatformMap(results), nil
}

func toPlatformMap(rows []platformCount) map[string]int64 {
	m := make(map[string]int64, len(rows))
	for _, r := range rows {
		m[r.Platform] = r.Total
	}
	return m
}
