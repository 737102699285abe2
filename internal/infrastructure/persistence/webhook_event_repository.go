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

// GormWebhookEventRepository implements integration.WebhookEventRepository using GORM.
// Events are never deleted.
type GormWebhookEventRepository struct {
	db *gorm.DB
}

// NewGormWebhookEventRepository creates a new GormWebhookEventRepository
func NewGormWebhookEventRepository(db *gorm.DB) *GormWebhookEventRepository {
	return &GormWebhookEventRepository{db: db}
}

// Create persists a received event
func (r *GormWebhookEventRepository) Create(ctx context.Context, event *integration.WebhookEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	model := &models.WebhookEventModel{}
	model.FromDomain(event)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByID finds an event by its ID
func (r *GormWebhookEventRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.WebhookEvent, error) {
	var model models.WebhookEventModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrWebhookEventNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindUnprocessed returns up to limit unprocessed events, oldest received first
func (r *GormWebhookEventRepository) FindUnprocessed(ctx context.Context, limit int) ([]integration.WebhookEvent, error) {
	var eventModels []models.WebhookEventModel
	if err := r.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("received_at ASC").
		Limit(limit).
		Find(&eventModels).Error; err != nil {
		return nil, err
	}
	return toWebhookEvents(eventModels), nil
}

// MarkProcessed records the outcome only when the event is still unprocessed
func (r *GormWebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, result integration.WebhookResult, errMsg string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.WebhookEventModel{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(map[string]interface{}{
			"processed":     true,
			"processed_at":  at,
			"result":        result,
			"error_message": errMsg,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// List returns a page of events, newest first
func (r *GormWebhookEventRepository) List(ctx context.Context, filter integration.WebhookEventFilter) ([]integration.WebhookEvent, int64, error) {
	filter.Normalize()

	var total int64
	if err := r.applyEventFilter(r.db.WithContext(ctx).Model(&models.WebhookEventModel{}), filter).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var eventModels []models.WebhookEventModel
	if err := r.applyEventFilter(r.db.WithContext(ctx), filter).
		Order(orderClause(filter.OrderBy, filter.OrderDir, WebhookEventSortFields, "received_at")).
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&eventModels).Error; err != nil {
		return nil, 0, err
	}
	return toWebhookEvents(eventModels), total, nil
}

// webhookResultCount is one row of the per-result aggregate
type webhookResultCount struct {
	Result integration.WebhookResult
	Count  int64
}

// Counts summarizes the event log
func (r *GormWebhookEventRepository) Counts(ctx context.Context) (*integration.WebhookEventCounts, error) {
	counts := &integration.WebhookEventCounts{ByResult: make(map[integration.WebhookResult]int64)}

	if err := r.db.WithContext(ctx).Model(&models.WebhookEventModel{}).
		Count(&counts.Total).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&models.WebhookEventModel{}).
		Where("processed = ?", false).
		Count(&counts.Unprocessed).Error; err != nil {
		return nil, err
	}

	var rows []webhookResultCount
	if err := r.db.WithContext(ctx).Model(&models.WebhookEventModel{}).
		Select("result, COUNT(*) AS count").
		Where("processed = ?", true).
		Group("result").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts.ByResult[row.Result] = row.Count
	}
	return counts, nil
}

func (r *GormWebhookEventRepository) applyEventFilter(query *gorm.DB, filter integration.WebhookEventFilter) *gorm.DB {
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}
	if filter.Processed != nil {
		query = query.Where("processed = ?", *filter.Processed)
	}
	if filter.Result != "" {
		query = query.Where("result = ?", filter.Result)
	}
	return query
}

func toWebhookEvents(eventModels []models.WebhookEventModel) []integration.WebhookEvent {
	events := make([]integration.WebhookEvent, len(eventModels))
	for i := range eventModels {
		events[i] = *eventModels[i].ToDomain()
	}
	return events
}

// Ensure GormWebhookEventRepository implements WebhookEventRepository
var _ integration.WebhookEventRepository = (*GormWebhookEventRepository)(nil)
