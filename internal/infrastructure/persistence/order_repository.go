package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// naturalKeyColumns is the unique key of the orders table
var naturalKeyColumns = []clause.Column{{Name: "platform"}, {Name: "platform_order_id"}}

// GormOrderRepository implements integration.OrderRepository using GORM
type GormOrderRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db, now: time.Now}
}

// FindByPlatformOrderID loads an order with its items
func (r *GormOrderRepository) FindByPlatformOrderID(ctx context.Context, platform integration.Platform, platformOrderID string) (*integration.CanonicalOrder, error) {
	var model models.CanonicalOrderModel
	if err := r.db.WithContext(ctx).
		Where("platform = ? AND platform_order_id = ?", platform, platformOrderID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrOrderNotFound
		}
		return nil, err
	}
	return r.withItems(ctx, &model)
}

// FindByID loads an order by local id
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.CanonicalOrder, error) {
	var model models.CanonicalOrderModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrOrderNotFound
		}
		return nil, err
	}
	return r.withItems(ctx, &model)
}

func (r *GormOrderRepository) withItems(ctx context.Context, model *models.CanonicalOrderModel) (*integration.CanonicalOrder, error) {
	var itemModels []models.CanonicalOrderItemModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", model.ID).
		Order("line_no ASC").
		Find(&itemModels).Error; err != nil {
		return nil, err
	}

	order := model.ToDomain()
	order.Items = make([]integration.CanonicalOrderItem, len(itemModels))
	for i := range itemModels {
		order.Items[i] = itemModels[i].ToDomain()
	}
	return order, nil
}

// InsertOrder inserts the order and its items in one transaction. The insert is
// ON CONFLICT (platform, platform_order_id) DO NOTHING; when the key already
// exists nothing is written and false is returned.
func (r *GormOrderRepository) InsertOrder(ctx context.Context, order *integration.CanonicalOrder) (bool, error) {
	if err := order.Validate(); err != nil {
		return false, err
	}
	order.EnsureID()
	now := r.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	inserted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := models.CanonicalOrderModelFromDomain(order)
		result := tx.Clauses(clause.OnConflict{Columns: naturalKeyColumns, DoNothing: true}).Create(model)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		inserted = true

		if len(order.Items) == 0 {
			return nil
		}
		itemModels := make([]*models.CanonicalOrderItemModel, len(order.Items))
		for i, item := range order.Items {
			itemModels[i] = models.CanonicalOrderItemModelFromDomain(order.ID, i, item)
		}
		return tx.Create(&itemModels).Error
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// UpdateOrderStatus is a single conditional UPDATE keyed on the natural key that
// only matches when the stored status differs. Items are never touched.
func (r *GormOrderRepository) UpdateOrderStatus(ctx context.Context, order *integration.CanonicalOrder) (bool, error) {
	if err := order.Validate(); err != nil {
		return false, err
	}

	updates := map[string]interface{}{
		"status":     order.Status,
		"raw_status": order.RawStatus,
		"updated_at": r.now(),
	}
	if order.TrackingNumber != "" {
		updates["tracking_number"] = order.TrackingNumber
	}
	if order.ShippingCarrier != "" {
		updates["shipping_carrier"] = order.ShippingCarrier
	}
	if order.PaidAt != nil {
		updates["paid_at"] = *order.PaidAt
	}
	if order.ShippedAt != nil {
		updates["shipped_at"] = *order.ShippedAt
	}
	if order.OrderUpdatedAt != nil {
		updates["order_updated_at"] = *order.OrderUpdatedAt
	}
	if len(order.RawPayload) > 0 {
		updates["raw_payload"] = []byte(order.RawPayload)
	}

	result := r.db.WithContext(ctx).
		Model(&models.CanonicalOrderModel{}).
		Where("platform = ? AND platform_order_id = ? AND status <> ?", order.Platform, order.PlatformOrderID, order.Status).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// List returns a page of orders without items, newest first
func (r *GormOrderRepository) List(ctx context.Context, filter integration.OrderFilter) ([]integration.CanonicalOrder, int64, error) {
	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	var total int64
	if err := r.applyOrderFilter(r.db.WithContext(ctx).Model(&models.CanonicalOrderModel{}), filter).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orderModels []models.CanonicalOrderModel
	if err := r.applyOrderFilter(r.db.WithContext(ctx), filter).
		Order(orderClause(filter.OrderBy, filter.OrderDir, OrderSortFields, "created_at")).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orderModels).Error; err != nil {
		return nil, 0, err
	}

	orders := make([]integration.CanonicalOrder, len(orderModels))
	for i := range orderModels {
		orders[i] = *orderModels[i].ToDomain()
	}
	return orders, total, nil
}

func (r *GormOrderRepository) applyOrderFilter(query *gorm.DB, filter integration.OrderFilter) *gorm.DB {
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}
	if filter.ShopID != "" {
		query = query.Where("shop_id = ?", filter.ShopID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	return query
}

// Ensure GormOrderRepository implements OrderRepository
var _ integration.OrderRepository = (*GormOrderRepository)(nil)
