package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// CanonicalOrderModel
// ---------------------------------------------------------------------------

// CanonicalOrderModel is the persistence model for integration.CanonicalOrder.
// (platform, platform_order_id) is unique.
type CanonicalOrderModel struct {
	ID              uuid.UUID            `gorm:"type:uuid;primary_key"`
	Platform        integration.Platform `gorm:"type:varchar(20);not null;uniqueIndex:idx_orders_natural_key,priority:1;index:idx_orders_shop,priority:1"`
	PlatformOrderID string               `gorm:"type:varchar(100);not null;uniqueIndex:idx_orders_natural_key,priority:2"`
	ShopID          string               `gorm:"type:varchar(100);not null;index:idx_orders_shop,priority:2"`
	ConfigID        *uuid.UUID           `gorm:"type:uuid;index"`

	Status    integration.CanonicalStatus `gorm:"type:varchar(30);not null;index"`
	RawStatus string                      `gorm:"type:varchar(100)"`

	CustomerName  string `gorm:"type:varchar(255)"`
	CustomerPhone string `gorm:"type:varchar(50)"`
	CustomerEmail string `gorm:"type:varchar(255)"`

	ShippingName     string `gorm:"type:varchar(255)"`
	ShippingPhone    string `gorm:"type:varchar(50)"`
	ShippingAddress  string `gorm:"type:text"`
	ShippingCity     string `gorm:"type:varchar(100)"`
	ShippingProvince string `gorm:"type:varchar(100)"`
	ShippingPostcode string `gorm:"type:varchar(20)"`
	ShippingCountry  string `gorm:"type:varchar(50)"`

	Currency    string          `gorm:"type:varchar(10)"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ShippingFee decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Discount    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Total       decimal.Decimal `gorm:"type:decimal(18,4);not null"`

	TrackingNumber  string `gorm:"type:varchar(100)"`
	ShippingCarrier string `gorm:"type:varchar(100)"`

	OrderCreatedAt *time.Time
	OrderUpdatedAt *time.Time `gorm:"index"`
	PaidAt         *time.Time
	ShippedAt      *time.Time

	WarehouseID *uuid.UUID `gorm:"type:uuid"`
	RawPayload  []byte     `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CanonicalOrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain order without items
func (m *CanonicalOrderModel) ToDomain() *integration.CanonicalOrder {
	return &integration.CanonicalOrder{
		ID:               m.ID,
		Platform:         m.Platform,
		PlatformOrderID:  m.PlatformOrderID,
		ShopID:           m.ShopID,
		ConfigID:         m.ConfigID,
		Status:           m.Status,
		RawStatus:        m.RawStatus,
		CustomerName:     m.CustomerName,
		CustomerPhone:    m.CustomerPhone,
		CustomerEmail:    m.CustomerEmail,
		ShippingName:     m.ShippingName,
		ShippingPhone:    m.ShippingPhone,
		ShippingAddress:  m.ShippingAddress,
		ShippingCity:     m.ShippingCity,
		ShippingProvince: m.ShippingProvince,
		ShippingPostcode: m.ShippingPostcode,
		ShippingCountry:  m.ShippingCountry,
		Currency:         m.Currency,
		Subtotal:         m.Subtotal,
		ShippingFee:      m.ShippingFee,
		Discount:         m.Discount,
		Total:            m.Total,
		TrackingNumber:   m.TrackingNumber,
		ShippingCarrier:  m.ShippingCarrier,
		OrderCreatedAt:   m.OrderCreatedAt,
		OrderUpdatedAt:   m.OrderUpdatedAt,
		PaidAt:           m.PaidAt,
		ShippedAt:        m.ShippedAt,
		WarehouseID:      m.WarehouseID,
		RawPayload:       m.RawPayload,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain order
func (m *CanonicalOrderModel) FromDomain(o *integration.CanonicalOrder) {
	m.ID = o.ID
	m.Platform = o.Platform
	m.PlatformOrderID = o.PlatformOrderID
	m.ShopID = o.ShopID
	m.ConfigID = o.ConfigID
	m.Status = o.Status
	m.RawStatus = o.RawStatus
	m.CustomerName = o.CustomerName
	m.CustomerPhone = o.CustomerPhone
	m.CustomerEmail = o.CustomerEmail
	m.ShippingName = o.ShippingName
	m.ShippingPhone = o.ShippingPhone
	m.ShippingAddress = o.ShippingAddress
	m.ShippingCity = o.ShippingCity
	m.ShippingProvince = o.ShippingProvince
	m.ShippingPostcode = o.ShippingPostcode
	m.ShippingCountry = o.ShippingCountry
	m.Currency = o.Currency
	m.Subtotal = o.Subtotal
	m.ShippingFee = o.ShippingFee
	m.Discount = o.Discount
	m.Total = o.Total
	m.TrackingNumber = o.TrackingNumber
	m.ShippingCarrier = o.ShippingCarrier
	m.OrderCreatedAt = o.OrderCreatedAt
	m.OrderUpdatedAt = o.OrderUpdatedAt
	m.PaidAt = o.PaidAt
	m.ShippedAt = o.ShippedAt
	m.WarehouseID = o.WarehouseID
	m.RawPayload = o.RawPayload
	m.CreatedAt = o.CreatedAt
	m.UpdatedAt = o.UpdatedAt
}

// CanonicalOrderModelFromDomain creates a new persistence model from a domain order
func CanonicalOrderModelFromDomain(o *integration.CanonicalOrder) *CanonicalOrderModel {
	m := &CanonicalOrderModel{}
	m.FromDomain(o)
	return m
}

// ---------------------------------------------------------------------------
// CanonicalOrderItemModel
// ---------------------------------------------------------------------------

// CanonicalOrderItemModel is the persistence model for an order line
type CanonicalOrderItemModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNo         int             `gorm:"not null"`
	PlatformItemID string          `gorm:"type:varchar(100)"`
	SKU            string          `gorm:"column:sku;type:varchar(100);index"`
	Name           string          `gorm:"type:varchar(500)"`
	Quantity       int             `gorm:"not null"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	LineTotal      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Variation      string          `gorm:"type:varchar(255)"`
	ImageURL       string          `gorm:"column:image_url;type:varchar(1000)"`
}

// TableName returns the table name for GORM
func (CanonicalOrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts the persistence model to a domain order item
func (m *CanonicalOrderItemModel) ToDomain() integration.CanonicalOrderItem {
	return integration.CanonicalOrderItem{
		ID:             m.ID,
		PlatformItemID: m.PlatformItemID,
		SKU:            m.SKU,
		Name:           m.Name,
		Quantity:       m.Quantity,
		UnitPrice:      m.UnitPrice,
		LineTotal:      m.LineTotal,
		Variation:      m.Variation,
		ImageURL:       m.ImageURL,
	}
}

// CanonicalOrderItemModelFromDomain creates the persistence model of line lineNo of orderID
func CanonicalOrderItemModelFromDomain(orderID uuid.UUID, lineNo int, item integration.CanonicalOrderItem) *CanonicalOrderItemModel {
	return &CanonicalOrderItemModel{
		ID:             item.ID,
		OrderID:        orderID,
		LineNo:         lineNo,
		PlatformItemID: item.PlatformItemID,
		SKU:            item.SKU,
		Name:           item.Name,
		Quantity:       item.Quantity,
		UnitPrice:      item.UnitPrice,
		LineTotal:      item.LineTotal,
		Variation:      item.Variation,
		ImageURL:       item.ImageURL,
	}
}

// ---------------------------------------------------------------------------
// PlatformAdapterConfigModel
// ---------------------------------------------------------------------------

// PlatformAdapterConfigModel is the persistence model for integration.PlatformAdapterConfig.
// (platform, shop_id) is unique.
type PlatformAdapterConfigModel struct {
	ID       uuid.UUID            `gorm:"type:uuid;primary_key"`
	Platform integration.Platform `gorm:"type:varchar(20);not null;uniqueIndex:idx_adapter_configs_shop,priority:1"`
	ShopID   string               `gorm:"type:varchar(100);not null;uniqueIndex:idx_adapter_configs_shop,priority:2"`
	ShopName string               `gorm:"type:varchar(255)"`

	AppKey    string `gorm:"type:varchar(255);not null"`
	AppSecret string `gorm:"type:varchar(512)"`

	AccessToken      string `gorm:"type:text"`
	RefreshToken     string `gorm:"type:text"`
	TokenExpiresAt   *time.Time
	RefreshExpiresAt *time.Time

	WebhookSecret string            `gorm:"type:varchar(512)"`
	CallbackURL   string            `gorm:"column:callback_url;type:varchar(1000)"`
	BaseURL       string            `gorm:"column:base_url;type:varchar(1000)"`
	Region        string            `gorm:"type:varchar(10)"`
	Settings      map[string]string `gorm:"type:text;serializer:json"`

	WarehouseID         *uuid.UUID `gorm:"type:uuid"`
	Enabled             bool       `gorm:"not null;index"`
	SyncIntervalMinutes int        `gorm:"not null"`
	LastSyncAt          *time.Time

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PlatformAdapterConfigModel) TableName() string {
	return "platform_adapter_configs"
}

// ToDomain converts the persistence model to a domain config
func (m *PlatformAdapterConfigModel) ToDomain() *integration.PlatformAdapterConfig {
	return &integration.PlatformAdapterConfig{
		ID:                  m.ID,
		Platform:            m.Platform,
		ShopID:              m.ShopID,
		ShopName:            m.ShopName,
		AppKey:              m.AppKey,
		AppSecret:           m.AppSecret,
		AccessToken:         m.AccessToken,
		RefreshToken:        m.RefreshToken,
		TokenExpiresAt:      m.TokenExpiresAt,
		RefreshExpiresAt:    m.RefreshExpiresAt,
		WebhookSecret:       m.WebhookSecret,
		CallbackURL:         m.CallbackURL,
		BaseURL:             m.BaseURL,
		Region:              m.Region,
		Settings:            m.Settings,
		WarehouseID:         m.WarehouseID,
		Enabled:             m.Enabled,
		SyncIntervalMinutes: m.SyncIntervalMinutes,
		LastSyncAt:          m.LastSyncAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain config
func (m *PlatformAdapterConfigModel) FromDomain(c *integration.PlatformAdapterConfig) {
	m.ID = c.ID
	m.Platform = c.Platform
	m.ShopID = c.ShopID
	m.ShopName = c.ShopName
	m.AppKey = c.AppKey
	m.AppSecret = c.AppSecret
	m.AccessToken = c.AccessToken
	m.RefreshToken = c.RefreshToken
	m.TokenExpiresAt = c.TokenExpiresAt
	m.RefreshExpiresAt = c.RefreshExpiresAt
	m.WebhookSecret = c.WebhookSecret
	m.CallbackURL = c.CallbackURL
	m.BaseURL = c.BaseURL
	m.Region = c.Region
	m.Settings = c.Settings
	m.WarehouseID = c.WarehouseID
	m.Enabled = c.Enabled
	m.SyncIntervalMinutes = c.SyncIntervalMinutes
	m.LastSyncAt = c.LastSyncAt
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt
}

// ---------------------------------------------------------------------------
// SyncJobModel
// ---------------------------------------------------------------------------

// SyncJobModel is the persistence model for integration.SyncJob
type SyncJobModel struct {
	ID           uuid.UUID                 `gorm:"type:uuid;primary_key"`
	ConfigID     uuid.UUID                 `gorm:"type:uuid;not null;index:idx_sync_jobs_config,priority:1"`
	Platform     integration.Platform      `gorm:"type:varchar(20);not null;index"`
	ShopID       string                    `gorm:"type:varchar(100);not null"`
	Status       integration.SyncJobStatus `gorm:"type:varchar(20);not null;index:idx_sync_jobs_status_started,priority:1"`
	StartedAt    time.Time                 `gorm:"not null;index:idx_sync_jobs_config,priority:2;index:idx_sync_jobs_status_started,priority:2"`
	FinishedAt   *time.Time
	WindowFrom   *time.Time
	WindowTo     *time.Time
	Fetched      int    `gorm:"not null"`
	Created      int    `gorm:"not null"`
	Updated      int    `gorm:"not null"`
	Skipped      int    `gorm:"not null"`
	Errors       int    `gorm:"not null"`
	ErrorMessage string `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncJobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain sync job
func (m *SyncJobModel) ToDomain() *integration.SyncJob {
	return &integration.SyncJob{
		ID:           m.ID,
		ConfigID:     m.ConfigID,
		Platform:     m.Platform,
		ShopID:       m.ShopID,
		Status:       m.Status,
		StartedAt:    m.StartedAt,
		FinishedAt:   m.FinishedAt,
		WindowFrom:   m.WindowFrom,
		WindowTo:     m.WindowTo,
		Fetched:      m.Fetched,
		Created:      m.Created,
		Updated:      m.Updated,
		Skipped:      m.Skipped,
		Errors:       m.Errors,
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain sync job
func (m *SyncJobModel) FromDomain(j *integration.SyncJob) {
	m.ID = j.ID
	m.ConfigID = j.ConfigID
	m.Platform = j.Platform
	m.ShopID = j.ShopID
	m.Status = j.Status
	m.StartedAt = j.StartedAt
	m.FinishedAt = j.FinishedAt
	m.WindowFrom = j.WindowFrom
	m.WindowTo = j.WindowTo
	m.Fetched = j.Fetched
	m.Created = j.Created
	m.Updated = j.Updated
	m.Skipped = j.Skipped
	m.Errors = j.Errors
	m.ErrorMessage = j.ErrorMessage
	m.CreatedAt = j.CreatedAt
	m.UpdatedAt = j.UpdatedAt
}

// ---------------------------------------------------------------------------
// WebhookEventModel
// ---------------------------------------------------------------------------

// WebhookEventModel is the persistence model for integration.WebhookEvent
type WebhookEventModel struct {
	ID           uuid.UUID                 `gorm:"type:uuid;primary_key"`
	Platform     integration.Platform      `gorm:"type:varchar(20);not null;index"`
	EventType    string                    `gorm:"type:varchar(100)"`
	Payload      []byte                    `gorm:"type:bytea;not null"`
	Headers      map[string]string         `gorm:"type:text;serializer:json"`
	Signature    string                    `gorm:"type:varchar(512)"`
	Timestamp    string                    `gorm:"type:varchar(50)"`
	ReceivedAt   time.Time                 `gorm:"not null;index:idx_webhook_events_pending,priority:2"`
	Processed    bool                      `gorm:"not null;index:idx_webhook_events_pending,priority:1"`
	ProcessedAt  *time.Time
	Result       integration.WebhookResult `gorm:"type:varchar(20);index"`
	ErrorMessage string                    `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (WebhookEventModel) TableName() string {
	return "webhook_events"
}

// ToDomain converts the persistence model to a domain webhook event
func (m *WebhookEventModel) ToDomain() *integration.WebhookEvent {
	return &integration.WebhookEvent{
		ID:           m.ID,
		Platform:     m.Platform,
		EventType:    m.EventType,
		Payload:      m.Payload,
		Headers:      m.Headers,
		Signature:    m.Signature,
		Timestamp:    m.Timestamp,
		ReceivedAt:   m.ReceivedAt,
		Processed:    m.Processed,
		ProcessedAt:  m.ProcessedAt,
		Result:       m.Result,
		ErrorMessage: m.ErrorMessage,
	}
}

// FromDomain populates the persistence model from a domain webhook event
func (m *WebhookEventModel) FromDomain(e *integration.WebhookEvent) {
	m.ID = e.ID
	m.Platform = e.Platform
	m.EventType = e.EventType
	m.Payload = e.Payload
	m.Headers = e.Headers
	m.Signature = e.Signature
	m.Timestamp = e.Timestamp
	m.ReceivedAt = e.ReceivedAt
	m.Processed = e.Processed
	m.ProcessedAt = e.ProcessedAt
	m.Result = e.Result
	m.ErrorMessage = e.ErrorMessage
}
