package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OrderFilter filters canonical order listings
type OrderFilter struct {
	Platform Platform
	ShopID   string
	Status   CanonicalStatus
	Page     int
	PageSize int
	// OrderBy is a column name; unknown columns fall back to created_at
	OrderBy  string
	OrderDir string
}

// OrderRepository persists canonical orders. Writes are race-free without
// read-then-write: InsertOrder relies on the (platform, platform_order_id)
// unique key and UpdateOrderStatus is a single conditional UPDATE.
type OrderRepository interface {
	// FindByPlatformOrderID loads an order with its items
	FindByPlatformOrderID(ctx context.Context, platform Platform, platformOrderID string) (*CanonicalOrder, error)

	// FindByID loads an order by local id
	FindByID(ctx context.Context, id uuid.UUID) (*CanonicalOrder, error)

	// InsertOrder inserts the order and its items in one transaction. It returns
	// false without error when the natural key already exists.
	InsertOrder(ctx context.Context, order *CanonicalOrder) (bool, error)

	// UpdateOrderStatus updates status, raw status, tracking, paid/shipped
	// timestamps and raw payload only when the stored status differs. Items
	// are never touched. Returns false when nothing changed.
	UpdateOrderStatus(ctx context.Context, order *CanonicalOrder) (bool, error)

	// List returns a page of orders and the total count
	List(ctx context.Context, filter OrderFilter) ([]CanonicalOrder, int64, error)
}

// AdapterConfigRepository persists per-shop adapter configs
type AdapterConfigRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*PlatformAdapterConfig, error)
	FindByPlatformAndShop(ctx context.Context, platform Platform, shopID string) (*PlatformAdapterConfig, error)
	FindEnabled(ctx context.Context) ([]PlatformAdapterConfig, error)
	FindEnabledByPlatform(ctx context.Context, platform Platform) ([]PlatformAdapterConfig, error)
	Save(ctx context.Context, cfg *PlatformAdapterConfig) error
	// UpdateTokens persists a refreshed token set
	UpdateTokens(ctx context.Context, id uuid.UUID, tokens *TokenSet) error
	// UpdateLastSyncAt records the end of a sync window
	UpdateLastSyncAt(ctx context.Context, id uuid.UUID, at time.Time) error
}

// SyncJobRepository persists sync jobs
type SyncJobRepository interface {
	Create(ctx context.Context, job *SyncJob) error
	Update(ctx context.Context, job *SyncJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*SyncJob, error)
	FindLatestByConfig(ctx context.Context, configID uuid.UUID) (*SyncJob, error)
	FindRunningByConfig(ctx context.Context, configID uuid.UUID) ([]SyncJob, error)
	List(ctx context.Context, filter SyncJobFilter) ([]SyncJob, int64, error)
	// ExpireStale fails every RUNNING job started before cutoff in one UPDATE
	ExpireStale(ctx context.Context, cutoff, now time.Time) (int64, error)
}

// WebhookEventRepository persists the webhook event log
type WebhookEventRepository interface {
	Create(ctx context.Context, event *WebhookEvent) error
	FindByID(ctx context.Context, id uuid.UUID) (*WebhookEvent, error)
	// FindUnprocessed returns unprocessed events, oldest received first
	FindUnprocessed(ctx context.Context, limit int) ([]WebhookEvent, error)
	// MarkProcessed records the outcome only if the event is still unprocessed.
	// Returns false when another worker already processed it.
	MarkProcessed(ctx context.Context, id uuid.UUID, result WebhookResult, errMsg string, at time.Time) (bool, error)
	List(ctx context.Context, filter WebhookEventFilter) ([]WebhookEvent, int64, error)
	Counts(ctx context.Context) (*WebhookEventCounts, error)
}

// TokenStore is the slice of AdapterConfigRepository the token keeper needs
type TokenStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*PlatformAdapterConfig, error)
	UpdateTokens(ctx context.Context, id uuid.UUID, tokens *TokenSet) error
}
