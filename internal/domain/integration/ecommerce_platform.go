package integration

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Adapter wire types
// ---------------------------------------------------------------------------

// TokenSet is the result of an authorization code exchange or token refresh
type TokenSet struct {
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	RefreshExpiresAt *time.Time
}

// RawOrder is an order exactly as a platform returned it
type RawOrder struct {
	// PlatformOrderID is the order identifier on the platform
	PlatformOrderID string
	// Payload is the platform JSON for the order
	Payload json.RawMessage
	// HasDetail is false when the list endpoint omitted line items
	HasDetail bool
}

// FetchOrdersRequest selects one page of orders from a platform
type FetchOrdersRequest struct {
	// TimeFrom filters orders updated at or after this time
	TimeFrom *time.Time
	// TimeTo filters orders updated before this time
	TimeTo *time.Time
	// Status filters by raw platform status, empty means all
	Status string
	// Cursor is the opaque token returned by the previous page.
	// Offset-paginated platforms encode the offset as a decimal string.
	Cursor string
	// PageSize is the number of orders per page
	PageSize int
}

// OrderPage is one page of raw orders
type OrderPage struct {
	Orders     []RawOrder
	NextCursor string
	Total      int64
	HasMore    bool
}

// WebhookRef is what the processor needs from a webhook payload
type WebhookRef struct {
	OrderID   string
	ShopID    string
	EventType string
}

// ---------------------------------------------------------------------------
// PlatformAdapter Port
// ---------------------------------------------------------------------------

// PlatformAdapter is the port every marketplace implements. An adapter is bound
// to exactly one PlatformAdapterConfig (one shop).
type PlatformAdapter interface {
	// Platform returns the marketplace this adapter talks to
	Platform() Platform

	// Authenticate exchanges an authorization code for a token set
	Authenticate(ctx context.Context, authCode string) (*TokenSet, error)

	// RefreshToken calls the platform refresh endpoint
	RefreshToken(ctx context.Context) (*TokenSet, error)

	// EnsureValidToken refreshes and persists the token set when it is within the
	// refresh buffer of expiry. Failures are returned as *AuthError.
	EnsureValidToken(ctx context.Context) error

	// FetchOrders fetches one page of orders
	FetchOrders(ctx context.Context, req *FetchOrdersRequest) (*OrderPage, error)

	// FetchOrderDetail fetches one order including line items
	FetchOrderDetail(ctx context.Context, platformOrderID string) (RawOrder, error)

	// NormalizeOrder maps a raw platform order into the canonical model.
	// It performs no I/O.
	NormalizeOrder(raw RawOrder) (*CanonicalOrder, error)

	// NormalizeStatus maps a raw platform status; unknown input maps to StatusNew
	NormalizeStatus(raw string) CanonicalStatus

	// VerifyWebhookSignature checks an inbound webhook in constant time
	VerifyWebhookSignature(body []byte, signature, timestamp string) bool
}

// AdapterFactory builds adapters for one platform
type AdapterFactory interface {
	// Platform returns the marketplace this factory builds adapters for
	Platform() Platform
	// New builds an adapter bound to cfg
	New(cfg *PlatformAdapterConfig) (PlatformAdapter, error)
	// ParseWebhook extracts the order reference from a webhook payload
	ParseWebhook(payload []byte) (WebhookRef, error)
}

// ---------------------------------------------------------------------------
// AdapterRegistry
// ---------------------------------------------------------------------------

// AdapterRegistry selects adapter factories by platform. Supporting another
// marketplace means registering one more factory.
type AdapterRegistry struct {
	mu        sync.RWMutex
	factories map[Platform]AdapterFactory
}

// NewAdapterRegistry creates a registry with the given factories
func NewAdapterRegistry(factories ...AdapterFactory) *AdapterRegistry {
	r := &AdapterRegistry{factories: make(map[Platform]AdapterFactory)}
	for _, f := range factories {
		r.Register(f)
	}
	return r
}

// Register adds or replaces the factory for its platform
func (r *AdapterRegistry) Register(f AdapterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[f.Platform()] = f
}

// Factory returns the factory for a platform
func (r *AdapterRegistry) Factory(platform Platform) (AdapterFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[platform]
	if !ok {
		return nil, ErrPlatformNotSupported
	}
	return f, nil
}

// NewAdapter builds the adapter for cfg
func (r *AdapterRegistry) NewAdapter(cfg *PlatformAdapterConfig) (PlatformAdapter, error) {
	if cfg == nil {
		return nil, ErrPlatformNotConfigured
	}
	f, err := r.Factory(cfg.Platform)
	if err != nil {
		return nil, err
	}
	return f.New(cfg)
}

// ParseWebhook delegates payload parsing to the platform factory
func (r *AdapterRegistry) ParseWebhook(platform Platform, payload []byte) (WebhookRef, error) {
	f, err := r.Factory(platform)
	if err != nil {
		return WebhookRef{}, err
	}
	return f.ParseWebhook(payload)
}

// Platforms returns the registered platforms in sorted order
func (r *AdapterRegistry) Platforms() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Platform, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
