// Package integration contains the marketplace integration bounded context.
// It owns the canonical order model every marketplace maps into and the
// bookkeeping around pulling orders from those marketplaces.
//
// Key concepts:
//   - CanonicalOrder: platform-agnostic order, keyed by (platform, platform_order_id)
//   - PlatformAdapter: port for one marketplace (Shopee, Lazada, TikTok, LnwShop)
//   - AdapterRegistry: selects the adapter factory for a platform
//   - PlatformAdapterConfig: per-shop credentials, tokens and sync settings
//   - SyncJob: one polling run and its counters
//   - WebhookEvent: durable log of inbound marketplace notifications
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
