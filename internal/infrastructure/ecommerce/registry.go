package ecommerce

import (
	"github.com/ordersync/backend/internal/domain/integration"
)

// NewDefaultRegistry registers a factory for every supported marketplace
func NewDefaultRegistry(deps AdapterDeps) *integration.AdapterRegistry {
	deps.normalize()
	return integration.NewAdapterRegistry(
		NewShopeeFactory(deps),
		NewLazadaFactory(deps),
		NewTikTokFactory(deps),
		NewLnwShopFactory(deps),
	)
}
