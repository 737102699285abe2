package inventory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ordersync/backend/internal/domain/inventory"
)

// memStore implements the inventory repositories over maps
type memStore struct {
	mu         sync.Mutex
	products   map[uuid.UUID]*inventory.Product
	boms       map[uuid.UUID][]inventory.ProductBom
	listings   map[string]*inventory.PlatformListing
	warehouses map[uuid.UUID]*inventory.Warehouse
	ledger     []inventory.StockLedgerEntry

	bomReads int
	// insertHook runs before entries are written, for simulating a concurrent writer
	insertHook func()
}

func newMemStore() *memStore {
	return &memStore{
		products:   make(map[uuid.UUID]*inventory.Product),
		boms:       make(map[uuid.UUID][]inventory.ProductBom),
		listings:   make(map[string]*inventory.PlatformListing),
		warehouses: make(map[uuid.UUID]*inventory.Warehouse),
	}
}

func (s *memStore) addProduct(sku string) *inventory.Product {
	p, _ := inventory.NewProduct(sku, sku)
	s.products[p.ID] = p
	return p
}

func (s *memStore) addEdge(set, component *inventory.Product, qty int64) {
	edge, _ := inventory.NewProductBom(set.ID, component.ID, decimal.NewFromInt(qty))
	s.boms[set.ID] = append(s.boms[set.ID], *edge)
}

func (s *memStore) addWarehouse(code string, isDefault bool) *inventory.Warehouse {
	wh := &inventory.Warehouse{Code: code, Name: code, IsDefault: isDefault}
	wh.ID = uuid.New()
	s.warehouses[wh.ID] = wh
	return wh
}

// products

func (s *memStore) FindByID(_ context.Context, id uuid.UUID) (*inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, inventory.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) FindProductBySKU(_ context.Context, sku string) (*inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.SKU == sku && p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, inventory.ErrProductNotFound
}

func (s *memStore) Save(_ context.Context, product *inventory.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *product
	s.products[product.ID] = &cp
	return nil
}

// boms

func (s *memStore) FindProductBom(_ context.Context, setProductID uuid.UUID) ([]inventory.ProductBom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bomReads++
	return append([]inventory.ProductBom(nil), s.boms[setProductID]...), nil
}

func (s *memStore) AddComponent(_ context.Context, bom *inventory.ProductBom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boms[bom.SetProductID] = append(s.boms[bom.SetProductID], *bom)
	return nil
}

func (s *memStore) RemoveComponent(_ context.Context, setID, componentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.boms[setID][:0]
	for _, edge := range s.boms[setID] {
		if edge.ComponentProductID != componentID {
			kept = append(kept, edge)
		}
	}
	s.boms[setID] = kept
	return nil
}

// listings

type memListings struct{ *memStore }

func (l memListings) FindPlatformListing(_ context.Context, platform, sku string) (*inventory.PlatformListing, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	listing, ok := l.listings[platform+"/"+sku]
	if !ok {
		return nil, inventory.ErrListingNotFound
	}
	return listing, nil
}

func (l memListings) Save(_ context.Context, listing *inventory.PlatformListing) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listings[listing.Platform+"/"+listing.PlatformSKU] = listing
	return nil
}

// warehouses

type memWarehouses struct{ *memStore }

func (w memWarehouses) FindByID(_ context.Context, id uuid.UUID) (*inventory.Warehouse, error) {
	wh, ok := w.warehouses[id]
	if !ok {
		return nil, inventory.ErrWarehouseNotFound
	}
	return wh, nil
}

func (w memWarehouses) FindByCode(_ context.Context, code string) (*inventory.Warehouse, error) {
	for _, wh := range w.warehouses {
		if wh.Code == code {
			return wh, nil
		}
	}
	return nil, inventory.ErrWarehouseNotFound
}

func (w memWarehouses) FindDefaultWarehouse(_ context.Context) (*inventory.Warehouse, error) {
	for _, wh := range w.warehouses {
		if wh.IsDefault {
			return wh, nil
		}
	}
	return nil, inventory.ErrWarehouseNotFound
}

func (w memWarehouses) Save(_ context.Context, wh *inventory.Warehouse) error {
	w.warehouses[wh.ID] = wh
	return nil
}

// ledger

func (s *memStore) FindStockLedgerByOrderAndType(_ context.Context, refType inventory.ReferenceType, refID uuid.UUID, movement inventory.MovementType) ([]inventory.StockLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.StockLedgerEntry
	for _, e := range s.ledger {
		if e.ReferenceType == refType && e.ReferenceID != nil && *e.ReferenceID == refID && e.MovementType == movement {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) InsertStockLedgerEntries(_ context.Context, entries []inventory.StockLedgerEntry) (int64, error) {
	if s.insertHook != nil {
		s.insertHook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	for _, e := range entries {
		if s.collides(e) {
			continue
		}
		s.ledger = append(s.ledger, e)
		inserted++
	}
	return inserted, nil
}

func (s *memStore) collides(e inventory.StockLedgerEntry) bool {
	if e.ReferenceID == nil {
		return false
	}
	for _, x := range s.ledger {
		if x.ReferenceID != nil && *x.ReferenceID == *e.ReferenceID &&
			x.ReferenceType == e.ReferenceType && x.MovementType == e.MovementType &&
			x.ProductID == e.ProductID && x.WarehouseID == e.WarehouseID {
			return true
		}
	}
	return false
}

func (s *memStore) SumByMovement(_ context.Context, productID, warehouseID uuid.UUID) (map[inventory.MovementType]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := make(map[inventory.MovementType]decimal.Decimal)
	for _, e := range s.ledger {
		if e.ProductID == productID && e.WarehouseID == warehouseID {
			totals[e.MovementType] = totals[e.MovementType].Add(e.Quantity)
		}
	}
	return totals, nil
}

func (s *memStore) outQuantity(productID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, e := range s.ledger {
		if e.ProductID == productID && e.MovementType == inventory.MovementOut {
			total = total.Add(e.Quantity)
		}
	}
	return total
}
