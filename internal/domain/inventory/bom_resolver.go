package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Component is an atomic product and the quantity consumed of it
type Component struct {
	ProductID uuid.UUID
	Quantity  decimal.Decimal
}

// BomReader loads the direct components of a product
type BomReader interface {
	FindProductBom(ctx context.Context, setProductID uuid.UUID) ([]ProductBom, error)
}

// BomResolver expands sets into atomic components. Each call keeps the set of
// products on the current expansion path; revisiting one is a cycle.
type BomResolver struct {
	reader   BomReader
	maxDepth int
}

// NewBomResolver creates a resolver. maxDepth <= 0 uses DefaultMaxBomDepth.
func NewBomResolver(reader BomReader, maxDepth int) *BomResolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxBomDepth
	}
	return &BomResolver{reader: reader, maxDepth: maxDepth}
}

// MaxDepth returns the expansion depth limit
func (r *BomResolver) MaxDepth() int {
	return r.maxDepth
}

// ResolveComponents returns the atomic components consumed by qty units of
// productID. A product with no BOM edges is its own component.
func (r *BomResolver) ResolveComponents(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) ([]Component, error) {
	path := make(map[uuid.UUID]bool)
	var out []Component
	if err := r.expand(ctx, productID, qty, 0, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BomResolver) expand(ctx context.Context, productID uuid.UUID, qty decimal.Decimal, depth int, path map[uuid.UUID]bool, out *[]Component) error {
	if path[productID] {
		return fmt.Errorf("%w: product %s appears twice on its own expansion path", ErrBomCycle, productID)
	}
	if depth > r.maxDepth {
		return fmt.Errorf("%w: more than %d levels below product %s", ErrBomDepthExceeded, r.maxDepth, productID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	edges, err := r.reader.FindProductBom(ctx, productID)
	if err != nil {
		return err
	}
	if len(edges) == 0 {
		*out = append(*out, Component{ProductID: productID, Quantity: qty})
		return nil
	}

	path[productID] = true
	defer delete(path, productID)
	for _, edge := range edges {
		if err := r.expand(ctx, edge.ComponentProductID, qty.Mul(edge.Quantity), depth+1, path, out); err != nil {
			return err
		}
	}
	return nil
}

// WouldCreateCycle reports whether adding the edge setID -> componentID closes a
// cycle, i.e. whether setID is reachable from componentID
func (r *BomResolver) WouldCreateCycle(ctx context.Context, setID, componentID uuid.UUID) (bool, error) {
	if setID == componentID {
		return true, nil
	}
	visited := make(map[uuid.UUID]bool)
	stack := []uuid.UUID{componentID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == setID {
			return true, nil
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		edges, err := r.reader.FindProductBom(ctx, current)
		if err != nil {
			return false, err
		}
		for _, edge := range edges {
			stack = append(stack, edge.ComponentProductID)
		}
	}
	return false, nil
}

// Consolidate sums components by product, keeping first-seen order
func Consolidate(components []Component) []Component {
	index := make(map[uuid.UUID]int, len(components))
	out := make([]Component, 0, len(components))
	for _, c := range components {
		if i, ok := index[c.ProductID]; ok {
			out[i].Quantity = out[i].Quantity.Add(c.Quantity)
			continue
		}
		index[c.ProductID] = len(out)
		out = append(out, c)
	}
	return out
}
