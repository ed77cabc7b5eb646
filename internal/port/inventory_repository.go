package port

import (
	"context"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type InventoryRepository interface {
	// Snapshot reads the current product record, ErrProductNotFound if absent
	Snapshot(ctx context.Context, productID string) (*domain.Product, error)

	// DecrementIfAvailable atomically subtracts quantity when stock allows it
	// and returns the remaining stock, ErrInsufficientStock otherwise
	DecrementIfAvailable(ctx context.Context, productID string, quantity int) (int, error)

	// Restock gives back stock taken by a checkout whose order write failed
	Restock(ctx context.Context, productID string, quantity int) error

	// ListProducts returns the catalog ordered by name
	ListProducts(ctx context.Context) ([]domain.Product, error)
}
