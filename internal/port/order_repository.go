package port

import (
	"context"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists an order and its items in one transaction
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder loads an order with its items
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
}
