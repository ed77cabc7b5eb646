package port

import (
	"context"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type CartRepository interface {
	// AddLine increments the product's line, creating it from snapshot when
	// missing, as long as the new quantity stays within available
	AddLine(ctx context.Context, cartID string, snapshot domain.CartLine, available int) (int, error)

	// RemoveOne decrements a line by one and deletes it at zero
	RemoveOne(ctx context.Context, cartID, productID string) (int, error)

	// DeleteLine drops a line regardless of its quantity
	DeleteLine(ctx context.Context, cartID, productID string) error

	// PutLine writes a line as-is, replacing any existing one
	PutLine(ctx context.Context, cartID string, line domain.CartLine) error

	// Lines returns the valid lines of a cart; unknown carts are empty
	Lines(ctx context.Context, cartID string) ([]domain.CartLine, error)

	// Clear removes the cart; idempotent
	Clear(ctx context.Context, cartID string) error

	// AcquireCheckout takes the per-cart checkout guard for token, returns
	// false if another pass holds it
	AcquireCheckout(ctx context.Context, cartID, token string) (bool, error)

	// RefreshCheckout extends the guard while token still owns it, returns
	// false once it has expired or passed to another pass
	RefreshCheckout(ctx context.Context, cartID, token string) (bool, error)

	// ReleaseCheckout drops the guard only if token still owns it
	ReleaseCheckout(ctx context.Context, cartID, token string) error
}
