package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

// CartService owns cart mutations. The stock check on add is advisory:
// it rejects adds already known to be infeasible but reserves nothing.
type CartService struct {
	carts     port.CartRepository
	inventory port.InventoryRepository
	options
}

func NewCartService(carts port.CartRepository, inventory port.InventoryRepository, opts ...Option) *CartService {
	return &CartService{
		carts:     carts,
		inventory: inventory,
		options:   newOptions(opts),
	}
}

func (s *CartService) AddItem(ctx context.Context, cartID, productID string) (int, error) {
	qty, err := s.addItem(ctx, cartID, productID)
	s.metrics.CartOp("add", err)
	return qty, err
}

func (s *CartService) addItem(ctx context.Context, cartID, productID string) (int, error) {
	if err := validateIDs(cartID, productID); err != nil {
		return 0, err
	}

	product, err := read(ctx, s.options, func(ctx context.Context) (*domain.Product, error) {
		return s.inventory.Snapshot(ctx, productID)
	})
	if err != nil {
		return 0, fmt.Errorf("snapshot %s: %w", productID, err)
	}

	var qty int
	err = s.write(ctx, func(ctx context.Context) error {
		var err error
		qty, err = s.carts.AddLine(ctx, cartID, domain.NewCartLine(*product), product.Stock)
		return err
	})
	if errors.Is(err, domain.ErrInsufficientStock) {
		s.metrics.StockRejected("add")
		s.log.Info().Str("cart_id", cartID).Str("product_id", productID).Int("stock", product.Stock).Msg("cart.add.out_of_stock")
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("add %s to cart: %w", productID, err)
	}

	s.log.Debug().Str("cart_id", cartID).Str("product_id", productID).Int("quantity", qty).Msg("cart.add")
	return qty, nil
}

// RemoveItem takes one unit off a line. A zero quantity means the line
// was deleted.
func (s *CartService) RemoveItem(ctx context.Context, cartID, productID string) (int, error) {
	qty, err := s.removeItem(ctx, cartID, productID)
	s.metrics.CartOp("remove", err)
	return qty, err
}

func (s *CartService) removeItem(ctx context.Context, cartID, productID string) (int, error) {
	if err := validateIDs(cartID, productID); err != nil {
		return 0, err
	}

	var qty int
	err := s.write(ctx, func(ctx context.Context) error {
		var err error
		qty, err = s.carts.RemoveOne(ctx, cartID, productID)
		return err
	})
	if errors.Is(err, domain.ErrLineNotFound) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("remove %s from cart: %w", productID, err)
	}

	s.log.Debug().Str("cart_id", cartID).Str("product_id", productID).Int("quantity", qty).Msg("cart.remove")
	return qty, nil
}

// GetCart returns an empty cart for unknown IDs.
func (s *CartService) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	if err := validateIDs(cartID); err != nil {
		return domain.Cart{}, err
	}

	lines, err := read(ctx, s.options, func(ctx context.Context) ([]domain.CartLine, error) {
		return s.carts.Lines(ctx, cartID)
	})
	if err != nil {
		return domain.Cart{}, fmt.Errorf("read cart: %w", err)
	}
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return domain.Cart{ID: cartID, Lines: lines}, nil
}

func (s *CartService) Clear(ctx context.Context, cartID string) error {
	if err := validateIDs(cartID); err != nil {
		return err
	}

	// DEL is idempotent, so it goes through the retrying path.
	_, err := read(ctx, s.options, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.carts.Clear(ctx, cartID)
	})
	s.metrics.CartOp("clear", err)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (s *CartService) Products(ctx context.Context) ([]domain.Product, error) {
	return read(ctx, s.options, s.inventory.ListProducts)
}
