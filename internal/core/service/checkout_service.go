package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

// CheckoutService turns a cart into an order. Each line's stock
// decrement is atomic on its own; a line that fails does not undo lines
// already committed in the same pass.
type CheckoutService struct {
	carts     port.CartRepository
	inventory port.InventoryRepository
	orders    port.OrderRepository
	now       func() time.Time
	options
}

func NewCheckoutService(carts port.CartRepository, inventory port.InventoryRepository, orders port.OrderRepository, opts ...Option) *CheckoutService {
	return &CheckoutService{
		carts:     carts,
		inventory: inventory,
		orders:    orders,
		now:       time.Now,
		options:   newOptions(opts),
	}
}

// Checkout runs one synchronous pass over the cart.
//
// All lines committed: the order is written as confirmed, the cart is
// cleared and the error is nil. Some lines out of stock: the committed
// lines are written as a partial order, the failed lines stay in the
// cart, and a *domain.PartialCheckoutError is returned with the result.
// An empty cart returns domain.ErrEmptyCart without touching stock.
func (s *CheckoutService) Checkout(ctx context.Context, cartID string) (domain.CheckoutResult, error) {
	started := time.Now()
	result, err := s.checkout(ctx, cartID)
	s.metrics.Checkout(outcome(result, err), started)
	return result, err
}

func (s *CheckoutService) checkout(ctx context.Context, cartID string) (domain.CheckoutResult, error) {
	result := domain.CheckoutResult{CartID: cartID, Failed: []string{}}
	if err := validateIDs(cartID); err != nil {
		return result, err
	}

	token := uuid.NewString()
	var acquired bool
	err := s.write(ctx, func(ctx context.Context) error {
		var err error
		acquired, err = s.carts.AcquireCheckout(ctx, cartID, token)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("acquire checkout guard: %w", err)
	}
	if !acquired {
		return result, domain.ErrCheckoutInProgress
	}
	defer s.release(ctx, cartID, token)

	lines, err := read(ctx, s.options, func(ctx context.Context) ([]domain.CartLine, error) {
		return s.carts.Lines(ctx, cartID)
	})
	if err != nil {
		return result, fmt.Errorf("read cart: %w", err)
	}
	if len(lines) == 0 {
		return result, domain.ErrEmptyCart
	}

	log := s.log.With().Str("cart_id", cartID).Logger()
	var (
		committed []domain.CartLine
		undropped []domain.CartLine
		unknown   []error
	)
	for i, line := range lines {
		if err := s.refresh(ctx, cartID, token); err != nil {
			// Another pass may own the cart now; leave the rest untouched.
			for _, rest := range lines[i:] {
				result.Unconfirmed = append(result.Unconfirmed, rest.ProductName)
			}
			unknown = append(unknown, err)
			log.Error().Err(err).Int("lines_skipped", len(lines)-i).Msg("checkout.guard.lost")
			break
		}

		left, err := s.decrement(ctx, line)
		switch {
		case err == nil:
			committed = append(committed, line)
			if err := s.dropLine(ctx, cartID, line); err != nil {
				undropped = append(undropped, line)
			}
			log.Debug().Str("product_id", line.ProductID).Int("quantity", line.Quantity).Int("stock_left", left).Msg("checkout.line.committed")
		case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrProductNotFound):
			s.metrics.StockRejected("checkout")
			result.Failed = append(result.Failed, line.ProductName)
			log.Info().Str("product_id", line.ProductID).Int("quantity", line.Quantity).Msg("checkout.line.out_of_stock")
		default:
			// Outcome unknown; the line stays in the cart and is not retried.
			result.Unconfirmed = append(result.Unconfirmed, line.ProductName)
			unknown = append(unknown, fmt.Errorf("decrement %s: %w", line.ProductID, err))
			log.Error().Err(err).Str("product_id", line.ProductID).Msg("checkout.line.unconfirmed")
		}
	}

	if len(committed) > 0 {
		status := domain.OrderStatusConfirmed
		if len(result.Failed) > 0 || len(unknown) > 0 {
			status = domain.OrderStatusPartial
		}
		order := s.buildOrder(cartID, committed, status)

		err := s.write(ctx, func(ctx context.Context) error {
			return s.orders.CreateOrder(ctx, order)
		})
		if err != nil {
			s.compensate(ctx, cartID, committed)
			return domain.CheckoutResult{CartID: cartID, Failed: []string{}}, fmt.Errorf("write order: %w", err)
		}
		result.Order = &order
		if s.recorder != nil {
			s.recorder.RecordOrder(order)
		}
		log.Info().Str("order_id", order.ID).Str("status", string(status)).Str("total", order.Total.StringFixed(2)).Msg("checkout.order.written")
	}

	if len(unknown) == 0 && len(result.Failed) == 0 {
		if err := s.clear(ctx, cartID); err != nil {
			log.Error().Err(err).Msg("checkout.cart.clear_failed")
		} else {
			undropped = nil
		}
	}

	// A bought line left in the cart would be bought again by the next pass.
	for _, line := range undropped {
		if err := s.dropLine(ctx, cartID, line); err != nil {
			result.Unconfirmed = append(result.Unconfirmed, line.ProductName)
			unknown = append(unknown, fmt.Errorf("remove bought line %s: %w", line.ProductID, err))
		}
	}

	if len(unknown) > 0 {
		return result, fmt.Errorf("checkout %s: %w", cartID, errors.Join(unknown...))
	}
	if len(result.Failed) > 0 {
		return result, &domain.PartialCheckoutError{Failed: result.Failed}
	}
	return result, nil
}

// Order loads a written order.
func (s *CheckoutService) Order(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, domain.ErrOrderNotFound
	}
	return read(ctx, s.options, func(ctx context.Context) (*domain.Order, error) {
		return s.orders.GetOrder(ctx, orderID)
	})
}

// refresh extends the guard before each line so a long pass keeps it.
func (s *CheckoutService) refresh(ctx context.Context, cartID, token string) error {
	var held bool
	err := s.write(ctx, func(ctx context.Context) error {
		var err error
		held, err = s.carts.RefreshCheckout(ctx, cartID, token)
		return err
	})
	if err != nil {
		return fmt.Errorf("refresh checkout guard: %w", err)
	}
	if !held {
		return domain.ErrCheckoutGuardLost
	}
	return nil
}

func (s *CheckoutService) decrement(ctx context.Context, line domain.CartLine) (int, error) {
	var left int
	err := s.write(ctx, func(ctx context.Context) error {
		var err error
		left, err = s.inventory.DecrementIfAvailable(ctx, line.ProductID, line.Quantity)
		return err
	})
	return left, err
}

func (s *CheckoutService) buildOrder(cartID string, lines []domain.CartLine, status domain.OrderStatus) domain.Order {
	order := domain.Order{
		ID:        uuid.NewString(),
		CartID:    cartID,
		Items:     make([]domain.OrderItem, 0, len(lines)),
		Status:    status,
		CreatedAt: s.now().UTC(),
	}
	for _, l := range lines {
		order.Items = append(order.Items, domain.NewOrderItem(l))
	}
	order.SumItems()
	return order
}

// dropLine removes a committed line. HDEL is idempotent so transient
// failures are retried.
func (s *CheckoutService) dropLine(ctx context.Context, cartID string, line domain.CartLine) error {
	_, err := read(ctx, s.options, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.carts.DeleteLine(ctx, cartID, line.ProductID)
	})
	if err != nil {
		s.log.Error().Err(err).Str("cart_id", cartID).Str("product_id", line.ProductID).Msg("checkout.line.remove_failed")
	}
	return err
}

func (s *CheckoutService) clear(ctx context.Context, cartID string) error {
	_, err := read(ctx, s.options, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.carts.Clear(ctx, cartID)
	})
	return err
}

// compensate gives back stock and cart lines taken by a pass whose order
// could not be written.
func (s *CheckoutService) compensate(ctx context.Context, cartID string, lines []domain.CartLine) {
	ctx = context.WithoutCancel(ctx)
	for _, line := range lines {
		err := s.write(ctx, func(ctx context.Context) error {
			return s.inventory.Restock(ctx, line.ProductID, line.Quantity)
		})
		if err != nil {
			s.log.Error().Err(err).Str("cart_id", cartID).Str("product_id", line.ProductID).Int("quantity", line.Quantity).Msg("checkout.rollback.restock_failed")
			continue
		}
		err = s.write(ctx, func(ctx context.Context) error {
			return s.carts.PutLine(ctx, cartID, line)
		})
		if err != nil {
			s.log.Error().Err(err).Str("cart_id", cartID).Str("product_id", line.ProductID).Msg("checkout.rollback.cart_restore_failed")
			continue
		}
		s.log.Warn().Str("cart_id", cartID).Str("product_id", line.ProductID).Msg("checkout.rollback.line_restored")
	}
}

func (s *CheckoutService) release(ctx context.Context, cartID, token string) {
	err := s.write(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return s.carts.ReleaseCheckout(ctx, cartID, token)
	})
	if err != nil {
		s.log.Warn().Err(err).Str("cart_id", cartID).Msg("checkout.guard.release_failed")
	}
}

func outcome(r domain.CheckoutResult, err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, domain.ErrPartialCheckout):
		return "partial"
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty"
	case errors.Is(err, domain.ErrCheckoutInProgress):
		return "busy"
	case r.Order != nil:
		return "partial"
	}
	return "failed"
}
