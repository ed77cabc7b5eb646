package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrLineNotFound       = errors.New("product not in cart")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	ErrCheckoutGuardLost  = errors.New("checkout guard lost")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidCartID      = errors.New("cart id is empty")
	ErrInvalidProductID   = errors.New("product id is empty")
	ErrMalformedLine      = errors.New("malformed cart line")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrPartialCheckout    = errors.New("partial checkout")
)

// PartialCheckoutError names the products that could not be purchased.
// Every other line of the checkout pass is already committed.
type PartialCheckoutError struct {
	Failed []string
}

func (e *PartialCheckoutError) Error() string {
	return fmt.Sprintf("%s: out of stock: %s", ErrPartialCheckout, strings.Join(e.Failed, ", "))
}

func (e *PartialCheckoutError) Is(target error) bool {
	return target == ErrPartialCheckout
}

// IsTransient reports whether err is worth retrying at the boundary.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
