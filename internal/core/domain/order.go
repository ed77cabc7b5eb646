package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPartial   OrderStatus = "partial"
)

type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

func NewOrderItem(line CartLine) OrderItem {
	return OrderItem{
		ProductID: line.ProductID,
		Name:      line.ProductName,
		Quantity:  line.Quantity,
		UnitPrice: line.UnitPrice,
		LineTotal: line.LineTotal(),
	}
}

type Order struct {
	ID        string
	CartID    string
	Items     []OrderItem
	Total     decimal.Decimal
	Status    OrderStatus
	CreatedAt time.Time
}

// SumItems recomputes Total from Items.
func (o *Order) SumItems() {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.LineTotal)
	}
	o.Total = total
}

// CheckoutResult is what a checkout pass produced. Order is nil when no
// line could be committed. Failed lists products refused for stock; they
// stay in the cart. Unconfirmed lists products the caller must look at
// before retrying: the decrement outcome is unknown, the line was not
// attempted because the guard was lost, or the line was bought but could
// not be removed from the cart.
type CheckoutResult struct {
	CartID      string
	Order       *Order
	Failed      []string
	Unconfirmed []string
}

func (r CheckoutResult) Succeeded() bool {
	return len(r.Failed) == 0 && len(r.Unconfirmed) == 0 && r.Order != nil
}
