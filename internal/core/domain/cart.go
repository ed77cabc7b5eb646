package domain

import (
	"github.com/shopspring/decimal"
)

type CartLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Category    string          `json:"category"`
}

func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Validate reports whether a stored line can be used by business logic.
func (l CartLine) Validate() error {
	if l.ProductID == "" {
		return ErrMalformedLine
	}
	if l.Quantity < 1 {
		return ErrMalformedLine
	}
	if l.UnitPrice.IsNegative() {
		return ErrMalformedLine
	}
	return nil
}

// NewCartLine snapshots a product into a line with quantity 1.
func NewCartLine(p Product) CartLine {
	return CartLine{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    1,
		UnitPrice:   p.Price,
		Category:    p.Category,
	}
}

type Cart struct {
	ID    string
	Lines []CartLine
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

func (c Cart) ProductNames() []string {
	names := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		names = append(names, l.ProductName)
	}
	return names
}

// Line returns the line for productID, if present.
func (c Cart) Line(productID string) (CartLine, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}
