package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the authoritative catalog entry. Stock is owned by the
// inventory store and only changes through checkout.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Category  string
	Stock     int
	Version   int // bumped on every stock change
	CreatedAt time.Time
	UpdatedAt time.Time
}
