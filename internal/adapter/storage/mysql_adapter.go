package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) Snapshot(ctx context.Context, productID string) (*domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, price, category, stock, version, created_at, updated_at
		FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Name, &price, &p.Category, &p.Stock, &p.Version, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, storeErr("query product", err)
	}

	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price of %s: %w", productID, err)
	}
	return &p, nil
}

// DecrementIfAvailable subtracts quantity with a single conditional UPDATE,
// so concurrent checkouts of the same product cannot both pass the stock
// check. The remaining stock is read back inside the same transaction.
func (m *MySQLAdapter) DecrementIfAvailable(ctx context.Context, productID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, domain.ErrInvalidQuantity
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr("begin tx", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND stock >= ?`,
		quantity, productID, quantity,
	)
	if err != nil {
		return 0, storeErr("decrement stock", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, storeErr("decrement stock", err)
	}

	var stock int
	err = tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, productID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrProductNotFound
	}
	if err != nil {
		return 0, storeErr("read stock", err)
	}
	if rows == 0 {
		return stock, domain.ErrInsufficientStock
	}

	if err := tx.Commit(); err != nil {
		return 0, storeErr("commit decrement", err)
	}
	return stock, nil
}

func (m *MySQLAdapter) Restock(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + ?, version = version + 1, updated_at = NOW()
		WHERE id = ?`,
		quantity, productID,
	)
	if err != nil {
		return storeErr("restock", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, price, category, stock, version, created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, storeErr("list products", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var (
			p     domain.Product
			price string
		)
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.Category, &p.Stock, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price of %s: %w", p.ID, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list products", err)
	}
	return products, nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, cart_id, total, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		order.ID, order.CartID, order.Total.StringFixed(2), string(order.Status), order.CreatedAt,
	)
	if err != nil {
		return storeErr("insert order", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, name, quantity, unit_price, line_total)
			VALUES (?, ?, ?, ?, ?, ?)`,
			order.ID, item.ProductID, item.Name, item.Quantity,
			item.UnitPrice.StringFixed(2), item.LineTotal.StringFixed(2),
		)
		if err != nil {
			return storeErr("insert order item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit order", err)
	}
	return nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var (
		o      domain.Order
		total  string
		status string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, cart_id, total, status, created_at
		FROM orders WHERE id = ?`, orderID,
	).Scan(&o.ID, &o.CartID, &total, &status, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, storeErr("query order", err)
	}
	o.Status = domain.OrderStatus(status)
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse order total: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, name, quantity, unit_price, line_total
		FROM order_items WHERE order_id = ? ORDER BY name`, orderID)
	if err != nil {
		return nil, storeErr("query order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it               domain.OrderItem
			unitPrice, lineT string
		)
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &unitPrice, &lineT); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if it.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		if it.LineTotal, err = decimal.NewFromString(lineT); err != nil {
			return nil, fmt.Errorf("parse line total: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query order items", err)
	}
	return &o, nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// PurchaseHistory lists every committed order line as a purchase by the
// cart that placed it, for seeding the in-process purchase graph.
func (m *MySQLAdapter) PurchaseHistory(ctx context.Context) ([]Purchase, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT o.cart_id, oi.name
		FROM order_items oi JOIN orders o ON o.id = oi.order_id
		ORDER BY o.created_at, oi.id`)
	if err != nil {
		return nil, storeErr("query purchase history", err)
	}
	defer rows.Close()

	var purchases []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.UserID, &p.ProductName); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query purchase history", err)
	}
	return purchases, nil
}
