package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

var (
	decrementSQL = `UPDATE products\s+SET stock = stock - \?`
	readStockSQL = regexp.QuoteMeta("SELECT stock FROM products WHERE id = ?")
	productCols  = []string{"id", "name", "price", "category", "stock", "version", "created_at", "updated_at"}
)

func newMockAdapter(t *testing.T) (*MySQLAdapter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewMySQLAdapter(db), mock
}

func TestDecrementIfAvailable_Success(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(decrementSQL).WithArgs(2, "p-1", 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(readStockSQL).WithArgs("p-1").WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(8))
	mock.ExpectCommit()

	left, err := adapter.DecrementIfAvailable(context.Background(), "p-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 8, left)
}

func TestDecrementIfAvailable_InsufficientStock(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(decrementSQL).WithArgs(2, "p-1", 2).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(readStockSQL).WithArgs("p-1").WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(1))
	mock.ExpectRollback()

	left, err := adapter.DecrementIfAvailable(context.Background(), "p-1", 2)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 1, left)
}

func TestDecrementIfAvailable_ProductNotFound(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(decrementSQL).WithArgs(1, "ghost", 1).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(readStockSQL).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := adapter.DecrementIfAvailable(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestDecrementIfAvailable_RejectsNonPositive(t *testing.T) {
	adapter, _ := newMockAdapter(t)

	_, err := adapter.DecrementIfAvailable(context.Background(), "p-1", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestDecrementIfAvailable_ConnectionLoss(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin().WillReturnError(context.DeadlineExceeded)

	_, err := adapter.DecrementIfAvailable(context.Background(), "p-1", 1)
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestSnapshot(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = ?")).WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows(productCols).AddRow("p-1", "Widget", "10.50", "Tools", 7, 3, now, now))

	p, err := adapter.Snapshot(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Widget", p.Name)
	assert.True(t, decimal.RequireFromString("10.50").Equal(p.Price))
	assert.Equal(t, 7, p.Stock)
	assert.Equal(t, 3, p.Version)
}

func TestSnapshot_NotFound(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = ?")).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(productCols))

	_, err := adapter.Snapshot(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestRestock(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec(regexp.QuoteMeta("SET stock = stock + ?")).WithArgs(3, "p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET stock = stock + ?")).WithArgs(3, "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, adapter.Restock(context.Background(), "p-1", 3))
	assert.ErrorIs(t, adapter.Restock(context.Background(), "ghost", 3), domain.ErrProductNotFound)
}

func TestListProducts(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM products ORDER BY name")).
		WillReturnRows(sqlmock.NewRows(productCols).
			AddRow("p-2", "Anvil", "99.00", "Tools", 1, 0, now, now).
			AddRow("p-1", "Widget", "10.50", "Tools", 7, 0, now, now))

	products, err := adapter.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Anvil", products[0].Name)
	assert.Equal(t, "Widget", products[1].Name)
}

func TestCreateOrder_WritesOrderAndItems(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	order := domain.Order{
		ID:     "o-1",
		CartID: "cart-1",
		Items: []domain.OrderItem{
			{ProductID: "p-1", Name: "Widget", Quantity: 2, UnitPrice: decimal.NewFromInt(10), LineTotal: decimal.NewFromInt(20)},
			{ProductID: "p-2", Name: "Gadget", Quantity: 1, UnitPrice: decimal.NewFromInt(5), LineTotal: decimal.NewFromInt(5)},
		},
		Total:     decimal.NewFromInt(25),
		Status:    domain.OrderStatusConfirmed,
		CreatedAt: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs("o-1", "cart-1", "25.00", "confirmed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs("o-1", "p-1", "Widget", 2, "10.00", "20.00").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs("o-1", "p-2", "Gadget", 1, "5.00", "5.00").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, adapter.CreateOrder(context.Background(), order))
}

func TestCreateOrder_RollsBackOnItemFailure(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	order := domain.Order{
		ID:     "o-2",
		CartID: "cart-1",
		Items: []domain.OrderItem{
			{ProductID: "p-1", Name: "Widget", Quantity: 1, UnitPrice: decimal.NewFromInt(10), LineTotal: decimal.NewFromInt(10)},
		},
		Total:     decimal.NewFromInt(10),
		Status:    domain.OrderStatusConfirmed,
		CreatedAt: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := adapter.CreateOrder(context.Background(), order)
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))
}

func TestGetOrder(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = ?")).WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "cart_id", "total", "status", "created_at"}).
			AddRow("o-1", "cart-1", "5.00", "partial", now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items WHERE order_id = ?")).WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "name", "quantity", "unit_price", "line_total"}).
			AddRow("p-2", "Gadget", 1, "5.00", "5.00"))

	o, err := adapter.GetOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPartial, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Gadget", o.Items[0].Name)
	assert.True(t, decimal.NewFromInt(5).Equal(o.Total))
}

func TestGetOrder_NotFound(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = ?")).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "cart_id", "total", "status", "created_at"}))

	_, err := adapter.GetOrder(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestPurchaseHistory(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items oi JOIN orders o")).
		WillReturnRows(sqlmock.NewRows([]string{"cart_id", "name"}).
			AddRow("alice", "Widget").
			AddRow("alice", "Gadget"))

	history, err := adapter.PurchaseHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Purchase{
		{UserID: "alice", ProductName: "Widget"},
		{UserID: "alice", ProductName: "Gadget"},
	}, history)
}
