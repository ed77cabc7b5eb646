package service

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

// Mock CartRepository
type mockCartRepo struct {
	mu     sync.Mutex
	carts  map[string]map[string]domain.CartLine
	guards map[string]string

	linesErr  []error          // returned by Lines, one per call, before succeeding
	deleteErr map[string]error // returned by DeleteLine and Clear for a product's cart

	refreshes      int
	loseGuardAfter int // refreshes that succeed before the guard is lost; 0 never
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{
		carts:  make(map[string]map[string]domain.CartLine),
		guards:    make(map[string]string),
		deleteErr: make(map[string]error),
	}
}

func (m *mockCartRepo) AddLine(ctx context.Context, cartID string, snapshot domain.CartLine, available int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart := m.carts[cartID]
	if cart == nil {
		cart = make(map[string]domain.CartLine)
		m.carts[cartID] = cart
	}
	line, ok := cart[snapshot.ProductID]
	if !ok {
		line = snapshot
		line.Quantity = 0
	}
	if line.Quantity+1 > available {
		return 0, domain.ErrInsufficientStock
	}
	line.Quantity++
	cart[snapshot.ProductID] = line
	return line.Quantity, nil
}

func (m *mockCartRepo) RemoveOne(ctx context.Context, cartID, productID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	line, ok := m.carts[cartID][productID]
	if !ok {
		return 0, domain.ErrLineNotFound
	}
	line.Quantity--
	if line.Quantity <= 0 {
		delete(m.carts[cartID], productID)
		return 0, nil
	}
	m.carts[cartID][productID] = line
	return line.Quantity, nil
}

func (m *mockCartRepo) DeleteLine(ctx context.Context, cartID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[productID]; err != nil {
		return err
	}
	delete(m.carts[cartID], productID)
	return nil
}

func (m *mockCartRepo) PutLine(ctx context.Context, cartID string, line domain.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.carts[cartID] == nil {
		m.carts[cartID] = make(map[string]domain.CartLine)
	}
	m.carts[cartID][line.ProductID] = line
	return nil
}

func (m *mockCartRepo) Lines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.linesErr) > 0 {
		err := m.linesErr[0]
		m.linesErr = m.linesErr[1:]
		return nil, err
	}

	lines := make([]domain.CartLine, 0, len(m.carts[cartID]))
	for _, l := range m.carts[cartID] {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductName < lines[j].ProductName })
	return lines, nil
}

func (m *mockCartRepo) Clear(ctx context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for productID := range m.carts[cartID] {
		if err := m.deleteErr[productID]; err != nil {
			return err
		}
	}
	delete(m.carts, cartID)
	return nil
}

func (m *mockCartRepo) AcquireCheckout(ctx context.Context, cartID, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.guards[cartID]; held {
		return false, nil
	}
	m.guards[cartID] = token
	return true, nil
}

func (m *mockCartRepo) RefreshCheckout(ctx context.Context, cartID, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	if m.loseGuardAfter > 0 && m.refreshes > m.loseGuardAfter {
		m.guards[cartID] = "successor"
	}
	return m.guards[cartID] == token, nil
}

func (m *mockCartRepo) ReleaseCheckout(ctx context.Context, cartID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.guards[cartID] == token {
		delete(m.guards, cartID)
	}
	return nil
}

func (m *mockCartRepo) guardHolder(cartID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.guards[cartID]
	return token, ok
}

func (m *mockCartRepo) quantity(cartID, productID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	line, ok := m.carts[cartID][productID]
	return line.Quantity, ok
}

// Mock InventoryRepository
type mockInventory struct {
	mu       sync.Mutex
	products map[string]domain.Product

	snapshotErr  []error
	decrementErr map[string]error
	decrements   map[string]int
}

func newMockInventory(products ...domain.Product) *mockInventory {
	m := &mockInventory{
		products:     make(map[string]domain.Product),
		decrementErr: make(map[string]error),
		decrements:   make(map[string]int),
	}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func product(id, name string, price string, stock int) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Category: "Test",
		Stock:    stock,
	}
}

func (m *mockInventory) Snapshot(ctx context.Context, productID string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.snapshotErr) > 0 {
		err := m.snapshotErr[0]
		m.snapshotErr = m.snapshotErr[1:]
		return nil, err
	}
	p, ok := m.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (m *mockInventory) DecrementIfAvailable(ctx context.Context, productID string, quantity int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decrements[productID]++
	if err := m.decrementErr[productID]; err != nil {
		return 0, err
	}
	p, ok := m.products[productID]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	if p.Stock < quantity {
		return p.Stock, domain.ErrInsufficientStock
	}
	p.Stock -= quantity
	m.products[productID] = p
	return p.Stock, nil
}

func (m *mockInventory) Restock(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock += quantity
	m.products[productID] = p
	return nil
}

func (m *mockInventory) ListProducts(ctx context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockInventory) stock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID].Stock
}

// Mock OrderRepository
type mockOrders struct {
	mu     sync.Mutex
	orders []domain.Order
	err    error
}

func (m *mockOrders) CreateOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.orders = append(m.orders, order)
	return nil
}

func (m *mockOrders) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == orderID {
			return &o, nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (m *mockOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// Mock PurchaseGraph returning a canned ranking.
type mockGraph struct {
	mu      sync.Mutex
	ranked  []string
	err     []error
	calls   int
	lastIn  []string
	lastLim int
}

func (m *mockGraph) CoPurchased(ctx context.Context, names []string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.lastIn = append([]string(nil), names...)
	m.lastLim = limit
	if len(m.err) > 0 {
		err := m.err[0]
		m.err = m.err[1:]
		return nil, err
	}
	return m.ranked, nil
}
