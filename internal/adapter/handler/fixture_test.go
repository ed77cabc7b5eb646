package handler

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/adapter/storage"
	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/service"
	"github.com/rl1809/cart-checkout/internal/metrics"
	"github.com/rl1809/cart-checkout/internal/port"
)

type stubInventory struct {
	mu       sync.Mutex
	products map[string]domain.Product
}

func newStubInventory(products ...domain.Product) *stubInventory {
	inv := &stubInventory{products: make(map[string]domain.Product)}
	for _, p := range products {
		inv.products[p.ID] = p
	}
	return inv
}

func (s *stubInventory) Snapshot(ctx context.Context, productID string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (s *stubInventory) DecrementIfAvailable(ctx context.Context, productID string, quantity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	if p.Stock < quantity {
		return p.Stock, domain.ErrInsufficientStock
	}
	p.Stock -= quantity
	s.products[productID] = p
	return p.Stock, nil
}

func (s *stubInventory) Restock(ctx context.Context, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock += quantity
	s.products[productID] = p
	return nil
}

func (s *stubInventory) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *stubInventory) setStock(productID string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[productID]
	p.Stock = stock
	s.products[productID] = p
}

func (s *stubInventory) stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

type stubOrders struct {
	mu     sync.Mutex
	orders []domain.Order
}

func (s *stubOrders) CreateOrder(ctx context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, order)
	return nil
}

func (s *stubOrders) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == orderID {
			return &o, nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *stubOrders) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type fixture struct {
	mr     *miniredis.Miniredis
	inv    *stubInventory
	orders *stubOrders
	http   *HTTPHandler
	grpc   *GRPCHandler
	router http.Handler
}

// Keyboard stock 2 at 49.99, Mouse stock 10 at 19.99. Past shoppers who
// bought a Keyboard also bought a Monitor twice and a Mouse once.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithGraph(t, storage.NewMemoryGraph(
		storage.Purchase{UserID: "u1", ProductName: "Keyboard"},
		storage.Purchase{UserID: "u1", ProductName: "Mouse"},
		storage.Purchase{UserID: "u1", ProductName: "Monitor"},
		storage.Purchase{UserID: "u2", ProductName: "Keyboard"},
		storage.Purchase{UserID: "u2", ProductName: "Monitor"},
	))
}

type failingGraph struct{}

func (failingGraph) CoPurchased(context.Context, []string, int) ([]string, error) {
	return nil, errors.New("graph offline")
}

func newFixtureWithGraph(t *testing.T, graph port.PurchaseGraph) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	inv := newStubInventory(
		domain.Product{ID: "p-kb", Name: "Keyboard", Price: decimal.RequireFromString("49.99"), Category: "Peripherals", Stock: 2},
		domain.Product{ID: "p-ms", Name: "Mouse", Price: decimal.RequireFromString("19.99"), Category: "Peripherals", Stock: 10},
	)
	orders := &stubOrders{}

	reg := prometheus.NewRegistry()
	opts := []service.Option{
		service.WithMetrics(metrics.New(reg)),
		service.WithStorePolicy(service.StorePolicy{
			Timeout:     time.Second,
			ReadRetries: 1,
			RetryDelay:  time.Millisecond,
		}),
	}
	carts := storage.NewRedisAdapter(client)
	cartSvc := service.NewCartService(carts, inv, opts...)
	checkoutSvc := service.NewCheckoutService(carts, inv, orders, opts...)
	recSvc := service.NewRecommendationService(carts, graph, service.DefaultRecommendationLimit, opts...)

	h := NewHTTPHandler(cartSvc, checkoutSvc, recSvc, zerolog.Nop())
	return &fixture{
		mr:     mr,
		inv:    inv,
		orders: orders,
		http:   h,
		grpc:   NewGRPCHandler(cartSvc, checkoutSvc, recSvc, zerolog.Nop()),
		router: NewRouter(h, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), zerolog.Nop()),
	}
}
