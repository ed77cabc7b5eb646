package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

// Purchase is one (user)-[:PURCHASED]->(product) edge.
type Purchase struct {
	UserID      string
	ProductName string
}

// MemoryGraph answers co-purchase queries from an in-process edge list.
// It follows the same counting and ordering rules as the Cypher query:
// one count per (cart product, user, other product) path, highest count
// first, equal counts by name.
type MemoryGraph struct {
	mu        sync.RWMutex
	byProduct map[string][]string
	byUser    map[string][]string
}

func NewMemoryGraph(purchases ...Purchase) *MemoryGraph {
	g := &MemoryGraph{
		byProduct: make(map[string][]string),
		byUser:    make(map[string][]string),
	}
	g.Record(purchases...)
	return g
}

func (g *MemoryGraph) Record(purchases ...Purchase) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, p := range purchases {
		g.byProduct[p.ProductName] = append(g.byProduct[p.ProductName], p.UserID)
		g.byUser[p.UserID] = append(g.byUser[p.UserID], p.ProductName)
	}
}

// RecordOrder adds an order's items as purchases by the cart that placed it.
func (g *MemoryGraph) RecordOrder(order domain.Order) {
	purchases := make([]Purchase, 0, len(order.Items))
	for _, it := range order.Items {
		purchases = append(purchases, Purchase{UserID: order.CartID, ProductName: it.Name})
	}
	g.Record(purchases...)
}

func (g *MemoryGraph) CoPurchased(_ context.Context, names []string, limit int) ([]string, error) {
	if len(names) == 0 || limit <= 0 {
		return []string{}, nil
	}

	exclude := make(map[string]struct{}, len(names))
	for _, n := range names {
		exclude[n] = struct{}{}
	}

	g.mu.RLock()
	counts := make(map[string]int)
	for _, item := range names {
		for _, user := range g.byProduct[item] {
			for _, rec := range g.byUser[user] {
				if _, skip := exclude[rec]; skip {
					continue
				}
				counts[rec]++
			}
		}
	}
	g.mu.RUnlock()

	ranked := make([]string, 0, len(counts))
	for name := range counts {
		ranked = append(ranked, name)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}
