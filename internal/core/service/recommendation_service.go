package service

import (
	"context"
	"fmt"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

const DefaultRecommendationLimit = 5

// RecommendationService suggests products from co-purchase history. It
// only reads; a stale cart view is acceptable.
type RecommendationService struct {
	carts        port.CartRepository
	graph        port.PurchaseGraph
	defaultLimit int
	options
}

func NewRecommendationService(carts port.CartRepository, graph port.PurchaseGraph, defaultLimit int, opts ...Option) *RecommendationService {
	if defaultLimit <= 0 {
		defaultLimit = DefaultRecommendationLimit
	}
	return &RecommendationService{
		carts:        carts,
		graph:        graph,
		defaultLimit: defaultLimit,
		options:      newOptions(opts),
	}
}

// Recommend reads the cart's product names and ranks co-purchased products.
func (s *RecommendationService) Recommend(ctx context.Context, cartID string, limit int) ([]string, error) {
	if err := validateIDs(cartID); err != nil {
		return nil, err
	}

	lines, err := read(ctx, s.options, func(ctx context.Context) ([]domain.CartLine, error) {
		return s.carts.Lines(ctx, cartID)
	})
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	return s.RecommendFor(ctx, domain.Cart{ID: cartID, Lines: lines}.ProductNames(), limit)
}

// RecommendFor never returns one of names and never more than limit
// entries. A non-positive limit uses the default.
func (s *RecommendationService) RecommendFor(ctx context.Context, names []string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}

	inCart := make(map[string]struct{}, len(names))
	unique := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, dup := inCart[n]; dup {
			continue
		}
		inCart[n] = struct{}{}
		unique = append(unique, n)
	}
	if len(unique) == 0 {
		return []string{}, nil
	}

	ranked, err := read(ctx, s.options, func(ctx context.Context) ([]string, error) {
		return s.graph.CoPurchased(ctx, unique, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("query purchase graph: %w", err)
	}

	out := make([]string, 0, min(len(ranked), limit))
	seen := make(map[string]struct{}, len(ranked))
	for _, name := range ranked {
		if len(out) == limit {
			break
		}
		if _, skip := inCart[name]; skip {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}
