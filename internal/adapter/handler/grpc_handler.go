package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/cart-checkout/internal/adapter/handler/cartrpc"
	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/service"
)

type GRPCHandler struct {
	cartrpc.UnimplementedCartServiceServer
	cart      *service.CartService
	checkout  *service.CheckoutService
	recommend *service.RecommendationService
	log       zerolog.Logger
}

func NewGRPCHandler(cart *service.CartService, checkout *service.CheckoutService, recommend *service.RecommendationService, log zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{cart: cart, checkout: checkout, recommend: recommend, log: log}
}

func (h *GRPCHandler) AddItem(ctx context.Context, req *cartrpc.AddItemRequest) (*cartrpc.CartMutationResponse, error) {
	qty, err := h.cart.AddItem(ctx, req.CartID, req.ProductID)
	if errors.Is(err, domain.ErrInsufficientStock) {
		return &cartrpc.CartMutationResponse{
			Success:         false,
			Message:         "sold out",
			Recommendations: h.recommendations(ctx, req.CartID),
		}, nil
	}
	if err != nil {
		return nil, grpcError(err)
	}

	return &cartrpc.CartMutationResponse{
		Success:         true,
		Message:         "item added to cart",
		Quantity:        int32(qty),
		Recommendations: h.recommendations(ctx, req.CartID),
	}, nil
}

func (h *GRPCHandler) RemoveItem(ctx context.Context, req *cartrpc.RemoveItemRequest) (*cartrpc.CartMutationResponse, error) {
	qty, err := h.cart.RemoveItem(ctx, req.CartID, req.ProductID)
	if err != nil {
		return nil, grpcError(err)
	}

	message := "item quantity decreased"
	if qty == 0 {
		message = "item removed from cart"
	}
	return &cartrpc.CartMutationResponse{
		Success:         true,
		Message:         message,
		Quantity:        int32(qty),
		Recommendations: h.recommendations(ctx, req.CartID),
	}, nil
}

func (h *GRPCHandler) GetCart(ctx context.Context, req *cartrpc.GetCartRequest) (*cartrpc.CartResponse, error) {
	cart, err := h.cart.GetCart(ctx, req.CartID)
	if err != nil {
		return nil, grpcError(err)
	}

	lines := make([]cartrpc.CartLine, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		lines = append(lines, cartrpc.CartLine{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Category:    l.Category,
			Quantity:    int32(l.Quantity),
			UnitPrice:   l.UnitPrice.StringFixed(2),
			LineTotal:   l.LineTotal().StringFixed(2),
		})
	}
	return &cartrpc.CartResponse{CartID: cart.ID, Lines: lines, Total: cart.Total().StringFixed(2)}, nil
}

func (h *GRPCHandler) ClearCart(ctx context.Context, req *cartrpc.ClearCartRequest) (*cartrpc.ClearCartResponse, error) {
	if err := h.cart.Clear(ctx, req.CartID); err != nil {
		return nil, grpcError(err)
	}
	return &cartrpc.ClearCartResponse{}, nil
}

// Checkout reports stock refusals in the response body. Only failures that
// leave nothing to report come back as status errors.
func (h *GRPCHandler) Checkout(ctx context.Context, req *cartrpc.CheckoutRequest) (*cartrpc.CheckoutResponse, error) {
	result, err := h.checkout.Checkout(ctx, req.CartID)

	resp := &cartrpc.CheckoutResponse{
		Order:       toRPCOrder(result.Order),
		Failed:      result.Failed,
		Unconfirmed: result.Unconfirmed,
	}
	if resp.Failed == nil {
		resp.Failed = []string{}
	}

	switch {
	case err == nil:
		resp.Success = true
		resp.Message = "order placed successfully"
	case errors.Is(err, domain.ErrPartialCheckout):
		resp.Message = "out of stock: " + strings.Join(result.Failed, ", ")
	case len(result.Unconfirmed) > 0:
		resp.Message = "unconfirmed: " + strings.Join(result.Unconfirmed, ", ")
	default:
		return nil, grpcError(err)
	}
	return resp, nil
}

func (h *GRPCHandler) Recommend(ctx context.Context, req *cartrpc.RecommendRequest) (*cartrpc.RecommendResponse, error) {
	recs, err := h.recommend.Recommend(ctx, req.CartID, int(req.Limit))
	if err != nil {
		return nil, grpcError(err)
	}
	return &cartrpc.RecommendResponse{Products: recs}, nil
}

func (h *GRPCHandler) recommendations(ctx context.Context, cartID string) []string {
	recs, err := h.recommend.Recommend(ctx, cartID, 0)
	if err != nil {
		h.log.Warn().Err(err).Str("cart_id", cartID).Msg("recommendations unavailable")
		return []string{}
	}
	return recs
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidCartID), errors.Is(err, domain.ErrInvalidProductID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrLineNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrEmptyCart), errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrCheckoutInProgress):
		return status.Error(codes.Aborted, err.Error())
	case domain.IsTransient(err):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}

func toRPCOrder(o *domain.Order) *cartrpc.Order {
	if o == nil {
		return nil
	}
	items := make([]cartrpc.OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, cartrpc.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  int32(it.Quantity),
			UnitPrice: it.UnitPrice.StringFixed(2),
			LineTotal: it.LineTotal.StringFixed(2),
		})
	}
	return &cartrpc.Order{
		OrderID: o.ID,
		CartID:  o.CartID,
		Items:   items,
		Total:   o.Total.StringFixed(2),
		Status:  string(o.Status),
	}
}
