package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/service"
)

type HTTPHandler struct {
	cart      *service.CartService
	checkout  *service.CheckoutService
	recommend *service.RecommendationService
	validate  *validator.Validate
	log       zerolog.Logger
}

type AddItemHTTPRequest struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
}

type CartMutationHTTPResponse struct {
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	Quantity        int      `json:"quantity"`
	Recommendations []string `json:"recommendations"`
}

type CartLineHTTPResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Category    string `json:"category"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

type CartHTTPResponse struct {
	CartID string                 `json:"cart_id"`
	Lines  []CartLineHTTPResponse `json:"lines"`
	Total  string                 `json:"total"`
}

type OrderItemHTTPResponse struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type OrderHTTPResponse struct {
	OrderID   string                  `json:"order_id"`
	CartID    string                  `json:"cart_id"`
	Items     []OrderItemHTTPResponse `json:"items"`
	Total     string                  `json:"total"`
	Status    string                  `json:"status"`
	CreatedAt string                  `json:"created_at"`
}

type CheckoutHTTPResponse struct {
	Success     bool               `json:"success"`
	Message     string             `json:"message"`
	Order       *OrderHTTPResponse `json:"order,omitempty"`
	Failed      []string           `json:"failed"`
	Unconfirmed []string           `json:"unconfirmed,omitempty"`
}

type ProductHTTPResponse struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Category  string `json:"category"`
	Stock     int    `json:"stock"`
}

type ErrorHTTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func NewHTTPHandler(cart *service.CartService, checkout *service.CheckoutService, recommend *service.RecommendationService, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		cart:      cart,
		checkout:  checkout,
		recommend: recommend,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       log,
	}
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.cart.Products(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]ProductHTTPResponse, 0, len(products))
	for _, p := range products {
		out = append(out, ProductHTTPResponse{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price.StringFixed(2),
			Category:  p.Category,
			Stock:     p.Stock,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.cart.GetCart(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Message: "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Message: "missing required fields"})
		return
	}

	cartID := chi.URLParam(r, "cartID")
	qty, err := h.cart.AddItem(r.Context(), cartID, req.ProductID)
	if errors.Is(err, domain.ErrInsufficientStock) {
		writeJSON(w, http.StatusGone, CartMutationHTTPResponse{
			Message:         "Unable to add another item - out of stock",
			Recommendations: h.recommendations(r, cartID),
		})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CartMutationHTTPResponse{
		Success:         true,
		Message:         "Added item to cart",
		Quantity:        qty,
		Recommendations: h.recommendations(r, cartID),
	})
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartID")
	productID := chi.URLParam(r, "productID")

	qty, err := h.cart.RemoveItem(r.Context(), cartID, productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	message := fmt.Sprintf("Decreased quantity of '%s' in cart.", productID)
	if qty == 0 {
		message = fmt.Sprintf("Removed '%s' from cart.", productID)
	}
	writeJSON(w, http.StatusOK, CartMutationHTTPResponse{
		Success:         true,
		Message:         message,
		Quantity:        qty,
		Recommendations: h.recommendations(r, cartID),
	})
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Clear(r.Context(), chi.URLParam(r, "cartID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	result, err := h.checkout.Checkout(r.Context(), chi.URLParam(r, "cartID"))

	resp := CheckoutHTTPResponse{
		Order:       toOrderResponse(result.Order),
		Failed:      result.Failed,
		Unconfirmed: result.Unconfirmed,
	}
	if resp.Failed == nil {
		resp.Failed = []string{}
	}

	var partial *domain.PartialCheckoutError
	switch {
	case err == nil:
		resp.Success = true
		resp.Message = "Purchase successful"
		writeJSON(w, http.StatusOK, resp)
	case errors.As(err, &partial):
		resp.Message = "The following items could not be purchased, because we're out of stock: " + strings.Join(partial.Failed, ", ")
		writeJSON(w, http.StatusConflict, resp)
	case len(result.Unconfirmed) > 0:
		resp.Message = "Some items could not be confirmed, please retry: " + strings.Join(result.Unconfirmed, ", ")
		writeJSON(w, http.StatusServiceUnavailable, resp)
	default:
		h.writeError(w, r, err)
	}
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.checkout.Order(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Message: "invalid limit"})
			return
		}
		limit = n
	}

	recs, err := h.recommend.Recommend(r.Context(), chi.URLParam(r, "cartID"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"recommendations": recs})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// recommendations never fails the request it rides on.
func (h *HTTPHandler) recommendations(r *http.Request, cartID string) []string {
	recs, err := h.recommend.Recommend(r.Context(), cartID, 0)
	if err != nil {
		h.log.Warn().Err(err).Str("cart_id", cartID).Msg("recommendations unavailable")
		return []string{}
	}
	return recs
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := httpStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, ErrorHTTPResponse{Message: message})
}

func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidCartID), errors.Is(err, domain.ErrInvalidProductID):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, "Product not found"
	case errors.Is(err, domain.ErrLineNotFound):
		return http.StatusNotFound, "product not in cart"
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusGone, "sold out"
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusUnprocessableEntity, "Your cart is empty."
	case errors.Is(err, domain.ErrCheckoutInProgress):
		return http.StatusConflict, "checkout already in progress"
	case domain.IsTransient(err):
		return http.StatusServiceUnavailable, "store unavailable, please retry"
	}
	return http.StatusInternalServerError, "internal error"
}

func toCartResponse(c domain.Cart) CartHTTPResponse {
	lines := make([]CartLineHTTPResponse, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, CartLineHTTPResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Category:    l.Category,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.StringFixed(2),
			LineTotal:   l.LineTotal().StringFixed(2),
		})
	}
	return CartHTTPResponse{CartID: c.ID, Lines: lines, Total: c.Total().StringFixed(2)}
}

func toOrderResponse(o *domain.Order) *OrderHTTPResponse {
	if o == nil {
		return nil
	}
	items := make([]OrderItemHTTPResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemHTTPResponse{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
			LineTotal: it.LineTotal.StringFixed(2),
		})
	}
	return &OrderHTTPResponse{
		OrderID:   o.ID,
		CartID:    o.CartID,
		Items:     items,
		Total:     o.Total.StringFixed(2),
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
