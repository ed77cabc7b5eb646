package cartrpc

type AddItemRequest struct {
	CartID    string `json:"cart_id"`
	ProductID string `json:"product_id"`
}

type RemoveItemRequest struct {
	CartID    string `json:"cart_id"`
	ProductID string `json:"product_id"`
}

type CartMutationResponse struct {
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	Quantity        int32    `json:"quantity"`
	Recommendations []string `json:"recommendations"`
}

type GetCartRequest struct {
	CartID string `json:"cart_id"`
}

type CartLine struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Category    string `json:"category"`
	Quantity    int32  `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

type CartResponse struct {
	CartID string     `json:"cart_id"`
	Lines  []CartLine `json:"lines"`
	Total  string     `json:"total"`
}

type ClearCartRequest struct {
	CartID string `json:"cart_id"`
}

type ClearCartResponse struct{}

type CheckoutRequest struct {
	CartID string `json:"cart_id"`
}

type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type Order struct {
	OrderID string      `json:"order_id"`
	CartID  string      `json:"cart_id"`
	Items   []OrderItem `json:"items"`
	Total   string      `json:"total"`
	Status  string      `json:"status"`
}

type CheckoutResponse struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	Order       *Order   `json:"order,omitempty"`
	Failed      []string `json:"failed"`
	Unconfirmed []string `json:"unconfirmed,omitempty"`
}

type RecommendRequest struct {
	CartID string `json:"cart_id"`
	Limit  int32  `json:"limit"`
}

type RecommendResponse struct {
	Products []string `json:"products"`
}
