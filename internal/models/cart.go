package models

// AddToCartRequest represents a request to add a line to the session cart
type AddToCartRequest struct {
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// UpdateCartItemRequest represents a quantity change of a cart line
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}
