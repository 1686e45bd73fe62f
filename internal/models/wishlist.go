package models

import "time"

// WishlistEntry is an account-scoped saved product
type WishlistEntry struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	Product   *Product  `json:"product,omitempty"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AddToWishlistRequest represents a request to save a product
type AddToWishlistRequest struct {
	ProductID int64 `json:"product_id"`
}
