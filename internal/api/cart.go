package api

import (
	"net/http"

	"github.com/ayurmart/storefront/internal/middleware"
	"github.com/ayurmart/storefront/internal/models"
	"github.com/ayurmart/storefront/internal/store"
	apperrors "github.com/ayurmart/storefront/pkg/errors"
	"github.com/gorilla/mux"
)

func (a *App) cart(r *http.Request) *store.Cart {
	return a.sessions.Cart(middleware.StoreSessionID(r.Context()))
}

// GetCartHandler handles GET /api/cart
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, a.cart(r).Summary())
}

// AddToCartHandler handles POST /api/cart/items. The product (and variant)
// is read from the catalog so the cart line carries a current snapshot.
func (a *App) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AddToCartRequest
	if err := decodeBody(r, &req, false); err != nil {
		a.respondError(w, r, err)
		return
	}
	if req.ProductID <= 0 {
		a.respondError(w, r, apperrors.NewValidation("Product ID is required"))
		return
	}

	product, err := a.svc.Products.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	var variant *models.ProductVariant
	if req.VariantID != nil {
		v, ok := product.Variant(*req.VariantID)
		if !ok {
			a.respondError(w, r, apperrors.NewNotFound("Variant"))
			return
		}
		variant = v
	}

	cart := a.cart(r)
	cart.AddItem(*product, req.Quantity, variant)
	respond(w, http.StatusCreated, cart.Summary())
}

// UpdateCartItemHandler handles PATCH /api/cart/items/{id}. A quantity of
// zero or less removes the line.
func (a *App) UpdateCartItemHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateCartItemRequest
	if err := decodeBody(r, &req, false); err != nil {
		a.respondError(w, r, err)
		return
	}

	cart := a.cart(r)
	itemID := mux.Vars(r)["id"]
	if _, ok := cart.Item(itemID); !ok {
		a.respondError(w, r, apperrors.NewNotFound("Cart item"))
		return
	}
	cart.UpdateQuantity(itemID, req.Quantity)
	respond(w, http.StatusOK, cart.Summary())
}

// RemoveCartItemHandler handles DELETE /api/cart/items/{id}
func (a *App) RemoveCartItemHandler(w http.ResponseWriter, r *http.Request) {
	cart := a.cart(r)
	cart.RemoveItem(mux.Vars(r)["id"])
	respond(w, http.StatusOK, cart.Summary())
}

// ClearCartHandler handles DELETE /api/cart
func (a *App) ClearCartHandler(w http.ResponseWriter, r *http.Request) {
	cart := a.cart(r)
	cart.Clear()
	respond(w, http.StatusOK, cart.Summary())
}

// ToggleCartHandler handles POST /api/cart/toggle. With {"open": bool} the
// flag is set explicitly; with no body it flips.
func (a *App) ToggleCartHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Open *bool `json:"open"`
	}
	if err := decodeBody(r, &req, true); err != nil {
		a.respondError(w, r, err)
		return
	}

	cart := a.cart(r)
	switch {
	case req.Open == nil:
		cart.Toggle()
	case *req.Open:
		cart.Open()
	default:
		cart.Close()
	}
	respond(w, http.StatusOK, cart.Summary())
}

// wishlistSummary is the guest wishlist response.
type wishlistSummary struct {
	Items      []models.Product `json:"items"`
	TotalItems int              `json:"total_items"`
}

func (a *App) sessionWishlist(r *http.Request) *store.Wishlist {
	return a.sessions.Wishlist(middleware.StoreSessionID(r.Context()))
}

func summarizeWishlist(wl *store.Wishlist) wishlistSummary {
	items := wl.Items()
	if items == nil {
		items = []models.Product{}
	}
	return wishlistSummary{Items: items, TotalItems: len(items)}
}

// GetSessionWishlistHandler handles GET /api/session/wishlist
func (a *App) GetSessionWishlistHandler(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, summarizeWishlist(a.sessionWishlist(r)))
}

// AddToSessionWishlistHandler handles POST /api/session/wishlist. Adding a
// saved product again is a no-op.
func (a *App) AddToSessionWishlistHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AddToWishlistRequest
	if err := decodeBody(r, &req, false); err != nil {
		a.respondError(w, r, err)
		return
	}
	if req.ProductID <= 0 {
		a.respondError(w, r, apperrors.NewValidation("Product ID is required"))
		return
	}

	product, err := a.svc.Products.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	wl := a.sessionWishlist(r)
	wl.Add(*product)
	respond(w, http.StatusOK, summarizeWishlist(wl))
}

// RemoveFromSessionWishlistHandler handles DELETE /api/session/wishlist/{productId}
func (a *App) RemoveFromSessionWishlistHandler(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId", "product")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	wl := a.sessionWishlist(r)
	wl.Remove(productID)
	respond(w, http.StatusOK, summarizeWishlist(wl))
}

// ClearSessionWishlistHandler handles DELETE /api/session/wishlist
func (a *App) ClearSessionWishlistHandler(w http.ResponseWriter, r *http.Request) {
	wl := a.sessionWishlist(r)
	wl.Clear()
	respond(w, http.StatusOK, summarizeWishlist(wl))
}
