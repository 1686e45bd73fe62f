package api

import (
	"net/http"

	"github.com/ayurmart/storefront/internal/middleware"
	"github.com/ayurmart/storefront/internal/models"
	apperrors "github.com/ayurmart/storefront/pkg/errors"
	"go.uber.org/zap"
)

// SignUpHandler handles POST /api/auth/signup
func (a *App) SignUpHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SignUpRequest
	if err := decodeBody(r, &req, false); err != nil {
		a.respondError(w, r, err)
		return
	}

	session, err := a.svc.Accounts.SignUp(r.Context(), req)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	middleware.SetAuthCookie(w, a.cookies, session)
	respond(w, http.StatusCreated, session)
}

// SignInHandler handles POST /api/auth/signin
func (a *App) SignInHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SignInRequest
	if err := decodeBody(r, &req, false); err != nil {
		a.respondError(w, r, err)
		return
	}

	session, err := a.svc.Accounts.SignIn(r.Context(), req)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	middleware.SetAuthCookie(w, a.cookies, session)
	respond(w, http.StatusOK, session)
}

// SignOutHandler handles POST /api/auth/signout. It always succeeds.
func (a *App) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	if middleware.SessionFromContext(r.Context()) != nil {
		a.svc.Accounts.RecordSignOut(r.Context())
	}
	middleware.ClearAuthCookie(w, a.cookies)
	respond(w, http.StatusOK, nil)
}

// GetSessionHandler handles GET /api/auth/session. Data is null when signed out.
func (a *App) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		respond(w, http.StatusOK, nil)
		return
	}
	respond(w, http.StatusOK, session)
}

// GetProfileHandler handles GET /api/profile
func (a *App) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.Accounts.GetUser(r.Context(), currentUserID(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, user)
}

// UpdateProfileHandler handles PATCH /api/profile
func (a *App) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProfileRequest
	if err := decodeBody(r, &req, false); err != nil {
		a.respondError(w, r, err)
		return
	}

	user, err := a.svc.Accounts.UpdateProfile(r.Context(), currentUserID(r), req)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, user)
}

// ListWishlistHandler handles GET /api/wishlist
func (a *App) ListWishlistHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := a.svc.Wishlists.List(r.Context(), currentUserID(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, entries)
}

// AddToWishlistHandler handles POST /api/wishlist
func (a *App) AddToWishlistHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AddToWishlistRequest
	if err := decodeBody(r, &req, false); err != nil {
		a.respondError(w, r, err)
		return
	}

	entry, err := a.svc.Wishlists.Add(r.Context(), currentUserID(r), req.ProductID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, entry)
}

// RemoveFromWishlistHandler handles DELETE /api/wishlist/{productId}
func (a *App) RemoveFromWishlistHandler(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId", "product")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if err := a.svc.Wishlists.Remove(r.Context(), currentUserID(r), productID); err != nil {
		a.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "removed"})
}

// CreateOrderHandler handles POST /api/orders. The session cart is checked
// out and cleared once the order is committed.
func (a *App) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := decodeBody(r, &req, false); err != nil {
		a.respondError(w, r, err)
		return
	}

	cart := a.cart(r)
	items := cart.Items()
	lines := make([]models.OrderLine, 0, len(items))
	for _, it := range items {
		line := models.OrderLine{ProductID: it.Product.ID, Quantity: it.Quantity}
		if it.Variant != nil {
			id := it.Variant.ID
			line.VariantID = &id
		}
		lines = append(lines, line)
	}

	order, err := a.svc.Orders.CreateOrder(r.Context(), currentUserID(r), lines, req)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	// Lines added while the order was placed stay in the cart.
	cart.RemoveOrdered(items)
	a.logger.Debug("Checked out session cart",
		zap.String("order_number", order.OrderNumber),
		zap.Int("lines", len(lines)),
	)
	respond(w, http.StatusCreated, order)
}

// ListOrdersHandler handles GET /api/orders
func (a *App) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q, "limit")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	offset, err := intParam(q, "offset")
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	orders, err := a.svc.Orders.ListUserOrders(r.Context(), currentUserID(r), limit, offset)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, orders)
}

// GetOrderHandler handles GET /api/orders/{id}
func (a *App) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "order")
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	order, err := a.svc.Orders.GetOrder(r.Context(), currentUserID(r), id)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, order)
}

// UpdateOrderStatusHandler handles PUT /api/orders/{id}/status
func (a *App) UpdateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "order")
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	var req models.UpdateOrderStatusRequest
	if err := decodeBody(r, &req, false); err != nil {
		a.respondError(w, r, err)
		return
	}
	if req.Status == "" {
		a.respondError(w, r, apperrors.NewValidation("Status is required"))
		return
	}

	order, err := a.svc.Orders.UpdateOrderStatus(r.Context(), currentUserID(r), id, req.Status)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, order)
}
