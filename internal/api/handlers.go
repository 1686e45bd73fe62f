package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ayurmart/storefront/internal/metrics"
	"github.com/ayurmart/storefront/internal/middleware"
	"github.com/ayurmart/storefront/internal/models"
	"github.com/ayurmart/storefront/internal/store"
	"github.com/ayurmart/storefront/pkg/config"
	apperrors "github.com/ayurmart/storefront/pkg/errors"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ProductCatalog reads products.
type ProductCatalog interface {
	ListProducts(ctx context.Context, f models.ProductFilter) (*models.ProductListResult, error)
	SearchProducts(ctx context.Context, query string, f models.ProductFilter) (*models.ProductListResult, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*models.Product, error)
}

type CategoryCatalog interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error)
}

type BrandCatalog interface {
	ListBrands(ctx context.Context) ([]models.Brand, error)
}

// Accounts is the auth backend: accounts, sessions and profiles.
type Accounts interface {
	middleware.SessionResolver
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.Session, error)
	SignIn(ctx context.Context, req models.SignInRequest) (*models.Session, error)
	RecordSignOut(ctx context.Context)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateProfile(ctx context.Context, id int64, req models.UpdateProfileRequest) (*models.User, error)
}

// Wishlists is the account-scoped wishlist.
type Wishlists interface {
	List(ctx context.Context, userID int64) ([]models.WishlistEntry, error)
	Add(ctx context.Context, userID, productID int64) (*models.WishlistEntry, error)
	Remove(ctx context.Context, userID, productID int64) error
}

type Orders interface {
	CreateOrder(ctx context.Context, userID int64, lines []models.OrderLine, req models.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error)
	ListUserOrders(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, userID, orderID int64, status models.OrderStatus) (*models.Order, error)
}

// Pinger reports database health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Services groups the backends the handlers call.
type Services struct {
	Products   ProductCatalog
	Categories CategoryCatalog
	Brands     BrandCatalog
	Accounts   Accounts
	Wishlists  Wishlists
	Orders     Orders
	DB         Pinger
}

// App holds application dependencies
type App struct {
	config   *config.Config
	cookies  middleware.CookieOptions
	svc      Services
	sessions *store.Sessions
	metrics  *metrics.AppMetrics
	logger   *zap.Logger
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, svc Services, sessions *store.Sessions, m *metrics.AppMetrics, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &App{
		config: cfg,
		cookies: middleware.CookieOptions{
			StoreName: cfg.StoreCookieName,
			AuthName:  cfg.SessionCookieName,
			Secure:    cfg.CookieSecure,
			MaxAge:    cfg.SessionTTL,
		},
		svc:      svc,
		sessions: sessions,
		metrics:  m,
		logger:   logger,
	}
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.CORSMiddleware(a.config.CORSAllowedOrigins))
	r.Use(middleware.ErrorHandlerMiddleware(a.logger))
	r.Use(middleware.StoreSessionMiddleware(a.cookies))
	r.Use(middleware.AuthMiddleware(a.svc.Accounts, a.cookies, a.logger))
	r.Use(middleware.MetricsMiddleware(a.metrics, a.logger))

	// Routes are method-bound, so preflights need their own match for the
	// middleware chain to run.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	api := r.PathPrefix("/api").Subrouter()

	// Catalog
	api.HandleFunc("/products", a.ListProductsHandler).Methods(http.MethodGet)
	api.HandleFunc("/products/{slug}", a.GetProductHandler).Methods(http.MethodGet)
	api.HandleFunc("/search", a.SearchProductsHandler).Methods(http.MethodGet)
	api.HandleFunc("/categories", a.ListCategoriesHandler).Methods(http.MethodGet)
	api.HandleFunc("/categories/{slug}", a.GetCategoryHandler).Methods(http.MethodGet)
	api.HandleFunc("/brands", a.ListBrandsHandler).Methods(http.MethodGet)

	// Session cart
	api.HandleFunc("/cart", a.GetCartHandler).Methods(http.MethodGet)
	api.HandleFunc("/cart", a.ClearCartHandler).Methods(http.MethodDelete)
	api.HandleFunc("/cart/items", a.AddToCartHandler).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{id}", a.UpdateCartItemHandler).Methods(http.MethodPatch)
	api.HandleFunc("/cart/items/{id}", a.RemoveCartItemHandler).Methods(http.MethodDelete)
	api.HandleFunc("/cart/toggle", a.ToggleCartHandler).Methods(http.MethodPost)

	// Session (guest) wishlist
	api.HandleFunc("/session/wishlist", a.GetSessionWishlistHandler).Methods(http.MethodGet)
	api.HandleFunc("/session/wishlist", a.AddToSessionWishlistHandler).Methods(http.MethodPost)
	api.HandleFunc("/session/wishlist", a.ClearSessionWishlistHandler).Methods(http.MethodDelete)
	api.HandleFunc("/session/wishlist/{productId}", a.RemoveFromSessionWishlistHandler).Methods(http.MethodDelete)

	// Auth
	api.HandleFunc("/auth/signup", a.SignUpHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", a.SignInHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/signout", a.SignOutHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/session", a.GetSessionHandler).Methods(http.MethodGet)

	// Account
	api.Handle("/profile", protected(a.GetProfileHandler)).Methods(http.MethodGet)
	api.Handle("/profile", protected(a.UpdateProfileHandler)).Methods(http.MethodPatch)
	api.Handle("/wishlist", protected(a.ListWishlistHandler)).Methods(http.MethodGet)
	api.Handle("/wishlist", protected(a.AddToWishlistHandler)).Methods(http.MethodPost)
	api.Handle("/wishlist/{productId}", protected(a.RemoveFromWishlistHandler)).Methods(http.MethodDelete)
	api.Handle("/orders", protected(a.ListOrdersHandler)).Methods(http.MethodGet)
	api.Handle("/orders", protected(a.CreateOrderHandler)).Methods(http.MethodPost)
	api.Handle("/orders/{id}", protected(a.GetOrderHandler)).Methods(http.MethodGet)
	api.Handle("/orders/{id}/status", protected(a.UpdateOrderStatusHandler)).Methods(http.MethodPut)

	// Health
	r.HandleFunc("/health", a.HealthHandler).Methods(http.MethodGet)
}

func protected(h http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(h)
}

// HealthHandler handles health check requests
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if a.svc.DB != nil {
		if err := a.svc.DB.PingContext(r.Context()); err != nil {
			a.logger.Warn("Health check failed", zap.Error(err))
			respond(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	respond(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// envelope is the shape of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// respondError writes the client-safe message of err. Internal causes are
// logged, never sent.
func (a *App) respondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.As(err)
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		a.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: appErr.Message})
}

// decodeBody decodes a JSON body into dst. An empty body is allowed when
// optional is set.
func decodeBody(r *http.Request, dst any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	if err != nil {
		return apperrors.NewValidation("Invalid request body")
	}
	return nil
}

func pathID(r *http.Request, name, what string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidation("Invalid " + what + " ID")
	}
	return id, nil
}

func currentUserID(r *http.Request) int64 {
	return middleware.SessionFromContext(r.Context()).User.ID
}
