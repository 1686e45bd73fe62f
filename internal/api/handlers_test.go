package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayurmart/storefront/internal/metrics"
	"github.com/ayurmart/storefront/internal/middleware"
	"github.com/ayurmart/storefront/internal/models"
	"github.com/ayurmart/storefront/internal/storage"
	"github.com/ayurmart/storefront/internal/store"
	"github.com/ayurmart/storefront/pkg/config"
	apperrors "github.com/ayurmart/storefront/pkg/errors"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProducts struct{ mock.Mock }

func (m *mockProducts) ListProducts(ctx context.Context, f models.ProductFilter) (*models.ProductListResult, error) {
	args := m.Called(ctx, f)
	res, _ := args.Get(0).(*models.ProductListResult)
	return res, args.Error(1)
}

func (m *mockProducts) SearchProducts(ctx context.Context, q string, f models.ProductFilter) (*models.ProductListResult, error) {
	args := m.Called(ctx, q, f)
	res, _ := args.Get(0).(*models.ProductListResult)
	return res, args.Error(1)
}

func (m *mockProducts) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Product)
	return p, args.Error(1)
}

func (m *mockProducts) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	args := m.Called(ctx, slug)
	p, _ := args.Get(0).(*models.Product)
	return p, args.Error(1)
}

type mockCatalog struct{ mock.Mock }

func (m *mockCatalog) ListCategories(ctx context.Context) ([]models.Category, error) {
	args := m.Called(ctx)
	c, _ := args.Get(0).([]models.Category)
	return c, args.Error(1)
}

func (m *mockCatalog) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	args := m.Called(ctx, slug)
	c, _ := args.Get(0).(*models.Category)
	return c, args.Error(1)
}

func (m *mockCatalog) ListBrands(ctx context.Context) ([]models.Brand, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).([]models.Brand)
	return b, args.Error(1)
}

type mockAccounts struct{ mock.Mock }

func (m *mockAccounts) SessionFromToken(ctx context.Context, token string) (*models.Session, error) {
	args := m.Called(ctx, token)
	s, _ := args.Get(0).(*models.Session)
	return s, args.Error(1)
}

func (m *mockAccounts) SignUp(ctx context.Context, req models.SignUpRequest) (*models.Session, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(*models.Session)
	return s, args.Error(1)
}

func (m *mockAccounts) SignIn(ctx context.Context, req models.SignInRequest) (*models.Session, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(*models.Session)
	return s, args.Error(1)
}

func (m *mockAccounts) RecordSignOut(ctx context.Context) { m.Called(ctx) }

func (m *mockAccounts) GetUser(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockAccounts) UpdateProfile(ctx context.Context, id int64, req models.UpdateProfileRequest) (*models.User, error) {
	args := m.Called(ctx, id, req)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

type mockWishlists struct{ mock.Mock }

func (m *mockWishlists) List(ctx context.Context, userID int64) ([]models.WishlistEntry, error) {
	args := m.Called(ctx, userID)
	e, _ := args.Get(0).([]models.WishlistEntry)
	return e, args.Error(1)
}

func (m *mockWishlists) Add(ctx context.Context, userID, productID int64) (*models.WishlistEntry, error) {
	args := m.Called(ctx, userID, productID)
	e, _ := args.Get(0).(*models.WishlistEntry)
	return e, args.Error(1)
}

func (m *mockWishlists) Remove(ctx context.Context, userID, productID int64) error {
	return m.Called(ctx, userID, productID).Error(0)
}

type mockOrders struct{ mock.Mock }

func (m *mockOrders) CreateOrder(ctx context.Context, userID int64, lines []models.OrderLine, req models.CreateOrderRequest) (*models.Order, error) {
	args := m.Called(ctx, userID, lines, req)
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

func (m *mockOrders) GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	args := m.Called(ctx, userID, orderID)
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

func (m *mockOrders) ListUserOrders(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error) {
	args := m.Called(ctx, userID, limit, offset)
	o, _ := args.Get(0).([]models.Order)
	return o, args.Error(1)
}

func (m *mockOrders) UpdateOrderStatus(ctx context.Context, userID, orderID int64, status models.OrderStatus) (*models.Order, error) {
	args := m.Called(ctx, userID, orderID, status)
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

type testServer struct {
	router    *mux.Router
	products  *mockProducts
	catalog   *mockCatalog
	accounts  *mockAccounts
	wishlists *mockWishlists
	orders    *mockOrders
	sessions  *store.Sessions
	sessionID string
}

const testToken = "valid-token"

var testSession = &models.Session{
	AccessToken: testToken,
	TokenType:   "Bearer",
	ExpiresAt:   time.Now().Add(time.Hour),
	User:        models.User{ID: 9, Email: "seeker@example.com"},
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		products:  &mockProducts{},
		catalog:   &mockCatalog{},
		accounts:  &mockAccounts{},
		wishlists: &mockWishlists{},
		orders:    &mockOrders{},
		sessions:  store.NewSessions(storage.NewMemory(), metrics.NewNoop(), nil, time.Hour),
		sessionID: uuid.NewString(),
	}
	ts.accounts.On("SessionFromToken", mock.Anything, testToken).Return(testSession, nil).Maybe()
	ts.accounts.On("SessionFromToken", mock.Anything, mock.Anything).
		Return(nil, apperrors.NewUnauthorized("Invalid or expired session")).Maybe()

	cfg := &config.Config{
		StoreCookieName:    "sid",
		SessionCookieName:  "auth",
		SessionTTL:         time.Hour,
		CORSAllowedOrigins: []string{"https://shop.example.com"},
	}
	app := NewApp(cfg, Services{
		Products:   ts.products,
		Categories: ts.catalog,
		Brands:     ts.catalog,
		Accounts:   ts.accounts,
		Wishlists:  ts.wishlists,
		Orders:     ts.orders,
	}, ts.sessions, metrics.NewNoop(), nil)
	ts.router = mux.NewRouter()
	app.SetupRoutes(ts.router)
	return ts
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (ts *testServer) do(t *testing.T, method, path string, body any, authed bool) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(middleware.SessionHeader, ts.sessionID)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var env response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func product(id, price int64) *models.Product {
	return &models.Product{
		ID:           id,
		Slug:         "product",
		Name:         "Product",
		BasePrice:    decimal.NewFromInt(price),
		SellingPrice: decimal.NewFromInt(price),
		Variants: []models.ProductVariant{
			{ID: 70, ProductID: id, Name: "120 tablets"},
		},
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec, env := ts.do(t, http.MethodGet, "/health", nil, false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"status":"healthy"}`, string(env.Data))
}

func TestCORSPreflightThroughRouter(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/cart/items", "/api/cart/items/abc", "/api/wishlist", "/api/orders/7/status", "/health"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, path, nil)
			req.Header.Set("Origin", "https://shop.example.com")
			req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
			rec := httptest.NewRecorder()
			ts.router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Session-ID")
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestCORSHeadersOnRoutedRequest(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSearchWithEmptyQueryIs400(t *testing.T) {
	ts := newTestServer(t)
	ts.products.On("SearchProducts", mock.Anything, "", mock.Anything).
		Return(nil, apperrors.NewValidation("Search query is required"))

	rec, env := ts.do(t, http.MethodGet, "/api/search?q=", nil, false)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Search query is required", env.Error)
}

func TestListProductsParsesFilter(t *testing.T) {
	ts := newTestServer(t)
	ts.products.On("ListProducts", mock.Anything, mock.MatchedBy(func(f models.ProductFilter) bool {
		return f.SortBy == models.SortPriceAsc &&
			assert.ObjectsAreEqual([]int64{1, 2}, f.BrandIDs) &&
			f.PriceMin != nil && f.PriceMin.Equal(decimal.NewFromInt(100)) &&
			f.PrescriptionRequired != nil && *f.PrescriptionRequired &&
			f.InStock && f.Limit == models.DefaultPageLimit &&
			f.Constitution == models.ConstitutionKapha
	})).Return(&models.ProductListResult{Items: []models.Product{}, Total: 0}, nil)

	rec, env := ts.do(t, http.MethodGet,
		"/api/products?sort=price_asc&brands=1,2&priceMin=100&prescription=true&inStock=true&constitution=Kapha", nil, false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	ts.products.AssertExpectations(t)
}

func TestListProductsRejectsMalformedFilter(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodGet, "/api/products?priceMin=cheap", nil, false)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid priceMin filter", env.Error)
	ts.products.AssertNotCalled(t, "ListProducts", mock.Anything, mock.Anything)
}

func TestGetProductByIDOrSlug(t *testing.T) {
	ts := newTestServer(t)
	ts.products.On("GetProduct", mock.Anything, int64(42)).Return(product(42, 100), nil)
	ts.products.On("GetProductBySlug", mock.Anything, "missing").Return(nil, apperrors.NewNotFound("Product"))

	rec, _ := ts.do(t, http.MethodGet, "/api/products/42", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := ts.do(t, http.MethodGet, "/api/products/missing", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Product not found", env.Error)
}

func TestInternalErrorsHideCause(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.On("ListBrands", mock.Anything).
		Return(nil, apperrors.NewFetchFailed("brands", errors.New("dial tcp 10.0.0.5:3306: refused")))

	rec, env := ts.do(t, http.MethodGet, "/api/brands", nil, false)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to fetch brands", env.Error)
}

func decodeCart(t *testing.T, env response) store.CartSummary {
	t.Helper()
	var summary store.CartSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	return summary
}

func TestCartScenario(t *testing.T) {
	ts := newTestServer(t)
	ts.products.On("GetProduct", mock.Anything, int64(1)).Return(product(1, 1999), nil)

	ts.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": 1}, false)
	rec, env := ts.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": 1, "quantity": 1}, false)
	require.Equal(t, http.StatusCreated, rec.Code)

	summary := decodeCart(t, env)
	require.Len(t, summary.Items, 1)
	assert.Equal(t, 2, summary.TotalItems)
	assert.True(t, summary.TotalPrice.Equal(decimal.NewFromInt(3998)))

	itemID := summary.Items[0].ID
	_, env = ts.do(t, http.MethodPatch, "/api/cart/items/"+itemID, map[string]any{"quantity": 0}, false)
	summary = decodeCart(t, env)
	assert.Empty(t, summary.Items)
	assert.Equal(t, 0, summary.TotalItems)

	rec, env = ts.do(t, http.MethodPatch, "/api/cart/items/"+itemID, map[string]any{"quantity": 3}, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Cart item not found", env.Error)
}

func TestCartIsScopedToSession(t *testing.T) {
	ts := newTestServer(t)
	ts.products.On("GetProduct", mock.Anything, int64(1)).Return(product(1, 10), nil)
	ts.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": 1}, false)

	ts.sessionID = uuid.NewString()
	_, env := ts.do(t, http.MethodGet, "/api/cart", nil, false)

	assert.Empty(t, decodeCart(t, env).Items)
}

func TestAddToCartValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.products.On("GetProduct", mock.Anything, int64(1)).Return(product(1, 10), nil)

	rec, env := ts.do(t, http.MethodPost, "/api/cart/items", map[string]any{}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Product ID is required", env.Error)

	rec, env = ts.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": 1, "variant_id": 999}, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Variant not found", env.Error)

	rec, env = ts.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": 1, "variant_id": 70}, false)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "120 tablets", decodeCart(t, env).Items[0].Variant.Name)
}

func TestToggleCart(t *testing.T) {
	ts := newTestServer(t)

	_, env := ts.do(t, http.MethodPost, "/api/cart/toggle", nil, false)
	assert.True(t, decodeCart(t, env).IsOpen)

	_, env = ts.do(t, http.MethodPost, "/api/cart/toggle", map[string]any{"open": false}, false)
	assert.False(t, decodeCart(t, env).IsOpen)
}

func TestSessionWishlistIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	ts.products.On("GetProduct", mock.Anything, int64(2)).Return(product(2, 249), nil)

	ts.do(t, http.MethodPost, "/api/session/wishlist", map[string]any{"product_id": 2}, false)
	_, env := ts.do(t, http.MethodPost, "/api/session/wishlist", map[string]any{"product_id": 2}, false)

	var wl wishlistSummary
	require.NoError(t, json.Unmarshal(env.Data, &wl))
	assert.Equal(t, 1, wl.TotalItems)

	_, env = ts.do(t, http.MethodDelete, "/api/session/wishlist/2", nil, false)
	require.NoError(t, json.Unmarshal(env.Data, &wl))
	assert.Equal(t, 0, wl.TotalItems)
}

func TestAccountRoutesRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/profile", "/api/wishlist", "/api/orders", "/api/orders/1"} {
		rec, env := ts.do(t, http.MethodGet, path, nil, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.False(t, env.Success)
	}
}

func TestWishlistDuplicateIs409(t *testing.T) {
	ts := newTestServer(t)
	ts.wishlists.On("Add", mock.Anything, int64(9), int64(2)).
		Return(&models.WishlistEntry{ID: 1, UserID: 9, ProductID: 2}, nil).Once()
	ts.wishlists.On("Add", mock.Anything, int64(9), int64(2)).
		Return(nil, apperrors.NewConflict("Product already in wishlist")).Once()

	rec, _ := ts.do(t, http.MethodPost, "/api/wishlist", map[string]any{"product_id": 2}, true)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env := ts.do(t, http.MethodPost, "/api/wishlist", map[string]any{"product_id": 2}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Product already in wishlist", env.Error)
}

func TestCheckoutClearsCart(t *testing.T) {
	ts := newTestServer(t)
	ts.products.On("GetProduct", mock.Anything, int64(1)).Return(product(1, 500), nil)
	ts.orders.On("CreateOrder", mock.Anything, int64(9), []models.OrderLine{{ProductID: 1, Quantity: 2}}, mock.Anything).
		Return(&models.Order{ID: 77, OrderNumber: "AYR-20240301-ABCDEF12", UserID: 9}, nil)

	ts.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": 1, "quantity": 2}, false)
	rec, env := ts.do(t, http.MethodPost, "/api/orders", map[string]any{"payment_method": "cod"}, true)

	require.Equal(t, http.StatusCreated, rec.Code, env.Error)
	assert.Equal(t, 0, ts.sessions.Cart(ts.sessionID).TotalItems())
}

func TestCheckoutKeepsLinesAddedDuringOrder(t *testing.T) {
	ts := newTestServer(t)
	ts.products.On("GetProduct", mock.Anything, int64(1)).Return(product(1, 500), nil)
	ts.orders.On("CreateOrder", mock.Anything, int64(9), []models.OrderLine{{ProductID: 1, Quantity: 2}}, mock.Anything).
		Run(func(mock.Arguments) {
			// A parallel request on the same session adds to the cart.
			ts.sessions.Cart(ts.sessionID).AddItem(*product(2, 300), 1, nil)
		}).
		Return(&models.Order{ID: 78, OrderNumber: "AYR-20240301-ABCDEF13", UserID: 9}, nil)

	ts.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": 1, "quantity": 2}, false)
	rec, env := ts.do(t, http.MethodPost, "/api/orders", map[string]any{"payment_method": "cod"}, true)

	require.Equal(t, http.StatusCreated, rec.Code, env.Error)
	items := ts.sessions.Cart(ts.sessionID).Items()
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].Product.ID)
}

func TestCheckoutEmptyCartIs400(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.On("CreateOrder", mock.Anything, int64(9), []models.OrderLine{}, mock.Anything).
		Return(nil, apperrors.NewValidation("Cart is empty"))

	rec, env := ts.do(t, http.MethodPost, "/api/orders", map[string]any{}, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cart is empty", env.Error)
}

func TestSignInSetsCookieAndSessionEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.accounts.On("SignIn", mock.Anything, models.SignInRequest{Email: "seeker@example.com", Password: "secret123"}).
		Return(testSession, nil)
	ts.accounts.On("RecordSignOut", mock.Anything).Return()

	rec, _ := ts.do(t, http.MethodPost, "/api/auth/signin",
		map[string]any{"email": "seeker@example.com", "password": "secret123"}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var authCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "auth" {
			authCookie = c
		}
	}
	require.NotNil(t, authCookie)
	assert.Equal(t, testToken, authCookie.Value)

	_, env := ts.do(t, http.MethodGet, "/api/auth/session", nil, false)
	assert.Empty(t, env.Data)

	_, env = ts.do(t, http.MethodGet, "/api/auth/session", nil, true)
	var session models.Session
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, int64(9), session.User.ID)

	rec, env = ts.do(t, http.MethodPost, "/api/auth/signout", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	ts.accounts.AssertCalled(t, "RecordSignOut", mock.Anything)
}

func TestCancelOrder(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.On("UpdateOrderStatus", mock.Anything, int64(9), int64(77), models.OrderCancelled).
		Return(&models.Order{ID: 77, Status: models.OrderCancelled}, nil)

	rec, _ := ts.do(t, http.MethodPut, "/api/orders/77/status", map[string]any{"status": "cancelled"}, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := ts.do(t, http.MethodPut, "/api/orders/abc/status", map[string]any{"status": "cancelled"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid order ID", env.Error)
}
