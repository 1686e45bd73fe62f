package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ayurmart/storefront/internal/models"
	apperrors "github.com/ayurmart/storefront/pkg/errors"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// parseProductFilter reads the catalog query parameters. Unknown sort keys
// fall back to featured; malformed numbers are rejected.
func parseProductFilter(q url.Values) (models.ProductFilter, error) {
	f := models.ProductFilter{
		CategorySlug: q.Get("category"),
		Search:       strings.TrimSpace(q.Get("q")),
		SortBy:       models.ParseSortKey(q.Get("sort")),
		InStock:      q.Get("inStock") == "true",
		Featured:     q.Get("featured") == "true",
		Constitution: models.Constitution(strings.ToLower(q.Get("constitution"))),
	}

	if v := q.Get("brands"); v != "" {
		for _, part := range strings.Split(v, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return f, apperrors.NewValidation("Invalid brands filter")
			}
			f.BrandIDs = append(f.BrandIDs, id)
		}
	}

	decimals := []struct {
		name string
		dst  **decimal.Decimal
	}{
		{"priceMin", &f.PriceMin},
		{"priceMax", &f.PriceMax},
		{"rating", &f.MinRating},
	}
	for _, d := range decimals {
		if v := q.Get(d.name); v != "" {
			parsed, err := decimal.NewFromString(v)
			if err != nil {
				return f, apperrors.NewValidation("Invalid " + d.name + " filter")
			}
			*d.dst = &parsed
		}
	}

	if v := q.Get("prescription"); v != "" {
		rx, err := strconv.ParseBool(v)
		if err != nil {
			return f, apperrors.NewValidation("Invalid prescription filter")
		}
		f.PrescriptionRequired = &rx
	}

	var err error
	if f.Limit, err = intParam(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q, "offset"); err != nil {
		return f, err
	}
	f.Normalize()
	return f, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.NewValidation("Invalid " + name)
	}
	return n, nil
}

// ListProductsHandler handles GET /api/products
func (a *App) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseProductFilter(r.URL.Query())
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	result, err := a.svc.Products.ListProducts(r.Context(), filter)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// SearchProductsHandler handles GET /api/search
func (a *App) SearchProductsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseProductFilter(r.URL.Query())
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	result, err := a.svc.Products.SearchProducts(r.Context(), r.URL.Query().Get("q"), filter)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// GetProductHandler handles GET /api/products/{slug}. Numeric values are
// looked up by ID.
func (a *App) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["slug"]

	var (
		product *models.Product
		err     error
	)
	if id, convErr := strconv.ParseInt(key, 10, 64); convErr == nil {
		product, err = a.svc.Products.GetProduct(r.Context(), id)
	} else {
		product, err = a.svc.Products.GetProductBySlug(r.Context(), key)
	}
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, product)
}

// ListCategoriesHandler handles GET /api/categories
func (a *App) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := a.svc.Categories.ListCategories(r.Context())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, categories)
}

// GetCategoryHandler handles GET /api/categories/{slug}
func (a *App) GetCategoryHandler(w http.ResponseWriter, r *http.Request) {
	category, err := a.svc.Categories.GetCategoryBySlug(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, category)
}

// ListBrandsHandler handles GET /api/brands
func (a *App) ListBrandsHandler(w http.ResponseWriter, r *http.Request) {
	brands, err := a.svc.Brands.ListBrands(r.Context())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, brands)
}
