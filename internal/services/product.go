package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayurmart/storefront/internal/cache"
	"github.com/ayurmart/storefront/internal/db"
	"github.com/ayurmart/storefront/internal/metrics"
	"github.com/ayurmart/storefront/internal/models"
	apperrors "github.com/ayurmart/storefront/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const productColumns = `p.id, p.slug, p.sku, p.name, p.short_description, p.description,
	p.base_price, p.selling_price, p.discount_percentage, p.stock_quantity, p.low_stock_threshold,
	p.is_featured, p.is_active, p.prescription_required, p.constitution, p.rating_average,
	p.rating_count, p.created_at, p.updated_at, b.id, b.name, b.slug`

const productFrom = `products p LEFT JOIN brands b ON b.id = p.brand_id`

var sortClauses = map[models.SortKey]string{
	models.SortName:      "p.name ASC",
	models.SortPriceAsc:  "p.selling_price ASC, p.id ASC",
	models.SortPriceDesc: "p.selling_price DESC, p.id ASC",
	models.SortRating:    "p.rating_average DESC, p.rating_count DESC, p.id ASC",
	models.SortNewest:    "p.created_at DESC, p.id DESC",
	models.SortFeatured:  "p.is_featured DESC, p.created_at DESC, p.id DESC",
}

// ProductService handles catalog reads
type ProductService struct {
	db       *db.DB
	metrics  *metrics.AppMetrics
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(db *db.DB, m *metrics.AppMetrics, c cache.Cache, cacheTTL time.Duration, logger *zap.Logger) *ProductService {
	if c == nil {
		c = cache.NewInMemory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{db: db, metrics: m, cache: c, cacheTTL: cacheTTL, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (models.Product, error) {
	var (
		p                    models.Product
		shortDesc, desc      sql.NullString
		dosha                sql.NullString
		brandID              sql.NullInt64
		brandName, brandSlug sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Slug, &p.SKU, &p.Name, &shortDesc, &desc,
		&p.BasePrice, &p.SellingPrice, &p.DiscountPercentage, &p.StockQuantity, &p.LowStockThreshold,
		&p.IsFeatured, &p.IsActive, &p.PrescriptionRequired, &dosha, &p.RatingAverage,
		&p.RatingCount, &p.CreatedAt, &p.UpdatedAt, &brandID, &brandName, &brandSlug,
	)
	if err != nil {
		return p, err
	}
	p.ShortDescription = shortDesc.String
	p.Description = desc.String
	p.Constitution = models.Constitution(dosha.String)
	if brandID.Valid {
		p.Brand = &models.Brand{ID: brandID.Int64, Name: brandName.String, Slug: brandSlug.String}
	}
	return p, nil
}

// buildProductWhere renders the filter as a WHERE clause over alias p.
func buildProductWhere(f models.ProductFilter) (string, []any) {
	conds := []string{"p.is_active = TRUE"}
	var args []any

	if f.CategorySlug != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM product_categories pc
			JOIN categories c ON c.id = pc.category_id
			WHERE pc.product_id = p.id AND c.slug = ?)`)
		args = append(args, f.CategorySlug)
	}
	if len(f.BrandIDs) > 0 {
		conds = append(conds, "p.brand_id IN (?"+strings.Repeat(", ?", len(f.BrandIDs)-1)+")")
		for _, id := range f.BrandIDs {
			args = append(args, id)
		}
	}
	if f.PriceMin != nil {
		conds = append(conds, "p.selling_price >= ?")
		args = append(args, *f.PriceMin)
	}
	if f.PriceMax != nil {
		conds = append(conds, "p.selling_price <= ?")
		args = append(args, *f.PriceMax)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		like := "%" + escapeLike(q) + "%"
		conds = append(conds, "(p.name LIKE ? OR p.short_description LIKE ? OR p.sku LIKE ?)")
		args = append(args, like, like, like)
	}
	if f.InStock {
		conds = append(conds, "p.stock_quantity > 0")
	}
	if f.Featured {
		conds = append(conds, "p.is_featured = TRUE")
	}
	if f.Constitution != "" {
		conds = append(conds, "p.constitution = ?")
		args = append(args, string(f.Constitution))
	}
	if f.MinRating != nil {
		conds = append(conds, "p.rating_average >= ?")
		args = append(args, *f.MinRating)
	}
	if f.PrescriptionRequired != nil {
		conds = append(conds, "p.prescription_required = ?")
		args = append(args, *f.PrescriptionRequired)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListProducts returns one page of active products matching f, the total match
// count and facets over the whole match set.
func (s *ProductService) ListProducts(ctx context.Context, f models.ProductFilter) (*models.ProductListResult, error) {
	f.Normalize()
	where, args := buildProductWhere(f)

	result := &models.ProductListResult{Items: []models.Product{}, Limit: f.Limit, Offset: f.Offset}

	start := time.Now()
	summaryQuery := `SELECT COUNT(*), COALESCE(MIN(p.selling_price), 0), COALESCE(MAX(p.selling_price), 0),
		COALESCE(SUM(CASE WHEN p.stock_quantity > 0 THEN 1 ELSE 0 END), 0) FROM products p` + where
	var inStock int
	err := s.db.QueryRowContext(ctx, summaryQuery, args...).Scan(
		&result.Total, &result.Facets.PriceRange.Min, &result.Facets.PriceRange.Max, &inStock)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", summaryQuery, start, err == nil)
	if err != nil {
		return nil, apperrors.NewFetchFailed("products", err)
	}
	result.Facets.Availability = models.Availability{InStock: inStock, OutOfStock: result.Total - inStock}

	start = time.Now()
	query := "SELECT " + productColumns + " FROM " + productFrom + where +
		" ORDER BY " + sortClauses[f.SortBy] + " LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil)
	if err != nil {
		return nil, apperrors.NewFetchFailed("products", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, apperrors.NewFetchFailed("products", err)
		}
		result.Items = append(result.Items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewFetchFailed("products", err)
	}

	if result.Facets.Brands, err = s.brandFacets(ctx, where, args); err != nil {
		return nil, apperrors.NewFetchFailed("products", err)
	}
	if result.Facets.Categories, err = s.categoryFacets(ctx, where, args); err != nil {
		return nil, apperrors.NewFetchFailed("products", err)
	}
	return result, nil
}

func (s *ProductService) brandFacets(ctx context.Context, where string, args []any) ([]models.BrandFacet, error) {
	start := time.Now()
	query := `SELECT b.id, b.name, COUNT(*) FROM products p JOIN brands b ON b.id = p.brand_id` +
		where + ` GROUP BY b.id, b.name ORDER BY b.name`
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "brands", query, start, err == nil)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	facets := []models.BrandFacet{}
	for rows.Next() {
		var bf models.BrandFacet
		if err := rows.Scan(&bf.ID, &bf.Name, &bf.Count); err != nil {
			return nil, err
		}
		facets = append(facets, bf)
	}
	return facets, rows.Err()
}

func (s *ProductService) categoryFacets(ctx context.Context, where string, args []any) ([]models.CategoryFacet, error) {
	start := time.Now()
	query := `SELECT c.id, c.name, c.slug, COUNT(DISTINCT p.id) FROM products p
		JOIN product_categories pcf ON pcf.product_id = p.id
		JOIN categories c ON c.id = pcf.category_id` +
		where + ` GROUP BY c.id, c.name, c.slug ORDER BY c.name`
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	facets := []models.CategoryFacet{}
	for rows.Next() {
		var cf models.CategoryFacet
		if err := rows.Scan(&cf.ID, &cf.Name, &cf.Slug, &cf.Count); err != nil {
			return nil, err
		}
		facets = append(facets, cf)
	}
	return facets, rows.Err()
}

// SearchProducts lists products whose name, summary or SKU contains query.
func (s *ProductService) SearchProducts(ctx context.Context, query string, f models.ProductFilter) (*models.ProductListResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidation("Search query is required")
	}
	f.Search = query

	result, err := s.ListProducts(ctx, f)
	if err != nil {
		return nil, err
	}
	s.metrics.SearchQueries.Add(ctx, 1, s.metrics.Attrs(attribute.Int("result_count", result.Total)))
	return result, nil
}

// GetProduct returns an active product by ID with categories, images and variants.
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return s.getProduct(ctx, fmt.Sprintf("product:id:%d", id), "p.id = ?", id)
}

// GetProductBySlug returns an active product by slug with categories, images and variants.
func (s *ProductService) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	return s.getProduct(ctx, "product:slug:"+slug, "p.slug = ?", slug)
}

func (s *ProductService) getProduct(ctx context.Context, cacheKey, cond string, arg any) (*models.Product, error) {
	var p models.Product
	if err := cache.GetJSON(ctx, s.cache, cacheKey, &p); err == nil {
		s.metrics.CacheHits.Add(ctx, 1, s.metrics.Attrs(attribute.String("cache.key_type", "product")))
		s.recordView(ctx, &p)
		return &p, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Product cache read failed", zap.String("key", cacheKey), zap.Error(err))
	}
	s.metrics.CacheMisses.Add(ctx, 1, s.metrics.Attrs(attribute.String("cache.key_type", "product")))

	start := time.Now()
	query := "SELECT " + productColumns + " FROM " + productFrom + " WHERE " + cond + " AND p.is_active = TRUE"
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, arg))
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("Product")
	}
	if err != nil {
		return nil, apperrors.NewFetchFailed("product", err)
	}

	if err := s.loadDetails(ctx, &p); err != nil {
		return nil, apperrors.NewFetchFailed("product", err)
	}

	if err := cache.SetJSON(ctx, s.cache, cacheKey, p, s.cacheTTL); err != nil {
		s.logger.Warn("Product cache write failed", zap.String("key", cacheKey), zap.Error(err))
	}
	s.recordView(ctx, &p)
	return &p, nil
}

func (s *ProductService) recordView(ctx context.Context, p *models.Product) {
	category := "uncategorized"
	if len(p.Categories) > 0 {
		category = p.Categories[0].Slug
	}
	s.metrics.ProductsViewed.Add(ctx, 1, s.metrics.Attrs(
		attribute.Int64("product_id", p.ID),
		attribute.String("product_category", category),
	))
}

// loadDetails fills the categories, images and variants of p.
func (s *ProductService) loadDetails(ctx context.Context, p *models.Product) error {
	start := time.Now()
	query := `SELECT c.id, c.parent_id, c.name, c.slug, c.description, c.image_url, c.sort_order, c.created_at
		FROM categories c JOIN product_categories pc ON pc.category_id = c.id
		WHERE pc.product_id = ? ORDER BY c.sort_order, c.name`
	rows, err := s.db.QueryContext(ctx, query, p.ID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil)
	if err != nil {
		return err
	}
	p.Categories = []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows, false)
		if err != nil {
			rows.Close()
			return err
		}
		p.Categories = append(p.Categories, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	start = time.Now()
	query = `SELECT id, url, alt_text, sort_order, is_primary FROM product_images
		WHERE product_id = ? ORDER BY is_primary DESC, sort_order`
	rows, err = s.db.QueryContext(ctx, query, p.ID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "product_images", query, start, err == nil)
	if err != nil {
		return err
	}
	p.Images = []models.ProductImage{}
	for rows.Next() {
		var img models.ProductImage
		if err := rows.Scan(&img.ID, &img.URL, &img.AltText, &img.SortOrder, &img.IsPrimary); err != nil {
			rows.Close()
			return err
		}
		p.Images = append(p.Images, img)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	start = time.Now()
	query = `SELECT id, product_id, name, sku, selling_price, stock_quantity FROM product_variants
		WHERE product_id = ? ORDER BY id`
	rows, err = s.db.QueryContext(ctx, query, p.ID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "product_variants", query, start, err == nil)
	if err != nil {
		return err
	}
	defer rows.Close()
	p.Variants = []models.ProductVariant{}
	for rows.Next() {
		var (
			v     models.ProductVariant
			price decimal.NullDecimal
		)
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.SKU, &price, &v.StockQuantity); err != nil {
			return err
		}
		if price.Valid {
			v.SellingPrice = &price.Decimal
		}
		p.Variants = append(p.Variants, v)
	}
	return rows.Err()
}

// InvalidateProducts drops every cached product.
func (s *ProductService) InvalidateProducts(ctx context.Context) {
	if err := s.cache.DeleteByPattern(ctx, "product:*"); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.Error(err))
	}
}
