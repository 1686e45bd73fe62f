package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ayurmart/storefront/internal/cache"
	"github.com/ayurmart/storefront/internal/db"
	"github.com/ayurmart/storefront/internal/metrics"
	"github.com/ayurmart/storefront/internal/models"
	apperrors "github.com/ayurmart/storefront/pkg/errors"
	"go.uber.org/zap"
)

const categoryColumns = `c.id, c.parent_id, c.name, c.slug, c.description, c.image_url, c.sort_order, c.created_at`

// CategoryService handles category reads
type CategoryService struct {
	db       *db.DB
	metrics  *metrics.AppMetrics
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

func NewCategoryService(db *db.DB, m *metrics.AppMetrics, c cache.Cache, cacheTTL time.Duration, logger *zap.Logger) *CategoryService {
	if c == nil {
		c = cache.NewInMemory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryService{db: db, metrics: m, cache: c, cacheTTL: cacheTTL, logger: logger}
}

func scanCategory(row rowScanner, withCount bool) (models.Category, error) {
	var (
		c         models.Category
		parentID  sql.NullInt64
		desc, img sql.NullString
	)
	dest := []any{&c.ID, &parentID, &c.Name, &c.Slug, &desc, &img, &c.SortOrder, &c.CreatedAt}
	if withCount {
		dest = append(dest, &c.ProductCount)
	}
	if err := row.Scan(dest...); err != nil {
		return c, err
	}
	if parentID.Valid {
		c.ParentID = &parentID.Int64
	}
	c.Description = desc.String
	c.ImageURL = img.String
	return c, nil
}

// ListCategories returns every category with its count of active products.
func (s *CategoryService) ListCategories(ctx context.Context) ([]models.Category, error) {
	const cacheKey = "categories:all"
	var categories []models.Category
	if err := cache.GetJSON(ctx, s.cache, cacheKey, &categories); err == nil {
		return categories, nil
	}

	start := time.Now()
	query := `SELECT ` + categoryColumns + `, COUNT(p.id)
		FROM categories c
		LEFT JOIN product_categories pc ON pc.category_id = c.id
		LEFT JOIN products p ON p.id = pc.product_id AND p.is_active = TRUE
		GROUP BY c.id, c.parent_id, c.name, c.slug, c.description, c.image_url, c.sort_order, c.created_at
		ORDER BY c.sort_order, c.name`
	rows, err := s.db.QueryContext(ctx, query)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil)
	if err != nil {
		return nil, apperrors.NewFetchFailed("categories", err)
	}
	defer rows.Close()

	categories = []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows, true)
		if err != nil {
			return nil, apperrors.NewFetchFailed("categories", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewFetchFailed("categories", err)
	}

	if err := cache.SetJSON(ctx, s.cache, cacheKey, categories, s.cacheTTL); err != nil {
		s.logger.Warn("Category cache write failed", zap.Error(err))
	}
	return categories, nil
}

// GetCategoryBySlug returns one category with its count of active products.
func (s *CategoryService) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	start := time.Now()
	query := `SELECT ` + categoryColumns + `,
		(SELECT COUNT(*) FROM product_categories pc JOIN products p ON p.id = pc.product_id
			WHERE pc.category_id = c.id AND p.is_active = TRUE)
		FROM categories c WHERE c.slug = ?`
	c, err := scanCategory(s.db.QueryRowContext(ctx, query, slug), true)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("Category")
	}
	if err != nil {
		return nil, apperrors.NewFetchFailed("category", err)
	}
	return &c, nil
}

// BrandService handles brand reads
type BrandService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

func NewBrandService(db *db.DB, m *metrics.AppMetrics) *BrandService {
	return &BrandService{db: db, metrics: m}
}

// ListBrands returns every brand ordered by name.
func (s *BrandService) ListBrands(ctx context.Context) ([]models.Brand, error) {
	start := time.Now()
	query := `SELECT id, name, slug FROM brands ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query)
	s.metrics.RecordDBQuery(ctx, "SELECT", "brands", query, start, err == nil)
	if err != nil {
		return nil, apperrors.NewFetchFailed("brands", err)
	}
	defer rows.Close()

	brands := []models.Brand{}
	for rows.Next() {
		var b models.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.Slug); err != nil {
			return nil, apperrors.NewFetchFailed("brands", err)
		}
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewFetchFailed("brands", err)
	}
	return brands, nil
}
