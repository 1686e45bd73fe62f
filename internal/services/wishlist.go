package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ayurmart/storefront/internal/db"
	"github.com/ayurmart/storefront/internal/metrics"
	"github.com/ayurmart/storefront/internal/models"
	apperrors "github.com/ayurmart/storefront/pkg/errors"
	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel/attribute"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// WishlistService handles account wishlists
type WishlistService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

func NewWishlistService(db *db.DB, m *metrics.AppMetrics) *WishlistService {
	return &WishlistService{db: db, metrics: m}
}

// List returns the user's saved products, newest first.
func (s *WishlistService) List(ctx context.Context, userID int64) ([]models.WishlistEntry, error) {
	start := time.Now()
	query := `SELECT w.id, w.user_id, w.product_id, w.created_at, ` + productColumns + `
		FROM wishlists w
		JOIN products p ON p.id = w.product_id
		LEFT JOIN brands b ON b.id = p.brand_id
		WHERE w.user_id = ?
		ORDER BY w.created_at DESC, w.id DESC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "wishlists", query, start, err == nil)
	if err != nil {
		return nil, apperrors.NewFetchFailed("wishlist", err)
	}
	defer rows.Close()

	entries := []models.WishlistEntry{}
	for rows.Next() {
		var e models.WishlistEntry
		p, err := scanProduct(prefixScanner{rows, []any{&e.ID, &e.UserID, &e.ProductID, &e.CreatedAt}})
		if err != nil {
			return nil, apperrors.NewFetchFailed("wishlist", err)
		}
		e.Product = &p
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewFetchFailed("wishlist", err)
	}
	return entries, nil
}

// prefixScanner scans leading columns into prefix before handing the rest to the caller.
type prefixScanner struct {
	row    rowScanner
	prefix []any
}

func (s prefixScanner) Scan(dest ...any) error {
	return s.row.Scan(append(s.prefix, dest...)...)
}

// Add saves productID for the user. A second add of the same product is a conflict.
func (s *WishlistService) Add(ctx context.Context, userID, productID int64) (*models.WishlistEntry, error) {
	if productID <= 0 {
		return nil, apperrors.NewValidation("Product ID is required")
	}

	start := time.Now()
	query := `SELECT id FROM products WHERE id = ? AND is_active = TRUE`
	var id int64
	err := s.db.QueryRowContext(ctx, query, productID).Scan(&id)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("Product")
	}
	if err != nil {
		return nil, apperrors.NewFetchFailed("product", err)
	}

	start = time.Now()
	query = `INSERT INTO wishlists (user_id, product_id) VALUES (?, ?)`
	result, err := s.db.ExecContext(ctx, query, userID, productID)
	s.metrics.RecordDBQuery(ctx, "INSERT", "wishlists", query, start, err == nil)
	if isDuplicateEntry(err) {
		return nil, apperrors.NewConflict("Product already in wishlist")
	}
	if err != nil {
		return nil, apperrors.NewInternal("failed to add to wishlist", err)
	}

	entryID, err := result.LastInsertId()
	if err != nil {
		return nil, apperrors.NewInternal("failed to add to wishlist", err)
	}

	s.metrics.WishlistAdds.Add(ctx, 1, s.metrics.Attrs(
		attribute.String("wishlist_type", "account"),
		attribute.Int64("product_id", productID),
	))

	return &models.WishlistEntry{
		ID:        entryID,
		UserID:    userID,
		ProductID: productID,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Remove deletes productID from the user's wishlist. Absent entries are not an error.
func (s *WishlistService) Remove(ctx context.Context, userID, productID int64) error {
	start := time.Now()
	query := `DELETE FROM wishlists WHERE user_id = ? AND product_id = ?`
	_, err := s.db.ExecContext(ctx, query, userID, productID)
	s.metrics.RecordDBQuery(ctx, "DELETE", "wishlists", query, start, err == nil)
	if err != nil {
		return apperrors.NewInternal("failed to remove from wishlist", err)
	}
	return nil
}

// Contains reports whether productID is on the user's wishlist.
func (s *WishlistService) Contains(ctx context.Context, userID, productID int64) (bool, error) {
	start := time.Now()
	query := `SELECT EXISTS(SELECT 1 FROM wishlists WHERE user_id = ? AND product_id = ?)`
	var exists bool
	err := s.db.QueryRowContext(ctx, query, userID, productID).Scan(&exists)
	s.metrics.RecordDBQuery(ctx, "SELECT", "wishlists", query, start, err == nil)
	if err != nil {
		return false, apperrors.NewFetchFailed("wishlist", err)
	}
	return exists, nil
}
