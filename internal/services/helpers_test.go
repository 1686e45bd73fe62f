package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ayurmart/storefront/internal/db"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*db.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		sqlDB.Close()
	})
	return db.Wrap(sqlDB, nil), mock
}

var productRowColumns = []string{
	"id", "slug", "sku", "name", "short_description", "description",
	"base_price", "selling_price", "discount_percentage", "stock_quantity", "low_stock_threshold",
	"is_featured", "is_active", "prescription_required", "constitution", "rating_average",
	"rating_count", "created_at", "updated_at", "brand_id", "brand_name", "brand_slug",
}

func productRows() *sqlmock.Rows {
	return sqlmock.NewRows(productRowColumns)
}

func addProductRow(rows *sqlmock.Rows, id int64, slug, price string, stock int) *sqlmock.Rows {
	return rows.AddRow(
		id, slug, "SKU-"+slug, "Product "+slug, "Short", nil,
		price, price, "0", stock, 5,
		false, true, false, "vata", "4.5",
		12, testTime, testTime, 1, "Himalaya", "himalaya",
	)
}
