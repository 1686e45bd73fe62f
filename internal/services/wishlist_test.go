package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ayurmart/storefront/internal/metrics"
	apperrors "github.com/ayurmart/storefront/pkg/errors"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWishlistService(t *testing.T) (*WishlistService, sqlmock.Sqlmock) {
	d, mock := newMockDB(t)
	return NewWishlistService(d, metrics.NewNoop()), mock
}

func TestWishlistAdd(t *testing.T) {
	svc, mock := newWishlistService(t)
	mock.ExpectQuery(`SELECT id FROM products`).WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectExec(`INSERT INTO wishlists`).WithArgs(int64(9), int64(2)).
		WillReturnResult(sqlmock.NewResult(31, 1))

	entry, err := svc.Add(context.Background(), 9, 2)

	require.NoError(t, err)
	assert.Equal(t, int64(31), entry.ID)
	assert.Equal(t, int64(2), entry.ProductID)
}

func TestWishlistAddDuplicateIsConflict(t *testing.T) {
	svc, mock := newWishlistService(t)
	mock.ExpectQuery(`SELECT id FROM products`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectExec(`INSERT INTO wishlists`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '9-2' for key 'uq_wishlist_user_product'"})

	_, err := svc.Add(context.Background(), 9, 2)

	require.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, "Product already in wishlist", err.Error())
}

func TestWishlistAddUnknownProduct(t *testing.T) {
	svc, mock := newWishlistService(t)
	mock.ExpectQuery(`SELECT id FROM products`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.Add(context.Background(), 9, 404)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestWishlistAddRequiresProductID(t *testing.T) {
	svc, _ := newWishlistService(t)

	_, err := svc.Add(context.Background(), 9, 0)

	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, "Product ID is required", err.Error())
}

func TestWishlistRemoveIsIdempotent(t *testing.T) {
	svc, mock := newWishlistService(t)
	mock.ExpectExec(`DELETE FROM wishlists`).WithArgs(int64(9), int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM wishlists`).WithArgs(int64(9), int64(2)).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, svc.Remove(context.Background(), 9, 2))
	assert.NoError(t, svc.Remove(context.Background(), 9, 2))
}

func TestWishlistList(t *testing.T) {
	svc, mock := newWishlistService(t)
	cols := append([]string{"w_id", "user_id", "product_id", "w_created_at"}, productRowColumns...)
	rows := sqlmock.NewRows(cols).AddRow(
		31, 9, 2, testTime,
		2, "triphala", "SKU-triphala", "Triphala", "Short", nil,
		"249.00", "199.00", "20", 40, 5,
		true, true, false, nil, "4.8",
		100, testTime, testTime, nil, nil, nil,
	)
	mock.ExpectQuery(`FROM wishlists w`).WithArgs(int64(9)).WillReturnRows(rows)

	entries, err := svc.List(context.Background(), 9)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(31), entries[0].ID)
	require.NotNil(t, entries[0].Product)
	assert.Equal(t, "Triphala", entries[0].Product.Name)
	assert.Nil(t, entries[0].Product.Brand)
}

func TestWishlistContains(t *testing.T) {
	svc, mock := newWishlistService(t)
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := svc.Contains(context.Background(), 9, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}
