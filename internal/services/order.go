package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayurmart/storefront/internal/db"
	"github.com/ayurmart/storefront/internal/events"
	"github.com/ayurmart/storefront/internal/metrics"
	"github.com/ayurmart/storefront/internal/models"
	"github.com/ayurmart/storefront/pkg/config"
	apperrors "github.com/ayurmart/storefront/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultPaymentMethod = "cod"
	paymentPending       = "pending"
)

const orderColumns = `id, order_number, user_id, status, payment_status, payment_method, subtotal,
	shipping_amount, tax_amount, discount_amount, total_amount, currency, shipping_address, notes,
	created_at, updated_at`

// Pricing holds the checkout charges applied on top of the item subtotal.
type Pricing struct {
	Currency              string
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
	TaxRate               decimal.Decimal
}

func PricingFromConfig(cfg *config.Config) Pricing {
	return Pricing{
		Currency:              cfg.Currency,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		ShippingFee:           cfg.ShippingFee,
		TaxRate:               cfg.TaxRate,
	}
}

// Shipping is free at or above the threshold.
func (p Pricing) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return p.ShippingFee
}

// Tax is subtotal × rate, rounded to two places.
func (p Pricing) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.TaxRate).Round(2)
}

// ProductCacheInvalidator drops cached product reads after stock changes.
type ProductCacheInvalidator interface {
	InvalidateProducts(ctx context.Context)
}

// OrderService handles order-related operations
type OrderService struct {
	db        *db.DB
	metrics   *metrics.AppMetrics
	publisher events.Publisher
	products  ProductCacheInvalidator
	pricing   Pricing
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(db *db.DB, m *metrics.AppMetrics, publisher events.Publisher, products ProductCacheInvalidator, pricing Pricing, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}
	return &OrderService{
		db:        db,
		metrics:   m,
		publisher: publisher,
		products:  products,
		pricing:   pricing,
		logger:    logger,
	}
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "AYR-" + now.Format("20060102") + "-" + suffix
}

func validateAddress(a models.Address) error {
	if strings.TrimSpace(a.FullName) == "" || strings.TrimSpace(a.Line1) == "" ||
		strings.TrimSpace(a.City) == "" || strings.TrimSpace(a.PostalCode) == "" {
		return apperrors.NewValidation("Shipping address requires full name, line 1, city and postal code")
	}
	return nil
}

// pricedLine is an order line resolved against the catalog inside the checkout transaction.
type pricedLine struct {
	line        models.OrderLine
	name        string
	sku         string
	variantName string
	unitPrice   decimal.Decimal
	category    string
}

// CreateOrder places an order for the given cart lines. Prices, names and SKUs
// are read from the catalog and copied onto the order items; stock is checked
// and decremented in the same transaction.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, lines []models.OrderLine, req models.CreateOrderRequest) (*models.Order, error) {
	if len(lines) == 0 {
		return nil, apperrors.NewValidation("Cart is empty")
	}
	if err := validateAddress(req.ShippingAddress); err != nil {
		return nil, err
	}
	paymentMethod := strings.TrimSpace(req.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = defaultPaymentMethod
	}

	now := time.Now().UTC()
	order := &models.Order{
		OrderNumber:     newOrderNumber(now),
		UserID:          userID,
		Status:          models.OrderPending,
		PaymentStatus:   paymentPending,
		PaymentMethod:   paymentMethod,
		Currency:        s.pricing.Currency,
		ShippingAddress: req.ShippingAddress,
		Notes:           strings.TrimSpace(req.Notes),
		DiscountAmount:  decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var priced []pricedLine
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var err error
		priced, err = s.reserveLines(ctx, tx, lines)
		if err != nil {
			return err
		}

		order.Subtotal = decimal.Zero
		for _, pl := range priced {
			order.Subtotal = order.Subtotal.Add(pl.unitPrice.Mul(decimal.NewFromInt(int64(pl.line.Quantity))))
		}
		order.ShippingAmount = s.pricing.Shipping(order.Subtotal)
		order.TaxAmount = s.pricing.Tax(order.Subtotal)
		order.TotalAmount = order.Subtotal.Add(order.ShippingAmount).Add(order.TaxAmount).Sub(order.DiscountAmount)

		address, err := json.Marshal(order.ShippingAddress)
		if err != nil {
			return fmt.Errorf("failed to encode shipping address: %w", err)
		}

		start := time.Now()
		query := `INSERT INTO orders (order_number, user_id, status, payment_status, payment_method, subtotal,
			shipping_amount, tax_amount, discount_amount, total_amount, currency, shipping_address, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		result, err := tx.ExecContext(ctx, query, order.OrderNumber, userID, order.Status, order.PaymentStatus,
			order.PaymentMethod, order.Subtotal, order.ShippingAmount, order.TaxAmount, order.DiscountAmount,
			order.TotalAmount, order.Currency, string(address), order.Notes)
		s.metrics.RecordDBQuery(ctx, "INSERT", "orders", query, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		if order.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get order ID: %w", err)
		}

		query = `INSERT INTO order_items (order_id, product_id, variant_id, product_name, product_sku,
			variant_name, unit_price, quantity, total_price) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		for _, pl := range priced {
			item := models.OrderItem{
				OrderID:     order.ID,
				ProductID:   pl.line.ProductID,
				VariantID:   pl.line.VariantID,
				ProductName: pl.name,
				ProductSKU:  pl.sku,
				VariantName: pl.variantName,
				UnitPrice:   pl.unitPrice,
				Quantity:    pl.line.Quantity,
				TotalPrice:  pl.unitPrice.Mul(decimal.NewFromInt(int64(pl.line.Quantity))),
				CreatedAt:   now,
			}
			start = time.Now()
			result, err := tx.ExecContext(ctx, query, item.OrderID, item.ProductID, item.VariantID, item.ProductName,
				item.ProductSKU, nullString(item.VariantName), item.UnitPrice, item.Quantity, item.TotalPrice)
			s.metrics.RecordDBQuery(ctx, "INSERT", "order_items", query, start, err == nil)
			if err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
			if item.ID, err = result.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get order item ID: %w", err)
			}
			order.Items = append(order.Items, item)
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.NewInternal("failed to create order", err)
	}

	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("user_id", userID),
		zap.String("total", order.TotalAmount.String()),
	)
	s.recordOrderMetrics(ctx, order, priced)
	if s.products != nil {
		s.products.InvalidateProducts(ctx)
	}
	if err := s.publisher.Publish(ctx, events.NewOrderCreated(order)); err != nil {
		s.logger.Error("Failed to publish order created event", zap.String("order_number", order.OrderNumber), zap.Error(err))
	}
	return order, nil
}

// reserveLines locks and prices each line, then decrements its stock.
func (s *OrderService) reserveLines(ctx context.Context, tx *sql.Tx, lines []models.OrderLine) ([]pricedLine, error) {
	priced := make([]pricedLine, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, apperrors.NewValidation("Quantity must be at least 1")
		}

		var (
			pl       = pricedLine{line: line}
			stock    int
			category sql.NullString
		)
		start := time.Now()
		query := `SELECT p.name, p.sku, p.selling_price, p.stock_quantity,
			(SELECT c.slug FROM product_categories pc JOIN categories c ON c.id = pc.category_id
				WHERE pc.product_id = p.id ORDER BY c.sort_order, c.id LIMIT 1)
			FROM products p WHERE p.id = ? AND p.is_active = TRUE FOR UPDATE`
		err := tx.QueryRowContext(ctx, query, line.ProductID).Scan(&pl.name, &pl.sku, &pl.unitPrice, &stock, &category)
		s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFound("Product")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to lock product: %w", err)
		}
		pl.category = category.String
		if pl.category == "" {
			pl.category = "uncategorized"
		}

		stockTable, stockID := "products", line.ProductID
		if line.VariantID != nil {
			var price decimal.NullDecimal
			start = time.Now()
			query = `SELECT name, sku, selling_price, stock_quantity FROM product_variants
				WHERE id = ? AND product_id = ? FOR UPDATE`
			var variantSKU string
			err := tx.QueryRowContext(ctx, query, *line.VariantID, line.ProductID).Scan(&pl.variantName, &variantSKU, &price, &stock)
			s.metrics.RecordDBQuery(ctx, "SELECT", "product_variants", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
			if errors.Is(err, sql.ErrNoRows) {
				return nil, apperrors.NewNotFound("Variant")
			}
			if err != nil {
				return nil, fmt.Errorf("failed to lock variant: %w", err)
			}
			if variantSKU != "" {
				pl.sku = variantSKU
			}
			if price.Valid {
				pl.unitPrice = price.Decimal
			}
			stockTable, stockID = "product_variants", *line.VariantID
		}

		if stock < line.Quantity {
			return nil, apperrors.NewValidation(fmt.Sprintf("Insufficient stock for %s", pl.name))
		}

		start = time.Now()
		query = `UPDATE ` + stockTable + ` SET stock_quantity = stock_quantity - ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, line.Quantity, stockID); err != nil {
			s.metrics.RecordDBQuery(ctx, "UPDATE", stockTable, query, start, false)
			return nil, fmt.Errorf("failed to update stock: %w", err)
		}
		s.metrics.RecordDBQuery(ctx, "UPDATE", stockTable, query, start, true)

		priced = append(priced, pl)
	}
	return priced, nil
}

// recordOrderMetrics records order count and revenue per product category.
func (s *OrderService) recordOrderMetrics(ctx context.Context, order *models.Order, priced []pricedLine) {
	revenue := make(map[string]decimal.Decimal)
	for _, pl := range priced {
		revenue[pl.category] = revenue[pl.category].Add(pl.unitPrice.Mul(decimal.NewFromInt(int64(pl.line.Quantity))))
	}

	for category, amount := range revenue {
		attrs := s.metrics.Attrs(
			attribute.String("order_status", string(order.Status)),
			attribute.String("payment_method", order.PaymentMethod),
			attribute.String("product_category", category),
			attribute.String("currency", order.Currency),
		)
		s.metrics.OrdersCreated.Add(ctx, 1, attrs)
		s.metrics.RevenueTotal.Add(ctx, amount.InexactFloat64(), attrs)
	}
}

func scanOrder(row rowScanner) (models.Order, error) {
	var (
		o       models.Order
		address []byte
		notes   sql.NullString
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.Subtotal, &o.ShippingAmount, &o.TaxAmount, &o.DiscountAmount, &o.TotalAmount, &o.Currency,
		&address, &notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.Notes = notes.String
	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
			return o, fmt.Errorf("failed to decode shipping address: %w", err)
		}
	}
	return o, nil
}

// GetOrder returns one of the user's orders with its items. Orders of other
// users are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	start := time.Now()
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ? AND user_id = ?`
	order, err := scanOrder(s.db.QueryRowContext(ctx, query, orderID, userID))
	s.metrics.RecordDBQuery(ctx, "SELECT", "orders", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("Order")
	}
	if err != nil {
		return nil, apperrors.NewFetchFailed("order", err)
	}

	if order.Items, err = s.loadItems(ctx, order.ID); err != nil {
		return nil, apperrors.NewFetchFailed("order", err)
	}
	return &order, nil
}

// ListUserOrders returns the user's orders, newest first, with their items.
func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error) {
	if limit <= 0 || limit > models.MaxPageLimit {
		limit = models.DefaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	start := time.Now()
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	s.metrics.RecordDBQuery(ctx, "SELECT", "orders", query, start, err == nil)
	if err != nil {
		return nil, apperrors.NewFetchFailed("orders", err)
	}

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, apperrors.NewFetchFailed("orders", err)
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewFetchFailed("orders", err)
	}

	for i := range orders {
		if orders[i].Items, err = s.loadItems(ctx, orders[i].ID); err != nil {
			return nil, apperrors.NewFetchFailed("orders", err)
		}
	}
	return orders, nil
}

func (s *OrderService) loadItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	start := time.Now()
	query := `SELECT id, order_id, product_id, variant_id, product_name, product_sku, variant_name,
		unit_price, quantity, total_price, created_at FROM order_items WHERE order_id = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, orderID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "order_items", query, start, err == nil)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		var (
			it          models.OrderItem
			variantID   sql.NullInt64
			variantName sql.NullString
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &variantID, &it.ProductName, &it.ProductSKU,
			&variantName, &it.UnitPrice, &it.Quantity, &it.TotalPrice, &it.CreatedAt); err != nil {
			return nil, err
		}
		if variantID.Valid {
			it.VariantID = &variantID.Int64
		}
		it.VariantName = variantName.String
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateOrderStatus applies a status change requested by the order's owner.
// Owners may only cancel, and only while the order is pending; cancelling
// returns the reserved stock.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, userID, orderID int64, status models.OrderStatus) (*models.Order, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidation(fmt.Sprintf("Invalid order status: %s", status))
	}
	if status != models.OrderCancelled {
		return nil, apperrors.NewValidation("Orders can only be cancelled by customers")
	}

	var (
		current     models.OrderStatus
		orderNumber string
	)
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		query := `SELECT status, order_number FROM orders WHERE id = ? AND user_id = ? FOR UPDATE`
		err := tx.QueryRowContext(ctx, query, orderID, userID).Scan(&current, &orderNumber)
		s.metrics.RecordDBQuery(ctx, "SELECT", "orders", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFound("Order")
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}

		if current != models.OrderPending || !current.CanTransitionTo(status) {
			return apperrors.NewValidation(fmt.Sprintf("Cannot change order status from %s to %s", current, status))
		}

		start = time.Now()
		query = `UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
		_, err = tx.ExecContext(ctx, query, status, orderID)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "orders", query, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		return s.restock(ctx, tx, orderID)
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.NewInternal("failed to update order status", err)
	}

	s.logger.Info("Order status changed",
		zap.Int64("order_id", orderID),
		zap.String("from", string(current)),
		zap.String("to", string(status)),
	)
	if s.products != nil {
		s.products.InvalidateProducts(ctx)
	}
	event := events.OrderStatusChanged{
		OrderID:     orderID,
		OrderNumber: orderNumber,
		UserID:      userID,
		From:        current,
		To:          status,
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish order status event", zap.String("order_number", orderNumber), zap.Error(err))
	}
	return s.GetOrder(ctx, userID, orderID)
}

// restock returns the quantities of a cancelled order to stock.
func (s *OrderService) restock(ctx context.Context, tx *sql.Tx, orderID int64) error {
	start := time.Now()
	query := `SELECT product_id, variant_id, quantity FROM order_items WHERE order_id = ?`
	rows, err := tx.QueryContext(ctx, query, orderID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "order_items", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to read order items: %w", err)
	}
	var lines []models.OrderLine
	for rows.Next() {
		var (
			l         models.OrderLine
			variantID sql.NullInt64
		)
		if err := rows.Scan(&l.ProductID, &variantID, &l.Quantity); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if variantID.Valid {
			l.VariantID = &variantID.Int64
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read order items: %w", err)
	}

	for _, l := range lines {
		table, id := "products", l.ProductID
		if l.VariantID != nil {
			table, id = "product_variants", *l.VariantID
		}
		start = time.Now()
		query = `UPDATE ` + table + ` SET stock_quantity = stock_quantity + ? WHERE id = ?`
		_, err := tx.ExecContext(ctx, query, l.Quantity, id)
		s.metrics.RecordDBQuery(ctx, "UPDATE", table, query, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to restock: %w", err)
		}
	}
	return nil
}
