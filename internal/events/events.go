// Package events publishes order lifecycle events for downstream consumers
// (fulfilment, notifications).
package events

import (
	"context"
	"time"

	"github.com/ayurmart/storefront/internal/models"
	"github.com/ayurmart/storefront/pkg/config"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Event is a domain event. PartitionKey keeps all events of one order on the
// same partition.
type Event interface {
	EventType() string
	PartitionKey() string
}

// Publisher defines the interface for publishing domain events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// OrderCreated is emitted after an order and its items are committed.
type OrderCreated struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	ItemCount   int             `json:"item_count"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (e OrderCreated) EventType() string    { return "OrderCreated" }
func (e OrderCreated) PartitionKey() string { return e.OrderNumber }

// NewOrderCreated builds the event for a committed order.
func NewOrderCreated(o *models.Order) OrderCreated {
	count := 0
	for _, it := range o.Items {
		count += it.Quantity
	}
	return OrderCreated{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Currency:    o.Currency,
		ItemCount:   count,
		OccurredAt:  time.Now().UTC(),
	}
}

// OrderStatusChanged is emitted after a status transition is committed.
type OrderStatusChanged struct {
	OrderID     int64              `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	UserID      int64              `json:"user_id"`
	From        models.OrderStatus `json:"from"`
	To          models.OrderStatus `json:"to"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

func (e OrderStatusChanged) EventType() string    { return "OrderStatusChanged" }
func (e OrderStatusChanged) PartitionKey() string { return e.OrderNumber }

// New returns a Kafka publisher when brokers are configured, and a
// log-only publisher otherwise.
func New(cfg *config.Config, logger *zap.Logger) (Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("No Kafka brokers configured, order events are logged only")
		return NewLogPublisher(logger), nil
	}
	return NewKafkaPublisher(cfg, logger)
}

// LogPublisher writes events to the log instead of a broker.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.Info("Event published (log only)",
		zap.String("event_type", event.EventType()),
		zap.String("key", event.PartitionKey()),
		zap.Any("event", event),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
