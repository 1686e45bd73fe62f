package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ayurmart/storefront/internal/storage"
	"go.uber.org/zap"
)

const (
	CartKeyPrefix     = "ayurveda-cart"
	WishlistKeyPrefix = "ayurveda-wishlist"

	recordVersion  = 1
	persistTimeout = 3 * time.Second
)

// record is the serialized form of a store. Only the item list is persisted.
type record[T any] struct {
	Version int `json:"version"`
	Items   []T `json:"items"`
}

// Persister binds a store to one key of a storage backend. A nil *Persister
// disables persistence.
type Persister struct {
	storage storage.Storage
	key     string
	logger  *zap.Logger
}

func NewPersister(s storage.Storage, key string, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{storage: s, key: key, logger: logger}
}

// Key returns the storage key records are written under.
func (p *Persister) Key() string {
	return p.key
}

// loadItems reads the persisted item list. Absent, unreadable or malformed
// records yield an empty list; they are logged, never returned.
func loadItems[T any](p *Persister) []T {
	if p == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	data, err := p.storage.Get(ctx, p.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		p.logger.Warn("Failed to load store record", zap.String("key", p.key), zap.Error(err))
		return nil
	}

	var rec record[T]
	if err := json.Unmarshal(data, &rec); err != nil {
		p.logger.Warn("Discarding malformed store record", zap.String("key", p.key), zap.Error(err))
		return nil
	}
	return rec.Items
}

// saveItems replaces the persisted record with items.
func saveItems[T any](p *Persister, items []T) {
	if p == nil {
		return
	}
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(record[T]{Version: recordVersion, Items: items})
	if err != nil {
		p.logger.Error("Failed to encode store record", zap.String("key", p.key), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := p.storage.Set(ctx, p.key, data); err != nil {
		p.logger.Error("Failed to persist store record", zap.String("key", p.key), zap.Error(err))
	}
}
