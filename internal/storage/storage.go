// Package storage provides the durable key/value backends that session stores persist to.
// Each store writes one serialized record under a stable key and replaces it wholesale.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayurmart/storefront/pkg/config"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when the key has never been written or was deleted.
var ErrNotFound = errors.New("storage: key not found")

// Storage defines the interface for persisted store records
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// New builds the backend named by cfg.StoreBackend. The redis client is only
// required for the redis backend.
func New(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) (Storage, error) {
	switch cfg.StoreBackend {
	case "memory":
		logger.Info("Session stores use in-memory storage")
		return NewMemory(), nil
	case "sqlite":
		s, err := NewSQLite(cfg.StoreSQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("Session stores use SQLite storage", zap.String("path", cfg.StoreSQLitePath))
		return s, nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("store backend redis requires REDIS_HOST")
		}
		logger.Info("Session stores use Redis storage", zap.String("addr", cfg.RedisAddr()))
		return NewRedis(rdb, "storefront:"), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
