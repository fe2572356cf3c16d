package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/meterd/backend/internal/domain/shared"
	"github.com/meterd/backend/internal/infrastructure/config"
)

// NewIdempotencyStore builds the webhook dedup cache from configuration.
// With Redis enabled it connects there so all instances share state; a
// connection failure falls back to the in-memory store with a warning since
// the database's write-once event insert remains the authoritative dedup.
func NewIdempotencyStore(cfg config.RedisConfig, logger *zap.Logger) (shared.IdempotencyStore, error) {
	if !cfg.Enabled {
		logger.Info("Using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(), nil
	}

	store, err := NewRedisIdempotencyStore(RedisOptions{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		logger.Warn("Redis unavailable, falling back to in-memory idempotency store",
			zap.String("host", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
			zap.Error(err))
		return NewInMemoryIdempotencyStore(), nil
	}

	logger.Info("Using Redis idempotency store",
		zap.String("host", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)))
	return store, nil
}
