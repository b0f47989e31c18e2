// Package store builds the model artifact store selected by configuration.
package store

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/markcast/cmd/predictor/config"
	"github.com/HatiCode/markcast/pkg/storage"
)

// New creates the configured store. Stores holding connections implement
// io.Closer.
func New(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case "redis":
		s, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ModelKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		logger.Info("using redis model store", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "key", s.Key())
		return s, nil

	case "file":
		s := storage.NewFileStore(cfg.ModelPath)
		logger.Info("using file model store", "path", s.Path())
		return s, nil

	case "memory":
		logger.Warn("using in-memory model store, the model is retrained on every start")
		return storage.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
