// Package pluginstate persists one JSON configuration object per plugin.
package pluginstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gamevyo/qblimiter/internal/config"
)

// ErrNotFound is returned when no state has been stored for a plugin.
var ErrNotFound = errors.New("plugin state not found")

// Store is the host key/value store for plugin configuration.
type Store interface {
	Get(ctx context.Context, pluginID string) (map[string]any, error)
	Save(ctx context.Context, pluginID string, values map[string]any) error
	Delete(ctx context.Context, pluginID string) error
	List(ctx context.Context) ([]string, error)
}

// New creates the store selected by cfg.Driver. The SQLite store uses db;
// the Redis store opens its own client from cfg.RedisURL.
func New(cfg config.StateConfig, db *sql.DB) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		if db == nil {
			return nil, errors.New("sqlite state store requires a database")
		}
		return NewSQLiteStore(db), nil
	case "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		return NewRedisStore(redis.NewClient(opt), cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unsupported state driver %q", cfg.Driver)
	}
}
