package pluginstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps plugin state as JSON strings under prefix+pluginID.
type RedisStore struct {
	cl     *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store over an existing client.
func NewRedisStore(cl *redis.Client, prefix string) *RedisStore {
	return &RedisStore{cl: cl, prefix: prefix}
}

func (s *RedisStore) key(pluginID string) string {
	return s.prefix + pluginID
}

// Get returns the stored values for pluginID.
func (s *RedisStore) Get(ctx context.Context, pluginID string) (map[string]any, error) {
	raw, err := s.cl.Get(ctx, s.key(pluginID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get plugin state: %w", err)
	}

	values := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plugin state: %w", err)
	}
	return values, nil
}

// Save replaces the stored values for pluginID.
func (s *RedisStore) Save(ctx context.Context, pluginID string, values map[string]any) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal plugin state: %w", err)
	}
	if err := s.cl.Set(ctx, s.key(pluginID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save plugin state: %w", err)
	}
	return nil
}

// Delete removes the stored values for pluginID.
func (s *RedisStore) Delete(ctx context.Context, pluginID string) error {
	if err := s.cl.Del(ctx, s.key(pluginID)).Err(); err != nil {
		return fmt.Errorf("failed to delete plugin state: %w", err)
	}
	return nil
}

// List returns the ids of all plugins with stored state.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ids := make([]string, 0)
	iter := s.cl.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list plugin state: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.cl.Close()
}
