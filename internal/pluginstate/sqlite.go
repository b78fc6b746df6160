package pluginstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SQLiteStore keeps plugin state in the plugin_state table.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store over a migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns the stored values for pluginID.
func (s *SQLiteStore) Get(ctx context.Context, pluginID string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT config FROM plugin_state WHERE plugin_id = ?`, pluginID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
func (s *SQLiteStore) Save(ctx context.Context, pluginID string, values map[string]any) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal plugin state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plugin_state (plugin_id, config, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(plugin_id) DO UPDATE SET config = excluded.config, updated_at = CURRENT_TIMESTAMP`,
		pluginID, string(data))
	if err != nil {
		return fmt.Errorf("failed to save plugin state: %w", err)
	}
	return nil
}

// Delete removes the stored values for pluginID. Deleting a missing entry is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, pluginID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plugin_state WHERE plugin_id = ?`, pluginID); err != nil {
		return fmt.Errorf("failed to delete plugin state: %w", err)
	}
	return nil
}

// List returns the ids of all plugins with stored state.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT plugin_id FROM plugin_state ORDER BY plugin_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugin state: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
