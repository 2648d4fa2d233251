package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-accesscache/pkg/cache"
)

// Storage keeps JSON encoded values in the `<namespace>_values` table.
type Storage[V any] struct {
	d *Database
}

// NewStorage returns a Storage sharing db's handle.
func NewStorage[V any](db *Database) *Storage[V] {
	return &Storage[V]{d: db}
}

// Store inserts or replaces the value for key. The write is committed when
// Store returns.
func (s *Storage[V]) Store(ctx context.Context, key string, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	query := `INSERT INTO ` + s.d.valueTable + ` (cache_key, value) VALUES (?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET value = excluded.value`
	if _, err := s.d.db.ExecContext(ctx, query, key, data); err != nil {
		s.d.logger.Error().Err(err).Str("key", key).Msg("Failed to store value.")
		return fmt.Errorf("sqlite upsert of value for %s: %w", key, err)
	}
	return nil
}

// Contains reports whether a value is stored for key.
func (s *Storage[V]) Contains(ctx context.Context, key string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM ` + s.d.valueTable + ` WHERE cache_key = ?)`
	var exists bool
	if err := s.d.db.QueryRowContext(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("sqlite exists for %s: %w", key, err)
	}
	return exists, nil
}

// Get reads and decodes the value for key.
func (s *Storage[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	var data []byte
	err := s.d.db.QueryRowContext(ctx, `SELECT value FROM `+s.d.valueTable+` WHERE cache_key = ?`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, fmt.Errorf("key '%s': %w", key, cache.ErrNotStored)
		}
		return zero, fmt.Errorf("sqlite select of value for %s: %w", key, err)
	}
	var value V
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return value, nil
}

// Remove deletes the value for key.
func (s *Storage[V]) Remove(ctx context.Context, key string) error {
	if _, err := s.d.db.ExecContext(ctx, `DELETE FROM `+s.d.valueTable+` WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("sqlite delete of value for %s: %w", key, err)
	}
	return nil
}

// Clear deletes every value of the namespace.
func (s *Storage[V]) Clear(ctx context.Context) error {
	if _, err := s.d.db.ExecContext(ctx, `DELETE FROM `+s.d.valueTable); err != nil {
		return fmt.Errorf("sqlite delete of values: %w", err)
	}
	return nil
}
