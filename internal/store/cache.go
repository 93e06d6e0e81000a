// ABOUTME: Time-limited cache of raw backend responses
// ABOUTME: Backs member and bill bundle lookups so dashboards load without a backend round trip

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCached returns the stored value for key.
// Returns ErrNotFound if it is missing or has expired.
func (s *SQLiteStore) GetCached(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM response_cache WHERE key = ? AND expires_at > ?`,
		key, formatTime(s.now()),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying cache: %w", err)
	}
	return value, nil
}

// PutCached stores value under key for ttl, replacing any previous entry.
func (s *SQLiteStore) PutCached(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO response_cache (key, value, stored_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at
	`, key, value, formatTime(now), formatTime(now.Add(ttl)))
	if err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// DeleteExpiredCache removes expired entries and returns how many.
func (s *SQLiteStore) DeleteExpiredCache(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, formatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("deleting expired cache entries: %w", err)
	}
	return result.RowsAffected()
}
