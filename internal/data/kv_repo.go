package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// KEY-VALUE REPOSITORY
// =============================================================================

// KVRepository stores opaque serialized values by key. The cart lives here.
type KVRepository struct{}

func NewKVRepository() *KVRepository {
	return &KVRepository{}
}

// Get returns the stored value; ok is false when the key is absent.
func (r *KVRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	row, err := QueryRowDB(ctx, `SELECT value FROM kv_store WHERE key = ?`, key)
	if err != nil {
		return nil, false, err
	}

	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func (r *KVRepository) Put(ctx context.Context, key string, value []byte) error {
	const stmt = `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	if _, err := ExecDB(ctx, stmt, key, string(value), formatTime(time.Now())); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (r *KVRepository) Delete(ctx context.Context, key string) error {
	if _, err := ExecDB(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// DeleteStale removes up to limit keys with the prefix untouched since cutoff.
func (r *KVRepository) DeleteStale(ctx context.Context, prefix string, cutoff time.Time, limit int) (int, error) {
	const stmt = `
		DELETE FROM kv_store
		WHERE key IN (
			SELECT key FROM kv_store
			WHERE key LIKE ? || '%'
			AND updated_at < ?
			LIMIT ?
		)`

	result, err := ExecDB(ctx, stmt, prefix, formatTime(cutoff), limit)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}
