package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrKeyNotFound is returned by [KVRepository.Get] for missing keys.
var ErrKeyNotFound = errors.New("key not found")

// KVRepository stores opaque values by key in the kv_store table.
type KVRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewKVRepository creates a new [KVRepository] with the given database connection
func NewKVRepository(db *sql.DB) *KVRepository {
	return &KVRepository{db: db, now: time.Now}
}

// Get returns the value stored under key, or [ErrKeyNotFound].
func (r *KVRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query key %s: %w", key, err)
	}
	return value, nil
}

// Put inserts or replaces the value under key.
func (r *KVRepository) Put(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, key, value, r.now().UTC()); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (r *KVRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// UpdatedAt returns when key was last written.
func (r *KVRepository) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var at time.Time
	err := r.db.QueryRowContext(ctx, "SELECT updated_at FROM kv_store WHERE key = ?", key).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query key %s: %w", key, err)
	}
	return at, nil
}
