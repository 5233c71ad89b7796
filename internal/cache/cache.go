package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/urlclean/internal/storage"
)

// Store is a persistent category/key/value cache for network lookups made by
// the cleaner. A nil *Store is valid and behaves as an always-empty cache.
type Store struct {
	db *sql.DB
}

// Open opens the cache database at path, creating it if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the cached value for (category, key). found is false on a miss.
func (s *Store) Get(ctx context.Context, category, key string) (value string, found bool, err error) {
	if s == nil {
		return "", false, nil
	}

	var raw sql.NullString
	err = s.db.QueryRowContext(ctx, "SELECT value FROM cache WHERE category = ? AND key = ?;", category, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read cache %s/%s: %w", category, key, err)
	}
	return raw.String, true, nil
}

// Put stores value under (category, key), replacing any previous entry.
func (s *Store) Put(ctx context.Context, category, key, value string) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cache(category, key, value, created_at) VALUES(?, ?, ?, ?)
ON CONFLICT(category, key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at;`,
		category, key, value, now)
	if err != nil {
		return fmt.Errorf("write cache %s/%s: %w", category, key, err)
	}
	return nil
}

// Len returns the number of cached entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	if s == nil {
		return 0, nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache;").Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache: %w", err)
	}
	return n, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
