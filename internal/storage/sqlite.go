package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLiteStorage is a durable Storage backed by a single-table SQLite
// database. It is the on-device persistence layer for the offline cache
// and queue.
type SQLiteStorage struct {
	db *sql.DB
}

// Config holds storage connection configuration
type Config struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Driver: "sqlite3",
		DSN:    "fitcoach.db",
	}
}

// Open creates a new SQLite-backed storage at dsn
func Open(dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// Serialize writers; the kv table sees frequent small upserts
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(kvSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// OpenWithConfig creates a storage from configuration
func OpenWithConfig(config Config) (*SQLiteStorage, error) {
	if config.Driver != "sqlite3" {
		return nil, fmt.Errorf("unsupported storage driver: %s", config.Driver)
	}
	return Open(config.DSN)
}

// Close releases the underlying database handle
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// GetItem returns the value stored under key, or ErrKeyNotFound
func (s *SQLiteStorage) GetItem(ctx context.Context, key string) (string, error) {
	var value string

	query := `SELECT value FROM kv WHERE key = ?`

	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}

	return value, nil
}

// SetItem stores value under key, replacing any existing value
func (s *SQLiteStorage) SetItem(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, key, value, time.Now())
	return err
}

// RemoveItem deletes key; removing an absent key is not an error
func (s *SQLiteStorage) RemoveItem(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Keys returns every stored key
func (s *SQLiteStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// RemoveAll deletes every key in keys within a single transaction
func (s *SQLiteStorage) RemoveAll(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Clear deletes everything
func (s *SQLiteStorage) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv`)
	return err
}
