package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrCapacityExceeded is returned by Set when a value is larger than the
// configured per-key limit. The caller keeps its in-memory state.
var ErrCapacityExceeded = errors.New("storage capacity exceeded")

type SQLiteStore struct {
	db       *sql.DB
	maxBytes int
}

// NewSQLiteStore opens the key/value database. maxBytes <= 0 disables the
// per-value size limit.
func NewSQLiteStore(dataSourceName string, maxBytes int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// One writer keeps whole-blob replacement ordered.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, maxBytes: maxBytes}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS kv (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the stored value and whether the key exists.
func (s *SQLiteStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(key, value string) error {
	if s.maxBytes > 0 && len(value) > s.maxBytes {
		return fmt.Errorf("failed to write key %s (%d bytes, limit %d): %w", key, len(value), s.maxBytes, ErrCapacityExceeded)
	}

	stmt, err := s.db.Prepare(`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare kv upsert: %w", err)
	}
	defer stmt.Close()

	if _, err = stmt.Exec(key, value, time.Now()); err != nil {
		return fmt.Errorf("failed to execute kv upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}
