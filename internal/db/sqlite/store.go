// Package sqlite implements the db.Store facade on a single-table SQLite
// database for deployments without Redis.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // database/sql driver

	"github.com/marketlens/kwscout/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Config holds the database path.
type Config struct {
	Path string
}

// Store implements db.Store over a kv table.
type Store struct {
	conn *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	k          TEXT PRIMARY KEY,
	v          BLOB NOT NULL,
	expires_at INTEGER
);`

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// NewStore opens (and creates if needed) the SQLite database.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	conn, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Ping checks database availability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close shuts down the database handle.
func (s *Store) Close() {
	_ = s.conn.Close()
}

// WaitForReady pings once; a local file database is ready when it opens.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("sqlite not ready: %w", err)
	}
	return nil
}

// Get retrieves a value by key, honoring expiry.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expires sql.NullInt64
	err := s.conn.QueryRowContext(ctx,
		"SELECT v, expires_at FROM kv WHERE k = ?", key,
	).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	if expired(expires) {
		_ = s.Del(ctx, key)
		return nil, db.ErrKeyNotFound
	}
	return value, nil
}

// MGet retrieves multiple values in one query. Missing or expired keys yield
// nil entries at their positions.
func (s *Store) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(keys)-1) + "?"
	args := make([]any, len(keys))
	pos := make(map[string]int, len(keys))
	for i, k := range keys {
		args[i] = k
		pos[k] = i
	}

	rows, err := s.conn.QueryContext(ctx,
		"SELECT k, v, expires_at FROM kv WHERE k IN ("+placeholders+")", args...,
	)
	if err != nil {
		return nil, &db.Error{Op: db.OpMGet, Err: err}
	}
	defer rows.Close()

	out := make([][]byte, len(keys))
	for rows.Next() {
		var k string
		var v []byte
		var expires sql.NullInt64
		if err := rows.Scan(&k, &v, &expires); err != nil {
			return nil, &db.Error{Op: db.OpMGet, Err: err}
		}
		if expired(expires) {
			continue
		}
		if i, ok := pos[k]; ok {
			out[i] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpMGet, Err: err}
	}
	return out, nil
}

// Set stores a value at the given key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.upsert(ctx, key, value, sql.NullInt64{})
}

// SetWithTTL stores a value with an expiration.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expires := sql.NullInt64{Int64: time.Now().Add(ttl).Unix(), Valid: true}
	return s.upsert(ctx, key, value, expires)
}

func (s *Store) upsert(ctx context.Context, key string, value []byte, expires sql.NullInt64) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO kv (k, v, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(k) DO UPDATE SET v = excluded.v, expires_at = excluded.expires_at`,
		key, value, expires,
	)
	if err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// Del removes a key.
func (s *Store) Del(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM kv WHERE k = ?", key); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

// Exists reports whether a key is present and unexpired.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &db.Error{Op: db.OpExists, Err: err}
	}
	return true, nil
}

func expired(expires sql.NullInt64) bool {
	return expires.Valid && time.Now().Unix() >= expires.Int64
}
