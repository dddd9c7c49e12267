package cliclient

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Cache is a local SQLite-backed store of the last successful response
// per read endpoint, letting whimctl's read commands serve a snapshot
// when the orchestrator is unreachable (--offline, or transparent
// fallback on a dial error). It deliberately does not attempt to cache
// writes or claim semantics: those require the orchestrator's FOR
// UPDATE SKIP LOCKED guarantees that a local single-writer SQLite file
// cannot provide.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if absent) the SQLite cache file at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer; avoid lock contention across CLI invocations

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			key         TEXT PRIMARY KEY,
			payload     TEXT NOT NULL,
			fetched_at  TIMESTAMP NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying SQLite connection.
func (c *Cache) Close() error { return c.db.Close() }

// Put stores the raw response payload for key, overwriting any prior
// snapshot.
func (c *Cache) Put(ctx context.Context, key string, payload json.RawMessage) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, payload, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at
	`, key, string(payload), time.Now())
	if err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

// Get returns the last cached payload for key and when it was fetched.
// ok is false if nothing has ever been cached for key.
func (c *Cache) Get(ctx context.Context, key string) (payload json.RawMessage, fetchedAt time.Time, ok bool, err error) {
	row := c.db.QueryRowContext(ctx, `SELECT payload, fetched_at FROM snapshots WHERE key = ?`, key)
	var raw string
	if err := row.Scan(&raw, &fetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return json.RawMessage(raw), fetchedAt, true, nil
}
