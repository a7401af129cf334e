package enrich

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// CacheEntry is one cached lookup outcome. Data is nil both for a confirmed
// miss (the upstream has no record for the BIN) and for a failed lookup;
// Error distinguishes the two. Misses are cached so a BIN absent upstream is
// never fetched twice.
type CacheEntry struct {
	FetchedAt time.Time
	Data      *LookupResponse
	Error     string
}

// Cache stores lookup outcomes keyed by BIN so repeat runs stay off the
// rate-limited upstream.
type Cache interface {
	Get(ctx context.Context, bin string) (*CacheEntry, error)
	Put(ctx context.Context, bin string, entry CacheEntry) error
	Close() error
}

// SQLiteCache persists lookup outcomes in a local SQLite file.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens (or creates) the cache database at path and
// configures WAL mode.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: open cache db")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "enrich: exec %s", pragma)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS lookup_cache (
			bin        TEXT PRIMARY KEY,
			fetched_at DATETIME NOT NULL,
			data       TEXT,
			error      TEXT
		)
	`); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "enrich: create cache table")
	}

	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, bin string) (*CacheEntry, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT fetched_at, data, error FROM lookup_cache WHERE bin = ?`, bin)

	var entry CacheEntry
	var data, errStr sql.NullString
	err := row.Scan(&entry.FetchedAt, &data, &errStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: get cache entry %s", bin)
	}

	if data.Valid {
		entry.Data = &LookupResponse{}
		if err := json.Unmarshal([]byte(data.String), entry.Data); err != nil {
			return nil, eris.Wrapf(err, "enrich: unmarshal cache entry %s", bin)
		}
	}
	if errStr.Valid {
		entry.Error = errStr.String
	}
	return &entry, nil
}

func (c *SQLiteCache) Put(ctx context.Context, bin string, entry CacheEntry) error {
	var data sql.NullString
	if entry.Data != nil {
		b, err := json.Marshal(entry.Data)
		if err != nil {
			return eris.Wrapf(err, "enrich: marshal cache entry %s", bin)
		}
		data = sql.NullString{String: string(b), Valid: true}
	}
	errStr := sql.NullString{String: entry.Error, Valid: entry.Error != ""}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO lookup_cache (bin, fetched_at, data, error) VALUES (?, ?, ?, ?)
		 ON CONFLICT (bin) DO UPDATE SET fetched_at = excluded.fetched_at,
		     data = excluded.data, error = excluded.error`,
		bin, entry.FetchedAt.UTC(), data, errStr,
	)
	return eris.Wrapf(err, "enrich: put cache entry %s", bin)
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// MemoryCache keeps entries in process, for tests and one-shot runs.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]CacheEntry)}
}

func (c *MemoryCache) Get(_ context.Context, bin string) (*CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.entries[bin]; ok {
		return &entry, nil
	}
	return nil, nil
}

func (c *MemoryCache) Put(_ context.Context, bin string, entry CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[bin] = entry
	return nil
}

func (c *MemoryCache) Close() error { return nil }
