/*
Package sqlite provides the SQLite-backed history cache and issuance log.

PURPOSE:
  The engine recomputes everything from an immutable history snapshot, so
  the only persistence this system needs is (1) a local cache of the last
  fetched spreadsheet table, with a fetch timestamp for time-boxed
  invalidation, and (2) an append-only draft log of issuance entries typed
  into the console. Nothing here is ever written back to the spreadsheet.

KEY TABLES:
  snapshot_meta:  Single row holding the last fetch time
  usage_records:  The cached historical table, replaced wholesale per fetch
  issuances:      Append-only draft issuance entries

CACHE CONTRACT:
  Snapshot() atomically replaces the cached table and stamps the fetch
  time. Load(maxAge) returns the cached history, or ErrStaleCache when the
  snapshot is missing or older than maxAge, in which case the caller
  re-fetches from the Source and snapshots again.

WAL MODE:
  SQLite is opened with WAL for better concurrency and crash recovery.
  Amounts are stored as decimal strings, never floats.

USAGE:
  cache, err := sqlite.New("./data/stock.db")
  history, err := cache.Load(ctx, time.Hour)
  if errors.Is(err, sqlite.ErrStaleCache) {
      history, _ = source.Fetch(ctx)
      _ = cache.Snapshot(ctx, history)
  }

SEE ALSO:
  - sheet/source.go: The Source this cache fronts
  - api/handlers.go: The caller implementing the refresh loop
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/spp/stock-engine/allocation"
)

// ErrStaleCache is returned by Load when there is no cached snapshot or it
// is older than the requested max age.
var ErrStaleCache = errors.New("cached history is stale or missing")

// Cache implements the history cache and issuance log on SQLite.
type Cache struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a cache at the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	cache := &Cache{db: db}
	if err := cache.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return cache, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// migrate creates the database schema.
func (c *Cache) migrate() error {
	schema := `
	-- Single-row metadata for the cached snapshot
	CREATE TABLE IF NOT EXISTS snapshot_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		fetched_at TEXT NOT NULL
	);

	-- Cached historical table, replaced wholesale on every fetch
	CREATE TABLE IF NOT EXISTS usage_records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		serial TEXT,
		item TEXT NOT NULL,
		department TEXT NOT NULL,
		issued_to TEXT,
		quantity TEXT NOT NULL,
		unit TEXT,
		category TEXT,
		reference TEXT,
		department_cat TEXT,
		batch TEXT,
		store TEXT,
		received_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_usage_item ON usage_records(item);
	CREATE INDEX IF NOT EXISTS idx_usage_department ON usage_records(department);

	-- Draft issuance entries (append-only, never written back upstream)
	CREATE TABLE IF NOT EXISTS issuances (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		date TEXT NOT NULL,
		item TEXT NOT NULL,
		department TEXT,
		issued_to TEXT,
		quantity TEXT NOT NULL,
		unit TEXT,
		category TEXT,
		reference TEXT,
		department_cat TEXT,
		batch TEXT,
		store TEXT,
		received_by TEXT
	);
	`
	_, err := c.db.Exec(schema)
	return err
}

// =============================================================================
// HISTORY CACHE
// =============================================================================

// Snapshot atomically replaces the cached history and stamps the fetch time.
func (c *Cache) Snapshot(ctx context.Context, history allocation.History) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM usage_records`); err != nil {
		return fmt.Errorf("failed to clear cached records: %w", err)
	}

	insert := `
		INSERT INTO usage_records
		(date, serial, item, department, issued_to, quantity, unit, category,
		 reference, department_cat, batch, store, received_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, r := range history {
		if _, err := tx.ExecContext(ctx, insert,
			r.Date.UTC().Format(time.RFC3339),
			r.Serial,
			r.Item,
			r.Department,
			r.IssuedTo,
			r.Quantity.String(),
			r.Unit,
			r.Category,
			r.Reference,
			r.DepartmentCategory,
			r.Batch,
			r.Store,
			r.ReceivedBy,
		); err != nil {
			return fmt.Errorf("failed to cache record: %w", err)
		}
	}

	meta := `
		INSERT INTO snapshot_meta (id, fetched_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET fetched_at = excluded.fetched_at
	`
	if _, err := tx.ExecContext(ctx, meta, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to stamp snapshot: %w", err)
	}

	return tx.Commit()
}

// Load returns the cached history if it is younger than maxAge.
// maxAge <= 0 disables the staleness check. Returns ErrStaleCache when the
// snapshot is missing, empty, or too old.
func (c *Cache) Load(ctx context.Context, maxAge time.Duration) (allocation.History, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fetchedAt, err := c.fetchedAtLocked(ctx)
	if err != nil {
		return nil, err
	}
	if maxAge > 0 && time.Since(fetchedAt) > maxAge {
		return nil, ErrStaleCache
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT date, serial, item, department, issued_to, quantity, unit,
		       category, reference, department_cat, batch, store, received_by
		FROM usage_records ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached records: %w", err)
	}
	defer rows.Close()

	var history allocation.History
	for rows.Next() {
		var r allocation.UsageRecord
		var date, quantity string
		if err := rows.Scan(&date, &r.Serial, &r.Item, &r.Department, &r.IssuedTo,
			&quantity, &r.Unit, &r.Category, &r.Reference, &r.DepartmentCategory,
			&r.Batch, &r.Store, &r.ReceivedBy); err != nil {
			return nil, fmt.Errorf("failed to scan cached record: %w", err)
		}
		if r.Date, err = time.Parse(time.RFC3339, date); err != nil {
			return nil, fmt.Errorf("corrupt cached date %q: %w", date, err)
		}
		if r.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("corrupt cached quantity %q: %w", quantity, err)
		}
		history = append(history, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, ErrStaleCache
	}
	return history, nil
}

// FetchedAt reports when the cached snapshot was taken.
func (c *Cache) FetchedAt(ctx context.Context) (time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAtLocked(ctx)
}

func (c *Cache) fetchedAtLocked(ctx context.Context) (time.Time, error) {
	var stamp string
	err := c.db.QueryRowContext(ctx, `SELECT fetched_at FROM snapshot_meta WHERE id = 1`).Scan(&stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrStaleCache
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read snapshot meta: %w", err)
	}
	fetchedAt, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt snapshot timestamp %q: %w", stamp, err)
	}
	return fetchedAt, nil
}

// =============================================================================
// ISSUANCE LOG
// =============================================================================

// Issuance is one draft issuance entry from the console.
type Issuance struct {
	ID                 string
	CreatedAt          time.Time
	Date               time.Time
	Item               string
	Department         string
	IssuedTo           string
	Quantity           decimal.Decimal
	Unit               string
	Category           string
	Reference          string
	DepartmentCategory string
	Batch              string
	Store              string
	ReceivedBy         string
}

// AppendIssuance records a draft issuance entry. An empty ID is assigned a
// fresh UUID; the (possibly assigned) ID is returned.
func (c *Cache) AppendIssuance(ctx context.Context, e Issuance) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO issuances
		(id, created_at, date, item, department, issued_to, quantity, unit,
		 category, reference, department_cat, batch, store, received_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := c.db.ExecContext(ctx, query,
		e.ID,
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.Date.UTC().Format(time.RFC3339),
		e.Item,
		e.Department,
		e.IssuedTo,
		e.Quantity.String(),
		e.Unit,
		e.Category,
		e.Reference,
		e.DepartmentCategory,
		e.Batch,
		e.Store,
		e.ReceivedBy,
	)
	if err != nil {
		return "", fmt.Errorf("failed to append issuance: %w", err)
	}
	return e.ID, nil
}

// ListIssuances returns all draft issuance entries, newest first.
func (c *Cache) ListIssuances(ctx context.Context) ([]Issuance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, created_at, date, item, department, issued_to, quantity,
		       unit, category, reference, department_cat, batch, store, received_by
		FROM issuances ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list issuances: %w", err)
	}
	defer rows.Close()

	var out []Issuance
	for rows.Next() {
		var e Issuance
		var createdAt, date, quantity string
		if err := rows.Scan(&e.ID, &createdAt, &date, &e.Item, &e.Department,
			&e.IssuedTo, &quantity, &e.Unit, &e.Category, &e.Reference,
			&e.DepartmentCategory, &e.Batch, &e.Store, &e.ReceivedBy); err != nil {
			return nil, fmt.Errorf("failed to scan issuance: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("corrupt issuance timestamp %q: %w", createdAt, err)
		}
		if e.Date, err = time.Parse(time.RFC3339, date); err != nil {
			return nil, fmt.Errorf("corrupt issuance date %q: %w", date, err)
		}
		if e.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("corrupt issuance quantity %q: %w", quantity, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
