package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"strings"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore is the sqlite-backed DurableStore. Entries are stored as
// serialized blobs alongside the columns eviction and trimming need.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	maxBytes int64
}

// NewSQLiteStore opens (or creates) the cache database at path.
func NewSQLiteStore(path string, maxBytes int64) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, path: path, maxBytes: maxBytes}
	if err := s.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS page_cache (
		key TEXT PRIMARY KEY,
		expires INTEGER,
		last_accessed INTEGER,
		priority REAL,
		size INTEGER,
		protected INTEGER,
		tags TEXT,
		entry BLOB
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS page_cache_expires_idx ON page_cache (expires)")
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT entry FROM page_cache WHERE key = ?", key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var e Entry
	if err := json.Unmarshal(blob, &e); err != nil {
		// corrupted row, drop it and report a miss
		s.db.ExecContext(ctx, "DELETE FROM page_cache WHERE key = ?", key)
		return nil, false, err
	}
	return &e, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, e *Entry) error {
	blob, err := json.Marshal(e)
	if err != nil {
		return err
	}
	protected := 0
	if e.Metadata.HasUnsavedChanges {
		protected = 1
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO page_cache (key, expires, last_accessed, priority, size, protected, tags, entry) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		key, e.ExpiresAt.Unix(), e.Metadata.LastAccessedAt.Unix(), e.Priority, e.SizeBytes, protected, tagList(e.Tags), blob)
	if err != nil {
		return err
	}
	return s.trim(ctx)
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM page_cache WHERE key = ?", key)
	return err
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM page_cache")
	return err
}

func (s *SQLiteStore) InvalidateByTags(ctx context.Context, tags []string) error {
	for _, tag := range tags {
		_, err := s.db.ExecContext(ctx, "DELETE FROM page_cache WHERE tags LIKE ?", "%,"+tag+",%")
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context, cb func(key string)) error {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM page_cache")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		cb(key)
	}
	return rows.Err()
}

func (s *SQLiteStore) SizeBytes(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(size), 0) FROM page_cache").Scan(&total)
	return total, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Estimate implements QuotaEstimator using the database file size
// against the configured budget.
func (s *SQLiteStore) Estimate() (usage, quota int64, err error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, s.maxBytes, err
	}
	return info.Size(), s.maxBytes, nil
}

// trim deletes lowest-priority, least-recently-accessed rows until the
// stored sizes sum to the budget or less. Protected rows (unsaved
// changes) are never deleted.
func (s *SQLiteStore) trim(ctx context.Context) error {
	for {
		total, err := s.SizeBytes(ctx)
		if err != nil {
			return err
		}
		if s.maxBytes <= 0 || total <= s.maxBytes {
			return nil
		}
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM page_cache WHERE key IN (
				SELECT key FROM page_cache WHERE protected = 0
				ORDER BY priority ASC, last_accessed ASC LIMIT 1
			)`)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// nothing evictable left
			return nil
		}
	}
}

// tagList stores tags wrapped in commas so LIKE '%,tag,%' matches
// whole tags only.
func tagList(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "," + strings.Join(tags, ",") + ","
}
