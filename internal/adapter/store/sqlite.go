package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"jarvis/internal/domain"
)

// openDB opens (or creates) a SQLite database at path and applies schema.
func openDB(path, schema string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return db, nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY conflict.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func toNanos(t time.Time) int64   { return t.UTC().UnixNano() }
func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

const threadsSchema = `
	CREATE TABLE IF NOT EXISTS threads (
		key           TEXT PRIMARY KEY,
		messages      TEXT NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS threads_updated_at ON threads(updated_at);
`

// SQLiteSessionStore implements domain.SessionStore using SQLite. Each
// session is one row holding its JSON-encoded message log.
type SQLiteSessionStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteSessionStore opens (or creates) the session database at path.
func NewSQLiteSessionStore(path string) (*SQLiteSessionStore, error) {
	db, err := openDB(path, threadsSchema)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	return &SQLiteSessionStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteSessionStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteSessionStore) Get(ctx context.Context, key string) ([]domain.Message, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT messages FROM threads WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get thread %q: %w", key, err)
	}

	var msgs []domain.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, domain.NewDomainError("SQLiteSessionStore.Get", domain.ErrStoreCorrupt, key)
	}
	return msgs, nil
}

func (s *SQLiteSessionStore) Put(ctx context.Context, key string, msgs []domain.Message) error {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode thread %q: %w", key, err)
	}
	now := toNanos(s.now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO threads (key, messages, message_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			messages = excluded.messages,
			message_count = excluded.message_count,
			updated_at = excluded.updated_at`,
		key, string(data), len(msgs), now, now,
	)
	if err != nil {
		return fmt.Errorf("put thread %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteSessionStore) List(ctx context.Context, opts domain.ListOptions) ([]domain.SessionSummary, int, error) {
	// substr counts characters, not bytes.
	const match = "substr(key, 1, ?) = ?"
	prefixLen := utf8.RuneCountInString(opts.Prefix)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM threads WHERE "+match, prefixLen, opts.Prefix).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count threads: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, message_count, updated_at FROM threads WHERE "+match+" ORDER BY key LIMIT ? OFFSET ?",
		prefixLen, opts.Prefix, limit, max(opts.Offset, 0),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	out := []domain.SessionSummary{}
	for rows.Next() {
		var sum domain.SessionSummary
		var updated int64
		if err := rows.Scan(&sum.Key, &sum.MessageCount, &updated); err != nil {
			return nil, 0, fmt.Errorf("scan thread: %w", err)
		}
		sum.UpdatedAt = fromNanos(updated)
		out = append(out, sum)
	}
	return out, total, rows.Err()
}

func (s *SQLiteSessionStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM threads WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete thread %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteSessionStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM threads WHERE updated_at < ?", toNanos(before))
	if err != nil {
		return 0, fmt.Errorf("prune threads: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
