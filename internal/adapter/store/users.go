package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jarvis/internal/domain"
)

const usersSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'user',
		is_active     INTEGER NOT NULL DEFAULT 1,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS global_config (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		data       TEXT NOT NULL DEFAULT '{}',
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS user_config (
		user_id    INTEGER PRIMARY KEY,
		data       TEXT NOT NULL DEFAULT '{}',
		updated_at INTEGER NOT NULL
	);
`

const userColumns = "id, username, email, password_hash, role, is_active, created_at, updated_at"

// SQLiteUserStore implements domain.UserStore and domain.ConfigStore.
type SQLiteUserStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteUserStore opens (or creates) the auth database at path.
func NewSQLiteUserStore(path string) (*SQLiteUserStore, error) {
	db, err := openDB(path, usersSchema)
	if err != nil {
		return nil, fmt.Errorf("user store: %w", err)
	}
	return &SQLiteUserStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteUserStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteUserStore) CreateUser(ctx context.Context, nu domain.NewUser) (*domain.User, error) {
	role := nu.Role
	if role == "" {
		role = domain.AuthRoleUser
	}
	now := toNanos(s.now())
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, role, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, 1, ?, ?)",
		nu.Username, nu.Email, nu.PasswordHash, string(role), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.NewDomainError("UserStore.CreateUser", domain.ErrDuplicate, "username or email already exists")
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return s.GetUser(ctx, id)
}

func (s *SQLiteUserStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

func (s *SQLiteUserStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username))
}

func (s *SQLiteUserStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUser changes only the fields set in upd.
func (s *SQLiteUserStore) UpdateUser(ctx context.Context, id int64, upd domain.UserUpdate) (*domain.User, error) {
	var email, role, active any
	if upd.Email != nil {
		email = *upd.Email
	}
	if upd.Role != nil {
		role = string(*upd.Role)
	}
	if upd.IsActive != nil {
		active = *upd.IsActive
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			email = COALESCE(?, email),
			role = COALESCE(?, role),
			is_active = COALESCE(?, is_active),
			updated_at = ?
		WHERE id = ?`,
		email, role, active, toNanos(s.now()), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.NewDomainError("UserStore.UpdateUser", domain.ErrDuplicate, "email already exists")
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrUserNotFound
	}
	return s.GetUser(ctx, id)
}

func (s *SQLiteUserStore) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
		hash, toNanos(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// DeleteUser removes the user together with their config overrides.
func (s *SQLiteUserStore) DeleteUser(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_config WHERE user_id = ?", id); err != nil {
		return fmt.Errorf("delete user config: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteUserStore) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE role = ?", string(domain.AuthRoleAdmin)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

func (s *SQLiteUserStore) GetGlobalConfig(ctx context.Context) (domain.ConfigOverrides, error) {
	return s.loadConfig(ctx, s.db, "SELECT data FROM global_config WHERE id = 1")
}

func (s *SQLiteUserStore) MergeGlobalConfig(ctx context.Context, upd domain.ConfigOverrides) (domain.ConfigOverrides, error) {
	return s.mergeConfig(ctx, upd,
		"SELECT data FROM global_config WHERE id = 1",
		`INSERT INTO global_config (id, data, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
	)
}

func (s *SQLiteUserStore) GetUserConfig(ctx context.Context, userID int64) (domain.ConfigOverrides, error) {
	return s.loadConfig(ctx, s.db, "SELECT data FROM user_config WHERE user_id = ?", userID)
}

func (s *SQLiteUserStore) MergeUserConfig(ctx context.Context, userID int64, upd domain.ConfigOverrides) (domain.ConfigOverrides, error) {
	return s.mergeConfig(ctx, upd,
		"SELECT data FROM user_config WHERE user_id = ?",
		`INSERT INTO user_config (user_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		userID,
	)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteUserStore) loadConfig(ctx context.Context, q queryer, query string, args ...any) (domain.ConfigOverrides, error) {
	var raw string
	err := q.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ConfigOverrides{}, nil
	}
	if err != nil {
		return domain.ConfigOverrides{}, fmt.Errorf("load config: %w", err)
	}
	var o domain.ConfigOverrides
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return domain.ConfigOverrides{}, domain.NewDomainError("UserStore.loadConfig", domain.ErrStoreCorrupt, err.Error())
	}
	return o, nil
}

// mergeConfig reads, merges and writes one overrides row in a transaction.
// keyArgs precede the data and timestamp arguments of the upsert.
func (s *SQLiteUserStore) mergeConfig(ctx context.Context, upd domain.ConfigOverrides, selectQ, upsertQ string, keyArgs ...any) (domain.ConfigOverrides, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ConfigOverrides{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	cur, err := s.loadConfig(ctx, tx, selectQ, keyArgs...)
	if err != nil {
		return domain.ConfigOverrides{}, err
	}
	merged := cur.Merge(upd)

	data, err := json.Marshal(merged)
	if err != nil {
		return domain.ConfigOverrides{}, fmt.Errorf("encode config: %w", err)
	}
	args := append(append([]any{}, keyArgs...), string(data), toNanos(s.now()))
	if _, err := tx.ExecContext(ctx, upsertQ, args...); err != nil {
		return domain.ConfigOverrides{}, fmt.Errorf("save config: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.ConfigOverrides{}, fmt.Errorf("commit: %w", err)
	}
	return merged, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	var role string
	var created, updated int64
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.IsActive, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = domain.AuthRole(role)
	u.CreatedAt = fromNanos(created)
	u.UpdatedAt = fromNanos(updated)
	return &u, nil
}
