package domain

import (
	"context"
	"time"
)

// SessionSummary describes one stored thread.
type SessionSummary struct {
	Key          string    `json:"key"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListOptions filter and page session listings. Limit <= 0 means no limit.
type ListOptions struct {
	Prefix string
	Limit  int
	Offset int
}

// SessionStore is a durable mapping from session key to message log.
type SessionStore interface {
	// Get returns the stored log, or an empty slice for unknown keys.
	Get(ctx context.Context, key string) ([]Message, error)
	// Put replaces the stored log.
	Put(ctx context.Context, key string, msgs []Message) error
	// List returns the summaries matching opts and the total match count
	// before paging. Results are ordered by key.
	List(ctx context.Context, opts ListOptions) ([]SessionSummary, int, error)
	// Delete removes a session. Deleting an unknown key is not an error.
	Delete(ctx context.Context, key string) error
	// Prune deletes sessions last updated before the cutoff.
	Prune(ctx context.Context, before time.Time) (int, error)
}

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u NewUser) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, id int64, upd UserUpdate) (*User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	DeleteUser(ctx context.Context, id int64) error
	CountAdmins(ctx context.Context) (int, error)
}

// ConfigStore persists global and per-user setting overrides.
// Merge operations only replace the fields set in the update.
type ConfigStore interface {
	GetGlobalConfig(ctx context.Context) (ConfigOverrides, error)
	MergeGlobalConfig(ctx context.Context, upd ConfigOverrides) (ConfigOverrides, error)
	GetUserConfig(ctx context.Context, userID int64) (ConfigOverrides, error)
	MergeUserConfig(ctx context.Context, userID int64, upd ConfigOverrides) (ConfigOverrides, error)
}
