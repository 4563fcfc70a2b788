// Package store provides the session, user and config persistence backends.
package store

import (
	"fmt"

	"jarvis/internal/domain"
	"jarvis/internal/infra/config"
)

// OpenSessions builds the session store selected by cfg.Backend. The returned
// closer releases backend resources.
func OpenSessions(cfg config.StoreConfig) (domain.SessionStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.StoreSQLite, "":
		s, err := NewSQLiteSessionStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreFile:
		s, err := NewFileSessionStore(cfg.MemoryFile)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case config.StoreMemory:
		return NewMemorySessionStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
