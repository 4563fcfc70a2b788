package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"jarvis/internal/domain"
)

// FileSessionStore persists every session in one JSON document of the form
// {"session-key": [messages...]}. The whole document is rewritten on each Put.
type FileSessionStore struct {
	mu      sync.Mutex
	path    string
	threads map[string][]domain.Message
}

// NewFileSessionStore loads path, or starts empty when it does not exist.
// A file that is not a valid document fails with domain.ErrStoreCorrupt.
func NewFileSessionStore(path string) (*FileSessionStore, error) {
	s := &FileSessionStore{path: path, threads: make(map[string][]domain.Message)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read memory file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.threads); err != nil {
		return nil, domain.NewDomainError("FileSessionStore.Load", domain.ErrStoreCorrupt, fmt.Sprintf("%s: %v", path, err))
	}
	if s.threads == nil {
		s.threads = make(map[string][]domain.Message)
	}
	return s, nil
}

func (s *FileSessionStore) Get(_ context.Context, key string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.threads[key]), nil
}

func (s *FileSessionStore) Put(_ context.Context, key string, msgs []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.threads[key]
	s.threads[key] = slices.Clone(msgs)
	if err := s.flush(); err != nil {
		if had {
			s.threads[key] = prev
		} else {
			delete(s.threads, key)
		}
		return err
	}
	return nil
}

// List derives UpdatedAt from the newest message timestamp in each session.
func (s *FileSessionStore) List(_ context.Context, opts domain.ListOptions) ([]domain.SessionSummary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]domain.SessionSummary, 0, len(s.threads))
	for key, msgs := range s.threads {
		if strings.HasPrefix(key, opts.Prefix) {
			all = append(all, domain.SessionSummary{Key: key, MessageCount: len(msgs), UpdatedAt: lastActivity(msgs)})
		}
	}
	return page(all, opts)
}

func (s *FileSessionStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.threads[key]
	if !ok {
		return nil
	}
	delete(s.threads, key)
	if err := s.flush(); err != nil {
		s.threads[key] = prev
		return err
	}
	return nil
}

// Prune skips sessions without any timestamped message.
func (s *FileSessionStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string][]domain.Message)
	for key, msgs := range s.threads {
		if at := lastActivity(msgs); !at.IsZero() && at.Before(before) {
			removed[key] = msgs
			delete(s.threads, key)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if err := s.flush(); err != nil {
		for key, msgs := range removed {
			s.threads[key] = msgs
		}
		return 0, err
	}
	return len(removed), nil
}

// flush writes the document to a temp file in the same directory and renames
// it over the target. Callers hold s.mu.
func (s *FileSessionStore) flush() error {
	data, err := json.MarshalIndent(s.threads, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memory file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace memory file: %w", err)
	}
	return nil
}

func lastActivity(msgs []domain.Message) time.Time {
	var last time.Time
	for _, m := range msgs {
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	return last
}
