package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"jarvis/internal/domain"
)

type memoryThread struct {
	messages []domain.Message
	updated  time.Time
}

// MemorySessionStore keeps sessions in process memory. Nothing survives a
// restart.
type MemorySessionStore struct {
	mu      sync.RWMutex
	threads map[string]memoryThread
	now     func() time.Time
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{threads: make(map[string]memoryThread), now: time.Now}
}

func (s *MemorySessionStore) Get(_ context.Context, key string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.threads[key].messages), nil
}

func (s *MemorySessionStore) Put(_ context.Context, key string, msgs []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[key] = memoryThread{messages: slices.Clone(msgs), updated: s.now()}
	return nil
}

func (s *MemorySessionStore) List(_ context.Context, opts domain.ListOptions) ([]domain.SessionSummary, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.SessionSummary, 0, len(s.threads))
	for key, th := range s.threads {
		if strings.HasPrefix(key, opts.Prefix) {
			all = append(all, domain.SessionSummary{Key: key, MessageCount: len(th.messages), UpdatedAt: th.updated})
		}
	}
	return page(all, opts)
}

func (s *MemorySessionStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, key)
	return nil
}

func (s *MemorySessionStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, th := range s.threads {
		if th.updated.Before(before) {
			delete(s.threads, key)
			n++
		}
	}
	return n, nil
}

// page sorts summaries by key and applies offset and limit.
func page(all []domain.SessionSummary, opts domain.ListOptions) ([]domain.SessionSummary, int, error) {
	slices.SortFunc(all, func(a, b domain.SessionSummary) int { return strings.Compare(a.Key, b.Key) })
	total := len(all)
	all = all[min(max(opts.Offset, 0), total):]
	if opts.Limit > 0 && len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	return all, total, nil
}
