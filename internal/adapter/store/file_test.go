package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jarvis/internal/domain"
)

func TestFileSessionStore_DocumentShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	s, _ := NewFileSessionStore(path)
	_ = s.Put(context.Background(), "default", exchange("oi", "ola"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var doc map[string][]map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("document is not {key: [messages]}: %v\n%s", err, data)
	}
	if len(doc["default"]) != 2 || doc["default"][0]["role"] != "human" {
		t.Errorf("doc = %v", doc)
	}
}

func TestFileSessionStore_ReloadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memory.json")
	s, err := NewFileSessionStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Put(context.Background(), "a", exchange("1", "2"))
	_ = s.Put(context.Background(), "b", exchange("3", "4"))

	reopened, err := NewFileSessionStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, _ := reopened.Get(context.Background(), "b")
	if len(got) != 2 || got[0].Content.Flatten() != "3" {
		t.Errorf("reloaded = %+v", got)
	}
}

func TestFileSessionStore_EmptyFileIsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	_ = os.WriteFile(path, []byte("  \n"), 0o600)
	s, err := NewFileSessionStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, total, _ := s.List(context.Background(), domain.ListOptions{}); total != 0 {
		t.Errorf("total = %d", total)
	}
}

func TestFileSessionStore_Corrupt(t *testing.T) {
	for _, content := range []string{"{not json", `["a list"]`} {
		path := filepath.Join(t.TempDir(), "memory.json")
		_ = os.WriteFile(path, []byte(content), 0o600)
		if _, err := NewFileSessionStore(path); !errors.Is(err, domain.ErrStoreCorrupt) {
			t.Errorf("%q: err = %v, want ErrStoreCorrupt", content, err)
		}
	}
}

func TestFileSessionStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileSessionStore(filepath.Join(dir, "memory.json"))
	for range 3 {
		_ = s.Put(context.Background(), "k", exchange("q", "a"))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want only memory.json", names)
	}
}

func TestFileSessionStore_FailedWriteKeepsState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.json")
	s, _ := NewFileSessionStore(path)
	_ = s.Put(context.Background(), "k", exchange("q", "a"))

	// Renaming over a directory fails.
	_ = os.Remove(path)
	_ = os.Mkdir(path, 0o700)
	if err := s.Put(context.Background(), "other", exchange("x", "y")); err == nil {
		t.Fatal("expected write error")
	}
	if got, _ := s.Get(context.Background(), "other"); len(got) != 0 {
		t.Errorf("failed put should not be visible, got %d messages", len(got))
	}
	if got, _ := s.Get(context.Background(), "k"); len(got) != 2 {
		t.Errorf("existing session lost, got %d messages", len(got))
	}
}

func TestFileSessionStore_PruneByLastMessage(t *testing.T) {
	s := newTestFileSessions(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	at := func(ts time.Time) []domain.Message {
		return []domain.Message{{Role: domain.RoleHuman, Content: domain.Text("q"), Timestamp: ts}}
	}
	_ = s.Put(ctx, "old", at(base))
	_ = s.Put(ctx, "fresh", at(base.Add(72*time.Hour)))
	_ = s.Put(ctx, "untimed", []domain.Message{{Role: domain.RoleHuman, Content: domain.Text("q")}})

	n, err := s.Prune(ctx, base.Add(24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v", n, err)
	}
	if got, _ := s.Get(ctx, "old"); len(got) != 0 {
		t.Error("old session should be pruned")
	}
	if got, _ := s.Get(ctx, "untimed"); len(got) != 1 {
		t.Error("sessions without timestamps are kept")
	}

	list, _, _ := s.List(ctx, domain.ListOptions{Prefix: "fresh"})
	if len(list) != 1 || !list[0].UpdatedAt.Equal(base.Add(72*time.Hour)) {
		t.Errorf("list = %+v", list)
	}
}
