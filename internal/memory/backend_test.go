package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackendRejectsPathLikeIDs(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	for _, id := range []string{"../escape", "a/b", `a\b`, ".."} {
		if err := b.Save(context.Background(), id, Snapshot{}); err == nil {
			t.Fatalf("Save(%q) expected error", id)
		}
	}
}

func TestFileBackendReplacesSnapshotInPlace(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}

	for _, content := range []string{"first", "second"} {
		snap := Snapshot{Messages: []Message{{Role: RoleUser, Content: content}}}
		if err := b.Save(ctx, "s1", snap); err != nil {
			t.Fatalf("Save(%s) error = %v", content, err)
		}
	}
	got, err := b.Load(ctx, "s1")
	if err != nil || len(got.Messages) != 1 || got.Messages[0].Content != "second" {
		t.Fatalf("Load() = %+v, %v", got, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "s1.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("session dir holds %v, want only s1.json", names)
	}
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := NewSQLiteBackend(ctx, filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend() error = %v", err)
	}
	defer b.Close()

	if _, err := b.Load(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrNotFound", err)
	}

	snap := Snapshot{
		Messages: []Message{{Role: RoleUser, Content: "héllo <b>", Timestamp: 1.5}},
		Summary:  "User asked: héllo <b>",
	}
	if err := b.Save(ctx, "s1", snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	snap.Summary = "updated"
	if err := b.Save(ctx, "s1", snap); err != nil {
		t.Fatalf("Save(update) error = %v", err)
	}

	got, err := b.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Summary != "updated" || len(got.Messages) != 1 || got.Messages[0].Content != "héllo <b>" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	ids, err := b.List(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "s1" {
		t.Fatalf("List() = %v, %v", ids, err)
	}
	if err := b.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := b.Load(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(after delete) error = %v, want ErrNotFound", err)
	}
}

func TestNewBackendAutoSelectsFile(t *testing.T) {
	dir := t.TempDir()
	b, kind, err := NewBackend(context.Background(), BackendConfig{Kind: "auto", DataDir: dir})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	defer b.Close()
	if kind != "file" {
		t.Fatalf("kind = %q, want file", kind)
	}
	if _, _, err := NewBackend(context.Background(), BackendConfig{Kind: "mongo"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
