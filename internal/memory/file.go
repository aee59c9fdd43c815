package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
)

const snapshotExt = ".json"

// FileBackend stores one JSON snapshot file per session under a directory.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) (*FileBackend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file backend: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) Load(_ context.Context, sessionID string) (Snapshot, error) {
	path, err := b.path(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Save replaces the snapshot file atomically.
func (b *FileBackend) Save(_ context.Context, sessionID string, snap Snapshot) error {
	path, err := b.path(sessionID)
	if err != nil {
		return err
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (b *FileBackend) Delete(_ context.Context, sessionID string) error {
	path, err := b.path(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

func (b *FileBackend) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read session dir: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		out = append(out, strings.TrimSuffix(name, snapshotExt))
	}
	sort.Strings(out)
	return out, nil
}

func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) path(sessionID string) (string, error) {
	if sessionID == "" || sessionID == "." || sessionID == ".." ||
		strings.ContainsAny(sessionID, `/\`) || strings.ContainsRune(sessionID, 0) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(b.dir, sessionID+snapshotExt), nil
}
