package memory

import (
	"context"
	"sort"
	"sync"
)

// InMemoryBackend keeps encoded snapshots in a map. Snapshots round-trip
// through the same JSON encoding as the durable backends.
type InMemoryBackend struct {
	mu    sync.Mutex
	units map[string][]byte
}

func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{units: make(map[string][]byte)}
}

func (b *InMemoryBackend) Load(_ context.Context, sessionID string) (Snapshot, error) {
	b.mu.Lock()
	data, ok := b.units[sessionID]
	b.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return decodeSnapshot(data)
}

func (b *InMemoryBackend) Save(_ context.Context, sessionID string, snap Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.units[sessionID] = data
	b.mu.Unlock()
	return nil
}

// Put stores raw bytes for a session. Used to seed legacy or corrupt units.
func (b *InMemoryBackend) Put(sessionID string, data []byte) {
	b.mu.Lock()
	b.units[sessionID] = append([]byte(nil), data...)
	b.mu.Unlock()
}

func (b *InMemoryBackend) Delete(_ context.Context, sessionID string) error {
	b.mu.Lock()
	delete(b.units, sessionID)
	b.mu.Unlock()
	return nil
}

func (b *InMemoryBackend) List(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.units))
	for id := range b.units {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (b *InMemoryBackend) Close() error { return nil }
