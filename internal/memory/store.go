package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// A session log longer than maxMessages is cut back to its newest retainMessages.
	maxMessages    = 100
	retainMessages = 80
)

// Store is the per-session message log with rolling summary. Snapshots are
// cached after first access; every mutation is written through to the backend
// before the call returns. A single mutex serializes all sessions.
type Store struct {
	mu      sync.Mutex
	backend Backend
	cache   map[string]*Snapshot
	logger  *slog.Logger
}

func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		cache:   make(map[string]*Snapshot),
		logger:  logger,
	}
}

// Messages returns the session log in append order. Unknown or unreadable
// sessions yield an empty slice.
func (s *Store) Messages(ctx context.Context, sessionID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.loadLocked(ctx, sessionID).Messages)
}

// Recent returns at most limit of the newest messages, oldest first.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.loadLocked(ctx, sessionID).Messages
	if limit >= 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return cloneMessages(msgs)
}

// Append adds msg to the session, truncating and persisting the snapshot.
// It returns the stored message count after the append. When the backend
// save fails the session is left unchanged.
func (s *Store) Append(ctx context.Context, sessionID string, msg Message) (int, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, errors.New("append message: empty session id")
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = nowSeconds()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.loadLocked(ctx, sessionID)
	msgs := make([]Message, 0, len(cur.Messages)+1)
	msgs = append(msgs, cur.Messages...)
	msgs = append(msgs, msg)
	if len(msgs) > maxMessages {
		msgs = append([]Message(nil), msgs[len(msgs)-retainMessages:]...)
	}

	// The cache only moves forward once the backend holds the snapshot.
	next := &Snapshot{Messages: msgs, Summary: cur.Summary}
	if err := s.backend.Save(ctx, sessionID, *next); err != nil {
		return len(cur.Messages), fmt.Errorf("persist session %q: %w", sessionID, err)
	}
	s.cache[sessionID] = next
	return len(msgs), nil
}

// Summary returns the rolling summary, or "" when none has been computed.
func (s *Store) Summary(ctx context.Context, sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, sessionID).Summary
}

// SetSummary replaces the rolling summary and persists it with the messages.
func (s *Store) SetSummary(ctx context.Context, sessionID, summary string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("set summary: empty session id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.loadLocked(ctx, sessionID)
	next := &Snapshot{Messages: cur.Messages, Summary: summary}
	if err := s.backend.Save(ctx, sessionID, *next); err != nil {
		return fmt.Errorf("persist summary %q: %w", sessionID, err)
	}
	s.cache[sessionID] = next
	return nil
}

// Clear drops the session from cache and backend. Clearing an absent session is a no-op.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, sessionID)
	if err := s.backend.Delete(ctx, sessionID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete session %q: %w", sessionID, err)
	}
	return nil
}

// Evict forgets the cached snapshot so the next access reloads it from the backend.
func (s *Store) Evict(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, sessionID)
}

// ErrorSummary counts the session's messages per error category.
func (s *Store) ErrorSummary(ctx context.Context, sessionID string) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int)
	for _, m := range s.loadLocked(ctx, sessionID).Messages {
		if m.ErrorType != "" {
			out[m.ErrorType]++
		}
	}
	return out
}

// Sessions lists every session id known to the cache or the backend, sorted.
func (s *Store) Sessions(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionsLocked(ctx)
}

// Stats reports per-session counters for all known sessions, ordered by id.
func (s *Store) Stats(ctx context.Context) []SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.sessionsLocked(ctx)
	out := make([]SessionStats, 0, len(ids))
	for _, id := range ids {
		snap := s.loadLocked(ctx, id)
		st := SessionStats{SessionID: id, MessageCount: len(snap.Messages)}
		for _, m := range snap.Messages {
			if m.Timestamp > st.LastActivity {
				st.LastActivity = m.Timestamp
			}
			if m.ErrorType != "" {
				st.ErrorCount++
			}
		}
		out = append(out, st)
	}
	return out
}

// TotalMessages sums message counts across all known sessions.
func (s *Store) TotalMessages(ctx context.Context) int {
	total := 0
	for _, st := range s.Stats(ctx) {
		total += st.MessageCount
	}
	return total
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) sessionsLocked(ctx context.Context) []string {
	seen := make(map[string]struct{}, len(s.cache))
	for id := range s.cache {
		seen[id] = struct{}{}
	}
	ids, err := s.backend.List(ctx)
	if err != nil {
		s.logger.Warn("list persisted sessions failed", "error", err)
	}
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// loadLocked returns the cached snapshot, loading it on first access.
// A corrupt or unreadable unit is treated as an empty session.
func (s *Store) loadLocked(ctx context.Context, sessionID string) *Snapshot {
	if snap, ok := s.cache[sessionID]; ok {
		return snap
	}
	snap, err := s.backend.Load(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("session snapshot unreadable, starting empty", "session_id", sessionID, "error", err)
		}
		snap = Snapshot{}
	}
	s.cache[sessionID] = &snap
	return &snap
}

func cloneMessages(in []Message) []Message {
	out := make([]Message, len(in))
	copy(out, in)
	return out
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
