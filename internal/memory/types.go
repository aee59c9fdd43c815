package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Role identifies the speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of a session's conversation log.
type Message struct {
	Role      Role    `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
	ErrorType string  `json:"error_type,omitempty"`
}

// Snapshot is the persisted form of a session, rewritten wholesale on every change.
type Snapshot struct {
	Messages []Message `json:"messages"`
	Summary  string    `json:"summary"`
}

// SessionStats summarizes one session for diagnostics.
type SessionStats struct {
	SessionID    string  `json:"session_id"`
	MessageCount int     `json:"message_count"`
	LastActivity float64 `json:"last_activity"`
	ErrorCount   int     `json:"error_count"`
}

// ErrNotFound is returned by backends when no snapshot exists for a session.
var ErrNotFound = errors.New("session snapshot not found")

// Backend persists session snapshots. One storage unit per session id.
type Backend interface {
	Load(ctx context.Context, sessionID string) (Snapshot, error)
	Save(ctx context.Context, sessionID string, snap Snapshot) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

func encodeSnapshot(snap Snapshot) ([]byte, error) {
	if snap.Messages == nil {
		snap.Messages = []Message{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(snap); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// decodeSnapshot accepts the current object form and the legacy bare message array.
func decodeSnapshot(data []byte) (Snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Snapshot{}, fmt.Errorf("decode snapshot: empty payload")
	}
	if data[0] == '[' {
		var msgs []Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return Snapshot{}, fmt.Errorf("decode legacy snapshot: %w", err)
		}
		return Snapshot{Messages: msgs}, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
