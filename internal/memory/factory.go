package memory

import (
	"context"
	"fmt"
	"strings"
)

// BackendConfig selects and locates the snapshot backend.
type BackendConfig struct {
	Kind        string // auto|file|sqlite|postgres|redis
	DataDir     string
	SQLitePath  string
	DatabaseURL string
	RedisURL    string
}

// NewBackend opens the configured backend and reports which kind was chosen.
// "auto" prefers postgres, then redis, then the file backend.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, string, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	if kind == "" || kind == "auto" {
		switch {
		case strings.TrimSpace(cfg.DatabaseURL) != "":
			kind = "postgres"
		case strings.TrimSpace(cfg.RedisURL) != "":
			kind = "redis"
		default:
			kind = "file"
		}
	}

	var (
		b   Backend
		err error
	)
	switch kind {
	case "file":
		b, err = NewFileBackend(cfg.DataDir)
	case "sqlite":
		b, err = NewSQLiteBackend(ctx, cfg.SQLitePath)
	case "postgres":
		b, err = NewPostgresBackend(ctx, cfg.DatabaseURL)
	case "redis":
		b, err = NewRedisBackend(ctx, cfg.RedisURL)
	case "memory":
		b = NewInMemoryBackend()
	default:
		return nil, "", fmt.Errorf("unknown session store %q", cfg.Kind)
	}
	if err != nil {
		return nil, "", err
	}
	return b, kind, nil
}
